package cache

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iliyamo/galleryhub/internal/model"
)

const settingsKey = "settings"

// SettingsStore is the persistent side of Settings.
// *repository.SettingsRepo implements it.
type SettingsStore interface {
	Get(ctx context.Context) (model.Settings, error)
	Update(ctx context.Context, fn func(model.Settings) (model.Settings, error)) (model.Settings, error)
}

// Settings serves the platform settings from an in-process copy for up to
// ttl. Writes through Update refresh the copy at once; other instances see
// them when their copy expires.
type Settings struct {
	src SettingsStore
	lru *expirable.LRU[string, model.Settings]
}

func NewSettings(src SettingsStore, ttl time.Duration) *Settings {
	return &Settings{src: src, lru: expirable.NewLRU[string, model.Settings](1, nil, ttl)}
}

func (s *Settings) Get(ctx context.Context) (model.Settings, error) {
	if v, ok := s.lru.Get(settingsKey); ok {
		return clone(v), nil
	}
	v, err := s.src.Get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	s.lru.Add(settingsKey, v)
	return clone(v), nil
}

func (s *Settings) Update(ctx context.Context, fn func(model.Settings) (model.Settings, error)) (model.Settings, error) {
	v, err := s.src.Update(ctx, fn)
	if err != nil {
		s.lru.Remove(settingsKey)
		return model.Settings{}, err
	}
	s.lru.Add(settingsKey, v)
	return clone(v), nil
}

func clone(v model.Settings) model.Settings {
	v.AllowedFileTypes = slices.Clone(v.AllowedFileTypes)
	return v
}
