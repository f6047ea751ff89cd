// Package storage hands out presigned S3 URLs for artwork images.  The
// server never proxies image bytes: browsers PUT the file straight to the
// bucket and read it back through short-lived GET links.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/iliyamo/galleryhub/internal/config"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type deleter interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store signs upload and view URLs for one bucket.
type Store struct {
	bucket   string
	ttl      time.Duration
	maxBytes int64
	allowed  []string
	presign  presigner
	objects  deleter
	now      func() time.Time
}

// Upload describes a presigned PUT the client must perform.
type Upload struct {
	Key       string            `json:"object_key"`
	URL       string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// New builds a Store from cfg.  A custom endpoint (MinIO and the like)
// switches to that base URL.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{
		bucket:   cfg.Bucket,
		ttl:      ttl,
		maxBytes: cfg.MaxUploadBytes,
		allowed:  cfg.AllowedTypes,
		presign:  s3.NewPresignClient(client),
		objects:  client,
		now:      time.Now,
	}, nil
}

// NewObjectKey returns a fresh key under the artist's prefix, e.g.
// artworks/<artist>/2026/03/<uuid>.png.
func NewObjectKey(artistID, contentType string, now time.Time) string {
	return fmt.Sprintf("artworks/%s/%04d/%02d/%s%s",
		artistID, now.Year(), int(now.Month()), uuid.NewString(), extensions[contentType])
}

// Supported reports whether contentType is an image type uploads can
// carry at all.
func Supported(contentType string) bool {
	_, ok := extensions[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

// Limits narrows what one upload may be, on top of the bucket's own
// configuration. Zero values add no constraint.
type Limits struct {
	MaxBytes int64
	Types    []string
}

// OwnsKey reports whether key was issued to artistID by PresignUpload.
func OwnsKey(key, artistID string) bool {
	return artistID != "" && strings.HasPrefix(key, "artworks/"+artistID+"/") && !strings.Contains(key, "..")
}

// PresignUpload signs a PUT for one image of contentType and size bytes
// within both the bucket configuration and lim. The signature binds type
// and size, so the client cannot swap the file for a larger or different
// one.
func (s *Store) PresignUpload(ctx context.Context, artistID, contentType string, size int64, lim Limits) (Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case !Supported(contentType), !slices.Contains(s.allowed, contentType),
		len(lim.Types) > 0 && !slices.Contains(lim.Types, contentType):
		return Upload{}, ErrUnsupportedType
	case size <= 0, s.maxBytes > 0 && size > s.maxBytes, lim.MaxBytes > 0 && size > lim.MaxBytes:
		return Upload{}, ErrTooLarge
	}

	key := NewObjectKey(artistID, contentType, s.now().UTC())
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return Upload{}, fmt.Errorf("presign put: %w", err)
	}

	headers := make(map[string]string, len(req.SignedHeader))
	for k, v := range req.SignedHeader {
		if len(v) > 0 && !strings.EqualFold(k, "host") {
			headers[k] = v[0]
		}
	}
	return Upload{
		Key:       key,
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}, nil
}

// PresignView returns a short-lived GET URL for key.
func (s *Store) PresignView(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// Delete removes the object stored under key.  Deleting a missing object
// is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
