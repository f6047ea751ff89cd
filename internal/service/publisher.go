// Package service publishes account events to RabbitMQ.
package service

import (
	"context"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/queue"
)

const publishTimeout = 3 * time.Second

// Publisher implements auth.Notifier.  With an empty broker URL events are
// handed straight to queue.Handle in-process, so the reset link still
// reaches the log in a single-binary setup.
type Publisher struct {
	url       string
	publicURL string
	log       logging.Logger
	now       func() time.Time
}

// NewPublisher returns a Publisher for the broker at amqpURL.  publicURL
// is the site base used to build password reset links.
func NewPublisher(amqpURL, publicURL string, log logging.Logger) *Publisher {
	if log == nil {
		log = logging.Nop()
	}
	return &Publisher{url: amqpURL, publicURL: publicURL, log: log, now: time.Now}
}

var _ auth.Notifier = (*Publisher)(nil)

func (p *Publisher) AccountLocked(ctx context.Context, a model.Account, until time.Time) error {
	return p.publish(ctx, queue.TypeAccountLocked, queue.AccountLockedEvent{
		AccountID:   a.ID,
		Email:       a.Email,
		LockedUntil: until.UTC(),
	})
}

func (p *Publisher) PasswordResetRequested(ctx context.Context, a model.Account, token string, exp time.Time) error {
	return p.publish(ctx, queue.TypePasswordResetRequested, queue.PasswordResetRequestedEvent{
		AccountID: a.ID,
		Email:     a.Email,
		ResetURL:  p.resetURL(token),
		ExpiresAt: exp.UTC(),
	})
}

func (p *Publisher) resetURL(token string) string {
	return p.publicURL + "/reset-password?" + url.Values{"token": {token}}.Encode()
}

// publish dials the broker for every event; account events are rare
// enough that a pooled connection is not worth its reconnect handling.
func (p *Publisher) publish(ctx context.Context, typ string, payload any) error {
	body, err := queue.Encode(typ, p.now(), payload)
	if err != nil {
		return err
	}
	if p.url == "" {
		return queue.Handle(ctx, p.log, body)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(publishTimeout)})
	if err != nil {
		p.log.Error(ctx, "rabbitmq dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error(ctx, "rabbitmq channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.AccountEventsQueue, true, false, false, false, nil); err != nil {
		p.log.Error(ctx, "rabbitmq queue declare failed", "err", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Type:         typ,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.AccountEventsQueue, false, false, pub); err != nil {
		p.log.Error(ctx, "rabbitmq publish failed", "type", typ, "err", err)
		return err
	}
	return nil
}
