package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/galleryhub/internal/logging"
)

// StartAccountEventConsumer connects to RabbitMQ, declares the durable
// account.events queue and handles deliveries until ctx is cancelled.  It
// reconnects with exponential backoff, so a broker outage never stops the
// server.  Messages that cannot be handled are rejected without requeue.
func StartAccountEventConsumer(ctx context.Context, url string, log logging.Logger) error {
	log = log.With("component", "account-consumer")
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn(ctx, "dial broker failed", "err", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn(ctx, "consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, log logging.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn(ctx, "set qos failed", "err", err)
	}
	if _, err := ch.QueueDeclare(AccountEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, AccountEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := Handle(ctx, log, d.Body); err != nil {
			log.Error(ctx, "handle message failed", "err", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle processes one encoded Envelope.  Unknown event types are logged
// and accepted so that older consumers do not block newer publishers.
func Handle(ctx context.Context, log logging.Logger, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	switch env.Type {
	case TypeAccountLocked:
		var ev AccountLockedEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		log.Warn(ctx, "account locked",
			"account_id", ev.AccountID, "email", ev.Email, "locked_until", ev.LockedUntil.Format(time.RFC3339))
	case TypePasswordResetRequested:
		var ev PasswordResetRequestedEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		log.Info(ctx, "password reset requested",
			"account_id", ev.AccountID, "email", ev.Email, "reset_url", ev.ResetURL,
			"expires_at", ev.ExpiresAt.Format(time.RFC3339))
	default:
		log.Debug(ctx, "ignoring unknown event", "type", env.Type)
	}
	return nil
}
