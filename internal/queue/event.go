// Package queue defines the account events exchanged over the message
// broker and the consumer that processes them.
package queue

import (
	"encoding/json"
	"time"
)

// AccountEventsQueue is the durable queue every account event goes to.
const AccountEventsQueue = "account.events"

// Event types carried in Envelope.Type.
const (
	TypeAccountLocked          = "account.locked"
	TypePasswordResetRequested = "password_reset.requested"
)

// Envelope wraps one event on the wire.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// AccountLockedEvent is published when failed sign-ins lock an account.
type AccountLockedEvent struct {
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email"`
	LockedUntil time.Time `json:"locked_until"`
}

// PasswordResetRequestedEvent carries the reset link for an account.
// Mail delivery is out of scope; the consumer logs the link.
type PasswordResetRequestedEvent struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Encode wraps payload in an Envelope of type typ.
func Encode(typ string, at time.Time, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, OccurredAt: at.UTC(), Payload: raw})
}
