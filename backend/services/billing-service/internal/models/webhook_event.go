package models

import (
	"encoding/json"
	"time"
)

// StripeWebhookEvent is the idempotency and audit record of a received Stripe event.
type StripeWebhookEvent struct {
	ID        int64           `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	EventType string          `db:"event_type" json:"event_type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Processed bool            `db:"processed" json:"processed"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
