package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"mvpbackend/backend/services/billing-service/internal/models"
)

// WebhookEventRepository stores received Stripe events.
type WebhookEventRepository struct {
	db DBTX
}

// NewWebhookEventRepository returns repository.
func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Exists reports whether an event id was already recorded.
func (r *WebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stripe_webhook_events WHERE event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return exists, nil
}

// Insert records an event. A concurrent delivery that already recorded the id wins.
func (r *WebhookEventRepository) Insert(ctx context.Context, ev *models.StripeWebhookEvent) error {
	const query = `
		INSERT INTO stripe_webhook_events (event_id, event_type, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, ev.EventID, ev.EventType, []byte(ev.Payload), ev.Processed); err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// Get fetches a recorded event.
func (r *WebhookEventRepository) Get(ctx context.Context, eventID string) (*models.StripeWebhookEvent, error) {
	const query = `
		SELECT id, event_id, event_type, payload, processed, created_at
		FROM stripe_webhook_events
		WHERE event_id = $1
	`
	var (
		ev      models.StripeWebhookEvent
		payload []byte
	)
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(&ev.ID, &ev.EventID, &ev.EventType, &payload, &ev.Processed, &ev.CreatedAt)
	if err != nil {
		return nil, notFound(err, ErrEventNotFound)
	}
	ev.Payload = json.RawMessage(payload)
	return &ev, nil
}

// Update overwrites payload and processed flag of a recorded event.
func (r *WebhookEventRepository) Update(ctx context.Context, eventID string, payload json.RawMessage, processed bool) error {
	const query = `
		UPDATE stripe_webhook_events
		SET payload = $2, processed = $3
		WHERE event_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, eventID, []byte(payload), processed)
	if err != nil {
		return fmt.Errorf("update webhook event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
}
