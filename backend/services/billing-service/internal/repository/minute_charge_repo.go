package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mvpbackend/backend/services/billing-service/internal/models"
)

// MinuteChargeRepository stores per-minute billing decisions.
type MinuteChargeRepository struct {
	db DBTX
}

// NewMinuteChargeRepository returns repository.
func NewMinuteChargeRepository(db DBTX) *MinuteChargeRepository {
	return &MinuteChargeRepository{db: db}
}

// Insert stores a charge and reports false when (conversation_id, minute) already exists.
func (r *MinuteChargeRepository) Insert(ctx context.Context, c *models.MinuteCharge) (bool, error) {
	const query = `
		INSERT INTO voice_minute_charges
			(conversation_id, minute, attempt_id, student_id, amount, status, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (conversation_id, minute) DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ConversationID,
		c.Minute,
		c.AttemptID,
		c.StudentID,
		c.Amount,
		c.Status,
		c.TransactionID,
	).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert minute charge: %w", err)
	}
	return true, nil
}

// Get returns the stored charge for a minute, or nil when none exists.
func (r *MinuteChargeRepository) Get(ctx context.Context, conversationID string, minute int64) (*models.MinuteCharge, error) {
	const query = `
		SELECT id, conversation_id, minute, attempt_id, student_id, amount, status, transaction_id, created_at
		FROM voice_minute_charges
		WHERE conversation_id = $1 AND minute = $2
	`
	var c models.MinuteCharge
	err := r.db.QueryRowContext(ctx, query, conversationID, minute).Scan(
		&c.ID, &c.ConversationID, &c.Minute, &c.AttemptID, &c.StudentID, &c.Amount, &c.Status, &c.TransactionID, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update writes status and ledger reference of a charge.
func (r *MinuteChargeRepository) Update(ctx context.Context, c *models.MinuteCharge) error {
	const query = `UPDATE voice_minute_charges SET status = $2, transaction_id = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Status, c.TransactionID); err != nil {
		return fmt.Errorf("update minute charge: %w", err)
	}
	return nil
}
