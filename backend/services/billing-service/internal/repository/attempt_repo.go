package repository

import (
	"context"
	"fmt"

	"mvpbackend/backend/services/billing-service/internal/models"
)

// AttemptRepository handles simulation attempts.
type AttemptRepository struct {
	db DBTX
}

// NewAttemptRepository returns repository.
func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

const attemptColumns = `id, student_id, simulation_id, conversation_id, status, minutes_billed, total_minutes,
	credits_charged, billing_terminated, started_at, ended_at`

func (r *AttemptRepository) scanOne(ctx context.Context, query string, args ...any) (*models.SimulationAttempt, error) {
	var a models.SimulationAttempt
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.StudentID, &a.SimulationID, &a.ConversationID, &a.Status, &a.MinutesBilled, &a.TotalMinutes,
		&a.CreditsCharged, &a.BillingTerminated, &a.StartedAt, &a.EndedAt,
	)
	if err != nil {
		return nil, notFound(err, ErrAttemptNotFound)
	}
	return &a, nil
}

// GetByConversation finds the attempt bound to a voice conversation.
func (r *AttemptRepository) GetByConversation(ctx context.Context, conversationID string) (*models.SimulationAttempt, error) {
	return r.scanOne(ctx, `SELECT `+attemptColumns+` FROM simulation_attempts WHERE conversation_id = $1`, conversationID)
}

// GetForUpdate loads and locks an attempt by id.
func (r *AttemptRepository) GetForUpdate(ctx context.Context, id string) (*models.SimulationAttempt, error) {
	return r.scanOne(ctx, `SELECT `+attemptColumns+` FROM simulation_attempts WHERE id = $1 FOR UPDATE`, id)
}

// CreateOrGet inserts the attempt unless its conversation is already registered, and
// returns the stored row either way.
func (r *AttemptRepository) CreateOrGet(ctx context.Context, a *models.SimulationAttempt) (*models.SimulationAttempt, error) {
	const query = `
		INSERT INTO simulation_attempts (id, student_id, simulation_id, conversation_id, status, started_at)
		VALUES ($1, $2, $3, $4, 'ACTIVE', NOW())
		ON CONFLICT (conversation_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.StudentID, a.SimulationID, a.ConversationID); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return r.GetByConversation(ctx, a.ConversationID)
}

// UpdateBilling writes the billing columns of an attempt.
func (r *AttemptRepository) UpdateBilling(ctx context.Context, a *models.SimulationAttempt) error {
	const query = `
		UPDATE simulation_attempts
		SET status = $2, minutes_billed = $3, total_minutes = $4, credits_charged = $5,
		    billing_terminated = $6, ended_at = $7
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Status,
		a.MinutesBilled,
		a.TotalMinutes,
		a.CreditsCharged,
		a.BillingTerminated,
		a.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update attempt billing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAttemptNotFound
	}
	return nil
}
