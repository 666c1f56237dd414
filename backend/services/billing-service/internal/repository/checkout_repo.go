package repository

import (
	"context"
	"fmt"
	"time"

	"mvpbackend/backend/services/billing-service/internal/models"
)

// CheckoutSessionRepository persists Stripe checkout sessions.
type CheckoutSessionRepository struct {
	db DBTX
}

// NewCheckoutSessionRepository returns repository.
func NewCheckoutSessionRepository(db DBTX) *CheckoutSessionRepository {
	return &CheckoutSessionRepository{db: db}
}

// Create stores a freshly opened checkout session.
func (r *CheckoutSessionRepository) Create(ctx context.Context, s *models.CheckoutSession) error {
	const query = `
		INSERT INTO stripe_checkout_sessions
			(session_id, student_id, credit_package_id, credits_quantity, amount_in_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	if s.Status == "" {
		s.Status = models.CheckoutPending
	}
	err := r.db.QueryRowContext(ctx, query,
		s.SessionID,
		s.StudentID,
		s.CreditPackageID,
		s.CreditsQuantity,
		s.AmountInCents,
		s.Status,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

// GetDetails loads a session together with its student and package.
func (r *CheckoutSessionRepository) GetDetails(ctx context.Context, sessionID string) (*models.CheckoutSessionDetails, error) {
	const query = `
		SELECT
			cs.id, cs.session_id, cs.student_id, cs.credit_package_id, cs.credits_quantity,
			cs.amount_in_cents, cs.status, cs.completed_at, cs.created_at,
			s.id, s.email, s.name, s.credit_balance, s.updated_at,
			p.id, p.name, p.credits, p.price_in_cents, p.is_active, p.created_at
		FROM stripe_checkout_sessions cs
		JOIN students s ON s.id = cs.student_id
		JOIN credit_packages p ON p.id = cs.credit_package_id
		WHERE cs.session_id = $1
	`
	var d models.CheckoutSessionDetails
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&d.Session.ID, &d.Session.SessionID, &d.Session.StudentID, &d.Session.CreditPackageID, &d.Session.CreditsQuantity,
		&d.Session.AmountInCents, &d.Session.Status, &d.Session.CompletedAt, &d.Session.CreatedAt,
		&d.Student.ID, &d.Student.Email, &d.Student.Name, &d.Student.CreditBalance, &d.Student.UpdatedAt,
		&d.Package.ID, &d.Package.Name, &d.Package.Credits, &d.Package.PriceInCents, &d.Package.IsActive, &d.Package.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, ErrCheckoutSessionNotFound)
	}
	return &d, nil
}

// GetForUpdate loads and locks a session row.
func (r *CheckoutSessionRepository) GetForUpdate(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	const query = `
		SELECT id, session_id, student_id, credit_package_id, credits_quantity, amount_in_cents, status, completed_at, created_at
		FROM stripe_checkout_sessions
		WHERE session_id = $1
		FOR UPDATE
	`
	var s models.CheckoutSession
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&s.ID, &s.SessionID, &s.StudentID, &s.CreditPackageID, &s.CreditsQuantity,
		&s.AmountInCents, &s.Status, &s.CompletedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, ErrCheckoutSessionNotFound)
	}
	return &s, nil
}

// Transition moves a session from one status to another. It reports false when the session
// was no longer in the from status.
func (r *CheckoutSessionRepository) Transition(ctx context.Context, sessionID string, from, to models.CheckoutStatus, at time.Time) (bool, error) {
	const query = `
		UPDATE stripe_checkout_sessions
		SET status = $3::text,
		    completed_at = CASE WHEN $3::text = 'COMPLETED' THEN $4::timestamptz ELSE completed_at END
		WHERE session_id = $1 AND status = $2
	`
	res, err := r.db.ExecContext(ctx, query, sessionID, from, to, at)
	if err != nil {
		return false, fmt.Errorf("transition checkout session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
