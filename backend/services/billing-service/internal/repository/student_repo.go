package repository

import (
	"context"
	"fmt"

	"mvpbackend/backend/services/billing-service/internal/models"
)

// StudentRepository reads and updates student balances.
type StudentRepository struct {
	db DBTX
}

// NewStudentRepository returns repository instance.
func NewStudentRepository(db DBTX) *StudentRepository {
	return &StudentRepository{db: db}
}

const selectStudent = `
	SELECT id, email, name, credit_balance, updated_at
	FROM students
	WHERE id = $1
`

// Get fetches a student by id.
func (r *StudentRepository) Get(ctx context.Context, id string) (*models.Student, error) {
	return r.scan(ctx, selectStudent, id)
}

// GetForUpdate fetches a student and locks the row until the surrounding transaction ends.
func (r *StudentRepository) GetForUpdate(ctx context.Context, id string) (*models.Student, error) {
	return r.scan(ctx, selectStudent+" FOR UPDATE", id)
}

func (r *StudentRepository) scan(ctx context.Context, query, id string) (*models.Student, error) {
	var s models.Student
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Email, &s.Name, &s.CreditBalance, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, ErrStudentNotFound)
	}
	return &s, nil
}

// UpdateBalance sets the balance only if it still equals expected.
func (r *StudentRepository) UpdateBalance(ctx context.Context, id string, expected, balance int64) error {
	const query = `
		UPDATE students
		SET credit_balance = $3, updated_at = NOW()
		WHERE id = $1 AND credit_balance = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, expected, balance)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBalanceConflict
	}
	return nil
}
