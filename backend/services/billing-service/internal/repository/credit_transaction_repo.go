package repository

import (
	"context"
	"fmt"

	"mvpbackend/backend/services/billing-service/internal/models"
)

// CreditTransactionRepository persists ledger rows.
type CreditTransactionRepository struct {
	db DBTX
}

// NewCreditTransactionRepository returns repository.
func NewCreditTransactionRepository(db DBTX) *CreditTransactionRepository {
	return &CreditTransactionRepository{db: db}
}

// Create inserts a new ledger row.
func (r *CreditTransactionRepository) Create(ctx context.Context, tx *models.CreditTransaction) error {
	const query = `
		INSERT INTO credit_transactions
			(student_id, transaction_type, amount, balance_after, source_type, source_id, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`
	var metadata any
	if len(tx.Metadata) > 0 {
		metadata = []byte(tx.Metadata)
	}
	err := r.db.QueryRowContext(ctx, query,
		tx.StudentID,
		tx.TransactionType,
		tx.Amount,
		tx.BalanceAfter,
		tx.SourceType,
		tx.SourceID,
		tx.Description,
		metadata,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert credit transaction: %w", err)
	}
	return nil
}

// ListByStudent returns latest ledger rows for a student, newest first.
func (r *CreditTransactionRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, student_id, transaction_type, amount, balance_after, source_type, source_id, description, metadata, created_at
		FROM credit_transactions
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]models.CreditTransaction, 0)
	for rows.Next() {
		var (
			tx       models.CreditTransaction
			metadata []byte
		)
		if err := rows.Scan(
			&tx.ID,
			&tx.StudentID,
			&tx.TransactionType,
			&tx.Amount,
			&tx.BalanceAfter,
			&tx.SourceType,
			&tx.SourceID,
			&tx.Description,
			&metadata,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			tx.Metadata = metadata
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}
