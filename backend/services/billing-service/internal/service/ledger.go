package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/models"
	"mvpbackend/backend/services/billing-service/internal/repository"
)

const maxHistoryLimit = 200

// Entry is one ledger mutation.
type Entry struct {
	StudentID   string
	Type        models.TransactionType
	Amount      int64
	SourceType  models.SourceType
	SourceID    string
	Description string
	Metadata    map[string]any
}

// LedgerService owns every change to a student's credit balance.
type LedgerService struct {
	store  LedgerStore
	logger *zap.Logger
}

// NewLedgerService builds service.
func NewLedgerService(store LedgerStore, logger *zap.Logger) *LedgerService {
	return &LedgerService{store: store, logger: logger}
}

// Apply writes entry inside tx: it locks the student, computes the new balance, rejects
// debits that would go negative, stores the balance conditionally and appends the ledger row.
func (s *LedgerService) Apply(ctx context.Context, tx repository.Tx, e Entry) (*models.CreditTransaction, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	student, err := tx.LockStudent(ctx, e.StudentID)
	if err != nil {
		return nil, err
	}

	var balance int64
	switch e.Type {
	case models.TransactionCredit:
		balance = student.CreditBalance + e.Amount
	case models.TransactionDebit:
		balance = student.CreditBalance - e.Amount
		if balance < 0 {
			return nil, ErrInsufficientCredits
		}
	default:
		return nil, fmt.Errorf("ledger: unknown transaction type %q", e.Type)
	}

	if err := tx.SetStudentBalance(ctx, student.ID, student.CreditBalance, balance); err != nil {
		return nil, err
	}

	row := &models.CreditTransaction{
		StudentID:       student.ID,
		TransactionType: e.Type,
		Amount:          e.Amount,
		BalanceAfter:    balance,
		SourceType:      e.SourceType,
		SourceID:        e.SourceID,
		Description:     e.Description,
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ledger: encode metadata: %w", err)
		}
		row.Metadata = raw
	}
	if err := tx.InsertCreditTransaction(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Balance returns the current balance of a student.
func (s *LedgerService) Balance(ctx context.Context, studentID string) (*models.Student, error) {
	return s.store.GetStudent(ctx, studentID)
}

// History returns the latest ledger rows of a student.
func (s *LedgerService) History(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 50
	}
	return s.store.ListTransactions(ctx, studentID, limit)
}

// AdjustInput is an operator balance correction.
type AdjustInput struct {
	StudentID string
	Delta     int64
	Reason    string
	Reference string
}

// Adjust credits or debits a student outside the purchase and simulation flows.
func (s *LedgerService) Adjust(ctx context.Context, in AdjustInput) (*models.CreditTransaction, error) {
	if in.Delta == 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: reason required", ErrInvalidPayload)
	}

	entry := Entry{
		StudentID:   in.StudentID,
		Type:        models.TransactionCredit,
		Amount:      in.Delta,
		SourceType:  models.SourceAdjustment,
		SourceID:    in.Reference,
		Description: in.Reason,
	}
	if in.Delta < 0 {
		entry.Type = models.TransactionDebit
		entry.Amount = -in.Delta
	}

	var row *models.CreditTransaction
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		row, err = s.Apply(ctx, tx, entry)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientCredits) && !errors.Is(err, repository.ErrStudentNotFound) {
			s.logger.Error("balance adjustment failed", zap.String("student_id", in.StudentID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("balance adjusted",
		zap.String("student_id", in.StudentID),
		zap.Int64("delta", in.Delta),
		zap.Int64("balance_after", row.BalanceAfter),
	)
	return row, nil
}
