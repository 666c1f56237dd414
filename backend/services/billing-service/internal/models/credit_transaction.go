package models

import (
	"encoding/json"
	"time"
)

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

// SourceType names what produced a ledger entry.
type SourceType string

const (
	SourcePurchase   SourceType = "PURCHASE"
	SourceSimulation SourceType = "SIMULATION"
	SourceAdjustment SourceType = "ADJUSTMENT"
)

// CreditTransaction is an immutable ledger row.
type CreditTransaction struct {
	ID              int64           `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	TransactionType TransactionType `db:"transaction_type" json:"transaction_type"`
	Amount          int64           `db:"amount" json:"amount"`
	BalanceAfter    int64           `db:"balance_after" json:"balance_after"`
	SourceType      SourceType      `db:"source_type" json:"source_type"`
	SourceID        string          `db:"source_id" json:"source_id"`
	Description     string          `db:"description" json:"description"`
	Metadata        json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
