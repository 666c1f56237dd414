package models

import "time"

// Student is the billing view of a platform student. CreditBalance is a cache of the ledger.
type Student struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Name          string    `db:"name" json:"name"`
	CreditBalance int64     `db:"credit_balance" json:"credit_balance"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
