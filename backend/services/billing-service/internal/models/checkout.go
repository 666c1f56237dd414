package models

import "time"

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Credits      int64     `db:"credits" json:"credits"`
	PriceInCents int64     `db:"price_in_cents" json:"price_in_cents"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CheckoutStatus is the lifecycle state of a Stripe checkout session.
type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "PENDING"
	CheckoutCompleted CheckoutStatus = "COMPLETED"
	CheckoutExpired   CheckoutStatus = "EXPIRED"
)

// CheckoutSession tracks a pending purchase.
type CheckoutSession struct {
	ID              int64          `db:"id" json:"id"`
	SessionID       string         `db:"session_id" json:"session_id"`
	StudentID       string         `db:"student_id" json:"student_id"`
	CreditPackageID string         `db:"credit_package_id" json:"credit_package_id"`
	CreditsQuantity int64          `db:"credits_quantity" json:"credits_quantity"`
	AmountInCents   int64          `db:"amount_in_cents" json:"amount_in_cents"`
	Status          CheckoutStatus `db:"status" json:"status"`
	CheckoutURL     string         `db:"-" json:"checkout_url,omitempty"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// CheckoutSessionDetails joins a session with its student and package.
type CheckoutSessionDetails struct {
	Session CheckoutSession
	Student Student
	Package CreditPackage
}
