package models

import "time"

// AttemptStatus is the lifecycle state of a simulation attempt.
type AttemptStatus string

const (
	AttemptActive AttemptStatus = "ACTIVE"
	AttemptEnded  AttemptStatus = "ENDED"
)

// SimulationAttempt is a student's voice practice session.
type SimulationAttempt struct {
	ID                string        `db:"id" json:"id"`
	StudentID         string        `db:"student_id" json:"student_id"`
	SimulationID      string        `db:"simulation_id" json:"simulation_id"`
	ConversationID    string        `db:"conversation_id" json:"conversation_id"`
	Status            AttemptStatus `db:"status" json:"status"`
	MinutesBilled     int64         `db:"minutes_billed" json:"minutes_billed"`
	TotalMinutes      float64       `db:"total_minutes" json:"total_minutes"`
	CreditsCharged    int64         `db:"credits_charged" json:"credits_charged"`
	BillingTerminated bool          `db:"billing_terminated" json:"billing_terminated"`
	StartedAt         time.Time     `db:"started_at" json:"started_at"`
	EndedAt           *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
}

// MinuteChargeStatus records the decision taken for one billed minute.
type MinuteChargeStatus string

const (
	MinuteCharged      MinuteChargeStatus = "CHARGED"
	MinuteInsufficient MinuteChargeStatus = "INSUFFICIENT"
)

// MinuteCharge is keyed by (conversation_id, minute).
type MinuteCharge struct {
	ID             int64              `db:"id" json:"id"`
	ConversationID string             `db:"conversation_id" json:"conversation_id"`
	Minute         int64              `db:"minute" json:"minute"`
	AttemptID      string             `db:"attempt_id" json:"attempt_id"`
	StudentID      string             `db:"student_id" json:"student_id"`
	Amount         int64              `db:"amount" json:"amount"`
	Status         MinuteChargeStatus `db:"status" json:"status"`
	TransactionID  *int64             `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}
