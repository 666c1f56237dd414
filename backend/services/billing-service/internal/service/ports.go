package service

import (
	"context"
	"encoding/json"

	"mvpbackend/backend/services/billing-service/internal/models"
	"mvpbackend/backend/services/billing-service/internal/notify"
	redisstore "mvpbackend/backend/services/billing-service/internal/redis"
	"mvpbackend/backend/services/billing-service/internal/repository"
)

// TxRunner opens database transactions.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

// LedgerStore is what the ledger reads outside transactions.
type LedgerStore interface {
	TxRunner
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ListTransactions(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error)
}

// WebhookStore backs Stripe event handling.
type WebhookStore interface {
	TxRunner
	GetCheckoutDetails(ctx context.Context, sessionID string) (*models.CheckoutSessionDetails, error)
	WebhookEventExists(ctx context.Context, eventID string) (bool, error)
	InsertWebhookEvent(ctx context.Context, ev *models.StripeWebhookEvent) error
	GetWebhookEvent(ctx context.Context, eventID string) (*models.StripeWebhookEvent, error)
	UpdateWebhookEvent(ctx context.Context, eventID string, payload json.RawMessage, processed bool) error
}

// CheckoutStore backs checkout creation.
type CheckoutStore interface {
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ListActivePackages(ctx context.Context) ([]models.CreditPackage, error)
	GetActivePackage(ctx context.Context, id string) (*models.CreditPackage, error)
	CreateCheckoutSession(ctx context.Context, session *models.CheckoutSession) error
}

// VoiceStore backs per-minute and session billing.
type VoiceStore interface {
	TxRunner
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	GetAttemptByConversation(ctx context.Context, conversationID string) (*models.SimulationAttempt, error)
	CreateOrGetAttempt(ctx context.Context, a *models.SimulationAttempt) (*models.SimulationAttempt, error)
}

// ConversationCache is the hot conversation lookup. Misses return redis.Nil.
type ConversationCache interface {
	Get(ctx context.Context, conversationID string) (*redisstore.Conversation, error)
	Save(ctx context.Context, c redisstore.Conversation) error
	Delete(ctx context.Context, conversationID string) error
}

// Notifier queues outbound notifications.
type Notifier interface {
	Enqueue(msg notify.Message) bool
}
