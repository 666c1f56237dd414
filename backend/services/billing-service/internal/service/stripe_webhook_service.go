package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/metrics"
	"mvpbackend/backend/services/billing-service/internal/models"
	"mvpbackend/backend/services/billing-service/internal/notify"
	"mvpbackend/backend/services/billing-service/internal/repository"
)

// Stripe event types handled by the webhook.
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncPaymentOK     = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventCheckoutExpired            = "checkout.session.expired"
)

// WebhookResult describes how an event was handled.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Processed bool   `json:"processed"`
}

// FulfillmentResult is the outcome of crediting a checkout session.
type FulfillmentResult struct {
	SessionID        string `json:"session_id"`
	StudentID        string `json:"student_id"`
	CreditsAdded     int64  `json:"credits_added"`
	BalanceAfter     int64  `json:"balance_after"`
	AlreadyCompleted bool   `json:"already_completed"`
}

// StripeWebhookConfig configures StripeWebhookService.
type StripeWebhookConfig struct {
	WebhookSecret string
	Currency      string
	Tolerance     time.Duration
}

// StripeWebhookService verifies, deduplicates and applies Stripe events.
type StripeWebhookService struct {
	store    WebhookStore
	ledger   *LedgerService
	notifier Notifier
	metrics  *metrics.Billing
	cfg      StripeWebhookConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewStripeWebhookService builds service.
func NewStripeWebhookService(
	cfg StripeWebhookConfig,
	store WebhookStore,
	ledger *LedgerService,
	notifier Notifier,
	m *metrics.Billing,
	logger *zap.Logger,
) *StripeWebhookService {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookService{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook runs the full pipeline for one delivery: verify, dedup, process, record.
func (s *StripeWebhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.VerifySignature(payload, signature)
	if err != nil {
		return nil, err
	}
	s.metrics.Inc(metrics.WebhookReceived)

	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}

	processed, err := s.IsAlreadyProcessed(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if processed {
		s.metrics.Inc(metrics.WebhookDuplicate)
		s.logger.Info("stripe event already processed", zap.String("event_id", event.ID))
		result.Duplicate = true
		return result, nil
	}

	procErr := s.Process(ctx, event)
	if recErr := s.RecordEvent(ctx, event.ID, string(event.Type), payload, procErr); recErr != nil {
		s.logger.Error("failed to record stripe event", zap.String("event_id", event.ID), zap.Error(recErr))
		if procErr == nil {
			return nil, recErr
		}
	}
	if procErr != nil {
		s.metrics.Inc(metrics.WebhookFailed)
		s.logger.Error("stripe event processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(procErr),
		)
		return nil, procErr
	}

	result.Processed = true
	return result, nil
}

// VerifySignature checks the Stripe-Signature header over the raw body.
func (s *StripeWebhookService) VerifySignature(payload []byte, signature string) (stripe.Event, error) {
	if s.cfg.WebhookSecret == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}
	if len(payload) == 0 || signature == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing body or signature", ErrSignatureInvalid)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.cfg.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if event.ID == "" {
		return stripe.Event{}, fmt.Errorf("%w: event id missing", ErrInvalidPayload)
	}
	return event, nil
}

// IsAlreadyProcessed reports whether the event id was recorded before.
func (s *StripeWebhookService) IsAlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.store.WebhookEventExists(ctx, eventID)
}

// Process dispatches on event type. Unknown types are acknowledged.
func (s *StripeWebhookService) Process(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		session, err := checkoutSessionFromEvent(event)
		if err != nil {
			return err
		}
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			s.logger.Info("checkout completed with payment pending",
				zap.String("session_id", session.ID))
			return nil
		}
		_, err = s.FulfillCredits(ctx, session.ID)
		return err
	case EventCheckoutAsyncPaymentOK:
		session, err := checkoutSessionFromEvent(event)
		if err != nil {
			return err
		}
		_, err = s.FulfillCredits(ctx, session.ID)
		return err
	case EventCheckoutExpired, EventCheckoutAsyncPaymentFailed:
		session, err := checkoutSessionFromEvent(event)
		if err != nil {
			return err
		}
		return s.ExpireSession(ctx, session.ID)
	default:
		s.metrics.Inc(metrics.WebhookUnhandled)
		s.logger.Debug("unhandled stripe event type", zap.String("event_type", string(event.Type)))
		return nil
	}
}

func checkoutSessionFromEvent(event stripe.Event) (*stripe.CheckoutSession, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data object", ErrInvalidPayload, event.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: checkout session id missing", ErrInvalidPayload)
	}
	return &session, nil
}

type failedEventPayload struct {
	Event json.RawMessage `json:"event"`
	Error string          `json:"error"`
}

// RecordEvent stores the event after processing. A failure is embedded in the payload and
// leaves processed=false.
func (s *StripeWebhookService) RecordEvent(ctx context.Context, eventID, eventType string, payload []byte, procErr error) error {
	stored, err := recordedPayload(payload, procErr)
	if err != nil {
		return err
	}
	return s.store.InsertWebhookEvent(ctx, &models.StripeWebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Payload:   stored,
		Processed: procErr == nil,
	})
}

func recordedPayload(payload []byte, procErr error) (json.RawMessage, error) {
	if procErr == nil {
		return json.RawMessage(payload), nil
	}
	return json.Marshal(failedEventPayload{Event: payload, Error: procErr.Error()})
}

// FulfillCredits credits the student of a paid checkout session exactly once.
func (s *StripeWebhookService) FulfillCredits(ctx context.Context, sessionID string) (*FulfillmentResult, error) {
	details, err := s.store.GetCheckoutDetails(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &FulfillmentResult{
		SessionID: sessionID,
		StudentID: details.Student.ID,
	}

	switch details.Session.Status {
	case models.CheckoutCompleted:
		result.AlreadyCompleted = true
		result.BalanceAfter = details.Student.CreditBalance
		return result, nil
	case models.CheckoutPending:
	default:
		return nil, fmt.Errorf("%w: session %s is %s", ErrInvalidSessionState, sessionID, details.Session.Status)
	}

	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		session, err := tx.LockCheckoutSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == models.CheckoutCompleted {
			result.AlreadyCompleted = true
			return nil
		}
		if session.Status != models.CheckoutPending {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidSessionState, sessionID, session.Status)
		}

		row, err := s.ledger.Apply(ctx, tx, Entry{
			StudentID:   session.StudentID,
			Type:        models.TransactionCredit,
			Amount:      session.CreditsQuantity,
			SourceType:  models.SourcePurchase,
			SourceID:    session.SessionID,
			Description: "Purchased " + details.Package.Name,
			Metadata: map[string]any{
				"credit_package_id": session.CreditPackageID,
				"amount_in_cents":   session.AmountInCents,
			},
		})
		if err != nil {
			return err
		}

		ok, err := tx.TransitionCheckoutSession(ctx, sessionID, models.CheckoutPending, models.CheckoutCompleted, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: session %s left PENDING concurrently", ErrInvalidSessionState, sessionID)
		}

		result.CreditsAdded = row.Amount
		result.BalanceAfter = row.BalanceAfter
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyCompleted {
		return result, nil
	}

	s.metrics.Inc(metrics.CheckoutsCompleted)
	s.metrics.Add(metrics.CreditsPurchased, result.CreditsAdded)
	s.logger.Info("credits fulfilled",
		zap.String("session_id", sessionID),
		zap.String("student_id", result.StudentID),
		zap.Int64("credits", result.CreditsAdded),
		zap.Int64("balance_after", result.BalanceAfter),
	)

	s.sendConfirmation(details, result)
	return result, nil
}

func (s *StripeWebhookService) sendConfirmation(details *models.CheckoutSessionDetails, result *FulfillmentResult) {
	if s.notifier == nil || details.Student.Email == "" {
		return
	}
	s.notifier.Enqueue(notify.PurchaseConfirmation(notify.Purchase{
		StudentName:   details.Student.Name,
		StudentEmail:  details.Student.Email,
		PackageName:   details.Package.Name,
		Credits:       result.CreditsAdded,
		AmountInCents: details.Session.AmountInCents,
		Currency:      s.cfg.Currency,
		NewBalance:    result.BalanceAfter,
		SessionID:     result.SessionID,
	}))
}

// ExpireSession marks a PENDING session EXPIRED. Resolved or unknown sessions are left alone.
func (s *StripeWebhookService) ExpireSession(ctx context.Context, sessionID string) error {
	var expired bool
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		session, err := tx.LockCheckoutSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != models.CheckoutPending {
			return nil
		}
		expired, err = tx.TransitionCheckoutSession(ctx, sessionID, models.CheckoutPending, models.CheckoutExpired, s.now())
		return err
	})
	if errors.Is(err, repository.ErrCheckoutSessionNotFound) {
		s.logger.Warn("expired event for unknown checkout session", zap.String("session_id", sessionID))
		return nil
	}
	if err != nil {
		return err
	}
	if expired {
		s.metrics.Inc(metrics.CheckoutsExpired)
		s.logger.Info("checkout session expired", zap.String("session_id", sessionID))
	}
	return nil
}

// Replay re-runs processing of a recorded event that previously failed.
func (s *StripeWebhookService) Replay(ctx context.Context, eventID string) (*WebhookResult, error) {
	stored, err := s.store.GetWebhookEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	result := &WebhookResult{EventID: stored.EventID, EventType: stored.EventType}
	if stored.Processed {
		result.Duplicate = true
		result.Processed = true
		return result, nil
	}

	raw := originalPayload(stored.Payload)
	var event stripe.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: stored event %s: %v", ErrInvalidPayload, eventID, err)
	}

	procErr := s.Process(ctx, event)
	payload, err := recordedPayload(raw, procErr)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateWebhookEvent(ctx, eventID, payload, procErr == nil); err != nil {
		return nil, err
	}
	if procErr != nil {
		s.logger.Warn("stripe event replay failed", zap.String("event_id", eventID), zap.Error(procErr))
		return nil, procErr
	}

	s.logger.Info("stripe event replayed", zap.String("event_id", eventID))
	result.Processed = true
	return result, nil
}

func originalPayload(stored json.RawMessage) json.RawMessage {
	var failed failedEventPayload
	if err := json.Unmarshal(stored, &failed); err == nil && len(failed.Event) > 0 && failed.Error != "" {
		return failed.Event
	}
	return stored
}
