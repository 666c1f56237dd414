package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/service"
)

const stripeSignatureHeader = "Stripe-Signature"

// WebhookProcessor handles verified Stripe deliveries.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

// StripeWebhookHandler serves POST /stripe.
type StripeWebhookHandler struct {
	processor WebhookProcessor
	logger    *zap.Logger
}

// NewStripeWebhookHandler builds handler.
func NewStripeWebhookHandler(processor WebhookProcessor, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{processor: processor, logger: logger}
}

// ServeHTTP verifies the signature over the raw body before anything is parsed.
func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "request body required")
		return
	}
	signature := strings.TrimSpace(r.Header.Get(stripeSignatureHeader))
	if signature == "" {
		writeError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}

	result, err := h.processor.HandleWebhook(r.Context(), payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureInvalid):
			writeError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, service.ErrInvalidPayload):
			writeError(w, http.StatusBadRequest, "invalid event payload")
		case errors.Is(err, service.ErrWebhookSecretMissing):
			h.logger.Error("stripe webhook secret not configured")
			writeError(w, http.StatusInternalServerError, "webhook not configured")
		default:
			h.logger.Error("stripe webhook processing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}

	h.logger.Debug("stripe webhook handled",
		zap.String("event_id", result.EventID),
		zap.Bool("duplicate", result.Duplicate),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
