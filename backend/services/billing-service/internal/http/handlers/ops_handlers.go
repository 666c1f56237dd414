package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/metrics"
	"mvpbackend/backend/services/billing-service/internal/service"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventReplayer re-runs failed Stripe events.
type EventReplayer interface {
	Replay(ctx context.Context, eventID string) (*service.WebhookResult, error)
}

// NewHealthHandler returns GET /billing/health handler. Nil checks are skipped.
func NewHealthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				result[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]interface{}{
			"status": overall,
			"checks": result,
		})
	}
}

// NewMetricsHandler returns GET /billing/metrics handler.
func NewMetricsHandler(m *metrics.Billing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Snapshot())
	}
}

// NewMetricsResetHandler returns POST /billing/metrics/reset handler. The response holds
// the counters as they were before the reset.
func NewMetricsResetHandler(m *metrics.Billing, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.Reset()
		logger.Info("billing metrics reset")
		writeJSON(w, http.StatusOK, snapshot)
	}
}

// NewReplayEventHandler returns POST /billing/stripe/events/{eventID}/replay handler.
func NewReplayEventHandler(replayer EventReplayer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := r.PathValue("eventID")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "event id required")
			return
		}

		result, err := replayer.Replay(r.Context(), eventID)
		if err != nil {
			writeServiceError(w, logger, err, "event replay failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// NewAdjustHandler returns POST /billing/adjustments handler.
func NewAdjustHandler(ledger Ledger, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		StudentID string `json:"student_id" validate:"required"`
		Delta     int64  `json:"delta" validate:"required"`
		Reason    string `json:"reason" validate:"required"`
		Reference string `json:"reference"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		row, err := ledger.Adjust(r.Context(), service.AdjustInput{
			StudentID: req.StudentID,
			Delta:     req.Delta,
			Reason:    req.Reason,
			Reference: req.Reference,
		})
		if err != nil {
			writeServiceError(w, logger, err, "adjustment failed")
			return
		}
		logger.Info("credit adjustment applied",
			zap.String("student_id", req.StudentID),
			zap.Int64("delta", req.Delta),
		)
		writeJSON(w, http.StatusCreated, row)
	}
}
