package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/service"
)

// VoiceBiller bills voice conversations.
type VoiceBiller interface {
	StartSession(ctx context.Context, in service.StartSessionInput) (*service.StartSessionResult, error)
	BillMinute(ctx context.Context, in service.MinuteInput) (*service.MinuteDecision, error)
	EndSession(ctx context.Context, in service.EndSessionInput) (*service.EndSessionResult, error)
}

// NewVoiceMinuteHandler returns POST /billing/voice-minute handler.
func NewVoiceMinuteHandler(biller VoiceBiller, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		ConversationID string `json:"conversation_id" validate:"required"`
		Minute         *int64 `json:"minute" validate:"required,gte=0"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		decision, err := biller.BillMinute(r.Context(), service.MinuteInput{
			ConversationID: req.ConversationID,
			Minute:         *req.Minute,
		})
		if err != nil {
			writeServiceError(w, logger, err, "failed to bill minute")
			return
		}
		writeJSON(w, http.StatusOK, decision)
	}
}

// NewStartSessionHandler returns POST /billing/start-session handler.
func NewStartSessionHandler(biller VoiceBiller, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		ConversationID string `json:"conversation_id" validate:"required"`
		StudentID      string `json:"student_id" validate:"required"`
		SimulationID   string `json:"simulation_id"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := biller.StartSession(r.Context(), service.StartSessionInput{
			ConversationID: req.ConversationID,
			StudentID:      req.StudentID,
			SimulationID:   req.SimulationID,
		})
		if err != nil {
			writeServiceError(w, logger, err, "failed to start session")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// NewEndSessionHandler returns POST /billing/end-session handler.
func NewEndSessionHandler(biller VoiceBiller, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		ConversationID string   `json:"conversation_id" validate:"required"`
		TotalMinutes   *float64 `json:"total_minutes" validate:"required,gte=0"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := biller.EndSession(r.Context(), service.EndSessionInput{
			ConversationID: req.ConversationID,
			TotalMinutes:   *req.TotalMinutes,
		})
		if err != nil {
			writeServiceError(w, logger, err, "failed to end session")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
