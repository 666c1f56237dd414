package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/metrics"
	"mvpbackend/backend/services/billing-service/internal/models"
	redisstore "mvpbackend/backend/services/billing-service/internal/redis"
	"mvpbackend/backend/services/billing-service/internal/repository"
)

// Per-minute decisions returned to the voice agent.
const (
	MinuteStatusCharged      = "charged"
	MinuteStatusDuplicate    = "duplicate"
	MinuteStatusInsufficient = "insufficient_credits"
	MinuteStatusTerminated   = "terminated"
	MinuteStatusSessionEnded = "session_ended"
)

// Session-end outcomes.
const (
	EndStatusEnded        = "ended"
	EndStatusAlreadyEnded = "already_ended"
)

// MinuteInput is one per-minute callback.
type MinuteInput struct {
	ConversationID string
	Minute         int64
}

// MinuteDecision tells the voice agent whether to keep the call running.
type MinuteDecision struct {
	Status           string `json:"status"`
	CreditsRemaining int64  `json:"creditsRemaining"`
	ShouldTerminate  bool   `json:"shouldTerminate"`
}

// StartSessionInput registers a conversation before the call starts.
type StartSessionInput struct {
	ConversationID string
	StudentID      string
	SimulationID   string
}

// StartSessionResult tells the voice agent whether the call may start.
type StartSessionResult struct {
	AttemptID        string `json:"attemptId"`
	Allowed          bool   `json:"allowed"`
	CreditsRemaining int64  `json:"creditsRemaining"`
	MaxMinutes       int64  `json:"maxMinutes"`
}

// EndSessionInput finalizes a conversation.
type EndSessionInput struct {
	ConversationID string
	TotalMinutes   float64
}

// EndSessionResult summarizes what an attempt was billed.
type EndSessionResult struct {
	Status           string  `json:"status"`
	AttemptID        string  `json:"attemptId"`
	TotalMinutes     float64 `json:"totalMinutes"`
	BillableMinutes  int64   `json:"billableMinutes"`
	MinutesBilled    int64   `json:"minutesBilled"`
	UnbilledMinutes  int64   `json:"unbilledMinutes"`
	CreditsCharged   int64   `json:"creditsCharged"`
	CreditsRemaining int64   `json:"creditsRemaining"`
}

// VoiceBillingService bills voice simulations per minute.
type VoiceBillingService struct {
	store            VoiceStore
	ledger           *LedgerService
	cache            ConversationCache
	metrics          *metrics.Billing
	creditsPerMinute int64
	logger           *zap.Logger
	now              func() time.Time
}

// NewVoiceBillingService builds service. cache may be nil.
func NewVoiceBillingService(
	store VoiceStore,
	ledger *LedgerService,
	cache ConversationCache,
	m *metrics.Billing,
	creditsPerMinute int64,
	logger *zap.Logger,
) *VoiceBillingService {
	if creditsPerMinute <= 0 {
		creditsPerMinute = 1
	}
	return &VoiceBillingService{
		store:            store,
		ledger:           ledger,
		cache:            cache,
		metrics:          m,
		creditsPerMinute: creditsPerMinute,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// CreditsPerMinute returns the configured per-minute cost.
func (s *VoiceBillingService) CreditsPerMinute() int64 {
	return s.creditsPerMinute
}

// StartSession registers the attempt for a conversation. It is idempotent on conversation id.
func (s *VoiceBillingService) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionResult, error) {
	if strings.TrimSpace(in.ConversationID) == "" || strings.TrimSpace(in.StudentID) == "" {
		return nil, fmt.Errorf("%w: conversation_id and student_id required", ErrInvalidPayload)
	}

	student, err := s.store.GetStudent(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.store.CreateOrGetAttempt(ctx, &models.SimulationAttempt{
		ID:             uuid.NewString(),
		StudentID:      student.ID,
		SimulationID:   in.SimulationID,
		ConversationID: in.ConversationID,
		Status:         models.AttemptActive,
	})
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != student.ID {
		return nil, ErrConversationConflict
	}

	s.cacheConversation(ctx, attempt)
	s.metrics.Inc(metrics.SessionsStarted)

	allowed := attempt.Status == models.AttemptActive &&
		!attempt.BillingTerminated &&
		student.CreditBalance >= s.creditsPerMinute

	s.logger.Info("voice session registered",
		zap.String("conversation_id", in.ConversationID),
		zap.String("attempt_id", attempt.ID),
		zap.Bool("allowed", allowed),
	)
	return &StartSessionResult{
		AttemptID:        attempt.ID,
		Allowed:          allowed,
		CreditsRemaining: student.CreditBalance,
		MaxMinutes:       student.CreditBalance / s.creditsPerMinute,
	}, nil
}

// BillMinute debits one minute of a conversation. Each (conversation, minute) pair is
// billed at most once and the balance never goes negative.
func (s *VoiceBillingService) BillMinute(ctx context.Context, in MinuteInput) (*MinuteDecision, error) {
	if strings.TrimSpace(in.ConversationID) == "" || in.Minute < 0 {
		return nil, fmt.Errorf("%w: conversation_id and non-negative minute required", ErrInvalidPayload)
	}

	conv, err := s.resolveConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	cost := s.creditsPerMinute
	decision := &MinuteDecision{}
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		attempt, err := tx.LockAttempt(ctx, conv.AttemptID)
		if err != nil {
			return err
		}

		existing, err := tx.GetMinuteCharge(ctx, in.ConversationID, in.Minute)
		if err != nil {
			return err
		}
		if existing != nil {
			student, err := tx.LockStudent(ctx, attempt.StudentID)
			if err != nil {
				return err
			}
			decision.Status = MinuteStatusDuplicate
			decision.CreditsRemaining = student.CreditBalance
			decision.ShouldTerminate = existing.Status == models.MinuteInsufficient ||
				attempt.BillingTerminated ||
				attempt.Status == models.AttemptEnded ||
				student.CreditBalance < cost
			return nil
		}

		student, err := tx.LockStudent(ctx, attempt.StudentID)
		if err != nil {
			return err
		}
		decision.CreditsRemaining = student.CreditBalance

		if attempt.Status == models.AttemptEnded {
			decision.Status = MinuteStatusSessionEnded
			decision.ShouldTerminate = true
			return nil
		}
		if attempt.BillingTerminated {
			decision.Status = MinuteStatusTerminated
			decision.ShouldTerminate = true
			return nil
		}

		charge := &models.MinuteCharge{
			ConversationID: in.ConversationID,
			Minute:         in.Minute,
			AttemptID:      attempt.ID,
			StudentID:      attempt.StudentID,
			Amount:         cost,
			Status:         models.MinuteCharged,
		}

		if student.CreditBalance < cost {
			charge.Status = models.MinuteInsufficient
			inserted, err := tx.InsertMinuteCharge(ctx, charge)
			if err != nil {
				return err
			}
			if !inserted {
				decision.Status = MinuteStatusDuplicate
				decision.ShouldTerminate = true
				return nil
			}
			attempt.BillingTerminated = true
			if err := tx.UpdateAttemptBilling(ctx, attempt); err != nil {
				return err
			}
			decision.Status = MinuteStatusInsufficient
			decision.ShouldTerminate = true
			return nil
		}

		inserted, err := tx.InsertMinuteCharge(ctx, charge)
		if err != nil {
			return err
		}
		if !inserted {
			decision.Status = MinuteStatusDuplicate
			decision.ShouldTerminate = student.CreditBalance < cost
			return nil
		}

		row, err := s.ledger.Apply(ctx, tx, Entry{
			StudentID:   attempt.StudentID,
			Type:        models.TransactionDebit,
			Amount:      cost,
			SourceType:  models.SourceSimulation,
			SourceID:    attempt.ID,
			Description: "Voice simulation minute " + strconv.FormatInt(in.Minute, 10),
			Metadata: map[string]any{
				"conversation_id": in.ConversationID,
				"minute":          in.Minute,
			},
		})
		if err != nil {
			return err
		}

		charge.TransactionID = &row.ID
		if err := tx.UpdateMinuteCharge(ctx, charge); err != nil {
			return err
		}

		attempt.MinutesBilled++
		attempt.CreditsCharged += cost
		if err := tx.UpdateAttemptBilling(ctx, attempt); err != nil {
			return err
		}

		decision.Status = MinuteStatusCharged
		decision.CreditsRemaining = row.BalanceAfter
		decision.ShouldTerminate = row.BalanceAfter < cost
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch decision.Status {
	case MinuteStatusCharged:
		s.metrics.Inc(metrics.MinutesCharged)
		s.metrics.Add(metrics.CreditsDebited, cost)
	case MinuteStatusDuplicate:
		s.metrics.Inc(metrics.MinutesDuplicate)
	case MinuteStatusInsufficient:
		s.metrics.Inc(metrics.MinutesInsufficient)
	}

	s.logger.Info("voice minute billed",
		zap.String("conversation_id", in.ConversationID),
		zap.Int64("minute", in.Minute),
		zap.String("status", decision.Status),
		zap.Int64("credits_remaining", decision.CreditsRemaining),
		zap.Bool("should_terminate", decision.ShouldTerminate),
	)
	return decision, nil
}

// EndSession reconciles the final call length with what was billed per minute. Partial
// minutes round up; the final debit is capped by the balance. Repeated calls return the
// stored summary.
func (s *VoiceBillingService) EndSession(ctx context.Context, in EndSessionInput) (*EndSessionResult, error) {
	if strings.TrimSpace(in.ConversationID) == "" {
		return nil, fmt.Errorf("%w: conversation_id required", ErrInvalidPayload)
	}
	if in.TotalMinutes < 0 || math.IsNaN(in.TotalMinutes) || math.IsInf(in.TotalMinutes, 0) {
		return nil, fmt.Errorf("%w: total_minutes must be a non-negative number", ErrInvalidPayload)
	}

	conv, err := s.resolveConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	cost := s.creditsPerMinute
	result := &EndSessionResult{}
	var debited int64
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		attempt, err := tx.LockAttempt(ctx, conv.AttemptID)
		if err != nil {
			return err
		}
		student, err := tx.LockStudent(ctx, attempt.StudentID)
		if err != nil {
			return err
		}

		if attempt.Status == models.AttemptEnded {
			fillEndResult(result, attempt, student.CreditBalance)
			result.Status = EndStatusAlreadyEnded
			return nil
		}

		billable := billableMinutes(in.TotalMinutes)
		outstanding := billable - attempt.MinutesBilled
		balance := student.CreditBalance

		if outstanding > 0 && !attempt.BillingTerminated {
			minutes := min(outstanding, balance/cost)
			if minutes > 0 {
				row, err := s.ledger.Apply(ctx, tx, Entry{
					StudentID:   attempt.StudentID,
					Type:        models.TransactionDebit,
					Amount:      minutes * cost,
					SourceType:  models.SourceSimulation,
					SourceID:    attempt.ID,
					Description: "Voice simulation final reconciliation",
					Metadata: map[string]any{
						"conversation_id": in.ConversationID,
						"minutes":         minutes,
						"total_minutes":   in.TotalMinutes,
					},
				})
				if err != nil {
					return err
				}
				balance = row.BalanceAfter
				attempt.MinutesBilled += minutes
				attempt.CreditsCharged += minutes * cost
				debited = minutes * cost
			}
			if minutes < outstanding {
				attempt.BillingTerminated = true
			}
		}

		endedAt := s.now()
		attempt.Status = models.AttemptEnded
		attempt.TotalMinutes = in.TotalMinutes
		attempt.EndedAt = &endedAt
		if err := tx.UpdateAttemptBilling(ctx, attempt); err != nil {
			return err
		}

		fillEndResult(result, attempt, balance)
		result.Status = EndStatusEnded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, in.ConversationID); err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn("failed to drop conversation cache", zap.Error(err))
		}
	}

	if result.Status == EndStatusEnded {
		s.metrics.Inc(metrics.SessionsEnded)
		s.metrics.Add(metrics.CreditsDebited, debited)
	}
	s.logger.Info("voice session ended",
		zap.String("conversation_id", in.ConversationID),
		zap.String("status", result.Status),
		zap.Int64("billable_minutes", result.BillableMinutes),
		zap.Int64("minutes_billed", result.MinutesBilled),
	)
	return result, nil
}

// maxBillableMinutes bounds total_minutes before it is converted to whole minutes.
const maxBillableMinutes = math.MaxInt32

func billableMinutes(total float64) int64 {
	return int64(math.Ceil(min(total, maxBillableMinutes)))
}

func fillEndResult(r *EndSessionResult, a *models.SimulationAttempt, balance int64) {
	billable := billableMinutes(a.TotalMinutes)
	r.AttemptID = a.ID
	r.TotalMinutes = a.TotalMinutes
	r.BillableMinutes = billable
	r.MinutesBilled = a.MinutesBilled
	r.UnbilledMinutes = max(billable-a.MinutesBilled, 0)
	r.CreditsCharged = a.CreditsCharged
	r.CreditsRemaining = balance
}

func (s *VoiceBillingService) resolveConversation(ctx context.Context, conversationID string) (*redisstore.Conversation, error) {
	if s.cache != nil {
		conv, err := s.cache.Get(ctx, conversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("conversation cache lookup failed", zap.Error(err))
		}
	}

	attempt, err := s.store.GetAttemptByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.cacheConversation(ctx, attempt)
	return &redisstore.Conversation{
		ConversationID: attempt.ConversationID,
		AttemptID:      attempt.ID,
		StudentID:      attempt.StudentID,
	}, nil
}

func (s *VoiceBillingService) cacheConversation(ctx context.Context, a *models.SimulationAttempt) {
	if s.cache == nil || a.Status == models.AttemptEnded {
		return
	}
	err := s.cache.Save(ctx, redisstore.Conversation{
		ConversationID: a.ConversationID,
		AttemptID:      a.ID,
		StudentID:      a.StudentID,
	})
	if err != nil {
		s.logger.Warn("failed to cache conversation", zap.Error(err))
	}
}
