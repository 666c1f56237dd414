package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/metrics"
	"mvpbackend/backend/services/billing-service/internal/models"
	"mvpbackend/backend/services/billing-service/internal/repository"
)

type voiceFixture struct {
	store   *fakeStore
	cache   *fakeCache
	metrics *metrics.Billing
	svc     *VoiceBillingService
}

func newVoiceFixture(t *testing.T, balance, cost int64) *voiceFixture {
	t.Helper()
	store := newFakeStore()
	store.addStudent("s1", balance)
	store.addAttempt("att_1", "s1", "conv_1")
	cache := newFakeCache()
	m := metrics.NewBilling()
	svc := NewVoiceBillingService(store, NewLedgerService(store, zap.NewNop()), cache, m, cost, zap.NewNop())
	return &voiceFixture{store: store, cache: cache, metrics: m, svc: svc}
}

func (f *voiceFixture) bill(t *testing.T, minute int64) *MinuteDecision {
	t.Helper()
	d, err := f.svc.BillMinute(context.Background(), MinuteInput{ConversationID: "conv_1", Minute: minute})
	require.NoError(t, err)
	return d
}

func TestBillMinuteZeroBalanceTerminatesWithoutDebit(t *testing.T) {
	f := newVoiceFixture(t, 0, 1)

	d := f.bill(t, 1)
	assert.Equal(t, MinuteStatusInsufficient, d.Status)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, int64(0), d.CreditsRemaining)
	assert.Empty(t, f.store.ledger("s1"))
	assert.True(t, f.store.attempt("att_1").BillingTerminated)
}

func TestBillMinuteDebitsUntilExhausted(t *testing.T) {
	f := newVoiceFixture(t, 3, 1)

	d := f.bill(t, 1)
	assert.Equal(t, MinuteStatusCharged, d.Status)
	assert.Equal(t, int64(2), d.CreditsRemaining)
	assert.False(t, d.ShouldTerminate)

	f.bill(t, 2)
	d = f.bill(t, 3)
	assert.Equal(t, MinuteStatusCharged, d.Status)
	assert.Equal(t, int64(0), d.CreditsRemaining)
	assert.True(t, d.ShouldTerminate)

	d = f.bill(t, 4)
	assert.Equal(t, MinuteStatusInsufficient, d.Status)
	assert.True(t, d.ShouldTerminate)

	assert.Equal(t, int64(0), f.store.balance("s1"))
	rows := f.store.ledger("s1")
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, models.SourceSimulation, row.SourceType)
		assert.Equal(t, "att_1", row.SourceID)
		assert.Equal(t, models.TransactionDebit, row.TransactionType)
	}
	assert.Equal(t, int64(3), f.store.attempt("att_1").MinutesBilled)
	assert.Equal(t, int64(3), f.metrics.Value(metrics.MinutesCharged))
}

func TestBillMinuteNoDebitAfterTermination(t *testing.T) {
	f := newVoiceFixture(t, 0, 1)
	f.bill(t, 1)

	_, err := NewLedgerService(f.store, zap.NewNop()).Adjust(context.Background(), AdjustInput{StudentID: "s1", Delta: 10, Reason: "top up"})
	require.NoError(t, err)

	d := f.bill(t, 2)
	assert.Equal(t, MinuteStatusTerminated, d.Status)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, int64(10), f.store.balance("s1"))
	assert.Len(t, f.store.ledger("s1"), 1)
}

func TestBillMinuteDuplicateIsNotCharged(t *testing.T) {
	f := newVoiceFixture(t, 10, 2)

	first := f.bill(t, 1)
	second := f.bill(t, 1)

	assert.Equal(t, MinuteStatusCharged, first.Status)
	assert.Equal(t, MinuteStatusDuplicate, second.Status)
	assert.Equal(t, int64(8), second.CreditsRemaining)
	assert.False(t, second.ShouldTerminate)
	assert.Equal(t, int64(8), f.store.balance("s1"))
	assert.Len(t, f.store.ledger("s1"), 1)
	assert.Equal(t, 1, f.store.chargeCount("conv_1"))
}

func TestBillMinuteConcurrentRetriesChargeOnce(t *testing.T) {
	f := newVoiceFixture(t, 10, 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BillMinute(context.Background(), MinuteInput{ConversationID: "conv_1", Minute: 7})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(9), f.store.balance("s1"))
	assert.Len(t, f.store.ledger("s1"), 1)
}

func TestBillMinuteCostLargerThanBalance(t *testing.T) {
	f := newVoiceFixture(t, 3, 2)

	d := f.bill(t, 1)
	assert.Equal(t, MinuteStatusCharged, d.Status)
	assert.Equal(t, int64(1), d.CreditsRemaining)
	assert.True(t, d.ShouldTerminate)

	d = f.bill(t, 2)
	assert.Equal(t, MinuteStatusInsufficient, d.Status)
	assert.Equal(t, int64(1), f.store.balance("s1"))
}

func TestBillMinuteUnknownConversation(t *testing.T) {
	f := newVoiceFixture(t, 3, 1)
	_, err := f.svc.BillMinute(context.Background(), MinuteInput{ConversationID: "nope", Minute: 1})
	assert.ErrorIs(t, err, repository.ErrAttemptNotFound)
}

func TestBillMinuteValidatesInput(t *testing.T) {
	f := newVoiceFixture(t, 3, 1)
	_, err := f.svc.BillMinute(context.Background(), MinuteInput{ConversationID: " ", Minute: 1})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = f.svc.BillMinute(context.Background(), MinuteInput{ConversationID: "conv_1", Minute: -1})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBillMinuteUsesConversationCache(t *testing.T) {
	f := newVoiceFixture(t, 5, 1)

	f.bill(t, 1)
	assert.True(t, f.cache.has("conv_1"))
	f.bill(t, 2)
	assert.Equal(t, 1, f.cache.hits)
}

func TestEndSessionRoundsUpAndDebitsRemainder(t *testing.T) {
	f := newVoiceFixture(t, 10, 1)
	f.bill(t, 1)
	f.bill(t, 2)

	res, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: 3.2})
	require.NoError(t, err)
	assert.Equal(t, EndStatusEnded, res.Status)
	assert.Equal(t, int64(4), res.BillableMinutes)
	assert.Equal(t, int64(4), res.MinutesBilled)
	assert.Equal(t, int64(0), res.UnbilledMinutes)
	assert.Equal(t, int64(4), res.CreditsCharged)
	assert.Equal(t, int64(6), res.CreditsRemaining)

	attempt := f.store.attempt("att_1")
	assert.Equal(t, models.AttemptEnded, attempt.Status)
	assert.InDelta(t, 3.2, attempt.TotalMinutes, 1e-9)
	assert.NotNil(t, attempt.EndedAt)
	assert.False(t, f.cache.has("conv_1"))
	assert.Len(t, f.store.ledger("s1"), 3)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	f := newVoiceFixture(t, 10, 1)

	first, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: 2.5})
	require.NoError(t, err)
	second, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: 9})
	require.NoError(t, err)

	assert.Equal(t, EndStatusAlreadyEnded, second.Status)
	assert.Equal(t, first.MinutesBilled, second.MinutesBilled)
	assert.Equal(t, first.CreditsCharged, second.CreditsCharged)
	assert.Equal(t, int64(7), f.store.balance("s1"))
	assert.Len(t, f.store.ledger("s1"), 1)
	assert.Equal(t, int64(1), f.metrics.Value(metrics.SessionsEnded))
}

func TestEndSessionCapsDebitAtBalance(t *testing.T) {
	f := newVoiceFixture(t, 1, 1)

	res, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: 2.5})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.BillableMinutes)
	assert.Equal(t, int64(1), res.MinutesBilled)
	assert.Equal(t, int64(2), res.UnbilledMinutes)
	assert.Equal(t, int64(0), res.CreditsRemaining)
	assert.Equal(t, int64(0), f.store.balance("s1"))
	assert.True(t, f.store.attempt("att_1").BillingTerminated)
}

func TestEndSessionSkipsDebitWhenTerminated(t *testing.T) {
	f := newVoiceFixture(t, 0, 1)
	f.bill(t, 1)

	res, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MinutesBilled)
	assert.Equal(t, int64(1), res.UnbilledMinutes)
	assert.Empty(t, f.store.ledger("s1"))
}

func TestEndSessionRejectsNegativeMinutes(t *testing.T) {
	f := newVoiceFixture(t, 1, 1)
	_, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: -1})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBillMinuteAfterEndSession(t *testing.T) {
	f := newVoiceFixture(t, 10, 1)
	_, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: 1})
	require.NoError(t, err)

	d := f.bill(t, 5)
	assert.Equal(t, MinuteStatusSessionEnded, d.Status)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, int64(9), f.store.balance("s1"))
}

func TestStartSessionRegistersAttempt(t *testing.T) {
	store := newFakeStore()
	store.addStudent("s1", 5)
	store.addStudent("s2", 5)
	cache := newFakeCache()
	svc := NewVoiceBillingService(store, NewLedgerService(store, zap.NewNop()), cache, nil, 2, zap.NewNop())
	ctx := context.Background()

	res, err := svc.StartSession(ctx, StartSessionInput{ConversationID: "conv_9", StudentID: "s1", SimulationID: "sim_1"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(2), res.MaxMinutes)
	assert.True(t, cache.has("conv_9"))

	again, err := svc.StartSession(ctx, StartSessionInput{ConversationID: "conv_9", StudentID: "s1", SimulationID: "sim_1"})
	require.NoError(t, err)
	assert.Equal(t, res.AttemptID, again.AttemptID)

	_, err = svc.StartSession(ctx, StartSessionInput{ConversationID: "conv_9", StudentID: "s2"})
	assert.ErrorIs(t, err, ErrConversationConflict)

	_, err = svc.StartSession(ctx, StartSessionInput{ConversationID: "conv_x", StudentID: "ghost"})
	assert.ErrorIs(t, err, repository.ErrStudentNotFound)

	d, err := svc.BillMinute(ctx, MinuteInput{ConversationID: "conv_9", Minute: 1})
	require.NoError(t, err)
	assert.Equal(t, MinuteStatusCharged, d.Status)
	assert.Equal(t, int64(3), d.CreditsRemaining)
}

func TestStartSessionRefusesEmptyBalance(t *testing.T) {
	store := newFakeStore()
	store.addStudent("s1", 0)
	svc := NewVoiceBillingService(store, NewLedgerService(store, zap.NewNop()), nil, nil, 1, zap.NewNop())

	res, err := svc.StartSession(context.Background(), StartSessionInput{ConversationID: "conv_1", StudentID: "s1"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.MaxMinutes)
}

func TestEndSessionHugeTotalDrainsBalance(t *testing.T) {
	f := newVoiceFixture(t, 10, 1)

	res, err := f.svc.EndSession(context.Background(), EndSessionInput{ConversationID: "conv_1", TotalMinutes: 1e19})
	require.NoError(t, err)
	assert.Equal(t, int64(maxBillableMinutes), res.BillableMinutes)
	assert.Equal(t, int64(10), res.MinutesBilled)
	assert.Equal(t, int64(maxBillableMinutes-10), res.UnbilledMinutes)
	assert.Equal(t, int64(0), res.CreditsRemaining)
	assert.Equal(t, int64(0), f.store.balance("s1"))
	assert.True(t, f.store.attempt("att_1").BillingTerminated)
	assert.Len(t, f.store.ledger("s1"), 1)
}
