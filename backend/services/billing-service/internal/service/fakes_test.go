package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mvpbackend/backend/services/billing-service/internal/models"
	"mvpbackend/backend/services/billing-service/internal/notify"
	redisstore "mvpbackend/backend/services/billing-service/internal/redis"
	"mvpbackend/backend/services/billing-service/internal/repository"
)

type storeState struct {
	students     map[string]models.Student
	transactions []models.CreditTransaction
	packages     map[string]models.CreditPackage
	checkouts    map[string]models.CheckoutSession
	events       map[string]models.StripeWebhookEvent
	attempts     map[string]models.SimulationAttempt
	charges      map[string]models.MinuteCharge
	nextID       int64
}

func (s storeState) clone() storeState {
	out := storeState{
		students:     make(map[string]models.Student, len(s.students)),
		transactions: append([]models.CreditTransaction(nil), s.transactions...),
		packages:     make(map[string]models.CreditPackage, len(s.packages)),
		checkouts:    make(map[string]models.CheckoutSession, len(s.checkouts)),
		events:       make(map[string]models.StripeWebhookEvent, len(s.events)),
		attempts:     make(map[string]models.SimulationAttempt, len(s.attempts)),
		charges:      make(map[string]models.MinuteCharge, len(s.charges)),
		nextID:       s.nextID,
	}
	for k, v := range s.students {
		out.students[k] = v
	}
	for k, v := range s.packages {
		out.packages[k] = v
	}
	for k, v := range s.checkouts {
		out.checkouts[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	for k, v := range s.attempts {
		out.attempts[k] = v
	}
	for k, v := range s.charges {
		out.charges[k] = v
	}
	return out
}

// fakeStore is an in-memory store whose transactions are serialized and roll back on error.
type fakeStore struct {
	mu    sync.Mutex
	state storeState
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: storeState{}.clone()}
}

func (f *fakeStore) id() int64 {
	f.state.nextID++
	return f.state.nextID
}

func (f *fakeStore) addStudent(id string, balance int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.students[id] = models.Student{ID: id, Email: id + "@example.com", Name: "Student " + id, CreditBalance: balance}
}

func (f *fakeStore) addPackage(id string, credits, cents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.packages[id] = models.CreditPackage{ID: id, Name: "Package " + id, Credits: credits, PriceInCents: cents, IsActive: true}
}

func (f *fakeStore) addCheckout(sessionID, studentID, packageID string, status models.CheckoutStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg := f.state.packages[packageID]
	f.state.checkouts[sessionID] = models.CheckoutSession{
		ID:              f.id(),
		SessionID:       sessionID,
		StudentID:       studentID,
		CreditPackageID: packageID,
		CreditsQuantity: pkg.Credits,
		AmountInCents:   pkg.PriceInCents,
		Status:          status,
	}
}

func (f *fakeStore) addAttempt(id, studentID, conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.attempts[id] = models.SimulationAttempt{
		ID:             id,
		StudentID:      studentID,
		SimulationID:   "sim_1",
		ConversationID: conversationID,
		Status:         models.AttemptActive,
	}
}

func (f *fakeStore) balance(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.students[id].CreditBalance
}

func (f *fakeStore) ledger(studentID string) []models.CreditTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditTransaction
	for _, tx := range f.state.transactions {
		if tx.StudentID == studentID {
			out = append(out, tx)
		}
	}
	return out
}

func (f *fakeStore) checkout(sessionID string) models.CheckoutSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.checkouts[sessionID]
}

func (f *fakeStore) event(eventID string) (models.StripeWebhookEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.state.events[eventID]
	return ev, ok
}

func (f *fakeStore) attempt(id string) models.SimulationAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.attempts[id]
}

func (f *fakeStore) chargeCount(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.state.charges {
		if c.ConversationID == conversationID {
			n++
		}
	}
	return n
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := f.state.clone()
	if err := fn(&fakeTx{f: f}); err != nil {
		f.state = saved
		return err
	}
	return nil
}

func (f *fakeStore) GetStudent(_ context.Context, id string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.state.students[id]
	if !ok {
		return nil, repository.ErrStudentNotFound
	}
	return &s, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, studentID string, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CreditTransaction, 0)
	for i := len(f.state.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if f.state.transactions[i].StudentID == studentID {
			out = append(out, f.state.transactions[i])
		}
	}
	return out, nil
}

func (f *fakeStore) ListActivePackages(context.Context) ([]models.CreditPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CreditPackage, 0, len(f.state.packages))
	for _, p := range f.state.packages {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceInCents < out[j].PriceInCents })
	return out, nil
}

func (f *fakeStore) GetActivePackage(_ context.Context, id string) (*models.CreditPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.state.packages[id]
	if !ok || !p.IsActive {
		return nil, repository.ErrPackageNotFound
	}
	return &p, nil
}

func (f *fakeStore) CreateCheckoutSession(_ context.Context, s *models.CheckoutSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.state.checkouts[s.SessionID]; ok {
		return fmt.Errorf("duplicate session %s", s.SessionID)
	}
	s.ID = f.id()
	s.CreatedAt = time.Now()
	f.state.checkouts[s.SessionID] = *s
	return nil
}

func (f *fakeStore) GetCheckoutDetails(_ context.Context, sessionID string) (*models.CheckoutSessionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.state.checkouts[sessionID]
	if !ok {
		return nil, repository.ErrCheckoutSessionNotFound
	}
	return &models.CheckoutSessionDetails{
		Session: s,
		Student: f.state.students[s.StudentID],
		Package: f.state.packages[s.CreditPackageID],
	}, nil
}

func (f *fakeStore) WebhookEventExists(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.state.events[eventID]
	return ok, nil
}

func (f *fakeStore) InsertWebhookEvent(_ context.Context, ev *models.StripeWebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.state.events[ev.EventID]; ok {
		return nil
	}
	ev.ID = f.id()
	f.state.events[ev.EventID] = *ev
	return nil
}

func (f *fakeStore) GetWebhookEvent(_ context.Context, eventID string) (*models.StripeWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.state.events[eventID]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return &ev, nil
}

func (f *fakeStore) UpdateWebhookEvent(_ context.Context, eventID string, payload json.RawMessage, processed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.state.events[eventID]
	if !ok {
		return repository.ErrEventNotFound
	}
	ev.Payload = payload
	ev.Processed = processed
	f.state.events[eventID] = ev
	return nil
}

func (f *fakeStore) GetAttemptByConversation(_ context.Context, conversationID string) (*models.SimulationAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attemptByConversation(conversationID)
}

func (f *fakeStore) attemptByConversation(conversationID string) (*models.SimulationAttempt, error) {
	for _, a := range f.state.attempts {
		if a.ConversationID == conversationID {
			return &a, nil
		}
	}
	return nil, repository.ErrAttemptNotFound
}

func (f *fakeStore) CreateOrGetAttempt(_ context.Context, a *models.SimulationAttempt) (*models.SimulationAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, err := f.attemptByConversation(a.ConversationID); err == nil {
		return existing, nil
	}
	stored := *a
	stored.Status = models.AttemptActive
	stored.StartedAt = time.Now()
	f.state.attempts[stored.ID] = stored
	return &stored, nil
}

type fakeTx struct {
	f *fakeStore
}

func (t *fakeTx) LockStudent(_ context.Context, id string) (*models.Student, error) {
	s, ok := t.f.state.students[id]
	if !ok {
		return nil, repository.ErrStudentNotFound
	}
	return &s, nil
}

func (t *fakeTx) SetStudentBalance(_ context.Context, id string, expected, balance int64) error {
	s, ok := t.f.state.students[id]
	if !ok || s.CreditBalance != expected {
		return repository.ErrBalanceConflict
	}
	if balance < 0 {
		return fmt.Errorf("check constraint violated: credit_balance %d", balance)
	}
	s.CreditBalance = balance
	t.f.state.students[id] = s
	return nil
}

func (t *fakeTx) InsertCreditTransaction(_ context.Context, tx *models.CreditTransaction) error {
	tx.ID = t.f.id()
	tx.CreatedAt = time.Now()
	t.f.state.transactions = append(t.f.state.transactions, *tx)
	return nil
}

func (t *fakeTx) LockCheckoutSession(_ context.Context, sessionID string) (*models.CheckoutSession, error) {
	s, ok := t.f.state.checkouts[sessionID]
	if !ok {
		return nil, repository.ErrCheckoutSessionNotFound
	}
	return &s, nil
}

func (t *fakeTx) TransitionCheckoutSession(_ context.Context, sessionID string, from, to models.CheckoutStatus, at time.Time) (bool, error) {
	s, ok := t.f.state.checkouts[sessionID]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	if to == models.CheckoutCompleted {
		s.CompletedAt = &at
	}
	t.f.state.checkouts[sessionID] = s
	return true, nil
}

func (t *fakeTx) LockAttempt(_ context.Context, attemptID string) (*models.SimulationAttempt, error) {
	a, ok := t.f.state.attempts[attemptID]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	return &a, nil
}

func (t *fakeTx) UpdateAttemptBilling(_ context.Context, a *models.SimulationAttempt) error {
	if _, ok := t.f.state.attempts[a.ID]; !ok {
		return repository.ErrAttemptNotFound
	}
	t.f.state.attempts[a.ID] = *a
	return nil
}

func chargeKey(conversationID string, minute int64) string {
	return fmt.Sprintf("%s:%d", conversationID, minute)
}

func (t *fakeTx) GetMinuteCharge(_ context.Context, conversationID string, minute int64) (*models.MinuteCharge, error) {
	c, ok := t.f.state.charges[chargeKey(conversationID, minute)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *fakeTx) InsertMinuteCharge(_ context.Context, c *models.MinuteCharge) (bool, error) {
	key := chargeKey(c.ConversationID, c.Minute)
	if _, ok := t.f.state.charges[key]; ok {
		return false, nil
	}
	c.ID = t.f.id()
	t.f.state.charges[key] = *c
	return true, nil
}

func (t *fakeTx) UpdateMinuteCharge(_ context.Context, c *models.MinuteCharge) error {
	t.f.state.charges[chargeKey(c.ConversationID, c.Minute)] = *c
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]redisstore.Conversation
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]redisstore.Conversation{}}
}

func (c *fakeCache) Get(_ context.Context, conversationID string) (*redisstore.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.entries[conversationID]
	if !ok {
		return nil, redis.Nil
	}
	c.hits++
	return &conv, nil
}

func (c *fakeCache) Save(_ context.Context, conv redisstore.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conv.ConversationID] = conv
	return nil
}

func (c *fakeCache) Delete(_ context.Context, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, conversationID)
	return nil
}

func (c *fakeCache) has(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[conversationID]
	return ok
}

type fakeNotifier struct {
	mu       sync.Mutex
	msgs     []notify.Message
	rejected int
	reject   bool
}

func (n *fakeNotifier) Enqueue(msg notify.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reject {
		n.rejected++
		return false
	}
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *fakeNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}
