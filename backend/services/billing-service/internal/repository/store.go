package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	libdb "mvpbackend/backend/libs/db"
	"mvpbackend/backend/services/billing-service/internal/models"
)

// Tx exposes the row-locking and write operations used inside one database transaction.
type Tx interface {
	LockStudent(ctx context.Context, id string) (*models.Student, error)
	SetStudentBalance(ctx context.Context, id string, expected, balance int64) error
	InsertCreditTransaction(ctx context.Context, tx *models.CreditTransaction) error

	LockCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
	TransitionCheckoutSession(ctx context.Context, sessionID string, from, to models.CheckoutStatus, at time.Time) (bool, error)

	LockAttempt(ctx context.Context, attemptID string) (*models.SimulationAttempt, error)
	UpdateAttemptBilling(ctx context.Context, a *models.SimulationAttempt) error

	GetMinuteCharge(ctx context.Context, conversationID string, minute int64) (*models.MinuteCharge, error)
	InsertMinuteCharge(ctx context.Context, c *models.MinuteCharge) (bool, error)
	UpdateMinuteCharge(ctx context.Context, c *models.MinuteCharge) error
}

// Store groups the billing repositories over one connection pool.
type Store struct {
	db           *sql.DB
	students     *StudentRepository
	transactions *CreditTransactionRepository
	packages     *PackageRepository
	checkouts    *CheckoutSessionRepository
	events       *WebhookEventRepository
	attempts     *AttemptRepository
}

// NewStore returns store bound to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		students:     NewStudentRepository(db),
		transactions: NewCreditTransactionRepository(db),
		packages:     NewPackageRepository(db),
		checkouts:    NewCheckoutSessionRepository(db),
		events:       NewWebhookEventRepository(db),
		attempts:     NewAttemptRepository(db),
	}
}

// RunInTx executes fn in a single transaction; fn's error rolls it back.
func (s *Store) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return libdb.WithTx(ctx, s.db, func(sqlTx *sql.Tx) error {
		return fn(newTxRepos(sqlTx))
	})
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	return s.students.Get(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error) {
	return s.transactions.ListByStudent(ctx, studentID, limit)
}

func (s *Store) ListActivePackages(ctx context.Context) ([]models.CreditPackage, error) {
	return s.packages.ListActive(ctx)
}

func (s *Store) GetActivePackage(ctx context.Context, id string) (*models.CreditPackage, error) {
	return s.packages.GetActive(ctx, id)
}

func (s *Store) CreateCheckoutSession(ctx context.Context, session *models.CheckoutSession) error {
	return s.checkouts.Create(ctx, session)
}

func (s *Store) GetCheckoutDetails(ctx context.Context, sessionID string) (*models.CheckoutSessionDetails, error) {
	return s.checkouts.GetDetails(ctx, sessionID)
}

func (s *Store) WebhookEventExists(ctx context.Context, eventID string) (bool, error) {
	return s.events.Exists(ctx, eventID)
}

func (s *Store) InsertWebhookEvent(ctx context.Context, ev *models.StripeWebhookEvent) error {
	return s.events.Insert(ctx, ev)
}

func (s *Store) GetWebhookEvent(ctx context.Context, eventID string) (*models.StripeWebhookEvent, error) {
	return s.events.Get(ctx, eventID)
}

func (s *Store) UpdateWebhookEvent(ctx context.Context, eventID string, payload json.RawMessage, processed bool) error {
	return s.events.Update(ctx, eventID, payload, processed)
}

func (s *Store) GetAttemptByConversation(ctx context.Context, conversationID string) (*models.SimulationAttempt, error) {
	return s.attempts.GetByConversation(ctx, conversationID)
}

func (s *Store) CreateOrGetAttempt(ctx context.Context, a *models.SimulationAttempt) (*models.SimulationAttempt, error) {
	return s.attempts.CreateOrGet(ctx, a)
}

type txRepos struct {
	students     *StudentRepository
	transactions *CreditTransactionRepository
	checkouts    *CheckoutSessionRepository
	attempts     *AttemptRepository
	charges      *MinuteChargeRepository
}

func newTxRepos(tx DBTX) *txRepos {
	return &txRepos{
		students:     NewStudentRepository(tx),
		transactions: NewCreditTransactionRepository(tx),
		checkouts:    NewCheckoutSessionRepository(tx),
		attempts:     NewAttemptRepository(tx),
		charges:      NewMinuteChargeRepository(tx),
	}
}

func (t *txRepos) LockStudent(ctx context.Context, id string) (*models.Student, error) {
	return t.students.GetForUpdate(ctx, id)
}

func (t *txRepos) SetStudentBalance(ctx context.Context, id string, expected, balance int64) error {
	return t.students.UpdateBalance(ctx, id, expected, balance)
}

func (t *txRepos) InsertCreditTransaction(ctx context.Context, tx *models.CreditTransaction) error {
	return t.transactions.Create(ctx, tx)
}

func (t *txRepos) LockCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	return t.checkouts.GetForUpdate(ctx, sessionID)
}

func (t *txRepos) TransitionCheckoutSession(ctx context.Context, sessionID string, from, to models.CheckoutStatus, at time.Time) (bool, error) {
	return t.checkouts.Transition(ctx, sessionID, from, to, at)
}

func (t *txRepos) LockAttempt(ctx context.Context, attemptID string) (*models.SimulationAttempt, error) {
	return t.attempts.GetForUpdate(ctx, attemptID)
}

func (t *txRepos) UpdateAttemptBilling(ctx context.Context, a *models.SimulationAttempt) error {
	return t.attempts.UpdateBilling(ctx, a)
}

func (t *txRepos) GetMinuteCharge(ctx context.Context, conversationID string, minute int64) (*models.MinuteCharge, error) {
	return t.charges.Get(ctx, conversationID, minute)
}

func (t *txRepos) InsertMinuteCharge(ctx context.Context, c *models.MinuteCharge) (bool, error) {
	return t.charges.Insert(ctx, c)
}

func (t *txRepos) UpdateMinuteCharge(ctx context.Context, c *models.MinuteCharge) error {
	return t.charges.Update(ctx, c)
}
