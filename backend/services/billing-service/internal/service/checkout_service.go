package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/metrics"
	"mvpbackend/backend/services/billing-service/internal/models"
)

// CheckoutRequest is what the payment provider needs to open a hosted checkout.
type CheckoutRequest struct {
	StudentID     string
	StudentEmail  string
	PackageID     string
	PackageName   string
	Credits       int64
	AmountInCents int64
}

// CheckoutRef identifies a provider checkout session.
type CheckoutRef struct {
	SessionID string
	URL       string
}

// CheckoutGateway opens checkout sessions at the payment provider.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutRef, error)
}

// CheckoutService sells credit packages.
type CheckoutService struct {
	store   CheckoutStore
	gateway CheckoutGateway
	metrics *metrics.Billing
	logger  *zap.Logger
}

// NewCheckoutService builds service. gateway may be nil when payments are disabled.
func NewCheckoutService(store CheckoutStore, gateway CheckoutGateway, m *metrics.Billing, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{store: store, gateway: gateway, metrics: m, logger: logger}
}

// ListPackages returns active credit packages.
func (s *CheckoutService) ListPackages(ctx context.Context) ([]models.CreditPackage, error) {
	return s.store.ListActivePackages(ctx)
}

// CreateCheckout opens a provider session for packageID and stores it as PENDING.
func (s *CheckoutService) CreateCheckout(ctx context.Context, studentID, packageID string) (*models.CheckoutSession, error) {
	if s.gateway == nil {
		return nil, ErrCheckoutUnavailable
	}
	if strings.TrimSpace(packageID) == "" {
		return nil, fmt.Errorf("%w: credit_package_id required", ErrInvalidPayload)
	}

	student, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.store.GetActivePackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	ref, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		StudentID:     student.ID,
		StudentEmail:  student.Email,
		PackageID:     pkg.ID,
		PackageName:   pkg.Name,
		Credits:       pkg.Credits,
		AmountInCents: pkg.PriceInCents,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	session := &models.CheckoutSession{
		SessionID:       ref.SessionID,
		StudentID:       student.ID,
		CreditPackageID: pkg.ID,
		CreditsQuantity: pkg.Credits,
		AmountInCents:   pkg.PriceInCents,
		Status:          models.CheckoutPending,
	}
	if err := s.store.CreateCheckoutSession(ctx, session); err != nil {
		return nil, err
	}
	session.CheckoutURL = ref.URL

	s.metrics.Inc(metrics.CheckoutsCreated)
	s.logger.Info("checkout session created",
		zap.String("session_id", session.SessionID),
		zap.String("student_id", student.ID),
		zap.String("credit_package_id", pkg.ID),
	)
	return session, nil
}
