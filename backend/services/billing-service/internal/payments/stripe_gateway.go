package payments

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"

	"mvpbackend/backend/services/billing-service/internal/service"
)

// StripeConfig holds Checkout settings.
type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
}

// StripeGateway opens Stripe Checkout sessions for credit packages.
type StripeGateway struct {
	client   *checkoutsession.Client
	cfg      StripeConfig
	currency string
}

// NewStripeGateway builds gateway using the shared API backend.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	return NewStripeGatewayWithBackend(cfg, stripe.GetBackend(stripe.APIBackend))
}

// NewStripeGatewayWithBackend builds gateway over a specific backend.
func NewStripeGatewayWithBackend(cfg StripeConfig, backend stripe.Backend) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("payments: stripe secret key required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, errors.New("payments: success and cancel urls required")
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &StripeGateway{
		client:   &checkoutsession.Client{B: backend, Key: cfg.SecretKey},
		cfg:      cfg,
		currency: currency,
	}, nil
}

// CreateCheckoutSession implements service.CheckoutGateway.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutRef, error) {
	params := g.params(req)
	params.Context = ctx

	sess, err := g.client.New(params)
	if err != nil {
		return nil, err
	}
	return &service.CheckoutRef{SessionID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) params(req service.CheckoutRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.StudentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.PackageName),
					},
					UnitAmount: stripe.Int64(req.AmountInCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"student_id":        req.StudentID,
			"credit_package_id": req.PackageID,
			"credits":           strconv.FormatInt(req.Credits, 10),
		},
	}
	if req.StudentEmail != "" {
		params.CustomerEmail = stripe.String(req.StudentEmail)
	}
	return params
}
