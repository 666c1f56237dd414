package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/models"
	"mvpbackend/backend/services/billing-service/internal/repository"
)

type fakeGateway struct {
	req CheckoutRequest
	err error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutRef, error) {
	g.req = req
	if g.err != nil {
		return nil, g.err
	}
	return &CheckoutRef{SessionID: "cs_new", URL: "https://checkout.stripe.test/cs_new"}, nil
}

func TestCreateCheckoutStoresPendingSession(t *testing.T) {
	store := newFakeStore()
	store.addStudent("s1", 0)
	store.addPackage("p100", 100, 1999)
	gw := &fakeGateway{}
	svc := NewCheckoutService(store, gw, nil, zap.NewNop())

	session, err := svc.CreateCheckout(context.Background(), "s1", "p100")
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_new", session.CheckoutURL)
	assert.Equal(t, int64(100), session.CreditsQuantity)
	assert.Equal(t, int64(1999), session.AmountInCents)

	assert.Equal(t, "s1@example.com", gw.req.StudentEmail)
	assert.Equal(t, models.CheckoutPending, store.checkout("cs_new").Status)
}

func TestCreateCheckoutErrors(t *testing.T) {
	store := newFakeStore()
	store.addStudent("s1", 0)
	store.addPackage("p100", 100, 1999)
	ctx := context.Background()

	_, err := NewCheckoutService(store, nil, nil, zap.NewNop()).CreateCheckout(ctx, "s1", "p100")
	assert.ErrorIs(t, err, ErrCheckoutUnavailable)

	svc := NewCheckoutService(store, &fakeGateway{}, nil, zap.NewNop())
	_, err = svc.CreateCheckout(ctx, "s1", "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = svc.CreateCheckout(ctx, "s1", "missing")
	assert.ErrorIs(t, err, repository.ErrPackageNotFound)
	_, err = svc.CreateCheckout(ctx, "ghost", "p100")
	assert.ErrorIs(t, err, repository.ErrStudentNotFound)

	boom := errors.New("stripe down")
	_, err = NewCheckoutService(store, &fakeGateway{err: boom}, nil, zap.NewNop()).CreateCheckout(ctx, "s1", "p100")
	assert.ErrorIs(t, err, boom)
}

func TestListPackagesOrdersByPrice(t *testing.T) {
	store := newFakeStore()
	store.addPackage("big", 500, 7999)
	store.addPackage("small", 50, 999)
	svc := NewCheckoutService(store, nil, nil, zap.NewNop())

	pkgs, err := svc.ListPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "small", pkgs[0].ID)
}
