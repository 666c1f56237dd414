package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/http/middleware"
	"mvpbackend/backend/services/billing-service/internal/models"
	"mvpbackend/backend/services/billing-service/internal/service"
)

// Ledger exposes balances and ledger history.
type Ledger interface {
	Balance(ctx context.Context, studentID string) (*models.Student, error)
	History(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error)
	Adjust(ctx context.Context, in service.AdjustInput) (*models.CreditTransaction, error)
}

// Checkout sells credit packages.
type Checkout interface {
	ListPackages(ctx context.Context) ([]models.CreditPackage, error)
	CreateCheckout(ctx context.Context, studentID, packageID string) (*models.CheckoutSession, error)
}

// NewBalanceHandler returns GET /billing/me/balance handler.
func NewBalanceHandler(ledger Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, ok := middleware.StudentIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		student, err := ledger.Balance(r.Context(), studentID)
		if err != nil {
			writeServiceError(w, logger, err, "failed to load balance")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"student_id":     student.ID,
			"credit_balance": student.CreditBalance,
		})
	}
}

// NewTransactionsHandler returns GET /billing/me/transactions handler.
func NewTransactionsHandler(ledger Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, ok := middleware.StudentIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		transactions, err := ledger.History(r.Context(), studentID, limit)
		if err != nil {
			writeServiceError(w, logger, err, "failed to load transactions")
			return
		}
		if transactions == nil {
			transactions = []models.CreditTransaction{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"transactions": transactions,
		})
	}
}

// NewPackagesHandler returns GET /billing/packages handler.
func NewPackagesHandler(checkout Checkout, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		packages, err := checkout.ListPackages(r.Context())
		if err != nil {
			writeServiceError(w, logger, err, "failed to load packages")
			return
		}
		if packages == nil {
			packages = []models.CreditPackage{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"packages": packages,
		})
	}
}

// NewCheckoutHandler returns POST /billing/checkout handler.
func NewCheckoutHandler(checkout Checkout, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		CreditPackageID string `json:"credit_package_id" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		studentID, ok := middleware.StudentIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		session, err := checkout.CreateCheckout(r.Context(), studentID, req.CreditPackageID)
		if err != nil {
			writeServiceError(w, logger, err, "failed to create checkout")
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}
