package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"mvpbackend/backend/services/billing-service/internal/http/middleware"
)

// Routes groups HTTP handlers.
type Routes struct {
	StripeWebhook http.Handler
	VoiceMinute   http.HandlerFunc
	StartSession  http.HandlerFunc
	EndSession    http.HandlerFunc

	Balance      http.HandlerFunc
	Transactions http.HandlerFunc
	Packages     http.HandlerFunc
	Checkout     http.HandlerFunc

	Metrics      http.HandlerFunc
	MetricsReset http.HandlerFunc
	Prometheus   http.Handler
	Health       http.HandlerFunc
	ReplayEvent  http.HandlerFunc
	Adjust       http.HandlerFunc
}

// Guards wraps handlers by caller type.
type Guards struct {
	Internal func(http.Handler) http.Handler
	Student  func(http.Handler) http.Handler
}

// NewRouter registers service endpoints.
func NewRouter(routes Routes, guards Guards, logger *zap.Logger) http.Handler {
	internal := orPassthrough(guards.Internal)
	student := orPassthrough(guards.Student)

	mux := http.NewServeMux()
	if routes.StripeWebhook != nil {
		mux.Handle("/stripe", method(http.MethodPost, routes.StripeWebhook.ServeHTTP))
	}
	if routes.VoiceMinute != nil {
		mux.Handle("/billing/voice-minute", internal(method(http.MethodPost, routes.VoiceMinute)))
	}
	if routes.StartSession != nil {
		mux.Handle("/billing/start-session", internal(method(http.MethodPost, routes.StartSession)))
	}
	if routes.EndSession != nil {
		mux.Handle("/billing/end-session", internal(method(http.MethodPost, routes.EndSession)))
	}
	if routes.Balance != nil {
		mux.Handle("/billing/me/balance", student(method(http.MethodGet, routes.Balance)))
	}
	if routes.Transactions != nil {
		mux.Handle("/billing/me/transactions", student(method(http.MethodGet, routes.Transactions)))
	}
	if routes.Packages != nil {
		mux.Handle("/billing/packages", method(http.MethodGet, routes.Packages))
	}
	if routes.Checkout != nil {
		mux.Handle("/billing/checkout", student(method(http.MethodPost, routes.Checkout)))
	}
	if routes.Metrics != nil {
		mux.Handle("/billing/metrics", method(http.MethodGet, routes.Metrics))
	}
	if routes.MetricsReset != nil {
		mux.Handle("/billing/metrics/reset", internal(method(http.MethodPost, routes.MetricsReset)))
	}
	if routes.Prometheus != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Prometheus.ServeHTTP))
	}
	if routes.Health != nil {
		mux.Handle("/billing/health", method(http.MethodGet, routes.Health))
	}
	if routes.ReplayEvent != nil {
		mux.Handle("/billing/stripe/events/{eventID}/replay", internal(method(http.MethodPost, routes.ReplayEvent)))
	}
	if routes.Adjust != nil {
		mux.Handle("/billing/adjustments", internal(method(http.MethodPost, routes.Adjust)))
	}

	return middleware.Chain(mux,
		middleware.Recovery(logger),
		middleware.RequestLogging(logger),
	)
}

func orPassthrough(guard func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if guard != nil {
		return guard
	}
	return func(next http.Handler) http.Handler { return next }
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
