package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"mvpbackend/backend/services/billing-service/internal/auth"
)

type contextKey string

const (
	studentIDKey contextKey = "studentID"
	requestIDKey contextKey = "requestID"
)

// InternalSecretHeader carries the shared secret of service-to-service calls.
const InternalSecretHeader = "X-Internal-Secret"

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// StudentAuth validates JWT tokens and stores the student id in the request context.
func StudentAuth(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "invalid authorization header")
				return
			}
			claims, err := verifier.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), studentIDKey, claims.StudentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalSecret admits only callers presenting the shared secret.
func InternalSecret(secret string) func(http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(InternalSecretHeader))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				unauthorized(w, "invalid internal secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StudentIDFromContext retrieves the authenticated student id.
func StudentIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(studentIDKey).(string)
	return id, ok && id != ""
}

// WithStudentID stores a student id in ctx.
func WithStudentID(ctx context.Context, studentID string) context.Context {
	return context.WithValue(ctx, studentIDKey, studentID)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
