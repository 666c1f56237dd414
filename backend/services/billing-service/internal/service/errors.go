package service

import "errors"

var (
	// ErrSignatureInvalid means the Stripe-Signature header did not verify against the body.
	ErrSignatureInvalid = errors.New("stripe signature invalid")
	// ErrWebhookSecretMissing means the service cannot verify webhooks at all.
	ErrWebhookSecretMissing = errors.New("stripe webhook secret not configured")
	// ErrInvalidPayload means a request or event body is malformed.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrInvalidSessionState means a checkout session cannot take the requested transition.
	ErrInvalidSessionState = errors.New("invalid checkout session state")
	// ErrInsufficientCredits means a debit would make the balance negative.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidAmount means a ledger entry amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrCheckoutUnavailable means no payment provider is configured.
	ErrCheckoutUnavailable = errors.New("checkout unavailable")
	// ErrConversationConflict means a conversation is already bound to another student.
	ErrConversationConflict = errors.New("conversation registered for another student")
)
