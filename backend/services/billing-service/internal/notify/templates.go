package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// KindPurchaseConfirmation labels credit purchase receipts.
const KindPurchaseConfirmation = "purchase_confirmation"

// Purchase describes a fulfilled checkout for the receipt.
type Purchase struct {
	StudentName   string
	StudentEmail  string
	PackageName   string
	Credits       int64
	AmountInCents int64
	Currency      string
	NewBalance    int64
	SessionID     string
}

// PurchaseConfirmation renders the receipt sent after credits are added.
func PurchaseConfirmation(p Purchase) Message {
	amount := FormatCents(p.AmountInCents, p.Currency)
	name := p.StudentName
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Thanks for your purchase of %s.\n", p.PackageName)
	fmt.Fprintf(&b, "%d credits were added to your account for %s.\n", p.Credits, amount)
	fmt.Fprintf(&b, "Your balance is now %d credits.\n\n", p.NewBalance)
	fmt.Fprintf(&b, "Reference: %s\n", p.SessionID)

	return Message{
		Kind:    KindPurchaseConfirmation,
		To:      p.StudentEmail,
		Subject: fmt.Sprintf("Your %d credits are ready", p.Credits),
		Body:    b.String(),
		Data: map[string]string{
			"session_id":  p.SessionID,
			"credits":     strconv.FormatInt(p.Credits, 10),
			"amount":      amount,
			"new_balance": strconv.FormatInt(p.NewBalance, 10),
		},
	}
}

// FormatCents renders minor units as "12.34 USD".
func FormatCents(cents int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return decimal.New(cents, -2).StringFixed(2) + " " + currency
}
