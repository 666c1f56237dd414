package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingSnapshotAndReset(t *testing.T) {
	b := NewBilling()
	b.Inc(MinutesCharged)
	b.Inc(MinutesCharged)
	b.Add(CreditsPurchased, 100)

	snap := b.Snapshot()
	assert.Equal(t, int64(2), snap.Counters["voice_minutes_charged"])
	assert.Equal(t, int64(100), snap.Counters["credits_purchased"])
	assert.Equal(t, int64(0), snap.Counters["sessions_ended"])

	prev := b.Reset()
	assert.Equal(t, int64(2), prev.Counters["voice_minutes_charged"])
	assert.Equal(t, int64(0), b.Value(MinutesCharged))
	assert.False(t, b.Snapshot().Since.Before(prev.Since))
}

func TestNilBillingDiscardsUpdates(t *testing.T) {
	var b *Billing
	b.Inc(WebhookReceived)
	assert.Equal(t, int64(0), b.Value(WebhookReceived))
}

func TestBillingCollector(t *testing.T) {
	b := NewBilling()
	b.Add(CreditsDebited, 3)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(b))

	expected := `
# HELP billing_credits_debited_total Billing counter credits_debited since process start or last reset.
# TYPE billing_credits_debited_total counter
billing_credits_debited_total 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "billing_credits_debited_total"))
	assert.Equal(t, int(counterCount), testutil.CollectAndCount(b))
}
