package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter identifies one billing counter.
type Counter int

const (
	WebhookReceived Counter = iota
	WebhookDuplicate
	WebhookFailed
	WebhookUnhandled
	CheckoutsCreated
	CheckoutsCompleted
	CheckoutsExpired
	CreditsPurchased
	MinutesCharged
	MinutesDuplicate
	MinutesInsufficient
	CreditsDebited
	SessionsStarted
	SessionsEnded
	NotificationsFailed
	counterCount
)

var counterNames = [counterCount]string{
	WebhookReceived:     "webhook_events_received",
	WebhookDuplicate:    "webhook_events_duplicate",
	WebhookFailed:       "webhook_events_failed",
	WebhookUnhandled:    "webhook_events_unhandled",
	CheckoutsCreated:    "checkout_sessions_created",
	CheckoutsCompleted:  "checkout_sessions_completed",
	CheckoutsExpired:    "checkout_sessions_expired",
	CreditsPurchased:    "credits_purchased",
	MinutesCharged:      "voice_minutes_charged",
	MinutesDuplicate:    "voice_minutes_duplicate",
	MinutesInsufficient: "voice_minutes_insufficient",
	CreditsDebited:      "credits_debited",
	SessionsStarted:     "sessions_started",
	SessionsEnded:       "sessions_ended",
	NotificationsFailed: "notifications_failed",
}

// String returns the snapshot key of the counter.
func (c Counter) String() string {
	if c < 0 || c >= counterCount {
		return "unknown"
	}
	return counterNames[c]
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[string]int64 `json:"counters"`
	Since    time.Time        `json:"since"`
	TakenAt  time.Time        `json:"taken_at"`
}

// Billing holds process-local billing counters. A nil *Billing discards updates.
type Billing struct {
	counters [counterCount]atomic.Int64

	mu    sync.RWMutex
	since time.Time
	descs [counterCount]*prometheus.Desc
}

// NewBilling returns zeroed counters.
func NewBilling() *Billing {
	b := &Billing{since: time.Now().UTC()}
	for i := Counter(0); i < counterCount; i++ {
		b.descs[i] = prometheus.NewDesc(
			prometheus.BuildFQName("billing", "", counterNames[i]+"_total"),
			"Billing counter "+counterNames[i]+" since process start or last reset.",
			nil, nil,
		)
	}
	return b
}

// Inc adds one to c.
func (b *Billing) Inc(c Counter) {
	b.Add(c, 1)
}

// Add adds n to c.
func (b *Billing) Add(c Counter, n int64) {
	if b == nil || c < 0 || c >= counterCount {
		return
	}
	b.counters[c].Add(n)
}

// Value returns the current value of c.
func (b *Billing) Value(c Counter) int64 {
	if b == nil || c < 0 || c >= counterCount {
		return 0
	}
	return b.counters[c].Load()
}

// Snapshot copies all counters.
func (b *Billing) Snapshot() Snapshot {
	b.mu.RLock()
	since := b.since
	b.mu.RUnlock()

	out := Snapshot{
		Counters: make(map[string]int64, counterCount),
		Since:    since,
		TakenAt:  time.Now().UTC(),
	}
	for i := Counter(0); i < counterCount; i++ {
		out.Counters[counterNames[i]] = b.counters[i].Load()
	}
	return out
}

// Reset zeroes all counters and returns the values they held.
func (b *Billing) Reset() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := Snapshot{
		Counters: make(map[string]int64, counterCount),
		Since:    b.since,
		TakenAt:  time.Now().UTC(),
	}
	for i := Counter(0); i < counterCount; i++ {
		out.Counters[counterNames[i]] = b.counters[i].Swap(0)
	}
	b.since = out.TakenAt
	return out
}

// Describe implements prometheus.Collector.
func (b *Billing) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range b.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (b *Billing) Collect(ch chan<- prometheus.Metric) {
	for i := Counter(0); i < counterCount; i++ {
		ch <- prometheus.MustNewConstMetric(b.descs[i], prometheus.CounterValue, float64(b.counters[i].Load()))
	}
}
