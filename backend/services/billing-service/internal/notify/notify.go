package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is an outbound notification.
type Message struct {
	Kind    string            `json:"kind"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

// Sender delivers a message through one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FailureFunc is invoked when a message could not be delivered or queued.
type FailureFunc func(msg Message, err error)

// Dispatcher delivers messages asynchronously so callers never wait on the mail provider.
type Dispatcher struct {
	sender    Sender
	queue     chan Message
	timeout   time.Duration
	onFailure FailureFunc
	logger    *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher starts a worker draining a queue of the given size.
func NewDispatcher(sender Sender, queueSize int, timeout time.Duration, onFailure FailureFunc, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		sender:    sender,
		queue:     make(chan Message, queueSize),
		timeout:   timeout,
		onFailure: onFailure,
		logger:    logger,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sender.Send(ctx, msg)
		cancel()
		if err != nil {
			d.fail(msg, err)
			continue
		}
		d.logger.Debug("notification sent", zap.String("kind", msg.Kind), zap.String("to", msg.To))
	}
}

// Enqueue schedules msg for delivery and reports false if it was dropped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.fail(msg, ErrDispatcherClosed)
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.fail(msg, ErrQueueFull)
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) fail(msg Message, err error) {
	d.logger.Warn("notification not delivered",
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.Error(err),
	)
	if d.onFailure != nil {
		d.onFailure(msg, err)
	}
}
