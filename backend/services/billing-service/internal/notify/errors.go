package notify

import "errors"

var (
	// ErrQueueFull is reported when the dispatcher queue has no room.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrDispatcherClosed is reported for messages enqueued after Close.
	ErrDispatcherClosed = errors.New("notify: dispatcher closed")
)
