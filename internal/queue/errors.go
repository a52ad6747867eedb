package queue

import "errors"

var (
	// ErrQueueClosed is returned when trying to enqueue to a closed queue
	ErrQueueClosed = errors.New("queue is closed")
	// ErrQueueFull is returned when the queue buffer has no room left
	ErrQueueFull = errors.New("queue is full")
)
