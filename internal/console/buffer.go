// Package console keeps the bounded output history of a managed server and
// streams newly appended lines to attached readers.
package console

import (
	"sync"
)

// DefaultCapacity is the number of lines kept per server
const DefaultCapacity = 500

// DefaultSubscriberBuffer is how many lines a reader may fall behind before
// it is detached
const DefaultSubscriberBuffer = 256

// Buffer is a fixed-capacity FIFO of console lines with live subscribers.
// The zero value is not usable; call NewBuffer.
type Buffer struct {
	mu     sync.Mutex
	lines  []string
	head   int // index of the oldest line
	size   int
	subs   map[*Subscription]struct{}
	subBuf int
}

// NewBuffer creates a buffer that keeps at most capacity lines
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		lines:  make([]string, capacity),
		subs:   make(map[*Subscription]struct{}),
		subBuf: DefaultSubscriberBuffer,
	}
}

// SetSubscriberBuffer changes the channel size handed to future subscribers.
func (b *Buffer) SetSubscriberBuffer(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.subBuf = n
	b.mu.Unlock()
}

// Append adds a line, evicting the oldest once the buffer is full, and
// forwards it to every subscriber without blocking.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.lines)
	if b.size < capacity {
		b.lines[(b.head+b.size)%capacity] = line
		b.size++
	} else {
		b.lines[b.head] = line
		b.head = (b.head + 1) % capacity
	}

	for sub := range b.subs {
		select {
		case sub.ch <- line:
		default:
			// reader fell too far behind: detach rather than drop lines silently
			sub.lagged = true
			b.detach(sub)
		}
	}
}

// Lines returns the buffered lines, oldest first
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *Buffer) snapshot() []string {
	out := make([]string, b.size)
	capacity := len(b.lines)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.head+i)%capacity]
	}
	return out
}

// Len returns the number of buffered lines
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the fixed maximum number of lines
func (b *Buffer) Capacity() int {
	return len(b.lines)
}

// Clear drops every buffered line. Subscribers stay attached.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lines {
		b.lines[i] = ""
	}
	b.head = 0
	b.size = 0
}

// Subscribe returns the current snapshot and a subscription to every line
// appended after it. No line is missed or repeated between the two.
func (b *Buffer) Subscribe() ([]string, *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ch:     make(chan string, b.subBuf),
		buffer: b,
	}
	b.subs[sub] = struct{}{}
	return b.snapshot(), sub
}

// CloseSubscribers detaches every subscriber, closing their channels.
func (b *Buffer) CloseSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		b.detach(sub)
	}
}

// detach must be called with b.mu held
func (b *Buffer) detach(sub *Subscription) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Subscription delivers appended lines in order
type Subscription struct {
	ch     chan string
	buffer *Buffer
	lagged bool
}

// C is closed when the subscription ends
func (s *Subscription) C() <-chan string {
	return s.ch
}

// Lagged reports whether the subscription was detached for falling behind.
func (s *Subscription) Lagged() bool {
	s.buffer.mu.Lock()
	defer s.buffer.mu.Unlock()
	return s.lagged
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.buffer.mu.Lock()
	defer s.buffer.mu.Unlock()
	s.buffer.detach(s)
}
