package comm

import (
	"sync"
	"time"
)

// Loopback is an in-memory transport for tests and mock devices.
// Bytes queued with Feed become readable; writes are retained for
// inspection and optionally answered by a responder function.
type Loopback struct {
	mu      sync.Mutex
	pending []byte
	writes  [][]byte
	closed  bool

	// Responder, if set, is invoked with each written request and its
	// return value is queued as receive data.  This is enough to mock
	// a polled instrument.
	Responder func(req []byte) []byte
}

// NewLoopback returns an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Feed queues bytes for subsequent reads.
func (l *Loopback) Feed(p []byte) {
	l.mu.Lock()
	l.pending = append(l.pending, p...)
	l.mu.Unlock()
}

// Writes returns a copy of everything written so far.
func (l *Loopback) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	copy(out, l.writes)
	return out
}

// ReadNonblocking drains queued bytes into p.
func (l *Loopback) ReadNonblocking(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// WriteBlocking records p and lets the responder, if any, queue the
// reply.
func (l *Loopback) WriteBlocking(p []byte, _ time.Duration) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	cp := append([]byte(nil), p...)
	l.writes = append(l.writes, cp)
	responder := l.Responder
	l.mu.Unlock()

	if responder != nil {
		if reply := responder(cp); len(reply) > 0 {
			l.Feed(reply)
		}
	}
	return len(p), nil
}

// Close marks the transport closed; subsequent operations error.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
