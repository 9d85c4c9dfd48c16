package acquire

import "time"

// RequestKind selects which request a polling instrument is sent.
// Instruments with stored-log download have two distinct requests: one
// for a live sample and one for the next stored-log chunk.  Both are
// reachable; the session picks the kind from its data source.
type RequestKind int

const (
	RequestLive RequestKind = iota
	RequestLogChunk
)

// Action is the scheduler's verdict for the current tick.
type Action int

const (
	// Wait means no request is due.
	Wait Action = iota

	// Send means the caller should transmit the request now.
	Send
)

// RequestSpec describes how a polling instrument is asked for data.
// Streaming instruments, which send packets unprompted, have no spec.
type RequestSpec struct {
	// Live is the request payload for one live sample.
	Live []byte

	// LogChunk is the request payload for the next stored-log chunk,
	// for instruments that support log download.  Empty if unused.
	LogChunk []byte

	// Timeout is how long to wait for a reply before the request is
	// considered lost and may be re-issued.
	Timeout time.Duration

	// Delay is a quiet period honored after a completed reply before
	// the next request becomes due.
	Delay time.Duration

	// WriteTimeout bounds the blocking write of the request itself.
	WriteTimeout time.Duration
}

// Payload returns the request bytes for kind.
func (r RequestSpec) Payload(kind RequestKind) []byte {
	if kind == RequestLogChunk {
		return r.LogChunk
	}
	return r.Live
}

// Scheduler throttles request transmission for a polling instrument.
// Two states: idle (no outstanding request) and awaiting-reply.  The
// zero time for reqNextAt means "not set", making the first request
// due immediately.
type Scheduler struct {
	spec      RequestSpec
	kind      RequestKind
	awaiting  bool
	reqNextAt time.Time
	timeouts  int
}

// NewScheduler returns a scheduler for the given request spec.
func NewScheduler(spec RequestSpec) *Scheduler {
	return &Scheduler{spec: spec}
}

// Spec returns the request spec the scheduler was built with.
func (s *Scheduler) Spec() RequestSpec { return s.spec }

// SetKind switches between live-sample and log-chunk requests.
func (s *Scheduler) SetKind(k RequestKind) { s.kind = k }

// Kind returns the currently selected request kind.
func (s *Scheduler) Kind() RequestKind { return s.kind }

// MaybeRequest decides whether a request is due at now.  An
// outstanding request whose reply timeout has elapsed counts as a
// consecutive timeout and the request becomes eligible again.
func (s *Scheduler) MaybeRequest(now time.Time) (Action, RequestKind) {
	if s.awaiting {
		if s.reqNextAt.IsZero() || now.Before(s.reqNextAt) {
			return Wait, s.kind
		}
		// reply never came
		s.timeouts++
		s.awaiting = false
	}
	if s.reqNextAt.IsZero() || !now.Before(s.reqNextAt) {
		return Send, s.kind
	}
	return Wait, s.kind
}

// Sent records a successful request transmission at now and arms the
// reply timeout.
func (s *Scheduler) Sent(now time.Time) {
	s.awaiting = true
	if s.spec.Timeout > 0 {
		s.reqNextAt = now.Add(s.spec.Timeout)
	} else {
		s.reqNextAt = time.Time{}
	}
}

// ReplyDone records that a full packet was received and decoded.  The
// next request becomes due after the configured quiet period.
func (s *Scheduler) ReplyDone(now time.Time) {
	s.awaiting = false
	s.timeouts = 0
	s.reqNextAt = now.Add(s.spec.Delay)
}

// ConsecutiveTimeouts returns how many requests in a row have gone
// unanswered.  Drivers that treat an unresponsive device as fatal can
// watch this; the session itself keeps retrying.
func (s *Scheduler) ConsecutiveTimeouts() int { return s.timeouts }
