package acquire

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/limits"
	"github.com/sigrokproject/goacq/stream"
)

// DefaultBufferSize matches the receive buffer size the serial drivers
// have always used.
const DefaultBufferSize = 256

var (
	// ErrNotRunning is returned by OnEvent outside an acquisition.
	ErrNotRunning = errors.New("acquire: session is not running")

	// ErrAlreadyRunning is returned by Start during an acquisition.
	ErrAlreadyRunning = errors.New("acquire: session is already running")

	// ErrUnsynchronized means an entire buffer's worth of bytes was
	// discarded one at a time without ever finding a valid packet.
	// The stream is garbage; continuing cannot recover it.
	ErrUnsynchronized = errors.New("acquire: no valid packet in a full receive window")
)

// DataSource selects what a polled instrument is asked for: live
// readings or the contents of its stored log.
type DataSource int

const (
	SourceLive DataSource = iota
	SourceMemory
)

type sessionState int

const (
	stateIdle sessionState = iota
	stateRunning
	stateStopping
)

// Params configures a session.  Transport, Decoder, and Sink are
// required; Request is nil for streaming instruments that send packets
// unprompted.
type Params struct {
	Transport  Transport
	Decoder    stream.Decoder
	Sink       datafeed.Sink
	Request    *RequestSpec
	DataSource DataSource
	BufferSize int
}

// Session owns one acquisition pipeline for one open device: receive
// buffer, limits accounting, request scheduling, and decoder state.
// It is driven by an external event loop calling OnEvent; only Stop
// and Settings may be touched from other goroutines.
type Session struct {
	transport Transport
	dec       stream.Decoder
	sink      datafeed.Sink
	sched     *Scheduler
	source    DataSource

	buf      *stream.Buffer
	lim      limits.Limits
	settings *Settings

	mu       sync.Mutex
	state    sessionState
	stopErr  error
	discards int
}

// NewSession assembles a session from params.
func NewSession(p Params) *Session {
	size := p.BufferSize
	if size == 0 {
		size = DefaultBufferSize
	}
	s := &Session{
		transport: p.Transport,
		dec:       p.Decoder,
		sink:      p.Sink,
		source:    p.DataSource,
		buf:       stream.NewBuffer(size),
		settings:  NewSettings(),
	}
	if p.Request != nil {
		s.sched = NewScheduler(*p.Request)
		if p.DataSource == SourceMemory && len(p.Request.LogChunk) > 0 {
			s.sched.SetKind(RequestLogChunk)
		}
	}
	return s
}

// Limits exposes the session's software limits for configuration
// before Start.  During a run, use Settings instead.
func (s *Session) Limits() *limits.Limits { return &s.lim }

// Settings returns the shared, concurrently mutable parameter record.
func (s *Session) Settings() *Settings { return s.settings }

// Scheduler returns the request scheduler, or nil for streaming
// instruments.
func (s *Session) Scheduler() *Scheduler { return s.sched }

// Running reports whether an acquisition is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Start begins an acquisition: limits and buffer are reset, the header
// event is emitted, and the session becomes ready for OnEvent calls.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = stateRunning
	s.stopErr = nil
	s.discards = 0
	s.mu.Unlock()

	s.lim.Start()
	s.buf.Reset()
	s.sink.Push(datafeed.Event{Type: datafeed.Header, Time: time.Now()})
	return nil
}

// Stop ends the acquisition, emitting the end event exactly once.  It
// is idempotent: both limit exhaustion and external cancellation may
// call it, and the second call is a no-op returning the reason the
// first recorded.  A nil return means the run ended gracefully.
func (s *Session) Stop() error {
	return s.stop(nil)
}

func (s *Session) stop(reason error) error {
	s.mu.Lock()
	if s.state == stateIdle {
		err := s.stopErr
		s.mu.Unlock()
		return err
	}
	s.state = stateStopping
	if s.stopErr == nil {
		s.stopErr = reason
	}
	reason = s.stopErr
	s.state = stateIdle
	s.mu.Unlock()

	s.sink.Push(datafeed.Event{Type: datafeed.End, Time: time.Now(), Err: reason})
	return reason
}

// OnEvent is the session's work function, invoked by the external
// event loop with readable=true when the transport has data and
// readable=false on the polling interval.  Fatal transport errors are
// returned after the session has stopped itself; decode errors only
// drop the offending bytes.
func (s *Session) OnEvent(readable bool) error {
	if !s.Running() {
		return ErrNotRunning
	}
	s.applySettings()

	var fatal error
	if readable {
		fatal = s.pump()
	} else if s.sched != nil {
		fatal = s.request()
	}
	if fatal != nil {
		s.stop(fatal)
		return fatal
	}

	if s.lim.Check() {
		s.stop(nil)
	}
	return nil
}

// applySettings folds externally mutated parameters into the run.
func (s *Session) applySettings() {
	if v, ok := s.settings.Take(KeyLimitSamples); ok {
		s.lim.SetSamples(uint64(v))
	}
	if v, ok := s.settings.Take(KeyLimitMsec); ok {
		s.lim.SetDuration(time.Duration(v) * time.Millisecond)
	}
}

// pump reads available bytes and decodes every complete packet they
// yield, in stream order.
func (s *Session) pump() error {
	n, err := s.transport.ReadNonblocking(s.buf.Tail())
	if err != nil {
		return fmt.Errorf("acquire: transport read: %w", err)
	}
	s.buf.Advance(n)

	for {
		offset, size, status := stream.Synchronize(s.buf, s.dec)
		switch status {
		case stream.NeedMore:
			return nil
		case stream.Discarded:
			s.discards++
			if s.discards >= s.buf.Cap() {
				return ErrUnsynchronized
			}
			return nil
		}

		s.discards = 0
		pkt := s.buf.Bytes()[offset : offset+size]
		res, err := s.dec.Parse(pkt)
		s.buf.Compact(offset + size)
		if err != nil {
			// bad numeral or similar; the packet is dropped and the
			// stream continues
			log.Println("acquire: dropping packet:", err)
			continue
		}
		s.emit(res)
		if s.sched != nil {
			s.sched.ReplyDone(time.Now())
		}
		if res.Stop {
			s.stop(nil)
			return nil
		}
	}
}

// emit forwards one packet's worth of results to the sink and updates
// the limit accounting.
func (s *Session) emit(res stream.Result) {
	now := time.Now()
	for _, m := range res.Metas {
		s.sink.Push(datafeed.Event{Type: datafeed.Meta, Time: now, Key: m.Key, Value: m.Value})
	}

	records := res.Records[:0:0]
	for _, r := range res.Records {
		if !r.Valid() {
			log.Println("acquire: filtering record with unset quantity")
			continue
		}
		records = append(records, r)
	}
	if len(records) == 0 {
		return
	}

	frame := len(records) > 1
	if frame {
		s.sink.Push(datafeed.Event{Type: datafeed.FrameBegin, Time: now})
	}
	for _, r := range records {
		s.sink.Push(datafeed.Event{Type: datafeed.Analog, Time: now, Record: r})
	}
	if frame {
		s.sink.Push(datafeed.Event{Type: datafeed.FrameEnd, Time: now})
		s.lim.UpdateFramesRead(1)
	}
	s.lim.UpdateSamplesRead(1)
}

// request sends the next poll request if one is due.
func (s *Session) request() error {
	now := time.Now()
	act, kind := s.sched.MaybeRequest(now)
	if act != Send {
		return nil
	}
	payload := s.sched.Spec().Payload(kind)
	if len(payload) == 0 {
		return nil
	}
	n, err := s.transport.WriteBlocking(payload, s.sched.Spec().WriteTimeout)
	if err != nil {
		return fmt.Errorf("acquire: request write: %w", err)
	}
	if n < len(payload) {
		// short write; retry on the next interval
		log.Printf("acquire: short request write (%d of %d bytes)", n, len(payload))
		return nil
	}
	s.sched.Sent(now)
	return nil
}

// Run drives the session from a simple built-in loop: each tick
// attempts a read and then gives the scheduler a chance to poll.
// It blocks until the session stops and returns the stop reason.
// Callers integrating with their own event loop use OnEvent directly.
func (s *Session) Run(interval time.Duration) error {
	if err := s.Start(); err != nil {
		return err
	}
	for {
		if err := s.OnEvent(true); err != nil {
			if errors.Is(err, ErrNotRunning) {
				break
			}
			return s.stopReason()
		}
		if !s.Running() {
			break
		}
		if err := s.OnEvent(false); err != nil {
			if errors.Is(err, ErrNotRunning) {
				break
			}
			return s.stopReason()
		}
		if !s.Running() {
			break
		}
		time.Sleep(interval)
	}
	return s.stopReason()
}

func (s *Session) stopReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopErr
}
