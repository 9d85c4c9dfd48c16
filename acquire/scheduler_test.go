package acquire

import (
	"testing"
	"time"
)

func TestSchedulerTimeoutCadence(t *testing.T) {
	t0 := time.Now()
	s := NewScheduler(RequestSpec{Live: []byte{0x10}, Timeout: 100 * time.Millisecond})

	act, _ := s.MaybeRequest(t0)
	if act != Send {
		t.Fatal("first request should be due immediately")
	}
	s.Sent(t0)

	if act, _ = s.MaybeRequest(t0.Add(50 * time.Millisecond)); act != Wait {
		t.Error("request re-issued before the reply timeout")
	}
	if act, _ = s.MaybeRequest(t0.Add(150 * time.Millisecond)); act != Send {
		t.Error("request not re-issued after the reply timeout")
	}
	if s.ConsecutiveTimeouts() != 1 {
		t.Errorf("consecutive timeouts = %d, want 1", s.ConsecutiveTimeouts())
	}
}

func TestSchedulerReplyResetsTimeouts(t *testing.T) {
	t0 := time.Now()
	s := NewScheduler(RequestSpec{Live: []byte{0x10}, Timeout: 100 * time.Millisecond})
	s.Sent(t0)
	s.MaybeRequest(t0.Add(150 * time.Millisecond)) // timeout
	s.Sent(t0.Add(150 * time.Millisecond))
	s.ReplyDone(t0.Add(200 * time.Millisecond))
	if s.ConsecutiveTimeouts() != 0 {
		t.Error("a completed reply should reset the timeout count")
	}
}

func TestSchedulerQuietPeriod(t *testing.T) {
	t0 := time.Now()
	s := NewScheduler(RequestSpec{
		Live:    []byte{0x10},
		Timeout: 100 * time.Millisecond,
		Delay:   40 * time.Millisecond,
	})
	s.Sent(t0)
	s.ReplyDone(t0.Add(10 * time.Millisecond))
	if act, _ := s.MaybeRequest(t0.Add(20 * time.Millisecond)); act != Wait {
		t.Error("request issued inside the quiet period")
	}
	if act, _ := s.MaybeRequest(t0.Add(60 * time.Millisecond)); act != Send {
		t.Error("request not issued after the quiet period")
	}
}

func TestSchedulerBothRequestKindsReachable(t *testing.T) {
	spec := RequestSpec{
		Live:     []byte{0x10},
		LogChunk: []byte{0x11, 0x01},
		Timeout:  100 * time.Millisecond,
	}
	s := NewScheduler(spec)

	_, kind := s.MaybeRequest(time.Now())
	if kind != RequestLive {
		t.Error("default kind should be live-sample")
	}
	s.SetKind(RequestLogChunk)
	_, kind = s.MaybeRequest(time.Now())
	if kind != RequestLogChunk {
		t.Error("log-chunk kind not selected")
	}
	if string(spec.Payload(kind)) != string(spec.LogChunk) {
		t.Error("log-chunk payload mismatch")
	}
}
