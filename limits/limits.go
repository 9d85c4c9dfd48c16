// Package limits implements the software sample/time ceilings every
// driver consults during acquisition.  Hardware has no notion of "stop
// after N readings", so the session counts decoded samples and elapsed
// wall time and asks Check after each work cycle.
package limits

import "time"

// Limits tracks progress against configured sample, frame, and time
// ceilings.  A ceiling of zero disables that axis.  The zero value is
// ready to use; call Start when acquisition begins.
type Limits struct {
	samples uint64
	frames  uint64
	msec    uint64

	samplesRead uint64
	framesRead  uint64
	start       time.Time
}

// SetSamples configures the sample-count ceiling (0 = unbounded).
func (l *Limits) SetSamples(n uint64) { l.samples = n }

// SetFrames configures the frame-count ceiling (0 = unbounded).
func (l *Limits) SetFrames(n uint64) { l.frames = n }

// SetDuration configures the elapsed-time ceiling (0 = unbounded).
func (l *Limits) SetDuration(d time.Duration) {
	l.msec = uint64(d / time.Millisecond)
}

// Samples returns the configured sample ceiling.
func (l *Limits) Samples() uint64 { return l.samples }

// Frames returns the configured frame ceiling.
func (l *Limits) Frames() uint64 { return l.frames }

// Duration returns the configured time ceiling.
func (l *Limits) Duration() time.Duration {
	return time.Duration(l.msec) * time.Millisecond
}

// Start resets the accounting for a new acquisition run.
func (l *Limits) Start() {
	l.samplesRead = 0
	l.framesRead = 0
	l.start = time.Now()
}

// UpdateSamplesRead accumulates n decoded samples.
func (l *Limits) UpdateSamplesRead(n uint64) {
	l.samplesRead += n
}

// UpdateFramesRead accumulates n completed frames.
func (l *Limits) UpdateFramesRead(n uint64) {
	l.framesRead += n
}

// SamplesRead returns the number of samples accumulated since Start.
func (l *Limits) SamplesRead() uint64 { return l.samplesRead }

// Check reports whether any configured ceiling has been reached and
// the caller should stop acquisition.  Call it at the end of each work
// cycle, after all processing is done.
func (l *Limits) Check() bool {
	return l.check(time.Now())
}

func (l *Limits) check(now time.Time) bool {
	if l.samples != 0 && l.samplesRead >= l.samples {
		return true
	}
	if l.frames != 0 && l.framesRead >= l.frames {
		return true
	}
	if l.msec != 0 && !l.start.IsZero() {
		elapsed := now.Sub(l.start)
		if elapsed > time.Duration(l.msec)*time.Millisecond {
			return true
		}
	}
	return false
}

// Remain reports how many samples and frames and how much time may
// still be consumed before a ceiling is hit.  A zero ceiling yields
// zero remaining on that axis (meaning: unbounded).  exceeded is true
// when any configured axis is already spent; tight acquisition paths
// use this for eager enforcement, where Check alone would overshoot on
// devices that deliver many samples per packet.
func (l *Limits) Remain() (samples, frames uint64, d time.Duration, exceeded bool) {
	if l.samples != 0 {
		if l.samplesRead >= l.samples {
			exceeded = true
		} else {
			samples = l.samples - l.samplesRead
		}
	}
	if l.frames != 0 {
		if l.framesRead >= l.frames {
			exceeded = true
		} else {
			frames = l.frames - l.framesRead
		}
	}
	if l.msec != 0 && !l.start.IsZero() {
		elapsed := time.Since(l.start)
		limit := time.Duration(l.msec) * time.Millisecond
		if elapsed >= limit {
			exceeded = true
		} else {
			d = limit - elapsed
		}
	}
	return samples, frames, d, exceeded
}
