package acquire

import "sync"

// Settings is the small shared configuration record that a concurrent
// "user sets a parameter" call may mutate while the session's own
// callback is running.  The mutex guards only this record, never the
// session, and is held for the duration of a read-modify-write only.
type Settings struct {
	mu     sync.Mutex
	values map[string]float64
}

// Well-known settings keys consumed by the session itself.  Drivers
// are free to store device parameters (output voltage, current limit)
// under their own keys.
const (
	KeyLimitSamples = "limit_samples"
	KeyLimitMsec    = "limit_msec"
)

// NewSettings returns an empty settings record.
func NewSettings() *Settings {
	return &Settings{values: make(map[string]float64)}
}

// Set stores a value under key.
func (s *Settings) Set(key string, v float64) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

// Get retrieves the value under key.
func (s *Settings) Get(key string) (float64, bool) {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	return v, ok
}

// Take retrieves and removes the value under key, so one-shot updates
// (limit changes) are applied exactly once.
func (s *Settings) Take(key string) (float64, bool) {
	s.mu.Lock()
	v, ok := s.values[key]
	if ok {
		delete(s.values, key)
	}
	s.mu.Unlock()
	return v, ok
}
