package acquire

import (
	"fmt"
	"sort"
	"sync"
)

// DriverContext owns every open device session in a process.  It
// replaces the static device lists some drivers used to keep: the
// context is created explicitly, passed by reference, and torn down
// with the driver registration, never implicit.
type DriverContext struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewDriverContext returns an empty context.
func NewDriverContext() *DriverContext {
	return &DriverContext{sessions: make(map[string]*Session)}
}

// Add registers a session under name.  Names must be unique per
// context; a duplicate is an error rather than a silent replacement.
func (c *DriverContext) Add(name string, s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[name]; ok {
		return fmt.Errorf("acquire: session %q already registered", name)
	}
	c.sessions[name] = s
	return nil
}

// Get returns the session registered under name.
func (c *DriverContext) Get(name string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[name]
	return s, ok
}

// Remove stops and deregisters the named session.
func (c *DriverContext) Remove(name string) {
	c.mu.Lock()
	s, ok := c.sessions[name]
	delete(c.sessions, name)
	c.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// Names lists registered sessions in stable order.
func (c *DriverContext) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.sessions))
	for n := range c.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Teardown stops every session and empties the context.
func (c *DriverContext) Teardown() {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}
