// Package acquire implements the acquisition session shared by every
// instrument driver: it pulls bytes from a transport, drives the
// stream synchronizer and a device-family decoder, forwards decoded
// records to a datafeed sink, and enforces the software limits.  For
// polling-style instruments it also schedules request transmission
// with at-most-one-in-flight semantics.
package acquire

import "time"

// Transport is the narrow slice of a serial port, USB endpoint, or
// socket that a session needs.  Implementations live in package comm.
type Transport interface {
	// ReadNonblocking reads whatever bytes are immediately available
	// into p, returning 0 when there are none.  It must not block
	// beyond the transport's own configured short timeout.
	ReadNonblocking(p []byte) (int, error)

	// WriteBlocking writes p, blocking at most timeout.
	WriteBlocking(p []byte, timeout time.Duration) (int, error)
}
