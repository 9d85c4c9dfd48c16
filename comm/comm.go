/*
Package comm provides transport implementations for communication
with measurement instruments over serial, TCP, and USB links.

Every transport satisfies acquire.Transport: a non-blocking (or
short-bounded) read for the acquisition callback path, and a bounded
blocking write for request transmission.  Opens retry with an
exponential backoff because some instruments (and some USB-serial
adapters) dislike being connection thrashed.
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"

	"github.com/sigrokproject/goacq/acquire"
)

// pollReadTimeout bounds a single "non-blocking" read on transports
// whose underlying API has no true non-blocking mode.
const pollReadTimeout = 10 * time.Millisecond

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("comm: transport is closed")

// Transport couples the acquisition-facing read/write surface with a
// Close, so pools and servers can manage lifetimes.
type Transport interface {
	acquire.Transport
	io.Closer
}

// openWithRetry runs op under the one backoff policy used for every
// link type: fast first retries, capped interval, bounded total time.
func openWithRetry(op func() error) error {
	return backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
}

// SerialTransport is an RS232 link via tarm/serial.  The port is
// opened with a short ReadTimeout so reads poll rather than block.
type SerialTransport struct {
	port *serial.Port
}

// OpenSerial opens the port described by conf.  conf.ReadTimeout is
// overridden with the polling timeout; everything else (baud, parity,
// stop bits) is the caller's, typically a driver's defaults.
func OpenSerial(conf serial.Config) (*SerialTransport, error) {
	conf.ReadTimeout = pollReadTimeout
	var port *serial.Port
	op := func() error {
		var err error
		port, err = serial.OpenPort(&conf)
		return err
	}
	if err := openWithRetry(op); err != nil {
		return nil, fmt.Errorf("comm: opening %s: %w", conf.Name, err)
	}
	return &SerialTransport{port: port}, nil
}

// ReadNonblocking reads available bytes; a timeout with no data is a
// zero-byte success, not an error.
func (s *SerialTransport) ReadNonblocking(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrClosed
	}
	n, err := s.port.Read(p)
	if err == io.EOF {
		// tarm/serial reports a read timeout as EOF
		return n, nil
	}
	return n, err
}

// WriteBlocking writes p.  tarm/serial has no write timeout; the
// declared timeout is honored as well as the platform allows.
func (s *SerialTransport) WriteBlocking(p []byte, _ time.Duration) (int, error) {
	if s.port == nil {
		return 0, ErrClosed
	}
	return s.port.Write(p)
}

// Close releases the port.
func (s *SerialTransport) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// TCPTransport is an instrument behind a terminal server (e.g. a digi
// portserver) or a native ethernet instrument.
type TCPTransport struct {
	conn net.Conn
}

// DialTCP connects to addr with retry.  Connection-refused errors
// abort the retry loop immediately; only timeouts are retried.
func DialTCP(addr string, timeout time.Duration) (*TCPTransport, error) {
	var conn net.Conn
	op := func() error {
		var err error
		conn, err = net.DialTimeout("tcp", addr, timeout)
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "refused") {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := openWithRetry(op); err != nil {
		return nil, fmt.Errorf("comm: dialing %s: %w", addr, err)
	}
	return &TCPTransport{conn: conn}, nil
}

// ReadNonblocking reads whatever arrives within the polling timeout.
func (t *TCPTransport) ReadNonblocking(p []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrClosed
	}
	t.conn.SetReadDeadline(time.Now().Add(pollReadTimeout))
	n, err := t.conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// WriteBlocking writes p within timeout.
func (t *TCPTransport) WriteBlocking(p []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, ErrClosed
	}
	if timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return t.conn.Write(p)
}

// Close closes the connection.
func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
