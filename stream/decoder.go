package stream

import (
	"errors"

	"github.com/sigrokproject/goacq/datafeed"
)

// ErrShortPacket indicates Parse was handed fewer bytes than the
// decoder's packet size, which is a programming error upstream.  It is
// non-fatal to a session: the offending packet is dropped and
// synchronization continues.
var ErrShortPacket = errors.New("stream: packet shorter than decoder requires")

// MetaItem is an out-of-band parameter change detected while parsing,
// e.g. an LCR meter switching its test frequency.
type MetaItem struct {
	Key   string
	Value interface{}
}

// Result is everything one packet decoded to.  Records with an unset
// quantity are filtered out by the session before emission.  Stop set
// means the decoder has determined acquisition is complete (stored-log
// playback reached its end, or a live packet arrived after log data).
type Result struct {
	Records []datafeed.Record
	Metas   []MetaItem
	Stop    bool
}

// Decoder turns raw wire bytes into measurement records for one device
// family.  Valid must be pure; Parse may keep small persistent state
// across packets (previous test frequency, remembered device type).
type Decoder interface {
	// MinPacketSize is the smallest number of bytes worth inspecting.
	// Fixed-size protocols return their packet size.
	MinPacketSize() int

	// Valid reports whether b (of at least the resolved packet size)
	// begins a well-formed packet.  Checksum verification belongs here.
	Valid(b []byte) bool

	// Parse converts a validated packet into zero or more records.
	Parse(b []byte) (Result, error)
}

// Sizer is implemented by decoders of variable-length protocols whose
// packet size is computed from a header field.  PacketSize inspects a
// prefix of at least MinPacketSize bytes and returns the full size; ok
// is false when the prefix cannot start a packet at all.
type Sizer interface {
	PacketSize(prefix []byte) (size int, ok bool)
}
