// Package stream implements the receive-side plumbing shared by every
// serial/USB instrument driver: a fixed-capacity receive buffer that
// accumulates partial reads, and a synchronizer that locates the next
// well-formed packet inside the untrusted byte stream.
package stream

// Buffer is a fixed-capacity linear byte buffer.  Bytes [0, Len()) are
// valid pending data; reads append at the tail and Compact removes
// consumed bytes from the front.  It is not safe for concurrent use;
// one acquisition session owns one buffer.
type Buffer struct {
	data   []byte
	length int
}

// NewBuffer returns a buffer holding at most capacity bytes.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic("stream: buffer capacity must be positive")
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Append copies up to Free() bytes from p into the tail and returns
// how many were taken.  A full buffer returns 0; the caller must
// Compact or Reset before the next read or it will starve.
func (b *Buffer) Append(p []byte) int {
	n := copy(b.data[b.length:], p)
	b.length += n
	return n
}

// Tail returns the free space at the end of the buffer, for reading
// into directly.  Commit bytes written there with Advance.
func (b *Buffer) Tail() []byte {
	return b.data[b.length:]
}

// Advance marks n bytes of Tail as valid after a direct read.
func (b *Buffer) Advance(n int) {
	if n < 0 || b.length+n > len(b.data) {
		panic("stream: Advance out of range")
	}
	b.length += n
}

// Compact removes consumed bytes from the front, shifting the
// remaining Len()-consumed bytes to offset 0.
func (b *Buffer) Compact(consumed int) {
	if consumed < 0 || consumed > b.length {
		panic("stream: Compact out of range")
	}
	copy(b.data, b.data[consumed:b.length])
	b.length -= consumed
}

// Reset discards all pending data.
func (b *Buffer) Reset() {
	b.length = 0
}

// Bytes returns a view of the valid pending data.  The view is
// invalidated by any mutating call.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.length]
}

// Len returns the number of valid pending bytes.
func (b *Buffer) Len() int { return b.length }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Free returns the remaining room for appends.
func (b *Buffer) Free() int { return len(b.data) - b.length }

// Full reports whether the buffer has no room left.
func (b *Buffer) Full() bool { return b.length == len(b.data) }
