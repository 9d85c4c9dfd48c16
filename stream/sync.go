package stream

// SyncStatus is the outcome of one synchronization attempt.
type SyncStatus int

const (
	// Found means a valid packet was located.
	Found SyncStatus = iota

	// NeedMore means no packet fits in the pending data yet and the
	// caller should wait for more bytes.  Not an error.
	NeedMore

	// Discarded means the buffer was full with no valid packet in the
	// whole window, and exactly one byte was dropped from the front to
	// make room.  The caller should count consecutive discards; a full
	// window of them means the stream is unrecoverable garbage.
	Discarded
)

// Synchronize scans the buffer for the next valid packet of d.
//
// Offsets are tested in order and the first match wins; a valid packet
// is never skipped in favor of a later one.  Invalid bytes (bad magic,
// bad length field, checksum mismatch) are all treated identically:
// the scan advances a single byte.  When the packet at some offset
// extends past the pending data, the scan pauses there and asks for
// more input rather than jumping over a potential match.
//
// On Found, the packet occupies buf.Bytes()[offset : offset+size].
// The caller is expected to Compact(offset+size) after consuming it.
func Synchronize(buf *Buffer, d Decoder) (offset, size int, status SyncStatus) {
	min := d.MinPacketSize()
	sizer, variable := d.(Sizer)
	data := buf.Bytes()

	for offset = 0; offset+min <= len(data); offset++ {
		window := data[offset:]
		size = min
		if variable {
			var ok bool
			size, ok = sizer.PacketSize(window)
			if !ok || size < min {
				continue
			}
			if size > buf.Cap() {
				// can never fit; this offset is garbage
				continue
			}
		}
		if size > len(window) {
			// potential packet runs past the pending data
			return 0, 0, needMoreOrDiscard(buf)
		}
		if d.Valid(window[:size]) {
			return offset, size, Found
		}
	}
	return 0, 0, needMoreOrDiscard(buf)
}

// needMoreOrDiscard applies the full-buffer policy: drop one byte per
// call so re-sync latency is bounded by the buffer size and any valid
// partial packet near the tail survives.
func needMoreOrDiscard(buf *Buffer) SyncStatus {
	if buf.Full() {
		buf.Compact(1)
		return Discarded
	}
	return NeedMore
}
