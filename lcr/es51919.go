// Package lcr decodes the Cyrustek ES51919 LCR meter chipset.  The
// chipset streams 17-byte packets continuously, no polling needed.
// Each packet carries a primary and a secondary measurement plus the
// test signal frequency and the equivalent circuit model; changes to
// the latter two are reported as meta items.
package lcr

import (
	"math"

	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/stream"
)

// PacketSize is the fixed ES51919 packet length.
const PacketSize = 17

// NumChannels is the displayed measurement count (primary, secondary).
const NumChannels = 2

// Frequencies lists the test signal frequencies in Hz, indexed by the
// config field of the packet.  The last entry (0 Hz) doubles as a
// fallback for out-of-range indices.
var Frequencies = []uint64{100, 120, 1000, 10000, 100000, 0}

// units maps the 5-bit unit field to a unit and a range multiplier.
var units = []struct {
	unit datafeed.Unit
	mult float64
}{
	{datafeed.Unitless, 1},
	{datafeed.Ohm, 1},
	{datafeed.Ohm, 1e3},
	{datafeed.Ohm, 1e6},
	{datafeed.Unitless, 0}, // unassigned
	{datafeed.Henry, 1e-6},
	{datafeed.Henry, 1e-3},
	{datafeed.Henry, 1},
	{datafeed.Henry, 1e3},
	{datafeed.Farad, 1e-12},
	{datafeed.Farad, 1e-9},
	{datafeed.Farad, 1e-6},
	{datafeed.Farad, 1e-3},
	{datafeed.Percent, 1},
	{datafeed.Degree, 1},
}

// Decoder implements stream.Decoder for the ES51919.  It remembers
// the last seen frequency and circuit model so only changes produce
// meta items.
type Decoder struct {
	freq     int
	parallel bool
	seen     bool
}

// MinPacketSize implements stream.Decoder.
func (*Decoder) MinPacketSize() int { return PacketSize }

// Valid checks the constant trailer.  The leading bytes look constant
// as well but are not documented, so only the trailer is trusted, as
// with the other Cyrustek chipsets.
func (*Decoder) Valid(b []byte) bool {
	return b[15] == 0x0D && b[16] == 0x0A
}

// Parse emits up to two records and any meta updates.
func (d *Decoder) Parse(b []byte) (stream.Result, error) {
	res := stream.Result{}

	freq := int(b[3] >> 5)
	if freq >= len(Frequencies) {
		freq = len(Frequencies) - 1
	}
	parallel := b[2]&0x80 != 0
	if !d.seen || freq != d.freq {
		res.Metas = append(res.Metas, stream.MetaItem{
			Key: "output_frequency", Value: Frequencies[freq],
		})
	}
	if !d.seen || parallel != d.parallel {
		model := "series"
		if parallel {
			model = "parallel"
		}
		res.Metas = append(res.Metas, stream.MetaItem{
			Key: "equiv_circuit_model", Value: model,
		})
	}
	d.freq, d.parallel, d.seen = freq, parallel, true

	res.Records = append(res.Records,
		parseMeasurement(b, false),
		parseMeasurement(b, true))
	return res, nil
}

// parseMeasurement decodes the primary (offset 5) or secondary
// (offset 10) measurement block.  Blank displays, calibration and
// sorting modes, and unknown quantities or units all yield a record
// that fails Valid and gets filtered upstream.
func parseMeasurement(pkt []byte, secondary bool) datafeed.Record {
	off := 5
	ch := 0
	if secondary {
		off = 10
		ch = 1
	}
	buf := pkt[off : off+5]
	rec := datafeed.Record{Channel: ch}

	state := buf[4] & 0x0F
	if state != 0 && state != 3 {
		return rec
	}
	if pkt[2]&0x18 != 0 {
		// calibration and sorting modes not supported
		return rec
	}

	if !secondary {
		if pkt[2]&0x01 != 0 {
			rec.Flags |= datafeed.Hold
		}
		if pkt[2]&0x60 != 0 {
			rec.Flags |= datafeed.Autorange
		}
	} else if pkt[2]&0x04 != 0 {
		rec.Flags |= datafeed.Relative
	}
	if pkt[2]&0x80 != 0 {
		rec.Flags |= datafeed.Parallel
	}

	rec.Quantity = parseQuantity(buf[0], secondary)
	if rec.Quantity == datafeed.Unset {
		return rec
	}

	unitIdx := int(buf[3] >> 3)
	if unitIdx >= len(units) || units[unitIdx].mult == 0 {
		rec.Quantity = datafeed.Unset
		return rec
	}
	rec.Unit = units[unitIdx].unit

	val := float64(int16(uint16(buf[1])<<8|uint16(buf[2]))) * decimal(buf[3]&7)
	if state == 3 {
		// "OL" on the display
		val *= math.Inf(1)
	} else {
		val *= units[unitIdx].mult
	}
	rec.Value = val
	return rec
}

func parseQuantity(code byte, secondary bool) datafeed.Quantity {
	if !secondary {
		switch code {
		case 1:
			return datafeed.Inductance
		case 2:
			return datafeed.Capacitance
		case 3, 4:
			return datafeed.Resistance
		}
		return datafeed.Unset
	}
	switch code {
	case 1:
		return datafeed.DissipationFactor
	case 2:
		return datafeed.Quality
	case 3:
		return datafeed.Resistance
	case 4:
		return datafeed.PhaseAngle
	}
	return datafeed.Unset
}

func decimal(n byte) float64 {
	d := 1.0
	for ; n > 0; n-- {
		d /= 10
	}
	return d
}
