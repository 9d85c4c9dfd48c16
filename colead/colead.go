// Package colead decodes the Colead SL-5868P sound level meter.
//
// The meter announces a fresh reading with a single 0x10 byte; the
// host answers 0x20 and receives a 10 byte packet:
//
//	[0x08] [0x04] [mode] [d0] [d1] [d2] [d3] [d4] [0x01] [checksum]
//
// The value is five BCD-ish digits with one implied decimal place.
// The checksum is the 8-bit sum of the nine preceding bytes.
package colead

import (
	"time"

	"github.com/sigrokproject/goacq/acquire"
	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/stream"
)

// PacketSize is the fixed response length.
const PacketSize = 10

// Request returns the polling spec for the meter: it only ever needs
// the live-sample command, there is no stored log.
func Request() acquire.RequestSpec {
	return acquire.RequestSpec{
		Live:         []byte{0x20},
		Timeout:      500 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	}
}

// Decoder implements stream.Decoder for the SL-5868P.
type Decoder struct{}

// MinPacketSize implements stream.Decoder.
func (Decoder) MinPacketSize() int { return PacketSize }

// Valid checks the header, the measurement-valid marker, and the
// additive checksum.
func (Decoder) Valid(b []byte) bool {
	if b[0] != 0x08 || b[1] != 0x04 {
		return false
	}
	if b[8] != 0x01 {
		return false
	}
	var sum byte
	for _, v := range b[:9] {
		sum += v
	}
	return sum == b[9]
}

// Parse converts a validated packet into one SPL record.  An unknown
// weighting configuration yields a record with an unset quantity,
// which the session filters out.
func (Decoder) Parse(b []byte) (stream.Result, error) {
	var value float64
	for _, d := range b[3:8] {
		if d > 0x09 {
			continue
		}
		value = value*10 + float64(d)
	}
	value /= 10

	rec := datafeed.Record{
		Quantity: datafeed.SoundPressureLevel,
		Unit:     datafeed.DecibelSPL,
		Value:    value,
	}

	// high nibble: 0x01 normal, 0x02 hold, everything else unknown
	switch (b[2] >> 4) & 0x0f {
	case 0x01:
	case 0x02:
		rec.Flags |= datafeed.Hold
	default:
		rec.Quantity = datafeed.Unset
		return stream.Result{Records: []datafeed.Record{rec}}, nil
	}

	flags, known := weighting(b[2] & 0x0f)
	if !known {
		rec.Quantity = datafeed.Unset
	}
	rec.Flags |= flags
	return stream.Result{Records: []datafeed.Record{rec}}, nil
}

// weighting maps the low configuration nibble to frequency/time
// weighting flags.
func weighting(mode byte) (datafeed.Flag, bool) {
	switch mode {
	case 0x0:
		return datafeed.FreqWeightA | datafeed.TimeWeightF, true
	case 0x1:
		return datafeed.FreqWeightA | datafeed.TimeWeightS, true
	case 0x2:
		return datafeed.FreqWeightC | datafeed.TimeWeightF, true
	case 0x3:
		return datafeed.FreqWeightC | datafeed.TimeWeightS, true
	case 0x4:
		return datafeed.FreqWeightFlat | datafeed.TimeWeightF, true
	case 0x5:
		return datafeed.FreqWeightFlat | datafeed.TimeWeightS, true
	case 0x6:
		return datafeed.PctOverAlarm | datafeed.FreqWeightA | datafeed.TimeWeightF, true
	case 0x7:
		return datafeed.PctOverAlarm | datafeed.FreqWeightA | datafeed.TimeWeightS, true
	case 0x8, 0x9:
		// 10s / long-term means, fast
		return datafeed.TimeAveraged | datafeed.FreqWeightA | datafeed.TimeWeightF, true
	case 0xa, 0xb:
		// 10s / long-term means, slow
		return datafeed.TimeAveraged | datafeed.FreqWeightA | datafeed.TimeWeightS, true
	case 0xc, 0xd:
		// internal 94 dB calibration tone
		return datafeed.FreqWeightFlat, true
	default:
		return 0, false
	}
}
