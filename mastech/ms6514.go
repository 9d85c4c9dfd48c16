// Package mastech decodes the Mastech MS6514 dual-channel
// thermometer, which streams 18 byte frames unprompted:
//
//	[0x65] [0x14] [src] [..] [..] [T1hi] [T1lo] [T2hi] [T2lo] [..]
//	[unit/hold] [mod1] [mod2] [..] [..] [..] [0x0D] [0x0A]
//
// Temperatures are 16-bit big-endian with sign, decimal point, and
// open-circuit sentinel bits carried in the per-channel modifier
// bytes.  An open thermocouple reads as +Inf; that is data, not an
// error.
package mastech

import (
	"math"

	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/stream"
)

// FrameSize is the fixed frame length.
const FrameSize = 18

// NumChannels is the number of simultaneously reported probes.
const NumChannels = 2

// channelAssignment maps the two display modifier fields to the probe
// each display is showing (T1, T2, or T1-T2 as channel 2).
var channelAssignment = [16][2]int{
	{0, 1}, {1, 0}, {2, 0}, {2, 1},
	{0, 0}, {1, 1}, {2, 2}, {2, 2},
	{0, 0}, {1, 1}, {2, 2}, {2, 2},
	{0, 0}, {1, 1}, {2, 2}, {2, 2},
}

// Decoder implements stream.Decoder for the MS6514.  During
// stored-log playback a live frame means the log is exhausted and the
// acquisition is over.
type Decoder struct {
	// Source selects live streaming or stored-log playback.
	Source SourceKind
}

// SourceKind mirrors the instrument's two data sources.
type SourceKind int

const (
	SourceLive SourceKind = iota
	SourceMemory
)

// MinPacketSize implements stream.Decoder.
func (*Decoder) MinPacketSize() int { return FrameSize }

// Valid checks the frame magic and terminator.
func (*Decoder) Valid(b []byte) bool {
	return b[0] == 0x65 && b[1] == 0x14 && b[16] == 0x0D && b[17] == 0x0A
}

// Parse emits one record per enabled display.
func (d *Decoder) Parse(b []byte) (stream.Result, error) {
	memory := b[2]&0x01 == 0x01
	if d.Source == SourceMemory && !memory {
		// live frame during playback: the stored log is exhausted
		return stream.Result{Stop: true}, nil
	}

	res := stream.Result{}
	for i := 0; i < NumChannels; i++ {
		res.Records = append(res.Records, datafeed.Record{
			Quantity: datafeed.Temperature,
			Unit:     unit(b),
			Flags:    flags(b, i),
			Value:    temperature(b, i),
			Channel:  channelAssignment[(b[12]&0x03)<<2|(b[11]&0x03)][i],
		})
	}
	return res, nil
}

func unit(b []byte) datafeed.Unit {
	switch b[10] & 0x03 {
	case 0x01:
		return datafeed.Celsius
	case 0x02:
		return datafeed.Fahrenheit
	case 0x03:
		return datafeed.Kelvin
	default:
		return datafeed.Unitless
	}
}

func flags(b []byte, channel int) datafeed.Flag {
	var f datafeed.Flag
	if b[10]&0x40 == 0x40 {
		f |= datafeed.Hold
	}
	if channel == 0 && b[11]&0x03 > 0x01 {
		f |= datafeed.Relative
	}
	if channel == 1 {
		switch b[12] & 0x03 {
		case 0x01:
			f |= datafeed.Max
		case 0x02:
			f |= datafeed.Min
		case 0x03:
			f |= datafeed.Avg
		}
	}
	return f
}

func temperature(b []byte, channel int) float64 {
	value := float64(uint16(b[5+channel*2])<<8 | uint16(b[6+channel*2]))
	mod := b[11+channel]

	if mod&0x80 == 0x80 {
		value = -value
	}
	if mod&0x08 == 0x08 {
		value /= 10
	}
	if mod&0x40 == 0x40 {
		// open thermocouple
		return math.Inf(1)
	}
	return value
}
