// Package appa decodes the APPA 55II thermologger.  Packets are
// variable length:
//
//	[0x55] [0x55] [type] [len] [len payload bytes] [checksum]
//
// where len is at most 32 and the checksum is the 8-bit sum of all
// bytes before it.  Live readings, stored-log metadata, stored-log
// data chunks, and log start/end markers are distinct packet types;
// stored-log download is driven by explicit chunk requests, so both
// request kinds of the acquisition scheduler are exercised.
package appa

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/sigrokproject/goacq/acquire"
	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/stream"
)

// Packet types.
const (
	TypeLiveData    = 0x00
	TypeLogMetadata = 0x11
	TypeLogData     = 0x14
	TypeLogStart    = 0x18
	TypeLogEnd      = 0x19
)

// NumChannels is the probe count (T1, T2).
const NumChannels = 2

// MaxPayload is the largest payload the length field may claim.
const MaxPayload = 32

// logRecordSize is the size of one stored-log entry inside log-data
// payloads.
const logRecordSize = 20

// command frames a zero-payload command packet of the given type.
func command(typ byte) []byte {
	b := []byte{0x55, 0x55, typ, 0x00, 0}
	var sum byte
	for _, v := range b[:4] {
		sum += v
	}
	b[4] = sum
	return b
}

// Request returns the polling spec: one command for a live reading,
// another for the next stored-log chunk.
func Request() acquire.RequestSpec {
	return acquire.RequestSpec{
		Live:         command(TypeLiveData),
		LogChunk:     command(TypeLogData),
		Timeout:      500 * time.Millisecond,
		Delay:        100 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	}
}

// SourceKind selects live readings or stored-log download.
type SourceKind int

const (
	SourceLive SourceKind = iota
	SourceMemory
)

// Decoder implements stream.Decoder and stream.Sizer for the 55II.
// Stored-log payloads arrive in arbitrary-sized chunks, so the
// decoder accumulates them until whole records can be cut.
type Decoder struct {
	Source SourceKind

	logBuf     []byte
	logRecords int
}

// MinPacketSize implements stream.Decoder: header plus checksum.
func (*Decoder) MinPacketSize() int { return 5 }

// PacketSize implements stream.Sizer from the header length field.
func (*Decoder) PacketSize(prefix []byte) (int, bool) {
	if prefix[0] != 0x55 || prefix[1] != 0x55 || prefix[3] > MaxPayload {
		return 0, false
	}
	return int(prefix[3]) + 5, true
}

// Valid verifies the header and the additive checksum.
func (*Decoder) Valid(b []byte) bool {
	if b[0] != 0x55 || b[1] != 0x55 || b[3] > MaxPayload {
		return false
	}
	size := int(b[3]) + 4
	if len(b) < size+1 {
		return false
	}
	var sum byte
	for _, v := range b[:size] {
		sum += v
	}
	return b[size] == sum
}

// Parse dispatches on the packet type.
func (d *Decoder) Parse(b []byte) (stream.Result, error) {
	payload := b[4 : 4+int(b[3])]
	switch b[2] {
	case TypeLiveData:
		return d.liveData(payload)
	case TypeLogMetadata:
		return d.logMetadata(payload)
	case TypeLogStart:
		d.logBuf = nil
		return stream.Result{Metas: []stream.MetaItem{{Key: "log_start", Value: true}}}, nil
	case TypeLogData:
		return d.logData(payload)
	case TypeLogEnd:
		res := stream.Result{Metas: []stream.MetaItem{{Key: "log_end", Value: true}}}
		if d.Source == SourceMemory {
			res.Stop = true
		}
		return res, nil
	default:
		// unknown packet type: nothing to emit, not an error
		return stream.Result{}, nil
	}
}

func (d *Decoder) liveData(payload []byte) (stream.Result, error) {
	if d.Source != SourceLive {
		return stream.Result{}, nil
	}
	if len(payload) < 14+3*NumChannels {
		return stream.Result{}, stream.ErrShortPacket
	}
	flags := displayFlags(payload[13])
	res := stream.Result{}
	for i := 0; i < NumChannels; i++ {
		res.Records = append(res.Records, datafeed.Record{
			Quantity: datafeed.Temperature,
			Unit:     datafeed.Celsius,
			Flags:    flags,
			Value:    liveTemp(payload[14+3*i:]),
			Channel:  i,
		})
	}
	return res, nil
}

func (d *Decoder) logMetadata(payload []byte) (stream.Result, error) {
	if len(payload) < 2 {
		return stream.Result{}, stream.ErrShortPacket
	}
	d.logRecords = int(binary.LittleEndian.Uint16(payload))
	return stream.Result{
		Metas: []stream.MetaItem{{Key: "log_records", Value: d.logRecords}},
	}, nil
}

func (d *Decoder) logData(payload []byte) (stream.Result, error) {
	if d.Source != SourceMemory {
		return stream.Result{}, nil
	}
	d.logBuf = append(d.logBuf, payload...)

	res := stream.Result{}
	for len(d.logBuf) >= logRecordSize && d.logRecords > 0 {
		rec := d.logBuf[:logRecordSize]
		for i := 0; i < NumChannels; i++ {
			raw := int16(binary.LittleEndian.Uint16(rec[12+2*i:]))
			value := float64(raw) / 10
			if raw == 0x7FFF {
				value = math.Inf(1)
			}
			res.Records = append(res.Records, datafeed.Record{
				Quantity: datafeed.Temperature,
				Unit:     datafeed.Celsius,
				Value:    value,
				Channel:  i,
			})
		}
		d.logBuf = d.logBuf[logRecordSize:]
		d.logRecords--
	}
	return res, nil
}

// displayFlags maps the display-mode byte to record flags.
func displayFlags(mode byte) datafeed.Flag {
	var f datafeed.Flag
	if mode&0xF0 == 0x20 {
		f |= datafeed.Hold
	}
	switch mode & 0x0C {
	case 0x04:
		f |= datafeed.Max
	case 0x08:
		f |= datafeed.Min
	case 0x0C:
		f |= datafeed.Avg
	}
	return f
}

// liveTemp decodes one live channel: 16-bit little-endian value with
// a trailing flag byte carrying the open-probe sentinel and decimal
// point.
func liveTemp(b []byte) float64 {
	raw := int16(binary.LittleEndian.Uint16(b))
	flags := b[2]
	if flags&0x60 != 0 {
		return math.Inf(1)
	}
	if flags&0x01 != 0 {
		return float64(raw) / 10
	}
	return float64(raw)
}
