// Package rdtech decodes RDTech TC66 style USB load meters.  A poll
// response is three adjacent 64-byte chunks, each opening with a
// magic string ('pac1', 'pac2', 'pac3') and closing with a CRC16
// stored as a 32-bit little endian field.  Measurement values are
// 32-bit little endian integers scattered across the chunks.
package rdtech

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/snksoft/crc"

	"github.com/sigrokproject/goacq/acquire"
	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/stream"
)

const (
	// ChunkSize is the length of one pac chunk.
	ChunkSize = 64

	// PollSize is the length of a complete poll response.
	PollSize = 3 * ChunkSize

	crcPos = ChunkSize - 4
)

const (
	magicPac1 = 0x70616331
	magicPac2 = 0x70616332
	magicPac3 = 0x70616333
)

// crcTable is CRC16/MODBUS, matching the device firmware.
var crcTable = crc.NewTable(&crc.Parameters{
	Width:      16,
	Polynomial: 0x8005,
	ReflectIn:  true,
	ReflectOut: true,
	Init:       0xFFFF,
})

func crcHelper(buf []byte) uint16 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, buf)
	return crcTable.CRC16(c)
}

// channelDesc locates one value inside the poll response.
type channelDesc struct {
	name     string
	offset   int
	num, den float64
	quantity datafeed.Quantity
	unit     datafeed.Unit
}

// channels lists every value a poll response carries, in emission
// order.
var channels = []channelDesc{
	{"V", 0 + 48, 100, 1e6, datafeed.Voltage, datafeed.Volt},
	{"I", 0 + 52, 10, 1e6, datafeed.Current, datafeed.Ampere},
	{"D+", 64 + 32, 10, 1e3, datafeed.Voltage, datafeed.Volt},
	{"D-", 64 + 36, 10, 1e3, datafeed.Voltage, datafeed.Volt},
	{"E0", 64 + 12, 1, 1e3, datafeed.Energy, datafeed.WattHour},
	{"E1", 64 + 20, 1, 1e3, datafeed.Energy, datafeed.WattHour},
}

// ChannelNames returns the channel names in emission order.
func ChannelNames() []string {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.name
	}
	return names
}

// Request returns the polling spec.  The device only answers when
// asked, there is no streaming mode.
func Request() acquire.RequestSpec {
	return acquire.RequestSpec{
		Live:         []byte("getva"),
		Timeout:      time.Second,
		Delay:        100 * time.Millisecond,
		WriteTimeout: time.Millisecond,
	}
}

// Decoder implements stream.Decoder for decrypted poll responses.
type Decoder struct{}

// MinPacketSize implements stream.Decoder.
func (Decoder) MinPacketSize() int { return PollSize }

// Valid checks the three chunk magics and each chunk's CRC.
func (Decoder) Valid(b []byte) bool {
	if binary.BigEndian.Uint32(b[0*ChunkSize:]) != magicPac1 ||
		binary.BigEndian.Uint32(b[1*ChunkSize:]) != magicPac2 ||
		binary.BigEndian.Uint32(b[2*ChunkSize:]) != magicPac3 {
		return false
	}
	for off := 0; off < PollSize; off += ChunkSize {
		chunk := b[off : off+ChunkSize]
		want := binary.LittleEndian.Uint32(chunk[crcPos:])
		if uint32(crcHelper(chunk[:crcPos])) != want {
			return false
		}
	}
	return true
}

// Parse emits one record per channel descriptor.
func (Decoder) Parse(b []byte) (stream.Result, error) {
	res := stream.Result{}
	for i, ch := range channels {
		raw := binary.LittleEndian.Uint32(b[ch.offset:])
		res.Records = append(res.Records, datafeed.Record{
			Quantity: ch.quantity,
			Unit:     ch.unit,
			Value:    float64(raw) * ch.num / ch.den,
			Channel:  i,
		})
	}
	return res, nil
}

// DeviceInfo is the identity block a poll response carries.
type DeviceInfo struct {
	Model     string
	Firmware  string
	SerialNum uint32
}

// ErrBadResponse indicates a probe response that failed validation.
var ErrBadResponse = errors.New("rdtech: invalid poll response")

// Probe sends one poll request over t and parses the device identity
// from the response.  It reads with repeated nonblocking calls until
// a full response or the deadline.
func Probe(t acquire.Transport, timeout time.Duration) (DeviceInfo, error) {
	spec := Request()
	if _, err := t.WriteBlocking(spec.Live, spec.WriteTimeout); err != nil {
		return DeviceInfo{}, err
	}
	buf := make([]byte, PollSize)
	got := 0
	deadline := time.Now().Add(timeout)
	for got < PollSize {
		n, err := t.ReadNonblocking(buf[got:])
		if err != nil {
			return DeviceInfo{}, err
		}
		got += n
		if n == 0 {
			if time.Now().After(deadline) {
				return DeviceInfo{}, ErrBadResponse
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	if !(Decoder{}).Valid(buf) {
		return DeviceInfo{}, ErrBadResponse
	}
	return DeviceInfo{
		Model:     string(buf[4:8]),
		Firmware:  string(buf[8:12]),
		SerialNum: binary.LittleEndian.Uint32(buf[12:]),
	}, nil
}
