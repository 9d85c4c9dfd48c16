// Package drivers is the closed registry of supported instruments.
// Each entry couples a device identity with its serial parameters,
// its packet decoder, and its polling behavior, so callers can build
// a ready acquisition session from a driver name and a port.
package drivers

import (
	"fmt"
	"sort"
	"time"

	"github.com/tarm/serial"

	"github.com/sigrokproject/goacq/acquire"
	"github.com/sigrokproject/goacq/appa"
	"github.com/sigrokproject/goacq/colead"
	"github.com/sigrokproject/goacq/comm"
	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/lcr"
	"github.com/sigrokproject/goacq/mastech"
	"github.com/sigrokproject/goacq/rdtech"
	"github.com/sigrokproject/goacq/stream"
)

// Driver describes one supported instrument.
type Driver struct {
	// Name is the registry key, e.g. "mastech-ms6514".
	Name string

	// Vendor and Model identify the hardware for humans.
	Vendor string
	Model  string

	// Baud is the device's fixed line rate; the remaining serial
	// parameters are always 8n1 for these instruments.
	Baud int

	// BufferSize overrides the session receive buffer when nonzero.
	BufferSize int

	// HasMemory reports whether the instrument has a downloadable
	// stored log, i.e. whether SourceMemory is accepted.
	HasMemory bool

	newDecoder func(src acquire.DataSource) stream.Decoder
	request    func() acquire.RequestSpec
	probe      func(t acquire.Transport) error
}

var registry = []Driver{
	{
		Name:   "colead-sl5868p",
		Vendor: "Colead",
		Model:  "SL-5868P",
		Baud:   2400,
		newDecoder: func(acquire.DataSource) stream.Decoder {
			return colead.Decoder{}
		},
		request: colead.Request,
	},
	{
		Name:   "mastech-ms6514",
		Vendor: "MASTECH",
		Model:  "MS6514",
		Baud:   9600,
		newDecoder: func(src acquire.DataSource) stream.Decoder {
			return &mastech.Decoder{Source: mastech.SourceKind(src)}
		},
		HasMemory: true,
	},
	{
		Name:   "appa-55ii",
		Vendor: "APPA",
		Model:  "55II",
		Baud:   9600,
		newDecoder: func(src acquire.DataSource) stream.Decoder {
			return &appa.Decoder{Source: appa.SourceKind(src)}
		},
		request:   appa.Request,
		HasMemory: true,
	},
	{
		Name:   "rdtech-tc66",
		Vendor: "RDTech",
		Model:  "TC66",
		Baud:   9600,
		newDecoder: func(acquire.DataSource) stream.Decoder {
			return rdtech.Decoder{}
		},
		request:    rdtech.Request,
		BufferSize: 2 * rdtech.PollSize,
		probe: func(t acquire.Transport) error {
			_, err := rdtech.Probe(t, time.Second)
			return err
		},
	},
	{
		Name:   "cyrustek-es51919",
		Vendor: "Cyrustek",
		Model:  "ES51919",
		Baud:   9600,
		newDecoder: func(acquire.DataSource) stream.Decoder {
			return &lcr.Decoder{}
		},
	},
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, bool) {
	for _, d := range registry {
		if d.Name == name {
			return d, true
		}
	}
	return Driver{}, false
}

// Names returns all registry keys, sorted.
func Names() []string {
	names := make([]string, len(registry))
	for i, d := range registry {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

// SerialConfig returns the port configuration for this instrument on
// addr, ready for comm.OpenSerial.
func (d Driver) SerialConfig(addr string) serial.Config {
	return serial.Config{
		Name:     addr,
		Baud:     d.Baud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	}
}

// Request returns the polling spec, or nil for streaming instruments.
func (d Driver) Request() *acquire.RequestSpec {
	if d.request == nil {
		return nil
	}
	spec := d.request()
	return &spec
}

// Probe confirms the device on t answers as this driver expects.
// Drivers without an identification exchange accept any transport.
func (d Driver) Probe(t acquire.Transport) error {
	if d.probe == nil {
		return nil
	}
	return d.probe(t)
}

// NewSession builds an acquisition session over an already-open
// transport.
func (d Driver) NewSession(t acquire.Transport, sink datafeed.Sink, src acquire.DataSource) (*acquire.Session, error) {
	if src == acquire.SourceMemory && !d.HasMemory {
		return nil, fmt.Errorf("drivers: %s has no stored log", d.Name)
	}
	return acquire.NewSession(acquire.Params{
		Transport:  t,
		Decoder:    d.newDecoder(src),
		Sink:       sink,
		Request:    d.Request(),
		DataSource: src,
		BufferSize: d.BufferSize,
	}), nil
}

// Open opens the serial port at addr with the driver's parameters and
// builds a session over it.  The caller owns the returned transport
// and closes it after the session ends.
func (d Driver) Open(addr string, sink datafeed.Sink, src acquire.DataSource) (*acquire.Session, comm.Transport, error) {
	t, err := comm.OpenSerial(d.SerialConfig(addr))
	if err != nil {
		return nil, nil, err
	}
	s, err := d.NewSession(t, sink, src)
	if err != nil {
		t.Close()
		return nil, nil, err
	}
	return s, t, nil
}

// PollInterval is a sensible OnEvent cadence for Run loops: a quarter
// of the shortest request delay in the registry.
const PollInterval = 25 * time.Millisecond
