// Package datafeed provides the typed sample stream shared by all
// instrument drivers.  A driver decodes wire packets into Records and
// pushes them through a Sink as a flat, ordered sequence of events:
// one Header at acquisition start, Analog/Logic payloads (optionally
// bracketed by FrameBegin/FrameEnd when several records belong to one
// instant), Meta events for out-of-band parameter changes, and a
// single End when acquisition terminates.
package datafeed

import (
	"fmt"
	"log"
	"time"
)

// Quantity is the physical quantity a record measures.
type Quantity int

// Quantities understood by the pipeline.  Unset is deliberately the
// zero value; records whose quantity could not be determined are
// filtered out before they reach a sink.
const (
	Unset Quantity = iota
	Voltage
	Current
	Resistance
	Capacitance
	Inductance
	Temperature
	Frequency
	Power
	Energy
	SoundPressureLevel
	Gain
	Quality
	DissipationFactor
	PhaseAngle
)

// Unit is the unit the record's value is expressed in.
type Unit int

// Units matching the quantities above.
const (
	Unitless Unit = iota
	Volt
	Ampere
	Ohm
	Farad
	Henry
	Celsius
	Fahrenheit
	Kelvin
	Hertz
	Watt
	WattHour
	DecibelSPL
	Decibel
	Degree
	Percent
)

// Flag is a bitset describing measurement conditions reported by the
// instrument alongside the value.
type Flag uint64

const (
	AC Flag = 1 << iota
	DC
	Autorange
	Hold
	Min
	Max
	Avg
	Relative
	Diode
	Parallel

	// sound level meter weighting/condition flags
	FreqWeightA
	FreqWeightC
	FreqWeightFlat
	TimeWeightF
	TimeWeightS
	PctOverAlarm
	TimeAveraged
)

// Record is one decoded reading: what was measured, in which unit,
// under which conditions, and on which channel.
type Record struct {
	Quantity Quantity
	Unit     Unit
	Flags    Flag
	Value    float64
	Channel  int
}

// Valid reports whether the record may be forwarded to a sink.
func (r Record) Valid() bool {
	return r.Quantity != Unset
}

func (r Record) String() string {
	return fmt.Sprintf("ch%d %v %g %v flags=%#x", r.Channel, r.Quantity, r.Value, r.Unit, uint64(r.Flags))
}

// EventType discriminates the events of a feed.
type EventType int

const (
	Header EventType = iota
	Meta
	FrameBegin
	FrameEnd
	Analog
	Logic
	End
)

// Event is one element of the session output stream.  Analog events
// carry a Record; Logic events carry a chunk of raw channel bits; Meta
// events carry a key/value pair; End carries the stop reason (nil for
// a graceful, limit-triggered stop).
type Event struct {
	Type    EventType
	Time    time.Time
	Record  Record
	Bits    []byte
	UnitSiz int // bytes per logic sample in Bits
	Key     string
	Value   interface{}
	Err     error
}

// Sink consumes the ordered event stream of one acquisition.  Push is
// called from the session's callback goroutine only; implementations
// need not be concurrent safe.
type Sink interface {
	Push(Event)
}

// BufferSink retains every pushed event, primarily for tests and for
// the HTTP adapter's "last reading" route.
type BufferSink struct {
	Events []Event
}

// Push appends ev to the retained slice.
func (b *BufferSink) Push(ev Event) {
	b.Events = append(b.Events, ev)
}

// Records returns the analog records pushed so far, in arrival order.
func (b *BufferSink) Records() []Record {
	var out []Record
	for _, ev := range b.Events {
		if ev.Type == Analog {
			out = append(out, ev.Record)
		}
	}
	return out
}

// LastRecord returns the most recent analog record and whether one exists.
func (b *BufferSink) LastRecord() (Record, bool) {
	for i := len(b.Events) - 1; i >= 0; i-- {
		if b.Events[i].Type == Analog {
			return b.Events[i].Record, true
		}
	}
	return Record{}, false
}

// LogSink writes a line per event with the stdlib logger.
type LogSink struct{}

// Push implements Sink.
func (LogSink) Push(ev Event) {
	switch ev.Type {
	case Analog:
		log.Println("analog:", ev.Record)
	case Meta:
		log.Printf("meta: %s = %v", ev.Key, ev.Value)
	case End:
		if ev.Err != nil {
			log.Println("end:", ev.Err)
		} else {
			log.Println("end")
		}
	}
}

// TeeSink forwards each event to every member sink in order.
type TeeSink []Sink

// Push implements Sink.
func (t TeeSink) Push(ev Event) {
	for _, s := range t {
		s.Push(ev)
	}
}

var quantityNames = map[Quantity]string{
	Unset:              "unset",
	Voltage:            "voltage",
	Current:            "current",
	Resistance:         "resistance",
	Capacitance:        "capacitance",
	Inductance:         "inductance",
	Temperature:        "temperature",
	Frequency:          "frequency",
	Power:              "power",
	Energy:             "energy",
	SoundPressureLevel: "sound pressure level",
	Gain:               "gain",
	Quality:            "quality factor",
	DissipationFactor:  "dissipation factor",
	PhaseAngle:         "phase angle",
}

func (q Quantity) String() string {
	if s, ok := quantityNames[q]; ok {
		return s
	}
	return fmt.Sprintf("quantity(%d)", int(q))
}

var unitNames = map[Unit]string{
	Unitless:   "",
	Volt:       "V",
	Ampere:     "A",
	Ohm:        "ohm",
	Farad:      "F",
	Henry:      "H",
	Celsius:    "degC",
	Fahrenheit: "degF",
	Kelvin:     "K",
	Hertz:      "Hz",
	Watt:       "W",
	WattHour:   "Wh",
	DecibelSPL: "dB(SPL)",
	Decibel:    "dB",
	Degree:     "deg",
	Percent:    "%",
}

func (u Unit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return fmt.Sprintf("unit(%d)", int(u))
}
