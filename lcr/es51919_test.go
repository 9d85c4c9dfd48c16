package lcr

import (
	"math"
	"testing"

	"github.com/sigrokproject/goacq/datafeed"
)

// packet builds a 17-byte frame.  flags is byte 2, config is byte 3.
// The primary and secondary blocks are five bytes each.
func packet(flags, config byte, primary, secondary [5]byte) []byte {
	b := make([]byte, PacketSize)
	b[1] = 0x0D
	b[2] = flags
	b[3] = config
	copy(b[5:], primary[:])
	copy(b[10:], secondary[:])
	b[15] = 0x0D
	b[16] = 0x0A
	return b
}

// block builds a measurement block: quantity code, a big-endian
// value, decimal count, unit index, and display state.
func block(code byte, value int16, decimals, unit, state byte) [5]byte {
	return [5]byte{
		code,
		byte(uint16(value) >> 8),
		byte(uint16(value)),
		unit<<3 | decimals,
		state,
	}
}

func TestValid(t *testing.T) {
	d := &Decoder{}
	if !d.Valid(packet(0, 0, [5]byte{}, [5]byte{})) {
		t.Error("rejected a well-formed packet")
	}
	bad := packet(0, 0, [5]byte{}, [5]byte{})
	bad[16] = 0x00
	if d.Valid(bad) {
		t.Error("accepted a packet with a broken trailer")
	}
}

func TestParseInductanceAndQ(t *testing.T) {
	d := &Decoder{}
	// 1.234 mH primary (unit mH, 3 decimals), Q = 12.3 secondary.
	pkt := packet(0, 2<<5, // 1 kHz
		block(1, 1234, 3, 6, 0),
		block(2, 123, 1, 0, 0))
	res, err := d.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	p := res.Records[0]
	if p.Quantity != datafeed.Inductance || p.Unit != datafeed.Henry {
		t.Errorf("primary quantity/unit: %v %v", p.Quantity, p.Unit)
	}
	if math.Abs(p.Value-1.234e-3) > 1e-12 {
		t.Errorf("primary value: got %v, want 1.234e-3", p.Value)
	}
	s := res.Records[1]
	if s.Quantity != datafeed.Quality || s.Value != 12.3 {
		t.Errorf("secondary: got %v = %v", s.Quantity, s.Value)
	}
}

func TestFirstPacketEmitsMeta(t *testing.T) {
	d := &Decoder{}
	res, _ := d.Parse(packet(0, 2<<5, block(3, 100, 0, 1, 0), [5]byte{}))
	if len(res.Metas) != 2 {
		t.Fatalf("first packet: got %d metas, want 2", len(res.Metas))
	}
	if res.Metas[0].Key != "output_frequency" || res.Metas[0].Value != uint64(1000) {
		t.Errorf("frequency meta: %+v", res.Metas[0])
	}
	if res.Metas[1].Key != "equiv_circuit_model" || res.Metas[1].Value != "series" {
		t.Errorf("model meta: %+v", res.Metas[1])
	}
}

func TestMetaOnlyOnChange(t *testing.T) {
	d := &Decoder{}
	pkt := packet(0, 2<<5, block(3, 100, 0, 1, 0), [5]byte{})
	d.Parse(pkt)

	res, _ := d.Parse(pkt)
	if len(res.Metas) != 0 {
		t.Errorf("unchanged packet produced metas: %+v", res.Metas)
	}

	res, _ = d.Parse(packet(0x80, 3<<5, block(3, 100, 0, 1, 0), [5]byte{}))
	if len(res.Metas) != 2 {
		t.Fatalf("changed packet: got %d metas, want 2", len(res.Metas))
	}
	if res.Metas[0].Value != uint64(10000) || res.Metas[1].Value != "parallel" {
		t.Errorf("changed metas: %+v", res.Metas)
	}
}

func TestOverlimitIsInfinity(t *testing.T) {
	d := &Decoder{}
	res, _ := d.Parse(packet(0, 0, block(3, 20000, 0, 1, 3), [5]byte{}))
	if !math.IsInf(res.Records[0].Value, 1) {
		t.Errorf("OL display: got %v, want +Inf", res.Records[0].Value)
	}
	if res.Records[0].Quantity != datafeed.Resistance {
		t.Errorf("OL display quantity: %v", res.Records[0].Quantity)
	}
}

func TestBlankDisplayFiltered(t *testing.T) {
	d := &Decoder{}
	res, _ := d.Parse(packet(0, 0, block(3, 100, 0, 1, 1), block(0, 0, 0, 0, 0)))
	if res.Records[0].Valid() {
		t.Error("blank primary display produced a valid record")
	}
	if res.Records[1].Valid() {
		t.Error("absent secondary measurement produced a valid record")
	}
}

func TestCalibrationModeFiltered(t *testing.T) {
	d := &Decoder{}
	res, _ := d.Parse(packet(0x08, 0, block(3, 100, 0, 1, 0), [5]byte{}))
	for _, r := range res.Records {
		if r.Valid() {
			t.Errorf("calibration mode produced a valid record: %v", r)
		}
	}
}

func TestModeFlags(t *testing.T) {
	d := &Decoder{}
	res, _ := d.Parse(packet(0x01|0x04|0x80, 0,
		block(3, 100, 0, 1, 0),
		block(2, 123, 1, 0, 0)))
	p, s := res.Records[0], res.Records[1]
	if p.Flags&datafeed.Hold == 0 {
		t.Error("primary missing hold flag")
	}
	if p.Flags&datafeed.Parallel == 0 || s.Flags&datafeed.Parallel == 0 {
		t.Error("parallel flag missing")
	}
	if s.Flags&datafeed.Relative == 0 {
		t.Error("secondary missing relative flag")
	}
}
