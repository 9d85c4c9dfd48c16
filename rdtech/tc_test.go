package rdtech

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/sigrokproject/goacq/comm"
	"github.com/sigrokproject/goacq/datafeed"
)

// pollFrame builds a well-formed 192-byte poll response with the
// given voltage and current raw counts.
func pollFrame(rawV, rawI uint32) []byte {
	b := make([]byte, PollSize)
	binary.BigEndian.PutUint32(b[0*ChunkSize:], magicPac1)
	binary.BigEndian.PutUint32(b[1*ChunkSize:], magicPac2)
	binary.BigEndian.PutUint32(b[2*ChunkSize:], magicPac3)
	copy(b[4:], "TC66")
	copy(b[8:], "1.14")
	binary.LittleEndian.PutUint32(b[12:], 12345678)
	binary.LittleEndian.PutUint32(b[48:], rawV)
	binary.LittleEndian.PutUint32(b[52:], rawI)
	for off := 0; off < PollSize; off += ChunkSize {
		chunk := b[off : off+ChunkSize]
		binary.LittleEndian.PutUint32(chunk[crcPos:], uint32(crcHelper(chunk[:crcPos])))
	}
	return b
}

func TestValid(t *testing.T) {
	d := Decoder{}
	pkt := pollFrame(51234, 10456)
	if !d.Valid(pkt) {
		t.Fatal("rejected a well-formed poll response")
	}

	bad := pollFrame(51234, 10456)
	bad[50] ^= 0x01
	if d.Valid(bad) {
		t.Error("accepted a response with a CRC mismatch")
	}

	bad = pollFrame(51234, 10456)
	bad[0] = 'q'
	if d.Valid(bad) {
		t.Error("accepted a response with a bad magic")
	}
}

func TestParse(t *testing.T) {
	d := Decoder{}
	// 51234 counts of 10 uV, 10456 counts of 1 uA (x10 scale).
	res, err := d.Parse(pollFrame(51234, 10456))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Records) != len(channels) {
		t.Fatalf("got %d records, want %d", len(res.Records), len(channels))
	}
	v := res.Records[0]
	if v.Quantity != datafeed.Voltage || v.Unit != datafeed.Volt {
		t.Errorf("V channel quantity/unit: %v %v", v.Quantity, v.Unit)
	}
	if v.Value != 5.1234 {
		t.Errorf("V: got %v, want 5.1234", v.Value)
	}
	i := res.Records[1]
	if i.Value != 0.10456 {
		t.Errorf("I: got %v, want 0.10456", i.Value)
	}
}

func TestProbe(t *testing.T) {
	lb := comm.NewLoopback()
	lb.Responder = func(req []byte) []byte {
		if string(req) != "getva" {
			t.Errorf("probe request: got %q, want getva", req)
		}
		return pollFrame(0, 0)
	}
	info, err := Probe(lb, time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Model != "TC66" || info.Firmware != "1.14" || info.SerialNum != 12345678 {
		t.Errorf("device info: %+v", info)
	}
}

func TestProbeBadResponse(t *testing.T) {
	lb := comm.NewLoopback()
	lb.Responder = func([]byte) []byte {
		bad := pollFrame(0, 0)
		bad[70] ^= 0xFF
		return bad
	}
	if _, err := Probe(lb, 50*time.Millisecond); err == nil {
		t.Fatal("Probe accepted a corrupt response")
	}
}
