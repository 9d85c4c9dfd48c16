package appa

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/sigrokproject/goacq/datafeed"
)

// frame builds a packet of the given type and payload with a correct
// checksum.
func frame(typ byte, payload []byte) []byte {
	b := []byte{0x55, 0x55, typ, byte(len(payload))}
	b = append(b, payload...)
	var sum byte
	for _, v := range b {
		sum += v
	}
	return append(b, sum)
}

// livePayload builds a live-data payload with the given display mode
// and per-channel (value, flag) pairs.
func livePayload(mode byte, ch [NumChannels]struct {
	raw  int16
	flag byte
}) []byte {
	p := make([]byte, 14+3*NumChannels)
	p[13] = mode
	for i, c := range ch {
		binary.LittleEndian.PutUint16(p[14+3*i:], uint16(c.raw))
		p[14+3*i+2] = c.flag
	}
	return p
}

func TestPacketSize(t *testing.T) {
	d := &Decoder{}
	size, ok := d.PacketSize([]byte{0x55, 0x55, TypeLiveData, 20, 0})
	if !ok || size != 25 {
		t.Errorf("got (%d, %v), want (25, true)", size, ok)
	}
	if _, ok := d.PacketSize([]byte{0x55, 0x55, TypeLiveData, 33, 0}); ok {
		t.Error("accepted length field over the maximum")
	}
	if _, ok := d.PacketSize([]byte{0x55, 0xAA, TypeLiveData, 20, 0}); ok {
		t.Error("accepted bad header")
	}
}

func TestValidChecksum(t *testing.T) {
	d := &Decoder{}
	pkt := frame(TypeLogStart, nil)
	if !d.Valid(pkt) {
		t.Fatal("rejected a well-formed packet")
	}
	pkt[2] ^= 0x40
	if d.Valid(pkt) {
		t.Error("accepted a corrupted packet")
	}
}

func TestParseLiveData(t *testing.T) {
	d := &Decoder{Source: SourceLive}
	pkt := frame(TypeLiveData, livePayload(0x00, [NumChannels]struct {
		raw  int16
		flag byte
	}{
		{raw: 235, flag: 0x01}, // 23.5 C
		{raw: 42, flag: 0x00},  // 42 C
	}))
	res, err := d.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	if res.Records[0].Value != 23.5 || res.Records[0].Channel != 0 {
		t.Errorf("channel 0: got %v", res.Records[0])
	}
	if res.Records[1].Value != 42 || res.Records[1].Channel != 1 {
		t.Errorf("channel 1: got %v", res.Records[1])
	}
}

func TestParseLiveOpenProbe(t *testing.T) {
	d := &Decoder{Source: SourceLive}
	pkt := frame(TypeLiveData, livePayload(0x00, [NumChannels]struct {
		raw  int16
		flag byte
	}{
		{raw: 0, flag: 0x60},
		{raw: 100, flag: 0x00},
	}))
	res, err := d.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !math.IsInf(res.Records[0].Value, 1) {
		t.Errorf("open probe: got %v, want +Inf", res.Records[0].Value)
	}
}

func TestParseLiveDisplayFlags(t *testing.T) {
	d := &Decoder{Source: SourceLive}
	pkt := frame(TypeLiveData, livePayload(0x24, [NumChannels]struct {
		raw  int16
		flag byte
	}{}))
	res, err := d.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f := res.Records[0].Flags
	if f&datafeed.Hold == 0 || f&datafeed.Max == 0 {
		t.Errorf("flags: got %v, want hold and max", f)
	}
}

func TestLiveIgnoredDuringMemoryDownload(t *testing.T) {
	d := &Decoder{Source: SourceMemory}
	pkt := frame(TypeLiveData, livePayload(0x00, [NumChannels]struct {
		raw  int16
		flag byte
	}{}))
	res, err := d.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Records) != 0 || res.Stop {
		t.Errorf("live packet during download: got %+v", res)
	}
}

// logRecord builds one 20-byte stored-log entry.
func logRecord(t1, t2 int16) []byte {
	r := make([]byte, logRecordSize)
	binary.LittleEndian.PutUint16(r[12:], uint16(t1))
	binary.LittleEndian.PutUint16(r[14:], uint16(t2))
	return r
}

func TestLogDownload(t *testing.T) {
	d := &Decoder{Source: SourceMemory}

	res, err := d.Parse(frame(TypeLogMetadata, []byte{2, 0}))
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if len(res.Metas) != 1 || res.Metas[0].Key != "log_records" {
		t.Fatalf("metadata metas: %+v", res.Metas)
	}

	if _, err := d.Parse(frame(TypeLogStart, nil)); err != nil {
		t.Fatalf("log start: %v", err)
	}

	// First chunk carries one and a half records.
	chunk := append(logRecord(235, 420), logRecord(-15, 0x7FFF)[:10]...)
	res, err = d.Parse(frame(TypeLogData, chunk))
	if err != nil {
		t.Fatalf("chunk 1: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("chunk 1: got %d records, want 2", len(res.Records))
	}
	if res.Records[0].Value != 23.5 || res.Records[1].Value != 42 {
		t.Errorf("chunk 1 values: %v, %v", res.Records[0].Value, res.Records[1].Value)
	}

	// Second chunk completes the second record.
	res, err = d.Parse(frame(TypeLogData, logRecord(-15, 0x7FFF)[10:]))
	if err != nil {
		t.Fatalf("chunk 2: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("chunk 2: got %d records, want 2", len(res.Records))
	}
	if res.Records[0].Value != -1.5 {
		t.Errorf("chunk 2 channel 0: got %v", res.Records[0].Value)
	}
	if !math.IsInf(res.Records[1].Value, 1) {
		t.Errorf("chunk 2 channel 1: got %v, want +Inf", res.Records[1].Value)
	}

	res, err = d.Parse(frame(TypeLogEnd, nil))
	if err != nil {
		t.Fatalf("log end: %v", err)
	}
	if !res.Stop {
		t.Error("log end did not request stop")
	}
}

func TestRequestSpec(t *testing.T) {
	spec := Request()
	d := &Decoder{}
	if !d.Valid(spec.Live) {
		t.Error("live request is not a well-formed packet")
	}
	if !d.Valid(spec.LogChunk) {
		t.Error("log-chunk request is not a well-formed packet")
	}
	if spec.Live[2] != TypeLiveData || spec.LogChunk[2] != TypeLogData {
		t.Error("request command types wrong")
	}
}
