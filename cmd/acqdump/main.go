// Command acqdump runs one acquisition from the command line and
// prints the decoded records, one per line.  Useful for checking a
// cable and driver choice before wiring a device into acqsrv.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/sigrokproject/goacq/acquire"
	"github.com/sigrokproject/goacq/comm"
	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/drivers"
)

func usage() {
	fmt.Println(`acqdump reads samples from a measurement instrument and prints them.

Usage:
	acqdump <driver> <port> [samples]
	acqdump <driver> demo [samples]

driver is a name from the registry, e.g. mastech-ms6514; port is the
serial device, e.g. /dev/ttyUSB0.  The port "demo" substitutes a mock
device that answers every poll with a canned reading.  samples limits
the run (default 10; 0 runs until interrupted).

Known drivers:`)
	for _, n := range drivers.Names() {
		fmt.Println("\t" + n)
	}
}

// demoFill arranges canned data on the loopback: a responder for
// polled drivers, a standing backlog of frames for streaming ones.
func demoFill(name string, lb *comm.Loopback) bool {
	switch name {
	case "colead-sl5868p":
		lb.Responder = func([]byte) []byte {
			b := []byte{0x08, 0x04, 0x10, 0x00, 0x00, 0x07, 0x03, 0x08, 0x01, 0}
			var sum byte
			for _, v := range b[:9] {
				sum += v
			}
			b[9] = sum
			return b
		}
	case "mastech-ms6514":
		// 23.5 degC on T1, 42 degC on T2
		frame := make([]byte, 18)
		frame[0], frame[1] = 0x65, 0x14
		frame[5], frame[6] = 0x00, 0xEB // 235
		frame[7], frame[8] = 0x01, 0xA4 // 420
		frame[10] = 0x01                // degC
		frame[11], frame[12] = 0x08, 0x08
		frame[16], frame[17] = 0x0D, 0x0A
		for i := 0; i < 64; i++ {
			lb.Feed(frame)
		}
	case "cyrustek-es51919":
		// 1 kOhm primary, nothing secondary, 1 kHz test signal
		frame := make([]byte, 17)
		frame[1] = 0x0D
		frame[3] = 2 << 5
		frame[5] = 3 // resistance
		frame[6], frame[7] = 0x03, 0xE8
		frame[8] = 1 << 3 // Ohm
		frame[15], frame[16] = 0x0D, 0x0A
		for i := 0; i < 64; i++ {
			lb.Feed(frame)
		}
	default:
		return false
	}
	return true
}

// printer writes one line per record and reports the end state.
type printer struct{}

func (printer) Push(ev datafeed.Event) {
	switch ev.Type {
	case datafeed.Analog:
		r := ev.Record
		fmt.Printf("ch%d\t%g %s\t%s\n", r.Channel, r.Value, r.Unit, r.Quantity)
	case datafeed.Meta:
		fmt.Printf("meta\t%s = %v\n", ev.Key, ev.Value)
	case datafeed.End:
		if ev.Err != nil {
			fmt.Println("aborted:", ev.Err)
		}
	}
}

func main() {
	args := os.Args
	if len(args) < 3 {
		usage()
		return
	}
	name, port := args[1], args[2]
	samples := uint64(10)
	if len(args) > 3 {
		n, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			log.Fatal("samples must be a non-negative integer")
		}
		samples = n
	}

	drv, ok := drivers.Lookup(name)
	if !ok {
		log.Fatalf("unknown driver %s, run acqdump with no arguments for the list", name)
	}

	var (
		sess *acquire.Session
		t    comm.Transport
		err  error
	)
	if port == "demo" {
		lb := comm.NewLoopback()
		if !demoFill(name, lb) {
			log.Fatalf("no demo data for %s, use a real port", name)
		}
		t = lb
		sess, err = drv.NewSession(t, printer{}, acquire.SourceLive)
	} else {
		sess, t, err = drv.Open(port, printer{}, acquire.SourceLive)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	if samples > 0 {
		sess.Limits().SetSamples(samples)
	}
	if err := sess.Run(drivers.PollInterval); err != nil {
		log.Fatal(err)
	}
}
