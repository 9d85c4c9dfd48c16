package comm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USBTransport is an instrument speaking raw bulk or interrupt
// transfers, e.g. a multimeter behind an HID-to-serial bridge chip.
// One claimed interface with an IN endpoint, and optionally an OUT
// endpoint for polled devices.
type USBTransport struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	done  func()
	in    *gousb.InEndpoint
	out   *gousb.OutEndpoint
	intvl time.Duration
}

// OpenUSB claims the default interface of the first device matching
// vid/pid and resolves the given endpoint numbers.  outEP may be 0 for
// devices that only ever transmit.
func OpenUSB(vid, pid uint16, inEP, outEP int) (*USBTransport, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("comm: opening %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("comm: no device %04x:%04x present", vid, pid)
	}
	dev.SetAutoDetach(true)
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("comm: claiming default interface: %w", err)
	}
	t := &USBTransport{ctx: ctx, dev: dev, done: done, intvl: pollReadTimeout}
	t.in, err = intf.InEndpoint(inEP)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("comm: IN endpoint %d: %w", inEP, err)
	}
	if outEP != 0 {
		t.out, err = intf.OutEndpoint(outEP)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("comm: OUT endpoint %d: %w", outEP, err)
		}
	}
	return t, nil
}

// ReadNonblocking reads one transfer's worth of bytes if any arrive
// within the polling timeout.
func (u *USBTransport) ReadNonblocking(p []byte) (int, error) {
	if u.in == nil {
		return 0, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), u.intvl)
	defer cancel()
	n, err := u.in.ReadContext(ctx, p)
	if err == context.DeadlineExceeded || err == gousb.TransferCancelled {
		return n, nil
	}
	return n, err
}

// WriteBlocking writes p to the OUT endpoint within timeout.
func (u *USBTransport) WriteBlocking(p []byte, timeout time.Duration) (int, error) {
	if u.out == nil {
		return 0, ErrClosed
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return u.out.WriteContext(ctx, p)
}

// Close releases the interface, device, and USB context.
func (u *USBTransport) Close() error {
	if u.done != nil {
		u.done()
		u.done = nil
	}
	var err error
	if u.dev != nil {
		err = u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		if cerr := u.ctx.Close(); err == nil {
			err = cerr
		}
		u.ctx = nil
	}
	u.in = nil
	u.out = nil
	return err
}
