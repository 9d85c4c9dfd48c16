package comm

import (
	"bytes"
	"testing"
	"time"
)

func TestLoopbackRoundTrip(t *testing.T) {
	l := NewLoopback()
	l.Feed([]byte{1, 2, 3})
	buf := make([]byte, 8)
	n, err := l.ReadNonblocking(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || !bytes.Equal(buf[:3], []byte{1, 2, 3}) {
		t.Fatalf("read %d bytes % x", n, buf[:n])
	}
	if n, _ = l.ReadNonblocking(buf); n != 0 {
		t.Error("drained loopback still returned data")
	}
}

func TestLoopbackResponder(t *testing.T) {
	l := NewLoopback()
	l.Responder = func(req []byte) []byte {
		if req[0] == 0x10 {
			return []byte{0xAA, 0x01}
		}
		return nil
	}
	if _, err := l.WriteBlocking([]byte{0x10}, time.Second); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8)
	n, _ := l.ReadNonblocking(buf)
	if n != 2 || buf[0] != 0xAA {
		t.Errorf("responder reply not readable, got % x", buf[:n])
	}
}

func TestLoopbackClosed(t *testing.T) {
	l := NewLoopback()
	l.Close()
	if _, err := l.ReadNonblocking(make([]byte, 1)); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := l.WriteBlocking([]byte{1}, 0); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestPoolReusesTransports(t *testing.T) {
	made := 0
	maker := func() (Transport, error) {
		made++
		return NewLoopback(), nil
	}
	pool := NewPool(2, time.Hour, maker)
	a, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(a)
	b, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("pool did not reuse the idle transport")
	}
	if made != 1 {
		t.Errorf("maker called %d times, want 1", made)
	}
	if pool.Active() != 1 {
		t.Errorf("active = %d, want 1", pool.Active())
	}
}

func TestPoolDestroyReducesSize(t *testing.T) {
	pool := NewPool(2, time.Hour, func() (Transport, error) {
		return NewLoopback(), nil
	})
	a, _ := pool.Get()
	b, _ := pool.Get()
	pool.Destroy(a)
	pool.Put(b)
	if pool.Size() != 1 {
		t.Errorf("size = %d after destroying one of two, want 1", pool.Size())
	}
}

func TestPoolGetUnblocksOnDestroy(t *testing.T) {
	pool := NewPool(1, time.Hour, func() (Transport, error) {
		return NewLoopback(), nil
	})
	first, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan Transport)
	go func() {
		tr, err := pool.Get()
		if err != nil {
			t.Error(err)
		}
		got <- tr
	}()
	time.Sleep(10 * time.Millisecond) // let the second Get block

	destroyed := make(chan struct{})
	go func() {
		pool.Destroy(first)
		close(destroyed)
	}()
	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatal("Destroy blocked behind a waiting Get")
	}
	select {
	case tr := <-got:
		if tr == nil {
			t.Fatal("waiting Get returned no transport")
		}
	case <-time.After(time.Second):
		t.Fatal("waiting Get never completed after Destroy freed capacity")
	}
	if pool.Size() != 1 {
		t.Errorf("size = %d after destroy and re-open, want 1", pool.Size())
	}
}

func TestPoolReturnWithError(t *testing.T) {
	pool := NewPool(1, time.Hour, func() (Transport, error) {
		return NewLoopback(), nil
	})
	tr, _ := pool.Get()
	pool.ReturnWithError(tr, ErrClosed)
	if pool.Size() != 0 {
		t.Error("errored transport should have been destroyed")
	}
}
