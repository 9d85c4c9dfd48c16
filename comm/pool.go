package comm

import (
	"sync"
	"time"
)

// Maker is a function which opens a new transport to an instrument.
// A closure should be used to encapsulate the address and settings.
type Maker func() (Transport, error)

// Pool holds one or more transports to a device that will be closed
// if they are not in use, and re-opened as needed.  It is concurrent
// safe.  Pools must be created with NewPool.
type Pool struct {
	timeout time.Duration  // idle time after which pooled transports are freed
	conns   chan Transport // idle transports
	slots   chan struct{}  // remaining room to open new transports
	timer   *time.Timer    // fires to destroy idle transports
	maker   Maker

	onLease    int // number given out
	reclaiming bool
	mu         sync.Mutex
}

// NewPool creates a pool of up to maxSize transports built by maker,
// closing idle ones after timeout.
func NewPool(maxSize int, timeout time.Duration, maker Maker) *Pool {
	p := &Pool{
		timeout: timeout,
		conns:   make(chan Transport, maxSize),
		slots:   make(chan struct{}, maxSize),
		timer:   time.NewTimer(timeout),
		maker:   maker,
	}
	for i := 0; i < maxSize; i++ {
		p.slots <- struct{}{}
	}
	p.timer.Stop() // nothing to reclaim yet
	return p
}

// Get retrieves a transport, blocking until one is available if all
// are leased out.  Return it with Put, or discard it with Destroy if
// it has gone bad (e.g., all calls error).  A transport obtained with
// a non-nil error must not be returned to the pool.
func (p *Pool) Get() (Transport, error) {
	p.timer.Stop()

	select {
	case t := <-p.conns:
		p.lease(1)
		return t, nil
	default:
	}
	// Nothing idle.  Wait for a returned transport or for room to
	// open a fresh one; Destroy frees a slot, so a blocked Get does
	// not wedge behind a discarded transport.
	select {
	case t := <-p.conns:
		p.lease(1)
		return t, nil
	case <-p.slots:
		t, err := p.maker()
		if err != nil {
			p.slots <- struct{}{}
			return nil, err
		}
		p.lease(1)
		return t, nil
	}
}

// Put restores a transport to the pool for reuse.  Once every lease is
// returned, the idle timer starts; on expiry all pooled transports are
// closed.
func (p *Pool) Put(t Transport) {
	p.conns <- t
	p.lease(-1)
	if p.Active() == 0 {
		p.startReclaim()
	}
}

// ReturnWithError restores t with Put when err is nil and destroys it
// otherwise, so callers can defer the bookkeeping in one line.
func (p *Pool) ReturnWithError(t Transport, err error) {
	if err != nil {
		p.Destroy(t)
		return
	}
	p.Put(t)
}

// Destroy immediately closes a leased transport instead of pooling it,
// freeing its capacity for a later or already-waiting Get.
func (p *Pool) Destroy(t Transport) {
	t.Close()
	p.lease(-1)
	p.slots <- struct{}{}
}

// Size returns the number of transports owned by the pool, pooled or
// leased out.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of transports currently leased out.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

func (p *Pool) lease(delta int) {
	p.mu.Lock()
	p.onLease += delta
	p.mu.Unlock()
}

func (p *Pool) startReclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reclaiming {
		return
	}
	p.reclaiming = true
	p.timer.Reset(p.timeout)
	go func() {
		<-p.timer.C
		for {
			select {
			case t := <-p.conns:
				t.Close()
				p.slots <- struct{}{}
			default:
				p.mu.Lock()
				p.reclaiming = false
				p.mu.Unlock()
				return
			}
		}
	}()
}
