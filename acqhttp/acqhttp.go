// Package acqhttp exposes one instrument's acquisition pipeline over
// HTTP.  An adapter owns a transport pool for its port and runs at
// most one session at a time; while a run is in progress the
// configuration routes are locked.
package acqhttp

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"

	"github.com/sigrokproject/goacq/acquire"
	"github.com/sigrokproject/goacq/comm"
	"github.com/sigrokproject/goacq/datafeed"
	"github.com/sigrokproject/goacq/drivers"
	"github.com/sigrokproject/goacq/server"
	"github.com/sigrokproject/goacq/server/middleware/locker"
	"github.com/sigrokproject/goacq/temperature"
)

// poolTimeout is how long an idle transport is kept open after a run.
const poolTimeout = time.Minute

// readingJSON is the wire form of one decoded record.
type readingJSON struct {
	Channel  int     `json:"channel"`
	Quantity string  `json:"quantity"`
	Unit     string  `json:"unit"`
	Value    float64 `json:"value"`
	Flags    uint64  `json:"flags"`
	Time     int64   `json:"unixMs"`
}

// cache is the adapter's sink: it retains the latest record, the
// sample count, and the stop state behind a lock so HTTP readers
// don't race the acquisition goroutine.
type cache struct {
	mu       sync.Mutex
	last     datafeed.Record
	lastTime time.Time
	hasLast  bool
	samples  int
	metas    map[string]interface{}
	endErr   error
	ended    bool
}

func newCache() *cache {
	return &cache{metas: map[string]interface{}{}}
}

// Push implements datafeed.Sink.
func (c *cache) Push(ev datafeed.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case datafeed.Header:
		c.hasLast = false
		c.samples = 0
		c.metas = map[string]interface{}{}
		c.endErr = nil
		c.ended = false
	case datafeed.Analog:
		c.last = ev.Record
		c.lastTime = ev.Time
		c.hasLast = true
		c.samples++
	case datafeed.Meta:
		c.metas[ev.Key] = ev.Value
	case datafeed.End:
		c.endErr = ev.Err
		c.ended = true
	}
}

// Adapter serves one instrument.
type Adapter struct {
	drv  drivers.Driver
	pool *comm.Pool
	lock *locker.Locker

	mu    sync.Mutex
	sess  *acquire.Session
	cache *cache
	done  chan struct{}
}

// NewAdapter builds an adapter for driver drv on serial port addr.
func NewAdapter(drv drivers.Driver, addr string) *Adapter {
	maker := func() (comm.Transport, error) {
		return comm.OpenSerial(drv.SerialConfig(addr))
	}
	return NewAdapterWithMaker(drv, maker)
}

// NewAdapterWithMaker builds an adapter whose transports come from
// maker, for non-serial links and for tests.
func NewAdapterWithMaker(drv drivers.Driver, maker comm.Maker) *Adapter {
	lock := locker.New()
	// only /start and future config routes are gated by the lock
	lock.DoNotProtect = append(lock.DoNotProtect,
		"stop", "running", "last", "sample-count", "meta", "limits")
	return &Adapter{
		drv:   drv,
		pool:  comm.NewPool(1, poolTimeout, maker),
		lock:  lock,
		cache: newCache(),
	}
}

// Routes binds the adapter's routes onto r.
func (a *Adapter) Routes(r chi.Router) {
	r.Use(a.lock.Check)
	r.Get("/lock", a.lock.HTTPGet)
	r.Post("/lock", a.lock.HTTPSet)

	r.Post("/start", a.httpStart)
	r.Post("/stop", a.httpStop)
	r.Get("/running", a.httpRunning)
	r.Get("/last", a.httpLast)
	r.Get("/sample-count", a.httpSampleCount)
	r.Get("/meta", a.httpMeta)
	r.Post("/limits/samples", a.httpSetLimit(acquire.KeyLimitSamples))
	r.Post("/limits/msec", a.httpSetLimit(acquire.KeyLimitMsec))
}

// StartRun begins an acquisition.  It leases a transport from the
// pool, builds a session, and drives it from a background goroutine
// until it stops; limit routes stay live during the run through the
// session's settings record.
func (a *Adapter) StartRun(src acquire.DataSource, samples uint64, msec uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess != nil && a.sess.Running() {
		return acquire.ErrAlreadyRunning
	}

	t, err := a.pool.Get()
	if err != nil {
		return err
	}
	sess, err := a.drv.NewSession(t, a.cache, src)
	if err != nil {
		a.pool.ReturnWithError(t, err)
		return err
	}
	if samples > 0 {
		sess.Limits().SetSamples(samples)
	}
	if msec > 0 {
		sess.Limits().SetDuration(time.Duration(msec) * time.Millisecond)
	}
	if err := sess.Start(); err != nil {
		a.pool.ReturnWithError(t, err)
		return err
	}

	a.sess = sess
	a.done = make(chan struct{})
	a.lock.Lock()
	go a.run(sess, t)
	return nil
}

func (a *Adapter) run(sess *acquire.Session, t comm.Transport) {
	defer close(a.done)
	var fatal error
	for sess.Running() {
		if err := sess.OnEvent(true); err != nil {
			fatal = err
			break
		}
		if !sess.Running() {
			break
		}
		if err := sess.OnEvent(false); err != nil {
			fatal = err
			break
		}
		time.Sleep(drivers.PollInterval)
	}
	if errors.Is(fatal, acquire.ErrNotRunning) {
		fatal = nil
	}
	a.pool.ReturnWithError(t, fatal)
	a.lock.Unlock()
}

// StopRun ends the acquisition and waits for the run goroutine to
// hand its transport back.
func (a *Adapter) StopRun() error {
	a.mu.Lock()
	sess, done := a.sess, a.done
	a.mu.Unlock()
	if sess == nil {
		return acquire.ErrNotRunning
	}
	err := sess.Stop()
	if done != nil {
		<-done
	}
	return err
}

// Running reports whether a session is in progress.
func (a *Adapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess != nil && a.sess.Running()
}

func (a *Adapter) httpStart(w http.ResponseWriter, r *http.Request) {
	src := acquire.SourceLive
	if r.URL.Query().Get("source") == "memory" {
		src = acquire.SourceMemory
	}
	samples, _ := strconv.ParseUint(r.URL.Query().Get("samples"), 10, 64)
	msec, _ := strconv.ParseUint(r.URL.Query().Get("msec"), 10, 64)
	if err := a.StartRun(src, samples, msec); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) httpStop(w http.ResponseWriter, r *http.Request) {
	err := a.StopRun()
	if err != nil && !errors.Is(err, acquire.ErrNotRunning) {
		// the run ended on a device error; report it with the stop
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) httpRunning(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: a.Running()}
	hp.EncodeAndRespond(w, r)
}

func (a *Adapter) httpLast(w http.ResponseWriter, r *http.Request) {
	a.cache.mu.Lock()
	rec, at, ok := a.cache.last, a.cache.lastTime, a.cache.hasLast
	a.cache.mu.Unlock()
	if !ok {
		http.Error(w, "no reading yet", http.StatusNotFound)
		return
	}

	// thermometer readings can be requested on another scale,
	// e.g. /last?unit=degF
	if u := r.URL.Query().Get("unit"); u != "" {
		unit, ok := temperature.ParseUnit(u)
		if !ok {
			http.Error(w, "unknown unit "+u, http.StatusBadRequest)
			return
		}
		var err error
		rec, err = temperature.ConvertRecord(rec, unit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	last := readingJSON{
		Channel:  rec.Channel,
		Quantity: rec.Quantity.String(),
		Unit:     rec.Unit.String(),
		Value:    rec.Value,
		Flags:    uint64(rec.Flags),
		Time:     at.UnixMilli(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(last); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *Adapter) httpSampleCount(w http.ResponseWriter, r *http.Request) {
	a.cache.mu.Lock()
	n := a.cache.samples
	a.cache.mu.Unlock()
	hp := server.HumanPayload{T: types.Int, Int: n}
	hp.EncodeAndRespond(w, r)
}

func (a *Adapter) httpMeta(w http.ResponseWriter, r *http.Request) {
	a.cache.mu.Lock()
	metas := make(map[string]interface{}, len(a.cache.metas))
	for k, v := range a.cache.metas {
		metas[k] = v
	}
	a.cache.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(metas); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// httpSetLimit folds a limit change into the running session, or
// rejects it when nothing is running.  Limits for a future run are
// passed to /start instead.
func (a *Adapter) httpSetLimit(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := server.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		sess := a.sess
		a.mu.Unlock()
		if sess == nil || !sess.Running() {
			http.Error(w, acquire.ErrNotRunning.Error(), http.StatusConflict)
			return
		}
		sess.Settings().Set(key, f.F64)
		w.WriteHeader(http.StatusOK)
	}
}
