package acqhttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"

	"github.com/sigrokproject/goacq/comm"
	"github.com/sigrokproject/goacq/drivers"
)

// sl5868pFrame builds one valid sound level meter packet reading
// 73.8 dB.
func sl5868pFrame() []byte {
	b := []byte{0x08, 0x04, 0x10, 0x00, 0x00, 0x07, 0x03, 0x08, 0x01, 0}
	var sum byte
	for _, v := range b[:9] {
		sum += v
	}
	b[9] = sum
	return b
}

// newTestServer builds an adapter over a loopback that answers every
// poll with one reading, mounted on a chi router.
func newTestServer(t *testing.T) (*Adapter, *httptest.Server) {
	t.Helper()
	drv, ok := drivers.Lookup("colead-sl5868p")
	if !ok {
		t.Fatal("colead driver missing")
	}
	maker := func() (comm.Transport, error) {
		lb := comm.NewLoopback()
		lb.Responder = func([]byte) []byte { return sl5868pFrame() }
		return lb, nil
	}
	a := NewAdapterWithMaker(drv, maker)
	r := chi.NewRouter()
	r.Route("/", a.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return a, srv
}

func post(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRunToSampleLimit(t *testing.T) {
	a, srv := newTestServer(t)

	resp := post(t, srv.URL+"/start?samples=3", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Running() {
		if time.Now().After(deadline) {
			t.Fatal("run did not hit the sample limit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(srv.URL + "/last")
	if err != nil {
		t.Fatalf("GET /last: %v", err)
	}
	defer resp.Body.Close()
	var last readingJSON
	if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
		t.Fatalf("decoding /last: %v", err)
	}
	if last.Value != 73.8 || last.Quantity != "sound pressure level" {
		t.Errorf("last reading: %+v", last)
	}

	resp, err = http.Get(srv.URL + "/sample-count")
	if err != nil {
		t.Fatalf("GET /sample-count: %v", err)
	}
	defer resp.Body.Close()
	var count struct {
		Int int `json:"int"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		t.Fatalf("decoding /sample-count: %v", err)
	}
	if count.Int != 3 {
		t.Errorf("sample count: got %d, want 3", count.Int)
	}
}

func TestStartLocksStart(t *testing.T) {
	a, srv := newTestServer(t)

	if resp := post(t, srv.URL+"/start", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/start", nil); resp.StatusCode != http.StatusLocked {
		t.Errorf("second start: status %d, want %d", resp.StatusCode, http.StatusLocked)
	}

	if resp := post(t, srv.URL+"/stop", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: status %d", resp.StatusCode)
	}
	if a.Running() {
		t.Error("still running after stop")
	}
	// the lock lifts with the run
	if resp := post(t, srv.URL+"/start", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("restart after stop: status %d", resp.StatusCode)
	}
	post(t, srv.URL+"/stop", nil)
}

func TestLastBeforeAnyReading(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/last")
	if err != nil {
		t.Fatalf("GET /last: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestLimitAppliedMidRun(t *testing.T) {
	a, srv := newTestServer(t)
	if resp := post(t, srv.URL+"/start", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/limits/samples", []byte(`{"f64": 1}`)); resp.StatusCode != http.StatusOK {
		t.Fatalf("limit set: status %d", resp.StatusCode)
	}
	deadline := time.Now().Add(5 * time.Second)
	for a.Running() {
		if time.Now().After(deadline) {
			t.Fatal("run did not stop after the limit was applied")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLimitRejectedWhenIdle(t *testing.T) {
	_, srv := newTestServer(t)
	resp := post(t, srv.URL+"/limits/samples", []byte(`{"f64": 5}`))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}
