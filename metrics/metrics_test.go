package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSearch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSearch(10*time.Millisecond, 3, nil)
	m.ObserveSearch(10*time.Millisecond, 0, errors.New("search down"))

	if failures := testutil.ToFloat64(m.SearchFailures); failures != 1 {
		t.Errorf("expected 1 failure, got %v", failures)
	}
	if n := testutil.CollectAndCount(m.SearchDuration); n != 1 {
		t.Errorf("expected search duration to be collected, got %d", n)
	}
}

func TestStreamOpened(t *testing.T) {
	m := New(prometheus.NewRegistry())

	closed := m.StreamOpened()
	if active := testutil.ToFloat64(m.ActiveStreams); active != 1 {
		t.Errorf("expected 1 active stream, got %v", active)
	}
	closed(OutcomeOK)
	if active := testutil.ToFloat64(m.ActiveStreams); active != 0 {
		t.Errorf("expected 0 active streams, got %v", active)
	}
	if ok := testutil.ToFloat64(m.Completions.WithLabelValues(string(OutcomeOK))); ok != 1 {
		t.Errorf("expected 1 ok completion, got %v", ok)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveSearch(time.Second, 1, nil)
	m.ObserveFirstChunk(time.Second)
	m.StreamOpened()(OutcomeStreamError)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if m.Instrument(h) == nil {
		t.Error("expected handler to be returned")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `caseassist_http_requests_total{code="418",method="get"} 1`) {
		t.Errorf("expected request counter in output, got:\n%s", w.Body.String())
	}
}
