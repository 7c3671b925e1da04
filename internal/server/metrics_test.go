package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := newTestServer(Deps{})
	s.cfg.MetricsRegistry = reg
	s.cfg.MetricsGatherer = reg
	s.metrics = newServerMetrics(reg)
	return s, reg
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_AskCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "notion_llm_ask_requests_total" {
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "outcome" && lp.GetValue() == "ok" {
						if m.GetCounter().GetValue() != 1 {
							t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
						}
						found = true
					}
				}
			}
		}
	}
	if !found {
		t.Error("notion_llm_ask_requests_total{outcome=\"ok\"} not found in gathered metrics")
	}
}

func Test_Metrics_ActiveStreamsGauge(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.askActiveStreams.Inc()
	s.metrics.askActiveStreams.Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "notion_llm_ask_active_streams" {
			v := mf.GetMetric()[0].GetGauge().GetValue()
			if v != 2 {
				t.Errorf("want active_streams=2, got %v", v)
			}
			return
		}
	}
	t.Error("notion_llm_ask_active_streams not found in gathered metrics")
}

func Test_Metrics_InstrumentRecordsStatus(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t)

	h := s.metrics.instrument("GET /api/collections", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/collections", nil))

	got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/collections", "418"))
	if got != 1 {
		t.Errorf("want requests_total{code=418}=1, got %v", got)
	}
	if n := testutil.CollectAndCount(s.metrics.httpDurationSeconds); n != 1 {
		t.Errorf("want 1 duration series, got %d", n)
	}
}

func Test_Metrics_RejectedCounter(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t)

	h := authMiddleware("secret", s.metrics.reject, okHandler)
	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/query", nil))
	}

	if got := testutil.ToFloat64(s.metrics.rejectedTotal.WithLabelValues(rejectUnauthorized)); got != 2 {
		t.Errorf("rejected_total{reason=unauthorized}: want 2, got %v", got)
	}
}
