// v1
// internal/httpapi/router_test.go
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/device"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/metrics"
)

type staticReporter struct {
	snap Snapshot
}

func (s staticReporter) Snapshot() Snapshot { return s.snap }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func serve(t *testing.T, h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReadyReflectsConnection(t *testing.T) {
	down := NewRouter(staticReporter{Snapshot{Address: "ws://h/ws"}}, nil, discard())
	if rec := serve(t, down, http.MethodGet, "/ready", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disconnected /ready = %d", rec.Code)
	}

	up := NewRouter(staticReporter{Snapshot{Address: "ws://h/ws", Connected: true}}, nil, discard())
	if rec := serve(t, up, http.MethodGet, "/ready", nil); rec.Code != http.StatusOK {
		t.Fatalf("connected /ready = %d", rec.Code)
	}
	if rec := serve(t, up, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("/health = %d", rec.Code)
	}
}

func TestStatusListsDevices(t *testing.T) {
	scanned := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{
		AgentID:   "agent-1",
		Address:   "ws://h/ws",
		Connected: true,
		Devices: []device.Status{{
			Name:        "Am2302Thing",
			Description: "Sensor 2302",
			Properties:  map[string]float64{device.PropTemperature: 21.5, device.PropHumidity: 40},
			ScannedAt:   &scanned,
		}},
	}
	rec := serve(t, NewRouter(staticReporter{snap}, nil, discard()), http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d", rec.Code)
	}
	var got Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AgentID != "agent-1" || len(got.Devices) != 1 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if got.Devices[0].Properties[device.PropTemperature] != 21.5 {
		t.Fatalf("unexpected properties %+v", got.Devices[0].Properties)
	}
}

func TestStatusEmptyDevicesIsArray(t *testing.T) {
	rec := serve(t, NewRouter(staticReporter{}, nil, discard()), http.MethodGet, "/status", nil)
	if !strings.Contains(rec.Body.String(), `"devices":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.PollCycle("active")
	rec := serve(t, NewRouter(staticReporter{}, m, discard()), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "edge_poll_cycles_total") {
		t.Fatalf("unexpected /metrics response %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(t, NewRouter(staticReporter{}, nil, discard()), http.MethodPost, "/status", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /status = %d", rec.Code)
	}
}

type panicReporter struct{}

func (panicReporter) Snapshot() Snapshot { panic("boom") }

func TestWrapRecoversPanics(t *testing.T) {
	h := Wrap(NewRouter(panicReporter{}, nil, discard()), nil, discard())
	if rec := serve(t, h, http.MethodGet, "/status", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panicking handler = %d", rec.Code)
	}
}

func TestWrapAppliesCORS(t *testing.T) {
	h := Wrap(NewRouter(staticReporter{}, nil, discard()), []string{"http://dashboard.local"}, discard())
	rec := serve(t, h, http.MethodGet, "/health", http.Header{"Origin": {"http://dashboard.local"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Fatalf("allow-origin = %q", got)
	}
	rec = serve(t, h, http.MethodGet, "/health", http.Header{"Origin": {"http://evil.local"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin for foreign origin: %q", got)
	}
}
