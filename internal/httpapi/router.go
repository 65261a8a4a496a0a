// v1
// internal/httpapi/router.go
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/device"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/metrics"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/poller"
)

// Snapshot is the agent state returned by /status.
type Snapshot struct {
	AgentID   string              `json:"agentId"`
	Address   string              `json:"address"`
	Connected bool                `json:"connected"`
	Simulated bool                `json:"simulated"`
	Devices   []device.Status     `json:"devices"`
	LastCycle *poller.CycleReport `json:"lastCycle,omitempty"`
}

// Reporter produces snapshots on demand.
type Reporter interface {
	Snapshot() Snapshot
}

// NewRouter registers the read-only endpoints.
func NewRouter(rep Reporter, m *metrics.Metrics, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, log, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
	}).Methods(http.MethodGet)

	r.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		snap := rep.Snapshot()
		if !snap.Connected {
			writeJSON(w, log, http.StatusServiceUnavailable, map[string]any{"status": "disconnected", "address": snap.Address})
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]any{"status": "connected", "address": snap.Address})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		snap := rep.Snapshot()
		if snap.Devices == nil {
			snap.Devices = []device.Status{}
		}
		writeJSON(w, log, http.StatusOK, snap)
	}).Methods(http.MethodGet)

	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("http_encode_failed", "err", err)
	}
}
