package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/mem"
)

// manualCycleTimeout bounds how long POST /cycle waits behind queued cycles.
const manualCycleTimeout = 30 * time.Second

// LoadAPI registers the REST endpoints. guard wraps handlers that change
// state; nil leaves them open.
func (m *Controller) LoadAPI(r *mux.Router, guard func(http.HandlerFunc) http.HandlerFunc) {
	if guard == nil {
		guard = func(h http.HandlerFunc) http.HandlerFunc { return h }
	}
	sr := r.PathPrefix("/api/soil").Subrouter()
	sr.HandleFunc("/config", m.getConfig).Methods("GET")
	sr.HandleFunc("/config", guard(m.putConfig)).Methods("PUT")
	sr.HandleFunc("/config/history", m.configHistory).Methods("GET")
	sr.HandleFunc("/cycle", guard(m.runOne)).Methods("POST")
	sr.HandleFunc("/last", m.lastResult).Methods("GET")
	sr.HandleFunc("/trend", m.trendList).Methods("GET")
	sr.HandleFunc("/queue", m.queueList).Methods("GET")
	sr.HandleFunc("/log", m.logList).Methods("GET")
	sr.HandleFunc("/status", m.status).Methods("GET")
	sr.HandleFunc("/health", m.health).Methods("GET")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (m *Controller) getConfig(w http.ResponseWriter, r *http.Request) {
	s, err := m.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (m *Controller) putConfig(w http.ResponseWriter, r *http.Request) {
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.ID = DefaultID
	if err := s.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	old, err := m.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.CreateOrUpdate(s); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.applyChanges(old, s)
	m.appendLog("SOIL: configuration saved (mode " + s.Soil.Mode.String() + ")")
	w.WriteHeader(http.StatusNoContent)
}

func (m *Controller) configHistory(w http.ResponseWriter, r *http.Request) {
	revs, err := m.Revisions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

func (m *Controller) runOne(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), manualCycleTimeout)
	defer cancel()
	m.appendLog("CYCLE: Manual cycle enqueued")
	res, err := m.Trigger(ctx)
	switch {
	case errors.Is(err, ErrQueueClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (m *Controller) lastResult(w http.ResponseWriter, r *http.Request) {
	res, ok := m.Last()
	if !ok {
		http.Error(w, "no cycle has run yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (m *Controller) trendList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Trend())
}

func (m *Controller) queueList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.queue.Pending())
}

func (m *Controller) logList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Logs())
}

type statusResponse struct {
	Mode             string   `json:"mode"`
	Enable           bool     `json:"enable"`
	Schedule         string   `json:"schedule"`
	Cycles           int      `json:"cycles"`
	Running          bool     `json:"running"`
	Queued           int      `json:"queued"`
	LastCycle        string   `json:"last_cycle"`
	LastConsensus    string   `json:"last_consensus,omitempty"`
	InferenceEnabled bool     `json:"inference_enabled"`
	InferenceError   string   `json:"inference_error,omitempty"`
	Labels           []string `json:"labels,omitempty"`
}

func (m *Controller) status(w http.ResponseWriter, r *http.Request) {
	s, err := m.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := statusResponse{
		Mode:             s.Soil.Mode.String(),
		Enable:           s.Enable,
		Schedule:         s.Schedule,
		Running:          m.queue.Running(),
		Queued:           len(m.queue.Pending()),
		LastCycle:        "never",
		InferenceEnabled: m.bundle != nil,
	}
	if m.bundle != nil {
		resp.Labels = m.bundle.Labels()
	} else {
		resp.InferenceError = m.bundleErr.Error()
	}
	m.mu.Lock()
	resp.Cycles = m.cycles
	if m.last != nil {
		resp.LastCycle = humanize.Time(m.last.At)
		if m.last.Verdict != nil {
			resp.LastConsensus = m.last.Verdict.Consensus
		}
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Uptime      string  `json:"uptime"`
	MemoryUsed  string  `json:"memory_used"`
	MemoryTotal string  `json:"memory_total"`
	MemoryPct   float64 `json:"memory_used_percent"`
}

func (m *Controller) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Uptime: strings.TrimSpace(humanize.RelTime(m.started, time.Now(), "", ""))}
	vm, err := mem.VirtualMemoryWithContext(r.Context())
	if err != nil {
		m.c.LogError(module, "health: "+err.Error())
	} else {
		resp.MemoryUsed = humanize.Bytes(vm.Used)
		resp.MemoryTotal = humanize.Bytes(vm.Total)
		resp.MemoryPct = vm.UsedPercent
	}
	writeJSON(w, http.StatusOK, resp)
}
