// Package controller holds the host services shared by subsystems: the
// settings store, error log and telemetry sinks.
package controller

import (
	"log"
	"sync"
	"time"

	"github.com/pepper-guardian/guardian/controller/storage"
	"github.com/pepper-guardian/guardian/controller/telemetry"
)

const maxErrors = 100

// Controller is what a subsystem needs from its host.
type Controller interface {
	Store() storage.Store
	LogError(module, msg string)
	Metrics() *telemetry.Metrics
	Publisher() telemetry.Publisher
}

type Error struct {
	Time    time.Time `json:"time"`
	Module  string    `json:"module"`
	Message string    `json:"message"`
}

// Host implements Controller.
type Host struct {
	store     storage.Store
	metrics   *telemetry.Metrics
	publisher telemetry.Publisher
	mu        sync.Mutex
	errors    []Error
}

// New returns the host services. A nil publisher discards payloads.
func New(store storage.Store, metrics *telemetry.Metrics, publisher telemetry.Publisher) *Host {
	if publisher == nil {
		publisher = telemetry.NoopPublisher()
	}
	return &Host{store: store, metrics: metrics, publisher: publisher}
}

func (h *Host) Store() storage.Store           { return h.store }
func (h *Host) Metrics() *telemetry.Metrics    { return h.metrics }
func (h *Host) Publisher() telemetry.Publisher { return h.publisher }

func (h *Host) LogError(module, msg string) {
	log.Printf("ERROR: %s: %s", module, msg)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, Error{Time: time.Now(), Module: module, Message: msg})
	if len(h.errors) > maxErrors {
		h.errors = h.errors[len(h.errors)-maxErrors:]
	}
}

// Errors returns the retained errors, oldest first.
func (h *Host) Errors() []Error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Error(nil), h.errors...)
}
