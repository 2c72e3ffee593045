package server

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/santopaul/dicomweb/pkg/batch"
)

// Event is the wire form of a status update pushed to WebSocket clients.
type Event struct {
	Type  string          `json:"type"`
	JobID string          `json:"job_id,omitempty"`
	Job   *batch.JobView  `json:"job,omitempty"`
	File  *batch.FileView `json:"file,omitempty"`
}

const (
	eventFileUpdate  = "file_update"
	eventJobUpdate   = "job_update"
	eventJobComplete = "job_complete"
)

// Hub fans processing events out to the connected WebSocket clients. Clients
// that fail a write are dropped; slow consumers must not stall processing.
type Hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates an empty hub.
func NewHub(handler slog.Handler) *Hub {
	return &Hub{
		logger:  slog.New(handler).With(slog.String("component", "hub")),
		clients: make(map[*websocket.Conn]bool),
	}
}

// Register adds a client connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", slog.Int("clients", n))
}

// Unregister removes and closes a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends one event to every connected client.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("dropping websocket client after failed write", slog.String("error", err.Error()))
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

// BroadcastHooks adapts the hub to the processing hook interface so every
// status change reaches connected clients as it happens.
type BroadcastHooks struct {
	hub *Hub
}

// NewBroadcastHooks wires a hub into a hook implementation.
func NewBroadcastHooks(hub *Hub) *BroadcastHooks {
	return &BroadcastHooks{hub: hub}
}

// OnFileStatusUpdate implements batch.Hooks.
func (b *BroadcastHooks) OnFileStatusUpdate(jobID string, file batch.FileView) error {
	b.hub.Broadcast(Event{Type: eventFileUpdate, JobID: jobID, File: &file})
	return nil
}

// OnJobStatusUpdate implements batch.Hooks.
func (b *BroadcastHooks) OnJobStatusUpdate(job batch.JobView) error {
	b.hub.Broadcast(Event{Type: eventJobUpdate, JobID: job.ID, Job: &job})
	return nil
}

// OnJobComplete implements batch.Hooks.
func (b *BroadcastHooks) OnJobComplete(job batch.JobView) error {
	b.hub.Broadcast(Event{Type: eventJobComplete, JobID: job.ID, Job: &job})
	return nil
}

var _ batch.Hooks = (*BroadcastHooks)(nil)
