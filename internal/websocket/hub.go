// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package websocket pushes live events to connected browsers: freshly
// collected samples, report completion, and schedule run outcomes.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/metrics"
	"github.com/tomtom215/historiographus/internal/models"
)

// Message types for WebSocket communication
const (
	MessageTypeSamples         = "samples"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeReportCompleted = "report_completed"
	MessageTypeScheduleRun     = "schedule_run"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// all clients and returns ctx.Err(). Designed for suture supervision.
//
// Selection is priority ordered: shutdown first, then client lifecycle
// events, then broadcasts. Go's select picks randomly among ready
// channels; the explicit ordering keeps client state consistent before
// messages are delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
		}

		// Priority 3: broadcasts, or block until any event arrives
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// shutdown closes all clients and logs the reason. Context cancellation
// is the normal shutdown path, so it is not logged as an error.
func (h *Hub) shutdown(ctx context.Context) {
	count := h.GetClientCount()
	h.closeAllClients()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// broadcastToClients sends a message to all connected clients in ID
// order. Clients whose send buffers are full are dropped; a stalled
// browser must not block the rest.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WSConnectionsActive.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow websocket clients")
	}
}

// closeAllClients closes all connected clients in ID order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnectionsActive.Set(0)
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastSamples pushes freshly collected samples to all clients.
// Implements the collector's Broadcaster interface.
func (h *Hub) BroadcastSamples(samples []models.Sample) {
	message := Message{
		Type: MessageTypeSamples,
		Data: samples,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Msg("broadcast channel full, dropping samples message")
	}
}

// ReportCompletedData is the payload of a report_completed message.
type ReportCompletedData struct {
	Timestamp  string `json:"timestamp"`
	ReportID   string `json:"report_id"`
	Title      string `json:"title"`
	Format     string `json:"format"`
	DurationMs int64  `json:"duration_ms"`
}

// BroadcastReportCompleted notifies all clients that a report is ready
// for download.
func (h *Hub) BroadcastReportCompleted(record models.ReportRecord, duration time.Duration) {
	data := ReportCompletedData{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ReportID:   record.ID,
		Title:      record.Title,
		Format:     record.Format,
		DurationMs: duration.Milliseconds(),
	}

	message := Message{
		Type: MessageTypeReportCompleted,
		Data: data,
	}

	select {
	case h.broadcast <- message:
		logging.Info().Int("clients", h.GetClientCount()).Str("report_id", record.ID).Msg("broadcast report_completed")
	default:
		logging.Warn().Msg("broadcast channel full, dropping report_completed message")
	}
}

// ScheduleRunData is the payload of a schedule_run message.
type ScheduleRunData struct {
	Timestamp  string `json:"timestamp"`
	ScheduleID string `json:"schedule_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// BroadcastScheduleRun notifies all clients of a schedule run outcome.
func (h *Hub) BroadcastScheduleRun(schedule models.Schedule, status, errMsg string) {
	data := ScheduleRunData{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ScheduleID: schedule.ID,
		Name:       schedule.Name,
		Status:     status,
		Error:      errMsg,
	}

	message := Message{
		Type: MessageTypeScheduleRun,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Msg("broadcast channel full, dropping schedule_run message")
	}
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
