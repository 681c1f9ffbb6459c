// Package realtime is the persistent-connection channel to admins, couriers and customers.
package realtime

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

const defaultSendBuffer = 64

// HubMetrics are optional hub instruments.
type HubMetrics struct {
	Connections prometheus.Gauge
	Dropped     *prometheus.CounterVec
}

// Hub tracks connections and their rooms. Messages to one room are enqueued
// in call order into every member's buffer.
type Hub struct {
	logger     logx.Logger
	metrics    HubMetrics
	sendBuffer int

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

// NewHub creates an empty Hub. sendBuffer bounds each connection's queue.
func NewHub(logger logx.Logger, sendBuffer int, m HubMetrics) *Hub {
	if logger == nil {
		logger = logx.Nop()
	}
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Hub{
		logger:     logger,
		metrics:    m,
		sendBuffer: sendBuffer,
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics.Connections != nil {
		h.metrics.Connections.Inc()
	}
}

// unregister removes c from every room.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()
	if h.metrics.Connections != nil {
		h.metrics.Connections.Dec()
	}
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// roomsOf returns the client's rooms, sorted.
func (h *Hub) roomsOf(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Members reports how many connections are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends one message to every member of the given rooms. A connection
// in several of the rooms receives it once.
func (h *Hub) Broadcast(typ string, data any, rooms ...string) {
	msg, err := encode(typ, data)
	if err != nil {
		h.logger.Error("realtime: encode message failed", logx.String("type", typ), logx.Err(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	seen := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			if !c.enqueue(msg) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c, "overflow")
	}
}

// send delivers a message to one connection.
func (h *Hub) send(c *Client, typ string, data any) {
	msg, err := encode(typ, data)
	if err != nil {
		h.logger.Error("realtime: encode message failed", logx.String("type", typ), logx.Err(err))
		return
	}
	if !c.enqueue(msg) {
		h.drop(c, "overflow")
	}
}

// drop disconnects a client that cannot keep up. It must reconnect and re-fetch state.
func (h *Hub) drop(c *Client, reason string) {
	if h.metrics.Dropped != nil {
		h.metrics.Dropped.WithLabelValues(reason).Inc()
	}
	h.logger.Warn("realtime: dropping connection",
		logx.String("reason", reason),
		logx.String("remote", c.remote),
	)
	h.unregister(c)
	c.close()
}

func (h *Hub) countDropped(reason string) {
	if h.metrics.Dropped != nil {
		h.metrics.Dropped.WithLabelValues(reason).Inc()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
		c.close()
	}
}
