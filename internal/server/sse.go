package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chriskuech/supplyside-sub001/internal/events"
)

const (
	// replayLimit bounds the events kept for Last-Event-ID replay.
	replayLimit = 1000

	sseKeepaliveInterval = 15 * time.Second
	sseClientBuffer      = 64
)

// sseEvent is one record event as delivered on the stream.
type sseEvent struct {
	ID     uint64
	Topic  string
	Tenant string
	Data   []byte
}

// Hub is an events.Publisher that streams each event to the connected
// clients of its tenant and then hands it to the next publisher. Recent
// events stay available for clients resuming with Last-Event-ID.
type Hub struct {
	next events.Publisher

	mu      sync.Mutex
	seq     uint64
	recent  []*sseEvent
	clients map[*sseClient]struct{}
}

type sseClient struct {
	tenant string
	topics []string // patterns; empty matches every topic
	ch     chan *sseEvent
}

// NewHub returns a Hub forwarding to next. A nil next publishes nowhere
// beyond the stream.
func NewHub(next events.Publisher) *Hub {
	if next == nil {
		next = &events.NoopPublisher{}
	}
	return &Hub{next: next, clients: make(map[*sseClient]struct{})}
}

func (h *Hub) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	h.broadcast(topic, events.TenantOf(event), payload)
	return h.next.Publish(ctx, topic, event)
}

func (h *Hub) Close() error {
	return h.next.Close()
}

func (h *Hub) broadcast(topic, tenant string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt := &sseEvent{ID: h.seq, Topic: topic, Tenant: tenant, Data: payload}
	h.recent = append(h.recent, evt)
	if over := len(h.recent) - replayLimit; over > 0 {
		h.recent = append(h.recent[:0:0], h.recent[over:]...)
	}

	for c := range h.clients {
		if !c.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// The client is behind; it drops the event.
		}
	}
}

func (h *Hub) subscribe(tenant string, topics []string) *sseClient {
	c := &sseClient{tenant: tenant, topics: topics, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns the retained events newer than lastID, oldest first.
func (h *Hub) eventsSince(lastID uint64) []*sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, evt := range h.recent {
		if evt.ID > lastID {
			return append([]*sseEvent(nil), h.recent[i:]...)
		}
	}
	return nil
}

func (c *sseClient) matches(evt *sseEvent) bool {
	if evt.Tenant != c.tenant {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, evt.Topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic with NATS wildcards:
// "*" is one token and a trailing ">" is one or more tokens.
func matchTopicPattern(pattern, topic string) bool {
	pat := strings.Split(pattern, ".")
	tok := strings.Split(topic, ".")
	for i, p := range pat {
		switch {
		case p == ">" && i == len(pat)-1:
			return len(tok) > i
		case i >= len(tok):
			return false
		case p != "*" && p != tok[i]:
			return false
		}
	}
	return len(pat) == len(tok)
}

// parseTopics splits a comma-separated topics parameter.
func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// handleEventStream streams the tenant's record events as Server-Sent
// Events. The topics parameter filters by pattern and a Last-Event-ID
// header replays retained events first.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	client := s.hub.subscribe(r.PathValue("tenant"), parseTopics(r.URL.Query().Get("topics")))
	defer s.hub.unsubscribe(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var sent uint64
	send := func(evt *sseEvent) {
		if evt.ID <= sent {
			return
		}
		sent = evt.ID
		fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
	}
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		for _, evt := range s.hub.eventsSince(lastID) {
			if client.matches(evt) {
				send(evt)
			}
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			send(evt)
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
		}
		flusher.Flush()
	}
}
