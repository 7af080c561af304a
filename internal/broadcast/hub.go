// Package broadcast fans state changes out to real-time subscribers.
//
// The Hub is the process-wide subscription registry. A subscription exists from
// Subscribe until Unsubscribe (called when the client disconnects) and is never
// persisted: after a reconnect or restart, clients subscribe again.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/model"
)

const (
	ManagersTopic  = "managers"
	LocationsTopic = "locations"
)

func WorkerTopic(workerID string) string {
	return "worker:" + workerID
}

// Publisher delivers an event to every subscriber of topic.
type Publisher interface {
	Publish(topic string, ev model.Event)
}

// Emit routes ev to its topics: worker events go to the owner and to managers,
// location events to every connection.
func Emit(p Publisher, ev model.Event) {
	if ev.Type == model.EventLocationsUpdated {
		p.Publish(LocationsTopic, ev)
		return
	}
	if ev.WorkerID != "" {
		p.Publish(WorkerTopic(ev.WorkerID), ev)
	}
	p.Publish(ManagersTopic, ev)
}

type Subscription struct {
	ID     string
	ch     chan model.Event
	topics map[string]struct{}
	closed bool
}

// Events yields the subscription's events in publish order. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan model.Event {
	return s.ch
}

type Hub struct {
	mu      sync.Mutex
	topics  map[string]map[string]*Subscription
	buffer  int
	metrics *metrics.Metrics
}

func NewHub(buffer int, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		topics:  make(map[string]map[string]*Subscription),
		buffer:  buffer,
		metrics: m,
	}
}

func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		ch:     make(chan model.Event, h.buffer),
		topics: make(map[string]struct{}),
	}
	h.mu.Lock()
	for _, t := range topics {
		h.addLocked(sub, t)
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
	return sub
}

// AddTopic subscribes an existing subscription to one more topic. It is a no-op after Unsubscribe.
func (h *Hub) AddTopic(sub *Subscription, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !sub.closed {
		h.addLocked(sub, topic)
	}
}

func (h *Hub) RemoveTopic(sub *Subscription, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub, topic)
}

// Unsubscribe purges sub from every topic and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if sub.closed {
		h.mu.Unlock()
		return
	}
	for t := range sub.topics {
		h.removeLocked(sub, t)
	}
	sub.closed = true
	close(sub.ch)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.Subscribers.Dec()
	}
}

// Publish queues ev for every subscriber of topic without blocking. A subscriber whose
// queue is full misses the event; delivery is best-effort. Publishes are serialized,
// so each subscriber sees a topic's events in publish order.
func (h *Hub) Publish(topic string, ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- ev:
			if h.metrics != nil {
				h.metrics.BroadcastDelivered.Inc()
			}
		default:
			slog.Warn("subscriber queue full, event dropped", "subscription", sub.ID, "topic", topic, "event", ev.Type)
			if h.metrics != nil {
				h.metrics.BroadcastDropped.Inc()
			}
		}
	}
}

// Subscribers returns the number of subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

func (h *Hub) addLocked(sub *Subscription, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.ID] = sub
	sub.topics[topic] = struct{}{}
}

func (h *Hub) removeLocked(sub *Subscription, topic string) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(sub.topics, topic)
}
