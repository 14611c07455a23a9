// Package hub fans captured console lines out to all subscribed clients.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/model"
)

// sendBuffer is the per-subscriber delivery channel capacity. A subscriber
// that falls this far behind is treated as dead and pruned, so one slow
// client can never stall the hub or the other clients.
const sendBuffer = 256

// Subscriber is one registered console client. Its delivery channel is owned
// by the hub on the send side and by a single client session on the receive
// side.
type Subscriber struct {
	id    uint64
	lines chan model.LogLine

	mu     sync.Mutex
	closed bool
}

// ID returns the subscriber's client id. Ids are monotonically increasing and
// never reused for the lifetime of the process.
func (s *Subscriber) ID() uint64 {
	return s.id
}

// Lines returns the receive end of the delivery channel. It is closed when
// the subscriber is unregistered.
func (s *Subscriber) Lines() <-chan model.LogLine {
	return s.lines
}

// send attempts a non-blocking delivery. It reports failure when the
// subscriber is closed or its channel is full.
func (s *Subscriber) send(line model.LogLine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.lines <- line:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.lines)
}

// Hub owns the subscriber table and broadcasts every console line to all
// registered subscribers.
type Hub struct {
	log *zap.SugaredLogger

	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]*Subscriber
}

// New creates an empty Hub.
func New(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:         log,
		subscribers: make(map[uint64]*Subscriber),
	}
}

// Register allocates the next client id, creates a fresh delivery channel,
// and returns the subscriber. Safe against concurrent registration and
// broadcast.
func (h *Hub) Register() *Subscriber {
	h.mu.Lock()
	h.nextID++
	sub := &Subscriber{
		id:    h.nextID,
		lines: make(chan model.LogLine, sendBuffer),
	}
	h.subscribers[sub.id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.log.Infow("client connected", "clientID", sub.id, "clients", count)
	return sub
}

// Unregister removes the subscriber and closes its delivery channel. It is
// idempotent.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		sub.close()
		h.log.Infow("client disconnected", "clientID", id, "clients", count)
	}
}

// Broadcast delivers line to every registered subscriber. Subscribers whose
// delivery fails are unregistered after the sweep; the failure is invisible
// to the remaining clients. The subscriber list is copied up front so the
// table lock is never held across deliveries.
func (h *Hub) Broadcast(line model.LogLine) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var failed []uint64
	for _, sub := range subs {
		if !sub.send(line) {
			failed = append(failed, sub.id)
		}
	}
	for _, id := range failed {
		h.log.Warnw("dropping client after failed delivery", "clientID", id)
		h.Unregister(id)
	}
}

// Run drains the supervisor's outbound channel and broadcasts each line. A
// single Run loop is the only broadcast caller, which preserves the relative
// line order seen by every subscriber.
func (h *Hub) Run(ctx context.Context, lines <-chan model.LogLine) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			h.Broadcast(line)
		}
	}
}

// ClientCount returns the number of registered subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Has reports whether a client id is currently registered.
func (h *Hub) Has(id uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subscribers[id]
	return ok
}

// Close unregisters every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[uint64]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
