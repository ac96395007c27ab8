// Package live delivers change notifications to long-lived subscribers.
// A notification carries no payload: subscribers reload their snapshot.
package live

import (
	"sync"

	"github.com/google/uuid"
)

// Publisher announces that data behind the given topics changed.
type Publisher interface {
	Publish(topics ...string)
}

func ChatsTopic(userID uuid.UUID) string    { return "chats:" + userID.String() }
func MessagesTopic(chatID uuid.UUID) string { return "messages:" + chatID.String() }
func RequestsTopic(userID uuid.UUID) string { return "requests:" + userID.String() }
func FriendsTopic(userID uuid.UUID) string  { return "friends:" + userID.String() }

// Hub fans topic notifications out to in-process subscriptions.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	n    int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives a signal on C after any of its topics is published.
// Signals coalesce: several publishes before a receive yield one signal.
type Subscription struct {
	C <-chan struct{}

	c      chan struct{}
	hub    *Hub
	topics []string
	once   sync.Once
}

func (h *Hub) Subscribe(topics ...string) *Subscription {
	c := make(chan struct{}, 1)
	s := &Subscription{C: c, c: c, hub: h, topics: topics}

	h.mu.Lock()
	for _, t := range topics {
		set, ok := h.subs[t]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[t] = set
		}
		set[s] = struct{}{}
	}
	h.n++
	h.mu.Unlock()
	return s
}

// Publish signals every subscription on topics. It never blocks.
func (h *Hub) Publish(topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, t := range topics {
		for s := range h.subs[t] {
			select {
			case s.c <- struct{}{}:
			default:
			}
		}
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Close detaches the subscription. Other subscriptions on the same topics are
// unaffected. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, t := range s.topics {
			if set, ok := h.subs[t]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, t)
				}
			}
		}
		h.n--
	})
}
