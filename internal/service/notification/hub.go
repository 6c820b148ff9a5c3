package notification

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"webconf-backend/internal/domain"
	"webconf-backend/pkg/constants"
	"webconf-backend/pkg/logger"
	"webconf-backend/pkg/metrics"
)

// Listener receives the call events of one user.
// Implementations must be comparable (pointer types), the hub tells listeners apart with ==.
type Listener interface {
	UserID() string
	// ClientID identifies the client session behind the listener, empty when unknown
	ClientID() string
	Notify(event domain.CallEvent)
}

// Hub keeps per-user listener registrations and fans call events out to them
type Hub struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewHub creates a hub. Each listener invocation is abandoned after timeout.
func NewHub(timeout time.Duration, m *metrics.Metrics) *Hub {
	if timeout <= 0 {
		timeout = constants.DefaultDispatchTimeout
	}
	return &Hub{
		listeners: make(map[string][]Listener),
		timeout:   timeout,
		metrics:   m,
	}
}

// Register adds the listener for its user. Registering it again is a no-op.
func (h *Hub) Register(l Listener) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := l.UserID()
	for _, existing := range h.listeners[userID] {
		if existing == l {
			return false
		}
	}
	h.listeners[userID] = append(h.listeners[userID], l)
	h.metrics.SetListeners(h.countLocked())
	return true
}

// Unregister removes the listener. Unknown listeners are ignored.
func (h *Hub) Unregister(l Listener) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := l.UserID()
	current := h.listeners[userID]
	for i, existing := range current {
		if existing != l {
			continue
		}
		rest := make([]Listener, 0, len(current)-1)
		rest = append(rest, current[:i]...)
		rest = append(rest, current[i+1:]...)
		if len(rest) == 0 {
			delete(h.listeners, userID)
		} else {
			h.listeners[userID] = rest
		}
		h.metrics.SetListeners(h.countLocked())
		return true
	}
	return false
}

// Listeners returns a snapshot of the user's listeners in registration order
func (h *Hub) Listeners(userID string) []Listener {
	h.mu.RLock()
	defer h.mu.RUnlock()

	current := h.listeners[userID]
	if len(current) == 0 {
		return nil
	}
	snapshot := make([]Listener, len(current))
	copy(snapshot, current)
	return snapshot
}

// HasClient reports whether a listener of the user is bound to clientID
func (h *Hub) HasClient(userID, clientID string) bool {
	if clientID == "" {
		return false
	}
	for _, l := range h.Listeners(userID) {
		if l.ClientID() == clientID {
			return true
		}
	}
	return false
}

// Count returns the number of registered listeners
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, ls := range h.listeners {
		n += len(ls)
	}
	return n
}

// Dispatch delivers the event to every listener of the user, in registration order.
// Listeners registered after the call starts do not receive the event.
func (h *Hub) Dispatch(userID string, event domain.CallEvent) {
	for _, l := range h.Listeners(userID) {
		h.deliver(l, event)
	}
}

// deliver runs one listener with panic recovery and waits at most h.timeout for it
func (h *Hub) deliver(l Listener, event domain.CallEvent) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("Call listener failed",
					zap.String("user_id", l.UserID()),
					zap.String("client_id", l.ClientID()),
					zap.String("call_id", event.CallID),
					zap.String("panic", fmt.Sprint(r)))
				h.metrics.RecordDispatchFailure("panic")
			}
		}()
		l.Notify(event)
	}()

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case <-done:
		h.metrics.RecordDispatch(string(event.Type))
	case <-timer.C:
		logger.Warn("Call listener timed out",
			zap.String("user_id", l.UserID()),
			zap.String("client_id", l.ClientID()),
			zap.String("call_id", event.CallID),
			zap.Duration("timeout", h.timeout))
		h.metrics.RecordDispatchFailure("timeout")
	}
}

// Close drops every registration
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = make(map[string][]Listener)
	h.metrics.SetListeners(0)
}
