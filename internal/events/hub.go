package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// Hub fans envelopes out to per-tenant stream listeners. Slow listeners
// lose events rather than block publishers.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[chan Envelope]struct{}
	buffer    int
	logger    *slog.Logger
}

// NewHub creates a hub whose listener channels hold buffer envelopes.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{listeners: make(map[string]map[chan Envelope]struct{}), buffer: buffer, logger: logger}
}

// Listen registers a listener for tenantID. The returned cancel func must be
// called to release it.
func (h *Hub) Listen(tenantID string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, h.buffer)
	h.mu.Lock()
	if h.listeners[tenantID] == nil {
		h.listeners[tenantID] = make(map[chan Envelope]struct{})
	}
	h.listeners[tenantID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners[tenantID], ch)
			if len(h.listeners[tenantID]) == 0 {
				delete(h.listeners, tenantID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers env to the tenant's listeners.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.listeners[env.TenantID] {
		select {
		case ch <- env:
		default:
			h.logger.Warn("event stream listener is full, dropping event",
				slog.String("tenant_id", env.TenantID),
				slog.String("event", env.Name),
			)
		}
	}
}

// Handle implements Handler for single-instance deployments.
func (h *Hub) Handle(_ context.Context, e domain.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}
	h.Broadcast(env)
	return nil
}

// ConsumeRedis feeds the hub from relayed events until ctx is done; used
// when several instances share the stream.
func (h *Hub) ConsumeRedis(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := DecodeMessage(msg.Channel, msg.Payload)
			if err != nil {
				h.logger.Warn("dropping malformed relayed event", slog.String("error", err.Error()))
				continue
			}
			h.Broadcast(env)
		}
	}
}
