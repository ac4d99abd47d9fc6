package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/grccore/internal/reliability/retry"
)

// ChannelPrefix is prepended to the tenant id to form the pub/sub channel.
const ChannelPrefix = "grc:events:"

// Channel returns the pub/sub channel of a tenant.
func Channel(tenantID string) string { return ChannelPrefix + tenantID }

// Publisher is the subset of the Redis client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// RedisRelay publishes events to per-tenant Redis channels. Delivery is
// retried with backoff and guarded by a circuit breaker so a Redis outage
// degrades to dropped notifications instead of slow requests.
type RedisRelay struct {
	pub     Publisher
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
	logger  *slog.Logger
}

// NewRedisRelay creates a relay
func NewRedisRelay(pub Publisher, breaker *circuitbreaker.CircuitBreaker, retryCfg *retry.Config, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &RedisRelay{pub: pub, breaker: breaker, retry: retryCfg, logger: logger}
}

// Handle implements Handler
func (r *RedisRelay) Handle(ctx context.Context, e domain.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	channel := Channel(e.Tenant())
	return r.breaker.Execute(func() error {
		return retry.Run(ctx, r.retry, r.logger, "publish "+e.EventName(), func(ctx context.Context) error {
			return r.pub.Publish(ctx, channel, data)
		})
	})
}

// DecodeMessage parses a relayed payload and the tenant from its channel.
func DecodeMessage(channel, payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid event payload: %w", err)
	}
	if tenant, ok := strings.CutPrefix(channel, ChannelPrefix); ok && env.TenantID == "" {
		env.TenantID = tenant
	}
	return env, nil
}
