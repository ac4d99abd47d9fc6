package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/infrastructure/redis"
)

const (
	quotaKeyPrefix  = "grc:quota:"
	quotaResetIndex = "grc:quota:resets"
)

// addUsageScript reads, clamps and writes the counter in one server-side step.
var addUsageScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'usage') or '0')
local nxt = cur + tonumber(ARGV[1])
if nxt < 0 then nxt = 0 end
redis.call('HSET', KEYS[1], 'usage', tostring(nxt), 'updated', ARGV[2])
return {tostring(cur), tostring(nxt)}
`)

var resetUsageScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'usage', '0', 'updated', ARGV[1])
if ARGV[2] == '' then
  redis.call('HDEL', KEYS[1], 'reset')
  redis.call('ZREM', KEYS[2], KEYS[1])
else
  redis.call('HSET', KEYS[1], 'reset', ARGV[2])
  redis.call('ZADD', KEYS[2], ARGV[2], KEYS[1])
end
return 1
`)

// RedisQuotaUsageRepository keeps quota counters in Redis hashes, one per
// (tenant, quota type). Reset dates are indexed in a sorted set so the reset
// worker can find due counters without scanning.
type RedisQuotaUsageRepository struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewRedisQuotaUsageRepository creates a new Redis-backed quota repository
func NewRedisQuotaUsageRepository(client *redis.Client, logger *slog.Logger) *RedisQuotaUsageRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQuotaUsageRepository{redis: client, logger: logger}
}

func quotaRedisKey(tenantID string, quotaType domain.QuotaType) string {
	return quotaKeyPrefix + tenantID + ":" + string(quotaType)
}

func parseQuotaRedisKey(key string) (string, domain.QuotaType, bool) {
	rest, ok := strings.CutPrefix(key, quotaKeyPrefix)
	if !ok {
		return "", "", false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], domain.QuotaType(rest[i+1:]), true
}

// Get returns the counter or a zero usage when none exists
func (r *RedisQuotaUsageRepository) Get(ctx context.Context, tenantID string, quotaType domain.QuotaType) (*domain.QuotaUsage, error) {
	fields, err := r.redis.HGetAll(ctx, quotaRedisKey(tenantID, quotaType))
	if err != nil {
		return nil, fmt.Errorf("failed to get quota usage: %w", err)
	}
	return usageFromHash(tenantID, quotaType, fields)
}

// List returns every counter of a tenant
func (r *RedisQuotaUsageRepository) List(ctx context.Context, tenantID string) ([]*domain.QuotaUsage, error) {
	keys, err := r.redis.ScanKeys(ctx, quotaKeyPrefix+tenantID+":*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan quota keys: %w", err)
	}
	out := make([]*domain.QuotaUsage, 0, len(keys))
	for _, key := range keys {
		tid, qt, ok := parseQuotaRedisKey(key)
		if !ok || tid != tenantID {
			continue
		}
		u, err := r.Get(ctx, tid, qt)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuotaType < out[j].QuotaType })
	return out, nil
}

// Add applies delta atomically via a Lua script
func (r *RedisQuotaUsageRepository) Add(ctx context.Context, tenantID string, quotaType domain.QuotaType, delta float64, now time.Time) (float64, float64, error) {
	res, err := r.redis.Run(ctx, addUsageScript,
		[]string{quotaRedisKey(tenantID, quotaType)},
		strconv.FormatFloat(delta, 'f', -1, 64), now.UnixMilli(),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to add quota usage: %w", err)
	}
	pair, ok := res.([]any)
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("unexpected script result %v", res)
	}
	before, err := parseFloatReply(pair[0])
	if err != nil {
		return 0, 0, err
	}
	after, err := parseFloatReply(pair[1])
	if err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

// Reset zeroes the counter and re-indexes its reset date
func (r *RedisQuotaUsageRepository) Reset(ctx context.Context, tenantID string, quotaType domain.QuotaType, next *time.Time, now time.Time) error {
	nextArg := ""
	if next != nil {
		nextArg = strconv.FormatInt(next.UnixMilli(), 10)
	}
	_, err := r.redis.Run(ctx, resetUsageScript,
		[]string{quotaRedisKey(tenantID, quotaType), quotaResetIndex},
		now.UnixMilli(), nextArg,
	)
	if err != nil {
		return fmt.Errorf("failed to reset quota usage: %w", err)
	}
	return nil
}

// DueForReset reads the reset index up to now
func (r *RedisQuotaUsageRepository) DueForReset(ctx context.Context, now time.Time) ([]*domain.QuotaUsage, error) {
	keys, err := r.redis.ZRangeByScore(ctx, quotaResetIndex, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
	if err != nil {
		return nil, fmt.Errorf("failed to read reset index: %w", err)
	}
	var out []*domain.QuotaUsage
	for _, key := range keys {
		tid, qt, ok := parseQuotaRedisKey(key)
		if !ok {
			r.logger.Warn("skipping malformed quota key", slog.String("key", key))
			continue
		}
		u, err := r.Get(ctx, tid, qt)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func usageFromHash(tenantID string, quotaType domain.QuotaType, fields map[string]string) (*domain.QuotaUsage, error) {
	u := &domain.QuotaUsage{TenantID: tenantID, QuotaType: quotaType}
	if v, ok := fields["usage"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt usage for %s/%s: %w", tenantID, quotaType, err)
		}
		u.CurrentUsage = f
	}
	if v, ok := fields["updated"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			u.LastUpdated = time.UnixMilli(ms).UTC()
		}
	}
	if v, ok := fields["reset"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.UnixMilli(ms).UTC()
			u.ResetDate = &t
		}
	}
	return u, nil
}

func parseFloatReply(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected reply type %T", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric reply %q: %w", s, err)
	}
	return f, nil
}
