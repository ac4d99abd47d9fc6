package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// RedisQuotaCounters keeps quota counters in Redis instead of the
	// configured storage backend.
	RedisQuotaCounters = "REDIS_QUOTA_COUNTERS"
	// EventRelay publishes domain events to Redis pub/sub and feeds the
	// WebSocket hub from there.
	EventRelay = "EVENT_RELAY"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	return parse(os.Getenv("FLAG_" + strings.ToUpper(name)))
}

// Snapshot returns the state of every known flag, for startup logs
func Snapshot() map[string]bool {
	return map[string]bool{
		RedisQuotaCounters: Enabled(RedisQuotaCounters),
		EventRelay:         Enabled(EventRelay),
	}
}

func parse(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
