package config

import (
	"os"
	"strings"
	"time"
)

// DefaultPresenceCooldown is the hysteresis window applied to both the
// receiving pipeline and the standalone tracker.
const DefaultPresenceCooldown = 60 * time.Second

// PresenceCooldown returns the presence hysteresis window.
//
// Set via env:
// - RFID_PRESENCE_COOLDOWN_SECONDS=60
func PresenceCooldown() time.Duration {
	n := IntFromEnv("RFID_PRESENCE_COOLDOWN_SECONDS", 0)
	if n <= 0 {
		return DefaultPresenceCooldown
	}
	return time.Duration(n) * time.Second
}

// TagCacheTTL is how long resolved tag registrations stay in Redis.
// RFID_TAG_CACHE_TTL_SECONDS=0 disables the cache.
func TagCacheTTL() time.Duration {
	return time.Duration(IntFromEnv("RFID_TAG_CACHE_TTL_SECONDS", 300)) * time.Second
}

// EventSinks lists the broadcast sinks to enable.
//
// Set via env:
// - RFID_EVENT_SINKS="ws,pubsub,nats" (default "ws")
//
// Names are case-insensitive.
func EventSinks() []string {
	raw := strings.TrimSpace(os.Getenv("RFID_EVENT_SINKS"))
	if raw == "" {
		return []string{"ws"}
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnvBool parses the usual truthy spellings; anything else yields def.
func EnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}
