package logger

import (
	"log/slog"
	"strings"
)

// Closed vocabularies for the status, cache and outcome keys. Status keeps
// unknown values as given; cache and outcome drop them.
var (
	statusValues  = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled", "limited")
	cacheValues   = set("hit", "miss", "refresh")
	outcomeValues = set(
		"ok", "fail", "cancelled", "rate_limited",
		"booked", "reprompt", "advanced", "started", "resumed", "switched", "unavailable", "stale",
		"answered", "follow_up", "no_match",
	)
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// normalizeLevel maps slog level names to the upper-case form written to
// the log; "warning" is accepted as WARN.
func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "":
		return slog.LevelInfo.String()
	case "warning":
		return slog.LevelWarn.String()
	}
	return strings.ToUpper(level)
}

func lookup(vocab map[string]struct{}, raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}
	_, ok := vocab[v]
	return v, ok
}

func normalizeStatus(status string) (string, bool)   { return lookup(statusValues, status) }
func normalizeCache(cache string) (string, bool)     { return lookup(cacheValues, cache) }
func normalizeOutcome(outcome string) (string, bool) { return lookup(outcomeValues, outcome) }

// defaultKeyOrder puts the envelope first, then request identifiers, then
// domain keys. Keys not listed follow in sorted order.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"operation",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"dialog",
	"slot",
	"from_slot",
	"to_slot",
	"session_id",
	"session_key",
	"room_id",
	"employee_id",
	"booking_date",
	"time_from",
	"time_to",
	"qna_id",
	"score",
	"prompts",
	"messages",
	"backend",
	"count",
	"cache",
	"payload",
	"lang",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"ttl_ms",
	"err",
	"err_code",
	"cause",
	"caller",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"collapsed",
	"repeats",
	"pending_count",
}
