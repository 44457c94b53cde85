package provider

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRateLimitHeaders extracts an absolute reset time (epoch ms) from the
// standard rate-limit headers. Checked in order: Retry-After (seconds or HTTP
// date), x-ratelimit-reset (epoch seconds or ms), x-ratelimit-reset-requests /
// x-ratelimit-reset-tokens (relative durations), anthropic-ratelimit-*-reset
// (RFC 3339). Returns 0 when nothing usable is present.
func ParseRateLimitHeaders(headers http.Header) int64 {
	now := time.Now()

	if v := headers.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return now.UnixMilli() + int64(seconds)*1000
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.UnixMilli()
		}
	}

	if v := headers.Get("x-ratelimit-reset"); v != "" {
		if reset := parseEpochReset(v, now); reset > 0 {
			return reset
		}
	}

	for _, name := range []string{"x-ratelimit-reset-requests", "x-ratelimit-reset-tokens"} {
		if v := headers.Get(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				return now.Add(d).UnixMilli()
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil && seconds > 0 {
				return now.UnixMilli() + int64(seconds*1000)
			}
		}
	}

	for _, name := range []string{
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-tokens-reset",
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
	} {
		if v := headers.Get(name); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil && t.After(now) {
				return t.UnixMilli()
			}
		}
	}

	return 0
}

// parseEpochReset interprets a numeric reset value that may be epoch seconds,
// epoch milliseconds, or a relative second count.
func parseEpochReset(v string, now time.Time) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}

	nowMs := now.UnixMilli()
	switch {
	case n > 1e12: // epoch ms
		if n > nowMs {
			return n
		}
	case n > 1e9: // epoch seconds
		if n*1000 > nowMs {
			return n * 1000
		}
	default: // relative seconds
		return nowMs + n*1000
	}
	return 0
}
