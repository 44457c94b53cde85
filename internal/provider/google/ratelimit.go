package google

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
)

var (
	// quotaResetDelay values look like "754.431528ms" or "1.5s".
	quotaDelayRe = regexp.MustCompile(`quotaResetDelay[:\s"]+(\d+(?:\.\d+)?)(ms|s)`)
	// quotaResetTimeStamp is an ISO timestamp.
	quotaTimestampRe = regexp.MustCompile(`quotaResetTimeStamp[:\s"]+(\d{4}-\d{2}-\d{2}T[\d:.]+Z?)`)
	// Bare duration forms: 1h23m45s, 23m45s, 45s.
	durationRe = regexp.MustCompile(`(\d+)h(\d+)m(\d+)s|(\d+)m(\d+)s|(\d+)s`)
	// Prose form: "retry after 30 seconds".
	retrySecondsRe = regexp.MustCompile(`retry\s+(?:after\s+)?(\d+)\s*(?:sec|s\b)`)
)

// parseRateLimit extracts the quota reset time from a 429 response, checking
// standard headers first and falling back to the error body's quota fields.
// Returns an absolute epoch-ms timestamp, or 0 when nothing usable is found.
func parseRateLimit(headers http.Header, body string) int64 {
	if resetAt := provider.ParseRateLimitHeaders(headers); resetAt > 0 {
		return resetAt
	}

	delayMs := parseResetFromBody(body)
	if delayMs <= 0 {
		return 0
	}
	// Sub-second resets are noise; wait at least 2s.
	if delayMs < 1000 {
		delayMs = 2000
	}
	return time.Now().UnixMilli() + delayMs
}

// parseResetFromBody returns a relative delay in milliseconds parsed from the
// error body, or 0.
func parseResetFromBody(msg string) int64 {
	if matches := quotaDelayRe.FindStringSubmatch(msg); len(matches) == 3 {
		value, _ := strconv.ParseFloat(matches[1], 64)
		if strings.ToLower(matches[2]) == "s" {
			return int64(value * 1000)
		}
		return int64(value)
	}

	if matches := quotaTimestampRe.FindStringSubmatch(msg); len(matches) == 2 {
		if t, err := time.Parse(time.RFC3339, matches[1]); err == nil {
			return t.UnixMilli() - time.Now().UnixMilli()
		}
	}

	if matches := durationRe.FindStringSubmatch(msg); len(matches) > 0 {
		switch {
		case matches[1] != "":
			hours, _ := strconv.Atoi(matches[1])
			minutes, _ := strconv.Atoi(matches[2])
			seconds, _ := strconv.Atoi(matches[3])
			return int64((hours*3600 + minutes*60 + seconds) * 1000)
		case matches[4] != "":
			minutes, _ := strconv.Atoi(matches[4])
			seconds, _ := strconv.Atoi(matches[5])
			return int64((minutes*60 + seconds) * 1000)
		case matches[6] != "":
			seconds, _ := strconv.Atoi(matches[6])
			return int64(seconds * 1000)
		}
	}

	if matches := retrySecondsRe.FindStringSubmatch(msg); len(matches) == 2 {
		seconds, _ := strconv.Atoi(matches[1])
		return int64(seconds * 1000)
	}

	return 0
}
