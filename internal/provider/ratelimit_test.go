package provider

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders_RetryAfterSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "30")

	reset := ParseRateLimitHeaders(h)
	want := time.Now().Add(30 * time.Second).UnixMilli()
	if reset < want-1000 || reset > want+1000 {
		t.Errorf("reset = %d, want ~%d", reset, want)
	}
}

func TestParseRateLimitHeaders_RetryAfterHTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(2*time.Minute).UTC().Format(http.TimeFormat))

	reset := ParseRateLimitHeaders(h)
	want := time.Now().Add(2 * time.Minute).UnixMilli()
	if reset < want-2000 || reset > want+2000 {
		t.Errorf("reset = %d, want ~%d", reset, want)
	}
}

func TestParseRateLimitHeaders_EpochSeconds(t *testing.T) {
	h := http.Header{}
	epoch := time.Now().Add(time.Minute).Unix()
	h.Set("x-ratelimit-reset", fmt.Sprintf("%d", epoch))

	reset := ParseRateLimitHeaders(h)
	if reset != epoch*1000 {
		t.Errorf("reset = %d, want %d", reset, epoch*1000)
	}
}

func TestParseRateLimitHeaders_RelativeSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-reset", "45")

	reset := ParseRateLimitHeaders(h)
	want := time.Now().Add(45 * time.Second).UnixMilli()
	if reset < want-1000 || reset > want+1000 {
		t.Errorf("reset = %d, want ~%d", reset, want)
	}
}

func TestParseRateLimitHeaders_ResetRequestsDuration(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-reset-requests", "1m30s")

	reset := ParseRateLimitHeaders(h)
	want := time.Now().Add(90 * time.Second).UnixMilli()
	if reset < want-1000 || reset > want+1000 {
		t.Errorf("reset = %d, want ~%d", reset, want)
	}
}

func TestParseRateLimitHeaders_AnthropicRFC3339(t *testing.T) {
	h := http.Header{}
	at := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	h.Set("anthropic-ratelimit-requests-reset", at.Format(time.RFC3339))

	reset := ParseRateLimitHeaders(h)
	if reset != at.UnixMilli() {
		t.Errorf("reset = %d, want %d", reset, at.UnixMilli())
	}
}

func TestParseRateLimitHeaders_Empty(t *testing.T) {
	if reset := ParseRateLimitHeaders(http.Header{}); reset != 0 {
		t.Errorf("reset = %d, want 0 for no headers", reset)
	}
}

func TestParseRateLimitHeaders_PastDateIgnored(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-reset", fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix()))
	if reset := ParseRateLimitHeaders(h); reset != 0 {
		t.Errorf("reset = %d, want 0 for a past epoch", reset)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("copilot"); err == nil {
		t.Error("empty registry should not resolve copilot")
	}
	if got := len(r.All()); got != 0 {
		t.Errorf("All() = %d adapters, want 0", got)
	}
}
