package google

import (
	"net/http"
	"testing"
	"time"
)

func TestParseResetFromBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
	}{
		{"quota delay ms", `{"quotaResetDelay": "754.431528ms"}`, 754},
		{"quota delay seconds", `{"quotaResetDelay": "1.5s"}`, 1500},
		{"duration hms", `quota exceeded, resets in 1h2m3s`, 3723000},
		{"duration ms", `resets in 2m30s`, 150000},
		{"duration s", `resets in 45s`, 45000},
		{"retry after prose", `please retry after 30 seconds`, 30000},
		{"nothing", `internal error`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseResetFromBody(tt.body); got != tt.want {
				t.Errorf("parseResetFromBody(%q) = %d, want %d", tt.body, got, tt.want)
			}
		})
	}
}

func TestParseResetFromBody_Timestamp(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC().Format(time.RFC3339)
	got := parseResetFromBody(`{"quotaResetTimeStamp": "` + future + `"}`)
	if got < 80000 || got > 91000 {
		t.Errorf("delay = %dms, want ~90s", got)
	}
}

func TestParseRateLimit_HeaderWins(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "60")

	before := time.Now().UnixMilli()
	got := parseRateLimit(h, `resets in 5s`)
	if got < before+59000 || got > before+61500 {
		t.Errorf("resetAt = %d, want ~60s from now (header over body)", got)
	}
}

func TestParseRateLimit_BodyFallback(t *testing.T) {
	before := time.Now().UnixMilli()
	got := parseRateLimit(http.Header{}, `{"quotaResetDelay": "5s"}`)
	if got < before+4500 || got > before+6000 {
		t.Errorf("resetAt = %d, want ~5s from now", got)
	}
}

func TestParseRateLimit_SubSecondFloor(t *testing.T) {
	before := time.Now().UnixMilli()
	got := parseRateLimit(http.Header{}, `{"quotaResetDelay": "300ms"}`)
	if got < before+1500 || got > before+3000 {
		t.Errorf("resetAt = %d, want the 2s floor applied", got)
	}
}

func TestParseRateLimit_Nothing(t *testing.T) {
	if got := parseRateLimit(http.Header{}, "boom"); got != 0 {
		t.Errorf("resetAt = %d, want 0", got)
	}
}
