package clock

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
)

func TestBackoffForKind(t *testing.T) {
	tests := []struct {
		name string
		kind apperrors.Kind
		want time.Duration
	}{
		{"rate limit", apperrors.KindRateLimit, 30 * time.Second},
		{"model capacity", apperrors.KindModelCapacity, 15 * time.Second},
		{"server error", apperrors.KindServerError, 20 * time.Second},
		{"unknown", apperrors.KindUnknown, 60 * time.Second},
		{"unmapped kind falls back to unknown", apperrors.KindEmptyResponse, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackoffForKind(tt.kind); got != tt.want {
				t.Errorf("BackoffForKind(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestCapacityBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 30 * time.Second},
		{4, 60 * time.Second},
		{5, 60 * time.Second}, // past the schedule reuses the last tier
		{-1, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := CapacityBackoff(tt.attempt); got != tt.want {
			t.Errorf("CapacityBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClampWait(t *testing.T) {
	if got := ClampWait(500 * time.Millisecond); got != MinBackoff {
		t.Errorf("ClampWait(500ms) = %v, want %v", got, MinBackoff)
	}
	if got := ClampWait(10 * time.Second); got != 10*time.Second {
		t.Errorf("ClampWait(10s) = %v, want 10s", got)
	}
}

func TestRealSleepCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real{}.Sleep(ctx, 10*time.Second)
	if err == nil {
		t.Error("Sleep with cancelled context should return an error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Sleep did not return promptly after cancel, took %v", elapsed)
	}
}

func TestRealSleepZeroDuration(t *testing.T) {
	if err := (Real{}).Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) returned error: %v", err)
	}
}
