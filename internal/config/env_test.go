package config

import (
	"testing"
	"time"
)

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envKey       string
		envValue     string
		defaultValue int
		expected     int
	}{
		{"returns default when env not set", "TEST_INT_UNSET", "", 42, 42},
		{"returns parsed int when env is set", "TEST_INT_SET", "100", 42, 100},
		{"returns default when env is invalid", "TEST_INT_INVALID", "not-a-number", 42, 42},
		{"handles negative numbers", "TEST_INT_NEGATIVE", "-5", 42, -5},
		{"handles zero", "TEST_INT_ZERO", "0", 42, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}

			result := GetEnvInt(tt.envKey, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("GetEnvInt(%q, %d) = %d, want %d", tt.envKey, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envKey       string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{"returns default when env not set", "TEST_BOOL_UNSET", "", false, false},
		{"returns true for 'true'", "TEST_BOOL_TRUE", "true", false, true},
		{"returns true for '1'", "TEST_BOOL_ONE", "1", false, true},
		{"returns true for 'yes'", "TEST_BOOL_YES", "yes", false, true},
		{"returns false for 'false'", "TEST_BOOL_FALSE", "false", true, false},
		{"returns false for '0'", "TEST_BOOL_ZERO", "0", true, false},
		{"is case insensitive", "TEST_BOOL_CASE", "TRUE", false, true},
		{"returns default for invalid value", "TEST_BOOL_INVALID", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}

			result := GetEnvBool(tt.envKey, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("GetEnvBool(%q, %v) = %v, want %v", tt.envKey, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		envKey       string
		envValue     string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{"returns default when env not set", "TEST_DUR_UNSET", "", 10 * time.Second, 10 * time.Second},
		{"parses seconds", "TEST_DUR_SEC", "30s", 10 * time.Second, 30 * time.Second},
		{"parses minutes", "TEST_DUR_MIN", "5m", 10 * time.Second, 5 * time.Minute},
		{"parses complex duration", "TEST_DUR_COMPLEX", "1h30m", 10 * time.Second, 90 * time.Minute},
		{"returns default for invalid value", "TEST_DUR_INVALID", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}

			result := GetEnvDuration(tt.envKey, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("GetEnvDuration(%q, %v) = %v, want %v", tt.envKey, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvStringSlice(t *testing.T) {
	t.Run("parses comma-separated values with whitespace", func(t *testing.T) {
		t.Setenv("TEST_SLICE_CSV", " a , b , c ")

		result := GetEnvStringSlice("TEST_SLICE_CSV", nil)
		want := []string{"a", "b", "c"}
		if len(result) != len(want) {
			t.Fatalf("length = %d, want %d", len(result), len(want))
		}
		for i := range want {
			if result[i] != want[i] {
				t.Errorf("[%d] = %q, want %q", i, result[i], want[i])
			}
		}
	})

	t.Run("returns default when env not set", func(t *testing.T) {
		result := GetEnvStringSlice("TEST_SLICE_UNSET", []string{"a"})
		if len(result) != 1 || result[0] != "a" {
			t.Errorf("result = %v, want [a]", result)
		}
	})
}

func TestGetPort(t *testing.T) {
	t.Run("returns default port when env not set", func(t *testing.T) {
		t.Setenv("PORT", "")
		if got := GetPort(); got != DefaultPort {
			t.Errorf("GetPort() = %d, want %d", got, DefaultPort)
		}
	})

	t.Run("returns env var when set", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		if got := GetPort(); got != 9000 {
			t.Errorf("GetPort() = %d, want 9000", got)
		}
	})
}

func TestGetBindAddress(t *testing.T) {
	t.Setenv("BIND_ADDRESS", "")
	if got := GetBindAddress(); got != "0.0.0.0" {
		t.Errorf("GetBindAddress() = %q, want 0.0.0.0", got)
	}

	t.Setenv("BIND_ADDRESS", "127.0.0.1")
	if got := GetBindAddress(); got != "127.0.0.1" {
		t.Errorf("GetBindAddress() = %q, want 127.0.0.1", got)
	}
}

func TestValidateRequiredEnvVars(t *testing.T) {
	t.Run("returns error when PROXY_API_KEY not set", func(t *testing.T) {
		t.Setenv("PROXY_API_KEY", "")
		if err := ValidateRequiredEnvVars(); err == nil {
			t.Error("ValidateRequiredEnvVars() returned nil, want error")
		}
	})

	t.Run("returns nil when PROXY_API_KEY is set", func(t *testing.T) {
		t.Setenv("PROXY_API_KEY", "some-key")
		if err := ValidateRequiredEnvVars(); err != nil {
			t.Errorf("ValidateRequiredEnvVars() returned error: %v", err)
		}
	})
}

func TestGetCORSConfig(t *testing.T) {
	t.Run("returns defaults when env not set", func(t *testing.T) {
		t.Setenv("CORS_ENABLED", "")
		t.Setenv("CORS_ALLOW_ORIGIN", "")

		cfg := GetCORSConfig()
		if !cfg.Enabled {
			t.Error("CORS should be enabled by default")
		}
		if cfg.AllowOrigin != "*" {
			t.Errorf("AllowOrigin = %q, want *", cfg.AllowOrigin)
		}
	})

	t.Run("returns env values when set", func(t *testing.T) {
		t.Setenv("CORS_ENABLED", "false")
		t.Setenv("CORS_ALLOW_ORIGIN", "https://example.com")

		cfg := GetCORSConfig()
		if cfg.Enabled {
			t.Error("CORS should be disabled")
		}
		if cfg.AllowOrigin != "https://example.com" {
			t.Errorf("AllowOrigin = %q, want https://example.com", cfg.AllowOrigin)
		}
	})
}

func TestGetServerTimeouts(t *testing.T) {
	t.Run("returns defaults when env not set", func(t *testing.T) {
		t.Setenv("READ_TIMEOUT_SEC", "")
		t.Setenv("WRITE_TIMEOUT_SEC", "")
		t.Setenv("IDLE_TIMEOUT_SEC", "")

		timeouts := GetServerTimeouts()
		if timeouts.ReadTimeout != 30*time.Second {
			t.Errorf("ReadTimeout = %v, want %v", timeouts.ReadTimeout, 30*time.Second)
		}
		if timeouts.WriteTimeout != 5*time.Minute {
			t.Errorf("WriteTimeout = %v, want %v", timeouts.WriteTimeout, 5*time.Minute)
		}
		if timeouts.IdleTimeout != 120*time.Second {
			t.Errorf("IdleTimeout = %v, want %v", timeouts.IdleTimeout, 120*time.Second)
		}
	})

	t.Run("returns env values when set", func(t *testing.T) {
		t.Setenv("READ_TIMEOUT_SEC", "60")
		t.Setenv("WRITE_TIMEOUT_SEC", "600")
		t.Setenv("IDLE_TIMEOUT_SEC", "240")

		timeouts := GetServerTimeouts()
		if timeouts.ReadTimeout != 60*time.Second {
			t.Errorf("ReadTimeout = %v, want %v", timeouts.ReadTimeout, 60*time.Second)
		}
		if timeouts.WriteTimeout != 600*time.Second {
			t.Errorf("WriteTimeout = %v, want %v", timeouts.WriteTimeout, 600*time.Second)
		}
		if timeouts.IdleTimeout != 240*time.Second {
			t.Errorf("IdleTimeout = %v, want %v", timeouts.IdleTimeout, 240*time.Second)
		}
	})
}

func TestGetSelectionStrategy(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{"defaults to hybrid", "", StrategyHybrid},
		{"accepts sticky", StrategySticky, StrategySticky},
		{"accepts round-robin", StrategyRoundRobin, StrategyRoundRobin},
		{"rejects unknown values", "fastest", StrategyHybrid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ACCOUNT_SELECTION_STRATEGY", tt.envValue)
			if got := GetSelectionStrategy(); got != tt.expected {
				t.Errorf("GetSelectionStrategy() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetEnableFallback(t *testing.T) {
	t.Setenv("ENABLE_FALLBACK", "")
	if GetEnableFallback() {
		t.Error("fallback should be disabled by default")
	}

	t.Setenv("ENABLE_FALLBACK", "true")
	if !GetEnableFallback() {
		t.Error("ENABLE_FALLBACK=true should enable fallback")
	}
}
