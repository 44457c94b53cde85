// Package account handles the multi-provider account pool: persistence,
// rate-limit bookkeeping, and selection strategies.
package account

import (
	"encoding/json"
	"time"
)

// Account represents a single upstream account, uniquely identified by email
// within the pool.
type Account struct {
	Email             string         `json:"email"`
	Provider          string         `json:"provider"`
	Enabled           bool           `json:"enabled"`
	RefreshToken      string         `json:"refreshToken,omitempty"`
	APIKey            string         `json:"apiKey,omitempty"`
	CustomAPIEndpoint string         `json:"customApiEndpoint,omitempty"`
	ProjectID         string         `json:"projectId,omitempty"`
	AddedAt           *time.Time     `json:"addedAt,omitempty"`
	LastUsed          *time.Time     `json:"lastUsed,omitempty"`
	IsInvalid         bool           `json:"isInvalid,omitempty"`
	InvalidReason     NullableString `json:"invalidReason,omitempty"`
	InvalidAt         *time.Time     `json:"invalidAt,omitempty"`

	// ModelRateLimits maps modelId -> reset time (epoch millis). Entries are
	// pruned once the reset passes.
	ModelRateLimits map[string]int64 `json:"modelRateLimits,omitempty"`

	// Global (model-independent) rate limit.
	RateLimitResetTime int64 `json:"rateLimitResetTime,omitempty"`
	IsRateLimited      bool  `json:"isRateLimited,omitempty"`

	// extra preserves fields written by other tools (subscription, quota, …)
	// so that a load/save cycle never drops them.
	extra map[string]json.RawMessage
}

var accountKnownKeys = []string{
	"email", "provider", "enabled", "refreshToken", "apiKey",
	"customApiEndpoint", "projectId", "addedAt", "lastUsed",
	"isInvalid", "invalidReason", "invalidAt",
	"modelRateLimits", "rateLimitResetTime", "isRateLimited",
}

// UnmarshalJSON decodes an account, defaulting enabled to true when the field
// is absent and capturing unknown fields for round-trip preservation.
func (a *Account) UnmarshalJSON(data []byte) error {
	type alias Account
	aux := alias{Enabled: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = Account(aux)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range accountKnownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.extra = raw
	}
	return nil
}

// MarshalJSON encodes the account including any preserved unknown fields.
func (a Account) MarshalJSON() ([]byte, error) {
	type alias Account
	data, err := json.Marshal(alias(a))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, a.extra)
}

// SelectionSettings configures the account selection strategy.
type SelectionSettings struct {
	Strategy string `json:"strategy,omitempty"`
}

// Settings contains pool-wide settings.
type Settings struct {
	CooldownDurationMs int64             `json:"cooldownDurationMs,omitempty"`
	MaxAccounts        int               `json:"maxAccounts,omitempty"`
	AccountSelection   SelectionSettings `json:"accountSelection,omitempty"`

	extra map[string]json.RawMessage
}

var settingsKnownKeys = []string{"cooldownDurationMs", "maxAccounts", "accountSelection"}

func (s *Settings) UnmarshalJSON(data []byte) error {
	type alias Settings
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Settings(aux)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range settingsKnownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

func (s Settings) MarshalJSON() ([]byte, error) {
	type alias Settings
	data, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, s.extra)
}

// ConfigFile represents the persisted account store.
type ConfigFile struct {
	Accounts    []Account `json:"accounts"`
	Settings    Settings  `json:"settings"`
	ActiveIndex int       `json:"activeIndex"`

	extra map[string]json.RawMessage
}

var configKnownKeys = []string{"accounts", "settings", "activeIndex"}

func (c *ConfigFile) UnmarshalJSON(data []byte) error {
	type alias ConfigFile
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = ConfigFile(aux)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range configKnownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		c.extra = raw
	}
	return nil
}

func (c ConfigFile) MarshalJSON() ([]byte, error) {
	type alias ConfigFile
	data, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, c.extra)
}

// mergeExtra splices preserved unknown fields back into a marshaled object.
func mergeExtra(obj []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return obj, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(obj, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
