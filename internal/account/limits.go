package account

import (
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
)

// IsRateLimitedAt reports whether the account is rate-limited for modelID at
// the given instant. An empty modelID checks only the global limit.
func IsRateLimitedAt(acc *Account, modelID string, nowMs int64) bool {
	if acc.RateLimitResetTime > nowMs {
		return true
	}
	if modelID != "" {
		if reset, ok := acc.ModelRateLimits[modelID]; ok && reset > nowMs {
			return true
		}
	}
	return false
}

// IsAvailable reports whether the account can serve a request for modelID.
func IsAvailable(acc *Account, modelID string, nowMs int64) bool {
	return acc.Enabled && !acc.IsInvalid && !IsRateLimitedAt(acc, modelID, nowMs)
}

// IsAllRateLimited checks if no account can serve modelID right now.
func IsAllRateLimited(accounts []Account, modelID string) bool {
	if len(accounts) == 0 {
		return true
	}
	now := time.Now().UnixMilli()
	for i := range accounts {
		if IsAvailable(&accounts[i], modelID, now) {
			return false
		}
	}
	return true
}

// GetAvailableAccounts returns accounts usable for modelID right now.
func GetAvailableAccounts(accounts []Account, modelID string) []Account {
	available := make([]Account, 0)
	now := time.Now().UnixMilli()
	for i := range accounts {
		if IsAvailable(&accounts[i], modelID, now) {
			available = append(available, accounts[i])
		}
	}
	return available
}

// GetInvalidAccounts returns accounts that are marked as invalid.
func GetInvalidAccounts(accounts []Account) []Account {
	invalid := make([]Account, 0)
	for _, acc := range accounts {
		if acc.IsInvalid {
			invalid = append(invalid, acc)
		}
	}
	return invalid
}

// ClearExpiredLimits prunes rate-limit entries whose reset time has passed.
// Returns the number of entries cleared.
func ClearExpiredLimits(accounts []Account) int {
	now := time.Now().UnixMilli()
	cleared := 0

	for i := range accounts {
		acc := &accounts[i]
		for modelID, reset := range acc.ModelRateLimits {
			if reset <= now {
				delete(acc.ModelRateLimits, modelID)
				cleared++
				utils.Success("[AccountManager] Rate limit expired for: %s (model: %s)", acc.Email, modelID)
			}
		}
		if acc.IsRateLimited && acc.RateLimitResetTime <= now {
			acc.IsRateLimited = false
			acc.RateLimitResetTime = 0
			cleared++
			utils.Success("[AccountManager] Rate limit expired for: %s", acc.Email)
		}
	}

	return cleared
}

// ResetAllRateLimits clears all rate limits (optimistic retry after an
// exhausted wait).
func ResetAllRateLimits(accounts []Account) {
	for i := range accounts {
		accounts[i].ModelRateLimits = make(map[string]int64)
		accounts[i].IsRateLimited = false
		accounts[i].RateLimitResetTime = 0
	}
	utils.Warn("[AccountManager] Reset all rate limits for optimistic retry")
}

// MarkRateLimited records a rate limit for an account. With a modelID the
// limit is per-model, otherwise it is global. A zero resetMs falls back to the
// configured cooldown. Returns the effective reset time, or 0 if the account
// was not found.
func MarkRateLimited(accounts []Account, email string, resetMs int64, settings Settings, modelID string) int64 {
	for i := range accounts {
		if accounts[i].Email != email {
			continue
		}

		resetTime := resetMs
		if resetTime == 0 {
			cooldownMs := settings.CooldownDurationMs
			if cooldownMs <= 0 {
				cooldownMs = int64(config.DefaultCooldownDuration / time.Millisecond)
			}
			resetTime = time.Now().UnixMilli() + cooldownMs
		}

		if modelID != "" {
			if accounts[i].ModelRateLimits == nil {
				accounts[i].ModelRateLimits = make(map[string]int64)
			}
			accounts[i].ModelRateLimits[modelID] = resetTime
		} else {
			accounts[i].IsRateLimited = true
			accounts[i].RateLimitResetTime = resetTime
		}

		wait := time.Duration(resetTime-time.Now().UnixMilli()) * time.Millisecond
		utils.Warn("[AccountManager] Rate limited: %s (model: %s). Available in %s",
			email, modelID, utils.FormatDuration(wait))
		return resetTime
	}
	return 0
}

// MarkInvalid marks an account as invalid (credentials need re-authentication).
// Returns true if the account was found and marked.
func MarkInvalid(accounts []Account, email string, reason string) bool {
	for i := range accounts {
		if accounts[i].Email == email {
			now := time.Now()
			accounts[i].IsInvalid = true
			accounts[i].InvalidReason = NullableString(reason)
			accounts[i].InvalidAt = &now

			utils.Error("[AccountManager] Account INVALID: %s", email)
			utils.Error("[AccountManager]   Reason: %s", reason)
			utils.Error("[AccountManager]   Run 'accounts add' to re-authenticate this account")

			return true
		}
	}
	return false
}

// NotifySuccess records a successful request on an account: the per-model
// limit is cleared, a passed global limit is cleared, and a stale invalid flag
// is lifted. Returns true if any state changed.
func NotifySuccess(accounts []Account, email string, modelID string) bool {
	for i := range accounts {
		if accounts[i].Email != email {
			continue
		}
		acc := &accounts[i]
		changed := false

		if modelID != "" {
			if _, ok := acc.ModelRateLimits[modelID]; ok {
				delete(acc.ModelRateLimits, modelID)
				changed = true
			}
		}
		now := time.Now().UnixMilli()
		if acc.IsRateLimited && acc.RateLimitResetTime <= now {
			acc.IsRateLimited = false
			acc.RateLimitResetTime = 0
			changed = true
		}
		if acc.IsInvalid {
			acc.IsInvalid = false
			acc.InvalidReason = ""
			acc.InvalidAt = nil
			changed = true
		}
		return changed
	}
	return false
}

// GetMinWaitTimeMs returns the minimum time until any account becomes
// available for modelID, or 0 when one already is.
func GetMinWaitTimeMs(accounts []Account, modelID string) int64 {
	if !IsAllRateLimited(accounts, modelID) {
		return 0
	}

	now := time.Now().UnixMilli()
	var minWait int64 = -1
	var soonestEmail string

	for i := range accounts {
		acc := &accounts[i]
		if !acc.Enabled || acc.IsInvalid {
			continue
		}
		wait := accountWaitMs(acc, modelID, now)
		if wait > 0 && (minWait < 0 || wait < minWait) {
			minWait = wait
			soonestEmail = acc.Email
		}
	}

	if soonestEmail != "" {
		utils.Info("[AccountManager] Shortest wait: %s (account: %s)",
			utils.FormatDuration(time.Duration(minWait)*time.Millisecond), soonestEmail)
	}

	// No enabled, valid account carries a limit: the pool is exhausted for
	// reasons waiting cannot fix.
	if minWait < 0 {
		return 0
	}
	return minWait
}

// accountWaitMs returns how long until this account's limits for modelID
// lift, 0 if it is not limited.
func accountWaitMs(acc *Account, modelID string, nowMs int64) int64 {
	var until int64
	if acc.RateLimitResetTime > nowMs {
		until = acc.RateLimitResetTime
	}
	if modelID != "" {
		if reset, ok := acc.ModelRateLimits[modelID]; ok && reset > nowMs && reset > until {
			until = reset
		}
	}
	if until == 0 {
		return 0
	}
	return until - nowMs
}
