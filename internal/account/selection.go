package account

import (
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
)

// Selection is the outcome of a pick. Exactly one of these shapes holds:
// Account set (proceed), WaitMs > 0 (sleep and retry without consuming an
// attempt), or neither (nothing usable).
type Selection struct {
	Account  *Account
	NewIndex int
	WaitMs   int64
}

// PickNext selects an account for modelID using the configured strategy.
// The caller owns the pool lock; the returned pointer aliases the slice.
func PickNext(accounts []Account, activeIndex int, modelID string, settings Settings) Selection {
	if len(accounts) == 0 {
		return Selection{NewIndex: activeIndex}
	}
	if activeIndex < 0 || activeIndex >= len(accounts) {
		activeIndex = 0
	}

	strategy := settings.AccountSelection.Strategy
	if !config.IsValidStrategy(strategy) {
		strategy = config.GetSelectionStrategy()
	}

	switch strategy {
	case config.StrategySticky:
		return pickSticky(accounts, activeIndex, modelID)
	case config.StrategyRoundRobin:
		return pickRoundRobin(accounts, activeIndex, modelID)
	default:
		return pickHybrid(accounts, activeIndex, modelID)
	}
}

// pickSticky holds the active account while it is available and switches to
// the next usable account once it is limited. Only when nothing else is usable
// and the active account's wait is tolerable does it recommend sleeping.
func pickSticky(accounts []Account, activeIndex int, modelID string) Selection {
	now := time.Now().UnixMilli()

	current := &accounts[activeIndex]
	if IsAvailable(current, modelID, now) {
		touch(current)
		return Selection{Account: current, NewIndex: activeIndex}
	}

	if sel := advance(accounts, activeIndex, modelID, now); sel.Account != nil {
		return sel
	}

	// No other account is usable: hold position through a short limit on the
	// active account instead of failing.
	if current.Enabled && !current.IsInvalid {
		wait := accountWaitMs(current, modelID, now)
		if wait > 0 && wait <= config.MaxWaitBeforeError.Milliseconds() {
			utils.Info("[AccountManager] Sticky: waiting %s for %s",
				utils.FormatDuration(time.Duration(wait)*time.Millisecond), current.Email)
			return Selection{NewIndex: activeIndex, WaitMs: wait}
		}
	}

	return Selection{NewIndex: activeIndex}
}

// pickRoundRobin always advances past the active account.
func pickRoundRobin(accounts []Account, activeIndex int, modelID string) Selection {
	return advance(accounts, activeIndex, modelID, time.Now().UnixMilli())
}

// pickHybrid holds the active account while available but switches immediately
// once it is limited; it never waits while another account is usable.
func pickHybrid(accounts []Account, activeIndex int, modelID string) Selection {
	now := time.Now().UnixMilli()

	current := &accounts[activeIndex]
	if IsAvailable(current, modelID, now) {
		touch(current)
		return Selection{Account: current, NewIndex: activeIndex}
	}

	sel := advance(accounts, activeIndex, modelID, now)
	if sel.Account != nil {
		return sel
	}

	wait := GetMinWaitTimeMs(accounts, modelID)
	if wait > 0 && wait <= config.MaxWaitBeforeError.Milliseconds() {
		return Selection{NewIndex: activeIndex, WaitMs: wait}
	}
	return Selection{NewIndex: activeIndex}
}

// advance scans forward from activeIndex and returns the first available
// account, committing the new index.
func advance(accounts []Account, activeIndex int, modelID string, nowMs int64) Selection {
	for i := 1; i <= len(accounts); i++ {
		idx := (activeIndex + i) % len(accounts)
		acc := &accounts[idx]
		if IsAvailable(acc, modelID, nowMs) {
			touch(acc)
			utils.Info("[AccountManager] Using account: %s", acc.Email)
			return Selection{Account: acc, NewIndex: idx}
		}
	}
	return Selection{NewIndex: activeIndex}
}

func touch(acc *Account) {
	now := time.Now()
	acc.LastUsed = &now
}
