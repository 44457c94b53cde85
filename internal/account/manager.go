package account

import (
	"fmt"
	"sync"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// TokenCacheEntry represents a cached access token.
type TokenCacheEntry struct {
	Token       string
	ExtractedAt time.Time
}

// Manager is the account pool: the sole writer of account state, with
// per-email token and project caches. All mutations are serialized through
// its mutex and persisted best-effort.
type Manager struct {
	mu           sync.RWMutex
	accounts     []Account
	currentIndex int
	settings     Settings
	storage      *Storage
	initialized  bool

	// Per-account caches
	tokenCache   map[string]TokenCacheEntry // email -> token entry
	projectCache map[string]string          // email -> projectId

	// Failure bookkeeping (in-memory only)
	consecutiveFailures map[string]int   // email -> count
	lastLimitMark       map[string]int64 // email|model -> last mark (epoch ms)
}

// NewManager creates a new account pool backed by the given config path
// (empty for the default location).
func NewManager(configPath string) *Manager {
	return &Manager{
		storage:             NewStorage(configPath),
		tokenCache:          make(map[string]TokenCacheEntry),
		projectCache:        make(map[string]string),
		consecutiveFailures: make(map[string]int),
		lastLimitMark:       make(map[string]int64),
	}
}

// Initialize loads the account configuration.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	cfg, err := m.storage.Load()
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	m.accounts = cfg.Accounts
	m.settings = cfg.Settings
	m.currentIndex = cfg.ActiveIndex
	if m.settings.AccountSelection.Strategy == "" {
		m.settings.AccountSelection.Strategy = config.GetSelectionStrategy()
	}

	m.clearExpiredLimitsLocked()

	m.initialized = true
	return nil
}

// GetAccountCount returns the number of accounts.
func (m *Manager) GetAccountCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// GetAccountCountByProvider returns the number of accounts for a provider.
func (m *Manager) GetAccountCountByProvider(provider string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, acc := range m.accounts {
		if acc.Provider == provider {
			count++
		}
	}
	return count
}

// IsAllRateLimited checks if all accounts are rate-limited for a model.
func (m *Manager) IsAllRateLimited(modelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IsAllRateLimited(m.accounts, modelID)
}

// GetAvailableAccounts returns accounts usable for modelID right now.
func (m *Manager) GetAvailableAccounts(modelID string) []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return GetAvailableAccounts(m.accounts, modelID)
}

// GetInvalidAccounts returns invalid accounts.
func (m *Manager) GetInvalidAccounts() []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return GetInvalidAccounts(m.accounts)
}

// ClearExpiredLimits prunes expired rate limits.
func (m *Manager) ClearExpiredLimits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearExpiredLimitsLocked()
}

func (m *Manager) clearExpiredLimitsLocked() int {
	cleared := ClearExpiredLimits(m.accounts)
	if cleared > 0 {
		go m.saveToDiskAsync()
	}
	return cleared
}

// ResetAllRateLimits clears all rate limits (optimistic retry).
func (m *Manager) ResetAllRateLimits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ResetAllRateLimits(m.accounts)
	go m.saveToDiskAsync()
}

// PickNext picks the next account for modelID per the configured strategy.
// The returned Selection carries either an account copy, a recommended wait,
// or neither when nothing is usable.
func (m *Manager) PickNext(modelID string) Selection {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearExpiredLimitsLocked()

	sel := PickNext(m.accounts, m.currentIndex, modelID, m.settings)
	m.currentIndex = sel.NewIndex
	if sel.Account != nil {
		// Hand out a copy so the caller can read without the lock.
		acc := copyAccount(*sel.Account)
		sel.Account = &acc
		go m.saveToDiskAsync()
	}
	return sel
}

// MarkRateLimited marks an account as rate-limited for modelID (or globally
// when modelID is empty). Concurrent 429s for the same (email, model) inside
// the dedup window count as one event. Repeated consecutive failures extend
// the cooldown.
func (m *Manager) MarkRateLimited(email string, resetMs int64, modelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixMilli()
	key := email + "|" + modelID
	if last, ok := m.lastLimitMark[key]; ok && now-last < config.RateLimitDedupWindow.Milliseconds() {
		utils.Debug("[AccountManager] Duplicate rate limit for %s (model: %s) within dedup window, ignoring", email, modelID)
		return
	}
	m.lastLimitMark[key] = now

	m.consecutiveFailures[email]++
	if m.consecutiveFailures[email] >= config.MaxConsecutiveFailures {
		extended := now + config.ExtendedCooldown.Milliseconds()
		if resetMs < extended {
			utils.Warn("[AccountManager] %d consecutive failures for %s, extending cooldown to %s",
				m.consecutiveFailures[email], email, config.ExtendedCooldown)
			resetMs = extended
		}
	}

	MarkRateLimited(m.accounts, email, resetMs, m.settings, modelID)
	go m.saveToDiskAsync()
}

// MarkInvalid marks an account as invalid.
func (m *Manager) MarkInvalid(email string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	MarkInvalid(m.accounts, email, reason)
	go m.saveToDiskAsync()
}

// NotifySuccess records a successful request: clears the account's limit for
// the model and resets its failure streak.
func (m *Manager) NotifySuccess(email string, modelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.consecutiveFailures, email)
	if NotifySuccess(m.accounts, email, modelID) {
		go m.saveToDiskAsync()
	}
}

// GetMinWaitTimeMs returns the minimum wait until any account is available.
func (m *Manager) GetMinWaitTimeMs(modelID string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return GetMinWaitTimeMs(m.accounts, modelID)
}

// GetToken returns a cached access token for the account, calling fetch to
// acquire one when the cache entry is missing or older than the TTL. On fetch
// failure the entry is evicted and the error returned as-is for the caller to
// classify.
func (m *Manager) GetToken(account *Account, fetch func() (string, error)) (string, error) {
	m.mu.Lock()
	if cached, ok := m.tokenCache[account.Email]; ok {
		if time.Since(cached.ExtractedAt) < config.TokenRefreshInterval {
			m.mu.Unlock()
			return cached.Token, nil
		}
	}
	m.mu.Unlock()

	// Fetch outside the lock: token refresh is an HTTP call.
	token, err := fetch()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		delete(m.tokenCache, account.Email)
		return "", err
	}
	m.tokenCache[account.Email] = TokenCacheEntry{
		Token:       token,
		ExtractedAt: time.Now(),
	}
	return token, nil
}

// GetProject returns the cached project id for a Google account, using the
// account's stored projectId or calling discover on first use.
func (m *Manager) GetProject(account *Account, discover func() (string, error)) (string, error) {
	m.mu.Lock()
	if cached, ok := m.projectCache[account.Email]; ok {
		m.mu.Unlock()
		return cached, nil
	}
	if account.ProjectID != "" {
		m.projectCache[account.Email] = account.ProjectID
		m.mu.Unlock()
		return account.ProjectID, nil
	}
	m.mu.Unlock()

	projectID, err := discover()
	if err != nil {
		utils.Warn("[AccountManager] Project discovery failed, using default: %v", err)
		projectID = config.DefaultProjectID
	}

	m.mu.Lock()
	m.projectCache[account.Email] = projectID
	m.mu.Unlock()
	return projectID, nil
}

// ClearProjectCache evicts the project cache entry for email, or all entries
// when email is empty.
func (m *Manager) ClearProjectCache(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if email == "" {
		m.projectCache = make(map[string]string)
	} else {
		delete(m.projectCache, email)
	}
}

// ClearTokenCache evicts the token cache entry for email, or all entries when
// email is empty.
func (m *Manager) ClearTokenCache(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if email == "" {
		m.tokenCache = make(map[string]TokenCacheEntry)
	} else {
		delete(m.tokenCache, email)
	}
}

// SaveToDisk saves the current state to disk.
func (m *Manager) SaveToDisk() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveToDiskLocked()
}

// saveToDiskLocked saves without acquiring the lock (caller must hold it).
func (m *Manager) saveToDiskLocked() error {
	cfg := &ConfigFile{
		Accounts:    m.accounts,
		Settings:    m.settings,
		ActiveIndex: m.currentIndex,
	}

	return m.storage.Save(cfg)
}

func (m *Manager) saveToDiskAsync() {
	if err := m.SaveToDisk(); err != nil {
		utils.Error("[AccountManager] Failed to save config: %v", err)
	}
}

// GetSettings returns the current settings.
func (m *Manager) GetSettings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// GetAllAccounts returns deep copies of all accounts.
func (m *Manager) GetAllAccounts() []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Account, len(m.accounts))
	for i := range m.accounts {
		result[i] = copyAccount(m.accounts[i])
	}
	return result
}

// GetAccountsByProvider returns deep copies of all accounts for a provider.
func (m *Manager) GetAccountsByProvider(provider string) []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Account, 0)
	for i := range m.accounts {
		if m.accounts[i].Provider == provider {
			result = append(result, copyAccount(m.accounts[i]))
		}
	}
	return result
}

// GetAccountStatuses returns per-account availability for the health endpoint.
func (m *Manager) GetAccountStatuses() []types.AccountStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UnixMilli()
	statuses := make([]types.AccountStatus, len(m.accounts))

	for i, acc := range m.accounts {
		status := types.AccountStatus{
			Email:    acc.Email,
			Provider: acc.Provider,
			Status:   "ok",
			LastUsed: acc.LastUsed,
		}

		switch {
		case !acc.Enabled:
			status.Status = "disabled"
		case acc.IsInvalid:
			status.Status = "invalid"
			status.Error = string(acc.InvalidReason)
		default:
			var reset int64
			if acc.RateLimitResetTime > now {
				reset = acc.RateLimitResetTime
			}
			for _, r := range acc.ModelRateLimits {
				if r > now && (reset == 0 || r < reset) {
					reset = r
				}
			}
			if reset > 0 {
				status.Status = "rate-limited"
				t := time.UnixMilli(reset)
				status.ResetTime = &t
			}
		}

		statuses[i] = status
	}

	return statuses
}

// AddAccount adds a new account to the pool.
func (m *Manager) AddAccount(account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acc := range m.accounts {
		if acc.Email == account.Email {
			return fmt.Errorf("account %s already exists", account.Email)
		}
	}

	maxAccounts := m.settings.MaxAccounts
	if maxAccounts <= 0 {
		maxAccounts = config.MaxAccounts
	}
	if len(m.accounts) >= maxAccounts {
		return fmt.Errorf("maximum number of accounts (%d) reached", maxAccounts)
	}

	if !config.IsKnownProvider(account.Provider) {
		return fmt.Errorf("unknown provider: %s", account.Provider)
	}

	if account.ModelRateLimits == nil {
		account.ModelRateLimits = make(map[string]int64)
	}
	account.Enabled = true

	now := time.Now()
	account.AddedAt = &now

	m.accounts = append(m.accounts, account)

	// Save synchronously for CLI commands (async would exit before write completes)
	if err := m.saveToDiskLocked(); err != nil {
		m.accounts = m.accounts[:len(m.accounts)-1]
		return fmt.Errorf("failed to save account: %w", err)
	}

	utils.Success("[AccountManager] Added account: %s (%s)", account.Email, account.Provider)
	return nil
}

// RemoveAccount removes an account from the pool.
func (m *Manager) RemoveAccount(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, acc := range m.accounts {
		if acc.Email == email {
			removed := acc
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)

			delete(m.tokenCache, email)
			delete(m.projectCache, email)
			delete(m.consecutiveFailures, email)

			if m.currentIndex >= len(m.accounts) {
				m.currentIndex = 0
			}

			// Save synchronously for CLI commands
			if err := m.saveToDiskLocked(); err != nil {
				m.accounts = append(m.accounts[:i], append([]Account{removed}, m.accounts[i:]...)...)
				return fmt.Errorf("failed to save after removal: %w", err)
			}

			utils.Success("[AccountManager] Removed account: %s", email)
			return nil
		}
	}

	return fmt.Errorf("account %s not found", email)
}

// SetEnabled enables or disables an account.
func (m *Manager) SetEnabled(email string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.accounts {
		if m.accounts[i].Email == email {
			m.accounts[i].Enabled = enabled
			if err := m.saveToDiskLocked(); err != nil {
				return fmt.Errorf("failed to save: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("account %s not found", email)
}

// copyAccount deep-copies an account so callers can inspect it without the
// pool lock.
func copyAccount(acc Account) Account {
	if acc.ModelRateLimits != nil {
		limitsCopy := make(map[string]int64, len(acc.ModelRateLimits))
		for k, v := range acc.ModelRateLimits {
			limitsCopy[k] = v
		}
		acc.ModelRateLimits = limitsCopy
	} else {
		acc.ModelRateLimits = make(map[string]int64)
	}

	if acc.AddedAt != nil {
		t := *acc.AddedAt
		acc.AddedAt = &t
	}
	if acc.InvalidAt != nil {
		t := *acc.InvalidAt
		acc.InvalidAt = &t
	}
	if acc.LastUsed != nil {
		t := *acc.LastUsed
		acc.LastUsed = &t
	}

	return acc
}
