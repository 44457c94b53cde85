package account

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
)

// Storage handles loading and saving the account store. Save is atomic
// (temp file + rename) and serialized, so readers never observe a
// half-written file.
type Storage struct {
	configPath string
	mu         sync.Mutex
}

// NewStorage creates a new Storage instance.
func NewStorage(configPath string) *Storage {
	if configPath == "" {
		configPath = config.GetAccountConfigPath()
	}
	return &Storage{configPath: configPath}
}

// Load loads accounts from the configuration file.
// Returns empty config if file doesn't exist or cannot be parsed.
func (s *Storage) Load() (*ConfigFile, error) {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			utils.Info("[AccountManager] No config file found. Add an account using 'accounts add' command")
			return emptyConfig(), nil
		}
		// Treat unreadable config as "no config" rather than failing startup.
		utils.Error("[AccountManager] Failed to load config: %v", err)
		return emptyConfig(), nil
	}

	var cfg ConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		utils.Error("[AccountManager] Failed to parse config: %v", err)
		return emptyConfig(), nil
	}

	for i := range cfg.Accounts {
		if cfg.Accounts[i].ModelRateLimits == nil {
			cfg.Accounts[i].ModelRateLimits = make(map[string]int64)
		}
		// Give accounts a fresh chance on startup; a truly dead credential
		// will be re-marked on first use.
		cfg.Accounts[i].IsInvalid = false
		cfg.Accounts[i].InvalidReason = ""
		cfg.Accounts[i].InvalidAt = nil
	}

	if cfg.ActiveIndex < 0 || cfg.ActiveIndex >= len(cfg.Accounts) {
		cfg.ActiveIndex = 0
	}

	utils.Info("[AccountManager] Loaded %d account(s) from config", len(cfg.Accounts))

	return &cfg, nil
}

func emptyConfig() *ConfigFile {
	return &ConfigFile{
		Accounts:    []Account{},
		Settings:    Settings{},
		ActiveIndex: 0,
	}
}

// Save saves accounts to the configuration file atomically.
func (s *Storage) Save(cfg *ConfigFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename.
	tempFile, err := os.CreateTemp(dir, ".accounts-*.tmp")
	if err != nil {
		return err
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}

	if err := tempFile.Close(); err != nil {
		return err
	}

	// The store holds credentials; keep it owner-readable only.
	if err := os.Chmod(tempPath, 0600); err != nil {
		return err
	}

	if err := os.Rename(tempPath, s.configPath); err != nil {
		return err
	}

	success = true
	return nil
}

// ConfigPath returns the path to the configuration file.
func (s *Storage) ConfigPath() string {
	return s.configPath
}
