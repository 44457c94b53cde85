package cmd

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/auth"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/codex"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/copilot"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/google"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/openaicompat"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
)

// accountsCmd represents the accounts command
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts for providers",
	Long: `Manage the pool of accounts used by providers.

Google accounts use OAuth authentication against the Cloud Code API.
Copilot accounts use GitHub Device OAuth authentication.
Codex accounts use the refresh token from a ChatGPT codex CLI login.
Anthropic, OpenAI, OpenRouter and GitHub Models accounts use API keys.

Multiple accounts enable load balancing and failover when rate limits are hit.`,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new account",
	Long: `Add a new account to the pool.

If no --provider flag is specified, you will be prompted to select one.

Examples:
  commons-proxy accounts add                      # Interactive provider selection
  commons-proxy accounts add --provider google    # Google Cloud Code (OAuth)
  commons-proxy accounts add --provider copilot   # GitHub Copilot (device OAuth)
  commons-proxy accounts add --provider openai    # OpenAI (prompts for API key)`,
	RunE: runAccountsAdd,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	RunE:  runAccountsList,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove [email]",
	Short: "Remove an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAccountsRemove,
}

var accountsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify account credentials are valid",
	RunE:  runAccountsVerify,
}

var accountsEnableCmd = &cobra.Command{
	Use:   "enable [email]",
	Short: "Enable a disabled account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAccountEnabled(args[0], true)
	},
}

var accountsDisableCmd = &cobra.Command{
	Use:   "disable [email]",
	Short: "Disable an account without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAccountEnabled(args[0], false)
	},
}

var (
	providerArg string
	manualOAuth bool
)

func init() {
	rootCmd.AddCommand(accountsCmd)

	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	accountsCmd.AddCommand(accountsVerifyCmd)
	accountsCmd.AddCommand(accountsEnableCmd)
	accountsCmd.AddCommand(accountsDisableCmd)

	accountsAddCmd.Flags().StringVar(&providerArg, "provider", "", "Provider type")
	accountsAddCmd.Flags().BoolVar(&manualOAuth, "manual", false, "Paste the OAuth callback instead of running a local callback server")
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	providerName := strings.ToLower(providerArg)

	if providerName == "" {
		var err error
		providerName, err = selectProvider()
		if err != nil {
			if err.Error() == "cancelled" {
				fmt.Println("Account addition cancelled.")
				return nil
			}
			return err
		}
		utils.Info("Selected provider: %s", providerName)
	}

	if !config.IsKnownProvider(providerName) {
		return fmt.Errorf("invalid provider: %s (known: %s)", providerName, strings.Join(config.KnownProviders, ", "))
	}

	utils.Info("Adding new %s account...", providerName)

	switch providerName {
	case config.ProviderGoogle:
		return addGoogleAccount()
	case config.ProviderCopilot:
		return addCopilotAccount()
	case config.ProviderCodex:
		return addCodexAccount()
	default:
		return addAPIKeyAccount(providerName)
	}
}

// addAPIKeyAccount covers the providers whose credential is a plain API key
// (anthropic, openai, openrouter, github).
func addAPIKeyAccount(providerName string) error {
	apiKey, err := promptSecret(fmt.Sprintf("Enter %s API key: ", providerName))
	if err != nil {
		return err
	}
	if apiKey == "" {
		return fmt.Errorf("API key is required for the %s provider", providerName)
	}

	// Verify the key with a cheap probe before persisting it.
	adapter, err := apiKeyAdapter(providerName)
	if err != nil {
		return err
	}
	probe := account.Account{Provider: providerName, APIKey: apiKey}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if result := adapter.Validate(ctx, &probe); !result.Valid {
		return fmt.Errorf("API key verification failed: %v", result.Err)
	}

	// API keys have no natural identity; derive a stable one from the key.
	hash := sha256.Sum256([]byte(apiKey))
	email := fmt.Sprintf("%s-%s", providerName, hex.EncodeToString(hash[:4]))

	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	if err := manager.AddAccount(account.Account{
		Email:    email,
		Provider: providerName,
		APIKey:   apiKey,
	}); err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	utils.Success("Successfully added %s account: %s", providerName, email)
	return nil
}

func addGoogleAccount() error {
	authURL, pkce, err := auth.GetAuthorizationURL()
	if err != nil {
		return fmt.Errorf("failed to generate authorization URL: %w", err)
	}

	fmt.Println()
	fmt.Println("Please visit the following URL to authorize:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()

	var code string
	if manualOAuth {
		fmt.Print("Paste the callback URL or authorization code here: ")
		reader := bufio.NewReader(os.Stdin)
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		code, _, err = auth.ExtractCodeFromInput(strings.TrimSpace(input))
		if err != nil {
			return fmt.Errorf("failed to extract code: %w", err)
		}
	} else {
		fmt.Println("Waiting for the OAuth callback (use --manual on headless machines)...")
		code, err = auth.StartCallbackServer(pkce.State, 5*time.Minute)
		if err != nil {
			return fmt.Errorf("OAuth callback failed: %w", err)
		}
	}

	utils.Info("Exchanging code for tokens...")
	result, err := auth.CompleteOAuthFlow(code, pkce.Verifier)
	if err != nil {
		return fmt.Errorf("OAuth flow failed: %w", err)
	}

	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	if err := manager.AddAccount(account.Account{
		Email:        result.Email,
		Provider:     config.ProviderGoogle,
		RefreshToken: result.RefreshToken,
		ProjectID:    result.ProjectID,
	}); err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	utils.Success("Successfully added account: %s", result.Email)
	if result.ProjectID != "" {
		utils.Info("Project ID: %s", result.ProjectID)
	}
	return nil
}

func addCopilotAccount() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	utils.Info("Initiating GitHub Device OAuth flow...")
	deviceCode, err := auth.GetDeviceCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device code: %w", err)
	}

	fmt.Println()
	fmt.Println("Please visit the following URL to authorize:")
	fmt.Println()
	fmt.Printf("  %s\n", deviceCode.VerificationURI)
	fmt.Println()
	fmt.Printf("Enter this code: %s\n", deviceCode.UserCode)
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	githubToken, err := auth.PollAccessToken(ctx, deviceCode)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}
	utils.Success("GitHub authorization successful!")

	utils.Info("Verifying Copilot access...")
	if _, err := auth.GetCopilotToken(ctx, githubToken); err != nil {
		return fmt.Errorf("Copilot verification failed: %w", err)
	}

	user, err := auth.GetGitHubUser(ctx, githubToken)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}

	email := user.Login
	if email == "" {
		hash := sha256.Sum256([]byte(githubToken))
		email = fmt.Sprintf("copilot-%s", hex.EncodeToString(hash[:4]))
	}

	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	if err := manager.AddAccount(account.Account{
		Email:        email,
		Provider:     config.ProviderCopilot,
		RefreshToken: githubToken,
	}); err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	utils.Success("Successfully added Copilot account: %s", email)
	return nil
}

func addCodexAccount() error {
	refreshToken, err := promptSecret("Enter codex refresh token (from the codex CLI login): ")
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return fmt.Errorf("refresh token is required for the codex provider")
	}

	utils.Info("Verifying refresh token...")
	if _, err := auth.RefreshCodexToken(refreshToken); err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	hash := sha256.Sum256([]byte(refreshToken))
	email := fmt.Sprintf("codex-%s", hex.EncodeToString(hash[:4]))

	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	if err := manager.AddAccount(account.Account{
		Email:        email,
		Provider:     config.ProviderCodex,
		RefreshToken: refreshToken,
	}); err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	utils.Success("Successfully added codex account: %s", email)
	return nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	accounts := manager.GetAllAccounts()
	if len(accounts) == 0 {
		fmt.Println("No accounts configured.")
		fmt.Println()
		fmt.Println("To add an account, run:")
		fmt.Println("  commons-proxy accounts add")
		return nil
	}

	fmt.Printf("Configured accounts (%d):\n\n", len(accounts))

	now := time.Now().UnixMilli()
	for i, acc := range accounts {
		status := "OK"
		statusColor := "\033[32m" // green

		switch {
		case !acc.Enabled:
			status = "DISABLED"
			statusColor = "\033[90m" // gray
		case acc.IsInvalid:
			status = "INVALID"
			statusColor = "\033[31m" // red
		default:
			for modelID, resetMs := range acc.ModelRateLimits {
				if resetMs > now {
					waitMs := resetMs - now
					status = fmt.Sprintf("RATE-LIMITED (%s, %s)",
						modelID, utils.FormatDuration(time.Duration(waitMs)*time.Millisecond))
					statusColor = "\033[33m" // yellow
					break
				}
			}
			if status == "OK" && acc.IsRateLimited && acc.RateLimitResetTime > now {
				waitMs := acc.RateLimitResetTime - now
				status = fmt.Sprintf("RATE-LIMITED (%s)",
					utils.FormatDuration(time.Duration(waitMs)*time.Millisecond))
				statusColor = "\033[33m"
			}
		}

		fmt.Printf("  %d. %s\n", i+1, acc.Email)
		fmt.Printf("     Provider: %s\n", acc.Provider)
		fmt.Printf("     Status: %s%s\033[0m\n", statusColor, status)
		if acc.IsInvalid && acc.InvalidReason != "" {
			fmt.Printf("     Reason: %s\n", string(acc.InvalidReason))
		}
		if acc.ProjectID != "" {
			fmt.Printf("     Project: %s\n", acc.ProjectID)
		}
		if acc.LastUsed != nil {
			fmt.Printf("     Last used: %s\n", acc.LastUsed.Format(time.RFC3339))
		}
		fmt.Println()
	}

	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	accounts := manager.GetAllAccounts()
	if len(accounts) == 0 {
		fmt.Println("No accounts to remove.")
		return nil
	}

	var email string

	if len(args) > 0 {
		email = args[0]
	} else {
		fmt.Println("Select an account to remove:")
		fmt.Println()

		for i, acc := range accounts {
			fmt.Printf("  %d. %s (%s)\n", i+1, acc.Email, acc.Provider)
		}

		fmt.Println()
		fmt.Print("Enter account number (or 'q' to cancel): ")

		reader := bufio.NewReader(os.Stdin)
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "q" || input == "" {
			fmt.Println("Cancelled.")
			return nil
		}

		var num int
		if _, err := fmt.Sscanf(input, "%d", &num); err != nil || num < 1 || num > len(accounts) {
			return fmt.Errorf("invalid selection: %s", input)
		}

		email = accounts[num-1].Email
	}

	if err := manager.RemoveAccount(email); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}

	utils.Success("Removed account: %s", email)
	return nil
}

func runAccountsVerify(cmd *cobra.Command, args []string) error {
	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	accounts := manager.GetAllAccounts()
	if len(accounts) == 0 {
		fmt.Println("No accounts to verify.")
		return nil
	}

	registry := newAdapterRegistry()

	utils.Info("Verifying %d account(s)...", len(accounts))
	fmt.Println()

	allValid := true
	for i, acc := range accounts {
		fmt.Printf("  %d. %s (%s)... ", i+1, acc.Email, acc.Provider)

		adapter, err := registry.Get(acc.Provider)
		if err != nil {
			fmt.Printf("\033[31mFAILED\033[0m\n")
			fmt.Printf("     Error: unknown provider %s\n", acc.Provider)
			allValid = false
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result := adapter.Validate(ctx, &acc)
		cancel()

		if !result.Valid {
			fmt.Printf("\033[31mFAILED\033[0m\n")
			fmt.Printf("     Error: %v\n", result.Err)
			allValid = false
			continue
		}

		fmt.Printf("\033[32mOK\033[0m")
		if result.Email != "" && result.Email != acc.Email {
			fmt.Printf(" (email mismatch: %s)", result.Email)
		}
		fmt.Println()
	}

	fmt.Println()
	if allValid {
		utils.Success("All accounts verified successfully!")
	} else {
		utils.Warn("Some accounts failed verification. Run 'accounts add' to re-authenticate.")
	}

	return nil
}

func setAccountEnabled(email string, enabled bool) error {
	manager := account.NewManager("")
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account pool: %w", err)
	}

	if err := manager.SetEnabled(email, enabled); err != nil {
		return err
	}

	if enabled {
		utils.Success("Enabled account: %s", email)
	} else {
		utils.Success("Disabled account: %s", email)
	}
	return nil
}

// newAdapterRegistry builds a registry with every provider adapter, for
// commands that need to touch arbitrary accounts.
func newAdapterRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	for _, a := range []provider.Adapter{
		google.New(),
		copilot.New(),
		codex.New(),
		openaicompat.NewAnthropic(),
		openaicompat.NewOpenAI(),
		openaicompat.NewOpenRouter(),
		openaicompat.NewGitHub(),
	} {
		// Registration on a fresh registry cannot collide.
		_ = registry.Register(a)
	}
	return registry
}

// apiKeyAdapter returns the adapter for an API-key provider.
func apiKeyAdapter(providerName string) (provider.Adapter, error) {
	switch providerName {
	case config.ProviderAnthropic:
		return openaicompat.NewAnthropic(), nil
	case config.ProviderOpenAI:
		return openaicompat.NewOpenAI(), nil
	case config.ProviderOpenRouter:
		return openaicompat.NewOpenRouter(), nil
	case config.ProviderGitHub:
		return openaicompat.NewGitHub(), nil
	default:
		return nil, fmt.Errorf("provider %s does not use API keys", providerName)
	}
}

// promptSecret reads a secret from the terminal without echo, falling back to
// plain line input when stdin is not a terminal (piped input).
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(keyBytes)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// selectProvider shows an interactive menu to select a provider.
func selectProvider() (string, error) {
	providers := []struct {
		name        string
		description string
	}{
		{config.ProviderGoogle, "Google Cloud Code (OAuth authentication)"},
		{config.ProviderCopilot, "GitHub Copilot (device OAuth authentication)"},
		{config.ProviderCodex, "ChatGPT Codex (refresh token)"},
		{config.ProviderAnthropic, "Anthropic API (API key)"},
		{config.ProviderOpenAI, "OpenAI API (API key)"},
		{config.ProviderOpenRouter, "OpenRouter API (API key)"},
		{config.ProviderGitHub, "GitHub Models API (API key)"},
	}

	fmt.Println("Select a provider to add:")
	fmt.Println()

	for i, p := range providers {
		fmt.Printf("  %d. %s - %s\n", i+1, p.name, p.description)
	}

	fmt.Println()
	fmt.Print("Enter provider number (or 'q' to cancel): ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	input = strings.TrimSpace(input)
	if input == "q" || input == "" {
		return "", fmt.Errorf("cancelled")
	}

	var num int
	if _, err := fmt.Sscanf(input, "%d", &num); err != nil || num < 1 || num > len(providers) {
		return "", fmt.Errorf("invalid selection: %s (must be 1-%d)", input, len(providers))
	}

	return providers[num-1].name, nil
}
