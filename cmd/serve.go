package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/api"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/codex"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/copilot"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/google"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider/openaicompat"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/relay"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
)

var (
	port     int
	fallback bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the commons-proxy server that exposes an Anthropic-compatible API.

Requests to /v1/messages are dispatched to whichever provider the selected
account belongs to, with automatic rotation and rate-limit failover across
the account pool.

Example:
  commons-proxy serve
  commons-proxy serve --port 8080 --debug
  commons-proxy serve --fallback`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().BoolVar(&fallback, "fallback", false, "Enable model fallback when all accounts are exhausted")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate required environment variables
	if err := config.ValidateRequiredEnvVars(); err != nil {
		return fmt.Errorf("%v\n\nSet this variable to protect your proxy endpoints:\n  export PROXY_API_KEY=your-secret-key-here\n\nThen restart the server", err)
	}

	// Enable debug mode if flag is set or env var
	debug, _ := cmd.Flags().GetBool("debug")
	if !debug {
		debug = config.GetDebugEnabled()
	}
	if debug {
		utils.SetDebug(true)
	}

	// Check if port flag was explicitly set, otherwise use env var
	if !cmd.Flags().Changed("port") {
		port = config.GetPort()
	}

	// The engine reads ENABLE_FALLBACK per request; the flag overrides it.
	if cmd.Flags().Changed("fallback") {
		os.Setenv("ENABLE_FALLBACK", strconv.FormatBool(fallback))
	}

	utils.Info("Starting commons-proxy server...")
	utils.Info("Port: %d", port)
	utils.Info("Fallback: %v", config.GetEnableFallback())
	utils.Info("Debug: %v", debug)
	utils.Info("Selection strategy: %s", config.GetSelectionStrategy())

	// Initialize account pool
	pool := account.NewManager("")
	if err := pool.Initialize(); err != nil {
		utils.Warn("[Server] Account pool initialization: %v", err)
	}
	if n := pool.GetAccountCount(); n > 0 {
		utils.Success("[Server] Loaded %d account(s)", n)
	} else {
		utils.Warn("[Server] No accounts configured. Run 'commons-proxy accounts add' first.")
	}

	// Register provider adapters
	registry := provider.NewRegistry()
	adapters := []provider.Adapter{
		google.New(),
		copilot.New(),
		codex.New(),
		openaicompat.NewAnthropic(),
		openaicompat.NewOpenAI(),
		openaicompat.NewOpenRouter(),
		openaicompat.NewGitHub(),
	}
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			return fmt.Errorf("failed to register provider %s: %w", a.Name(), err)
		}
	}
	utils.Info("[Server] Registered %d provider(s)", len(adapters))

	engine := relay.New(pool, registry)
	apiServer := api.NewServer(engine, pool, registry)

	// Get configurable timeouts and bind address
	timeouts := config.GetServerTimeouts()
	bindAddr := config.GetBindAddress()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", bindAddr, port),
		Handler:      apiServer.Routes(),
		ReadTimeout:  timeouts.ReadTimeout,
		WriteTimeout: timeouts.WriteTimeout,
		IdleTimeout:  timeouts.IdleTimeout,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		utils.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			utils.Error("Server forced to shutdown: %v", err)
		}

		close(done)
	}()

	utils.Success("Server listening on http://localhost:%d", port)
	utils.Info("Press Ctrl+C to stop")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	utils.Success("Server stopped gracefully")
	return nil
}
