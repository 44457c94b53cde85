// Package cmd contains the CLI commands for commons-proxy.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "dev"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "commons-proxy",
	Short: "A multi-provider proxy for the Anthropic Messages API",
	Long: `Commons-Proxy is a local proxy server that exposes an Anthropic-compatible
Messages API backed by multiple upstream providers (Google Cloud Code,
Anthropic, OpenAI, OpenRouter, GitHub Models, Copilot, Codex).

It maintains a pool of accounts per provider with automatic rotation,
rate-limit failover, and model fallback, so any Anthropic API client can run
against whichever backend has capacity.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}
