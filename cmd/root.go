// Package cmd implements the aimon command line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aimon/internal/config"
)

var (
	flagConfigHost string
	flagConfigPort int
	flagDBPath     string
)

var rootCmd = &cobra.Command{
	Use:   "aimon",
	Short: "Local monitor for Claude Code sessions",
	Long: "Track Claude Code sessions, tool calls, agents, token usage, and\n" +
		"estimated costs via lifecycle hooks and transcript files.",
	RunE: runSessions,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigHost, "host", "", "Override configured listen host")
	rootCmd.PersistentFlags().IntVar(&flagConfigPort, "port", 0, "Override configured listen port")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Override configured database path")
}

// loadConfig is the shared config path used by all commands: file,
// environment, then flags, in increasing precedence.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagConfigHost != "" {
		cfg.Server.Host = flagConfigHost
	}
	if flagConfigPort > 0 {
		cfg.Server.Port = flagConfigPort
	}
	if flagDBPath != "" {
		cfg.Paths.DBPath = flagDBPath
	}
	return cfg, nil
}
