package cmd

import (
	"github.com/spf13/cobra"

	"github.com/theirongolddev/aimon/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive dashboard",
	Long:  "Full-screen terminal dashboard backed by the daemon HTTP API.\nStart the daemon first with: aimon serve",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return tui.NewApp(cfg.Server.Addr(), cfg.Appearance.Theme).Run()
}
