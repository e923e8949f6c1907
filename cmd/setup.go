package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/aimon/internal/config"
	"github.com/theirongolddev/aimon/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	portStr := strconv.Itoa(cfg.Server.Port)

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen host").
				Description("Interface the daemon binds to. Keep 127.0.0.1 unless you know better.").
				Value(&cfg.Server.Host),
			huh.NewInput().
				Title("Listen port").
				Value(&portStr).
				Validate(func(s string) error {
					p, err := strconv.Atoi(s)
					if err != nil || p < 1 || p > 65535 {
						return errors.New("port must be a number between 1 and 65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("Transcripts directory").
				Description("Directory watched for .jsonl transcript files.").
				Value(&cfg.Paths.TranscriptsDir),
		),
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Stale session timeout").
				Description("Sessions with no events for this long are marked ended.").
				Options(
					huh.NewOption("5 minutes", 5),
					huh.NewOption("15 minutes", 15),
					huh.NewOption("30 minutes", 30),
					huh.NewOption("60 minutes", 60),
				).
				Value(&cfg.Reaper.StaleTimeoutMinutes),
			huh.NewSelect[string]().
				Title("Dashboard theme").
				Options(themeOpts...).
				Value(&cfg.Appearance.Theme),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled; nothing saved.")
			return nil
		}
		return err
	}

	// Validated above.
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("  Saved %s\n", config.ConfigPath())
	fmt.Printf("  Start the daemon with: aimon serve\n")
	return nil
}
