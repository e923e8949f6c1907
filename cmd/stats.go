package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aimon/internal/cli"
	"github.com/theirongolddev/aimon/internal/store"
)

var flagStatsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate usage statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&flagStatsDays, "days", 30, "Days of history for the activity chart")
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Paths.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := st.DashboardStats(ctx, flagStatsDays)
	if err != nil {
		return err
	}

	fmt.Println(cli.RenderTitle("Usage Statistics"))

	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Totals",
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Sessions", cli.FormatNumber(int64(stats.TotalSessions))},
			{"Active sessions", cli.FormatNumber(int64(stats.ActiveSessions))},
			{"Tool calls", cli.FormatNumber(int64(stats.TotalToolCalls))},
			{"Input tokens", cli.FormatTokens(stats.TotalInputTokens)},
			{"Output tokens", cli.FormatTokens(stats.TotalOutputTokens)},
			{"Estimated cost", cli.FormatCost(stats.TotalCost)},
		},
	}))

	if len(stats.SessionsOverTime) > 0 {
		values := make([]float64, len(stats.SessionsOverTime))
		for i, day := range stats.SessionsOverTime {
			values[i] = float64(day.Count)
		}
		fmt.Printf("  Sessions over %d days: %s\n\n", flagStatsDays, cli.RenderSparkline(values))
	}

	if len(stats.ToolDistribution) > 0 {
		rows := make([][]string, 0, len(stats.ToolDistribution))
		for _, t := range stats.ToolDistribution {
			avg := "-"
			if t.AvgDurationMs != nil {
				avg = fmt.Sprintf("%.0fms", *t.AvgDurationMs)
			}
			rows = append(rows, []string{
				t.ToolName,
				cli.FormatNumber(int64(t.Count)),
				cli.FormatNumber(int64(t.ErrorCount)),
				cli.FormatPercent(t.ErrorRate),
				avg,
			})
		}
		fmt.Println(cli.RenderTable(cli.Table{
			Title:   "Tools",
			Headers: []string{"Tool", "Calls", "Errors", "Error Rate", "Avg Duration"},
			Rows:    rows,
		}))
	}

	return nil
}
