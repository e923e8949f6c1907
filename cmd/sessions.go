package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aimon/internal/cli"
	"github.com/theirongolddev/aimon/internal/model"
	"github.com/theirongolddev/aimon/internal/store"
)

var (
	flagSessionsStatus string
	flagSessionsSearch string
	flagSessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent sessions",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&flagSessionsStatus, "status", "", "Filter by status (active, ended)")
	sessionsCmd.Flags().StringVar(&flagSessionsSearch, "search", "", "Filter by session id or project name substring")
	sessionsCmd.Flags().IntVar(&flagSessionsLimit, "limit", 20, "Maximum sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
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

	page, err := st.ListSessions(ctx, store.ListSessionsOptions{
		Status:   flagSessionsStatus,
		Search:   flagSessionsSearch,
		PageSize: flagSessionsLimit,
	})
	if err != nil {
		return err
	}

	fmt.Println(cli.RenderTitle("Sessions"))

	if len(page.Items) == 0 {
		fmt.Println("  No sessions recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(page.Items))
	for _, s := range page.Items {
		rows = append(rows, []string{
			shortSessionID(s.SessionID),
			s.ProjectName,
			renderStatus(s.Status),
			s.Model,
			fmt.Sprintf("%d", s.ToolCallCount),
			cli.FormatTokens(s.InputTokens + s.OutputTokens),
			cli.FormatCost(s.EstimatedCost),
			sessionDuration(s),
			cli.FormatAge(int64(time.Since(s.StartedAt).Seconds())),
		})
	}

	fmt.Println(cli.RenderTable(cli.Table{
		Headers: []string{"Session", "Project", "Status", "Model", "Tools", "Tokens", "Cost", "Duration", "Age"},
		Rows:    rows,
	}))
	fmt.Printf("  Showing %d of %d sessions\n", len(page.Items), page.Total)
	return nil
}

func renderStatus(status string) string {
	switch status {
	case model.SessionActive:
		return cli.StatusActive.Render(status)
	case model.SessionEnded:
		return cli.StatusEnded.Render(status)
	default:
		return status
	}
}

func sessionDuration(s model.Session) string {
	if s.DurationSeconds == nil {
		return "-"
	}
	return cli.FormatDuration(int64(*s.DurationSeconds))
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
