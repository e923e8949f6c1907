package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/aimon/internal/cli"
	"github.com/theirongolddev/aimon/internal/model"
	"github.com/theirongolddev/aimon/internal/tui/components"
	"github.com/theirongolddev/aimon/internal/tui/theme"
)

const pollInterval = 2 * time.Second

type tickMsg time.Time

// refreshMsg carries one complete poll of the daemon API.
type refreshMsg struct {
	stats    model.DashboardStats
	sessions model.SessionPage
	tools    []model.ToolStats
	agents   []model.Agent
	err      error
}

// App is the bubbletea model for the dashboard.
type App struct {
	client *Client

	width  int
	height int

	activeTab int
	spinner   spinner.Model
	sessTable table.Model

	loaded     bool
	stats      model.DashboardStats
	tools      []model.ToolStats
	agents     []model.Agent
	lastErr    error
	lastUpdate time.Time
}

// NewApp returns the dashboard app polling the daemon at addr.
func NewApp(addr, themeName string) *App {
	theme.SetActive(themeName)
	t := theme.Active

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(t.Accent)

	cols := []table.Column{
		{Title: "Session", Width: 14},
		{Title: "Project", Width: 16},
		{Title: "Status", Width: 8},
		{Title: "Model", Width: 20},
		{Title: "Tools", Width: 6},
		{Title: "Tokens", Width: 10},
		{Title: "Cost", Width: 8},
	}
	st := table.New(table.WithColumns(cols), table.WithFocused(true))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Foreground(t.TextMuted).
		BorderForeground(t.Border).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(t.TextPrimary).
		Background(t.SurfaceHover).
		Bold(false)
	st.SetStyles(styles)

	return &App{
		client:    NewClient(addr),
		spinner:   sp,
		sessTable: st,
	}
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	_, err := tea.NewProgram(a, tea.WithAltScreen()).Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.refresh())
}

func (a *App) refresh() tea.Cmd {
	client := a.client
	return func() tea.Msg {
		var msg refreshMsg
		msg.stats, msg.err = client.DashboardStats()
		if msg.err != nil {
			return msg
		}
		if msg.sessions, msg.err = client.Sessions(50); msg.err != nil {
			return msg
		}
		if msg.tools, msg.err = client.ToolStats(); msg.err != nil {
			return msg
		}
		msg.agents, msg.err = client.Agents("")
		return msg
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.sessTable.SetHeight(a.contentHeight() - 2)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "tab":
			a.activeTab = (a.activeTab + 1) % len(components.Tabs)
			return a, nil
		case "shift+tab":
			a.activeTab = (a.activeTab + len(components.Tabs) - 1) % len(components.Tabs)
			return a, nil
		case "r":
			return a, a.refresh()
		}
		if len(msg.Runes) == 1 {
			if idx := components.TabIdxByKey(msg.Runes[0]); idx >= 0 {
				a.activeTab = idx
				return a, nil
			}
		}
		if a.activeTab == 1 {
			var cmd tea.Cmd
			a.sessTable, cmd = a.sessTable.Update(msg)
			return a, cmd
		}
		return a, nil

	case tickMsg:
		return a, a.refresh()

	case refreshMsg:
		a.lastErr = msg.err
		if msg.err == nil {
			a.loaded = true
			a.stats = msg.stats
			a.tools = msg.tools
			a.agents = msg.agents
			a.lastUpdate = time.Now()
			a.sessTable.SetRows(sessionRows(msg.sessions.Items))
		}
		return a, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func sessionRows(sessions []model.Session) []table.Row {
	rows := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		project := s.ProjectName
		if project == "" {
			project = "-"
		}
		mdl := s.Model
		if mdl == "" {
			mdl = "-"
		}
		rows = append(rows, table.Row{
			shortID(s.SessionID),
			project,
			s.Status,
			mdl,
			fmt.Sprint(s.ToolCallCount),
			cli.FormatTokens(s.InputTokens + s.OutputTokens),
			cli.FormatCost(s.EstimatedCost),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func (a *App) contentHeight() int {
	// title + tabbar + statusbar + spacing
	h := a.height - 6
	if h < 5 {
		h = 5
	}
	return h
}

func (a *App) View() string {
	t := theme.Active

	title := lipgloss.NewStyle().
		Foreground(t.TextPrimary).
		Bold(true).
		Render(" aimon")
	sub := lipgloss.NewStyle().
		Foreground(t.TextDim).
		Render("  Claude Code session monitor")

	var body string
	switch {
	case !a.loaded && a.lastErr != nil:
		body = a.viewUnreachable()
	case !a.loaded:
		body = "\n  " + a.spinner.View() + " connecting..."
	default:
		switch a.activeTab {
		case 0:
			body = a.viewOverview()
		case 1:
			body = a.sessTable.View()
		case 2:
			body = a.viewTools()
		case 3:
			body = a.viewAgents()
		}
	}

	conn := "connected"
	if a.lastErr != nil {
		conn = "daemon unreachable"
	} else if !a.lastUpdate.IsZero() {
		conn = "updated " + a.lastUpdate.Format("15:04:05")
	}

	return title + sub + "\n" +
		components.RenderTabBar(a.activeTab) + "\n\n" +
		body + "\n" +
		components.RenderStatusBar(a.width, conn)
}

func (a *App) viewUnreachable() string {
	t := theme.Active
	warn := lipgloss.NewStyle().Foreground(t.Orange)
	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	return "\n" + warn.Render("  daemon unreachable") + "\n" +
		dim.Render("  start it with: aimon serve") + "\n" +
		dim.Render(fmt.Sprintf("  (%v)", a.lastErr))
}

func (a *App) viewOverview() string {
	s := a.stats
	width := a.width
	if width < 40 {
		width = 40
	}

	cards := []struct{ Label, Value, Sub string }{
		{"Active", fmt.Sprint(s.ActiveSessions), "sessions"},
		{"Total", fmt.Sprint(s.TotalSessions), "sessions"},
		{"Tool calls", cli.FormatNumber(int64(s.TotalToolCalls)), ""},
		{"Tokens", cli.FormatTokens(s.TotalInputTokens + s.TotalOutputTokens), "in+out"},
		{"Est. cost", cli.FormatCost(s.TotalCost), ""},
	}
	out := components.MetricCardRow(cards, width)

	if len(s.SessionsOverTime) > 0 {
		values := make([]float64, len(s.SessionsOverTime))
		for i, p := range s.SessionsOverTime {
			values[i] = float64(p.Count)
		}
		spark := cli.RenderSparkline(values)
		out += "\n" + components.ContentCard("Sessions (30d)", spark, width)
	}

	if len(s.RecentErrors) > 0 {
		t := theme.Active
		red := lipgloss.NewStyle().Foreground(t.Red)
		dim := lipgloss.NewStyle().Foreground(t.TextDim)
		var b strings.Builder
		n := len(s.RecentErrors)
		if n > 5 {
			n = 5
		}
		for _, tc := range s.RecentErrors[:n] {
			fmt.Fprintf(&b, "%s  %s\n",
				red.Render(tc.ToolName),
				dim.Render(truncate(tc.Error, 60)))
		}
		out += "\n" + components.ContentCard("Recent errors", strings.TrimRight(b.String(), "\n"), width)
	}

	return out
}

func (a *App) viewTools() string {
	width := a.width
	if width < 40 {
		width = 40
	}
	if len(a.tools) == 0 {
		return "  no tool calls yet"
	}

	t := theme.Active
	name := lipgloss.NewStyle().Foreground(t.TextPrimary)
	bar := lipgloss.NewStyle().Foreground(t.Blue)
	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	red := lipgloss.NewStyle().Foreground(t.Red)

	maxCount := a.tools[0].Count
	barWidth := components.CardInnerWidth(width) - 34
	if barWidth < 10 {
		barWidth = 10
	}

	var b strings.Builder
	for _, ts := range a.tools {
		filled := 0
		if maxCount > 0 {
			filled = ts.Count * barWidth / maxCount
		}
		line := fmt.Sprintf("%-16s %s %s",
			name.Render(truncate(ts.ToolName, 16)),
			bar.Render(strings.Repeat("█", filled)),
			dim.Render(cli.FormatNumber(int64(ts.Count))))
		if ts.ErrorCount > 0 {
			line += red.Render(fmt.Sprintf("  %s err", cli.FormatPercent(ts.ErrorRate)))
		}
		b.WriteString(line + "\n")
	}
	return components.ContentCard("Tool usage", strings.TrimRight(b.String(), "\n"), width)
}

func (a *App) viewAgents() string {
	width := a.width
	if width < 40 {
		width = 40
	}
	if len(a.agents) == 0 {
		return "  no agents yet"
	}

	t := theme.Active
	name := lipgloss.NewStyle().Foreground(t.TextPrimary)
	active := lipgloss.NewStyle().Foreground(t.Green)
	stopped := lipgloss.NewStyle().Foreground(t.TextDim)
	dim := lipgloss.NewStyle().Foreground(t.TextDim)

	var b strings.Builder
	n := len(a.agents)
	if n > 20 {
		n = 20
	}
	for _, ag := range a.agents[:n] {
		label := ag.AgentName
		if label == "" {
			label = "(unnamed)"
		}
		status := active.Render("● active")
		if ag.Status == model.AgentStopped {
			status = stopped.Render("○ stopped")
		}
		fmt.Fprintf(&b, "%-24s %s  %s\n",
			name.Render(truncate(label, 24)),
			status,
			dim.Render(shortID(ag.SessionID)))
	}
	return components.ContentCard("Agents", strings.TrimRight(b.String(), "\n"), width)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
