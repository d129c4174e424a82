package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/scrapewatch/internal/observability"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// Dashboard panel indices.
const (
	panelSessions = iota
	panelMetrics
	panelAlerts
	panelCount
)

const dashboardRecentSessions = 5

var activePanelStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62")).
	Padding(0, 1)

var dashboardRefresh time.Duration

type dashboardModel struct {
	activePanel int
	width       int
	height      int
	refresh     time.Duration
	load        func() dataLoadedMsg

	// Data.
	stats    models.SessionStats
	recent   []models.ScrapingSession
	summary  *models.MetricsSummary
	alerts   models.AlertDashboard
	loadedAt time.Time

	// State.
	loading bool
	err     error
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	stats   models.SessionStats
	recent  []models.ScrapingSession
	summary *models.MetricsSummary
	alerts  models.AlertDashboard
	at      time.Time
	err     error
}

// tickMsg triggers a periodic reload.
type tickMsg time.Time

func newDashboardModel(refresh time.Duration, load func() dataLoadedMsg) dashboardModel {
	return dashboardModel{
		activePanel: panelSessions,
		loading:     true,
		refresh:     refresh,
		load:        load,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.tickCmd())
}

func (m dashboardModel) loadCmd() tea.Cmd {
	load := m.load
	return func() tea.Msg { return load() }
}

func (m dashboardModel) tickCmd() tea.Cmd {
	if m.refresh <= 0 {
		return nil
	}
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, m.loadCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.loadCmd(), m.tickCmd())

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.stats = msg.stats
		m.recent = msg.recent
		m.summary = msg.summary
		m.alerts = msg.alerts
		m.loadedAt = msg.at
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" scrapewatch ")
	help := dimStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading && m.loadedAt.IsZero() {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	sessionsPanel := m.renderSessionsPanel()
	metricsPanel := m.renderMetricsPanel()
	alertsPanel := m.renderAlertsPanel()

	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		sessionsPanel = m.applyPanelStyle(panelSessions, sessionsPanel, colWidth-4)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, colWidth-4)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, sessionsPanel, metricsPanel, alertsPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		sessionsPanel = m.applyPanelStyle(panelSessions, sessionsPanel, panelWidth)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, panelWidth)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, sessionsPanel, metricsPanel, alertsPanel)
	}

	updated := dimStyle.Render("updated " + m.loadedAt.Format("15:04:05"))
	return fmt.Sprintf("%s %s\n\n%s\n\n%s", title, updated, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderSessionsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Sessions"))
	b.WriteString("\n")

	fmt.Fprintf(&b, "  %-14s %d\n", "Active", m.stats.ActiveSessions)
	fmt.Fprintf(&b, "  %-14s %d\n", "In memory", m.stats.TotalSessions)
	fmt.Fprintf(&b, "  %-14s %d\n", "Logs", m.stats.TotalLogs)
	fmt.Fprintf(&b, "  %-14s %d\n", "Errors", m.stats.TotalErrors)

	if len(m.recent) == 0 {
		b.WriteString("\n  No sessions found.")
		return b.String()
	}
	b.WriteString("\n")
	for _, s := range m.recent {
		status := styleForStatus(s.Status).Render(fmt.Sprintf("%-9s", s.Status))
		fmt.Fprintf(&b, "  %s %s %d/%d\n", status, s.StartTime.UTC().Format("15:04"), s.ProcessedURLs, s.TotalURLs)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboardModel) renderMetricsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Metrics"))
	b.WriteString("\n")

	if m.summary == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	s := m.summary
	fmt.Fprintf(&b, "  %-14s %.1f%%\n", "Error rate", s.Metrics[observability.MetricErrorRate].Value*100)
	fmt.Fprintf(&b, "  %-14s %.1f%%\n", "Cache hits", s.Metrics[observability.MetricCacheHitRate].Value*100)
	fmt.Fprintf(&b, "  %-14s %.0fms\n", "Avg response", s.Metrics[observability.MetricAvgResponseTime].Value)
	fmt.Fprintf(&b, "  %-14s %d/%d\n", "Buffer", s.BufferSize, s.BufferCap)
	health := styleForHealth(s.Health.Status).Render(string(s.Health.Status))
	if s.Health.Status == "" {
		health = dimStyle.Render("not checked")
	}
	fmt.Fprintf(&b, "  %-14s %s", "Health", health)

	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts.Active) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts.Active {
		sev := styleForSeverity(a.Severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		fmt.Fprintf(&b, "  %s %s\n", sev, a.Type)
	}

	fmt.Fprintf(&b, "\n  Total: %d alert(s)", len(m.alerts.Active))

	return b.String()
}

// loadDashboardData snapshots the registry and monitor.
func loadDashboardData() dataLoadedMsg {
	result := dataLoadedMsg{at: time.Now()}

	if Registry != nil {
		result.stats = Registry.GetStats()
		sessions := Registry.GetAllSessions()
		if len(sessions) > dashboardRecentSessions {
			sessions = sessions[:dashboardRecentSessions]
		}
		result.recent = sessions
	}

	if Monitor != nil {
		Monitor.CalculateDerivedMetrics()
		summary := Monitor.GetMetricsSummary()
		result.summary = &summary
		result.alerts = Monitor.GetAlertsForDashboard()
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for sessions, metrics and alerts",
	Long: `Launch an interactive terminal dashboard showing live sessions, derived
metrics, component health and active alerts. The view reloads on the
--refresh interval while the flush and health jobs run in the background.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil || Monitor == nil {
			return fmt.Errorf("pipeline not initialized")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if StartPipeline != nil {
			if err := StartPipeline(ctx); err != nil {
				return err
			}
		}

		p := tea.NewProgram(newDashboardModel(dashboardRefresh, loadDashboardData), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err := p.Run()
		return err
	},
}

func init() {
	dashboardCmd.Flags().DurationVar(&dashboardRefresh, "refresh", 2*time.Second, "Reload interval (0 to disable)")
	rootCmd.AddCommand(dashboardCmd)
}
