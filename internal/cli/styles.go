package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusTimeout   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	severityCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Underline(true)
	severityHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow      = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	levelError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	levelWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func styleForStatus(status models.SessionStatus) lipgloss.Style {
	switch status {
	case models.SessionRunning:
		return statusRunning
	case models.SessionCompleted:
		return statusCompleted
	case models.SessionFailed:
		return statusFailed
	case models.SessionTimeout:
		return statusTimeout
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(sev models.AlertSeverity) lipgloss.Style {
	switch sev {
	case models.SeverityCritical:
		return severityCritical
	case models.SeverityHigh:
		return severityHigh
	case models.SeverityMedium:
		return severityMedium
	case models.SeverityLow:
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func styleForLevel(level models.LogLevel) lipgloss.Style {
	switch level {
	case models.LevelError:
		return levelError
	case models.LevelWarn:
		return levelWarn
	case models.LevelDebug:
		return dimStyle
	default:
		return lipgloss.NewStyle()
	}
}

func styleForHealth(status models.HealthStatus) lipgloss.Style {
	switch status {
	case models.HealthHealthy:
		return statusCompleted
	case models.HealthDegraded:
		return statusRunning
	case models.HealthUnhealthy:
		return statusFailed
	default:
		return lipgloss.NewStyle()
	}
}
