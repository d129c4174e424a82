package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

var severityOrder = []models.AlertSeverity{
	models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow,
}

// renderAlerts prints the active alerts, newest first, with a per-severity
// tally.
func renderAlerts(w io.Writer, d models.AlertDashboard) {
	fmt.Fprintln(w, headerStyle.Render("Alerts"))
	if len(d.Active) == 0 {
		fmt.Fprintln(w, "  No active alerts.")
		if n := len(d.Acknowledged); n > 0 {
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %d acknowledged", n)))
		}
		return
	}

	var tally []string
	for _, sev := range severityOrder {
		if n := d.BySeverity[string(sev)]; n > 0 {
			tally = append(tally, styleForSeverity(sev).Render(fmt.Sprintf("%d %s", n, sev)))
		}
	}
	fmt.Fprintf(w, "  %d active alert(s): %s\n\n", len(d.Active), strings.Join(tally, ", "))

	for _, a := range d.Active {
		sev := styleForSeverity(a.Severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		fmt.Fprintf(w, "  %s %s\n", sev, a.Type)
		fmt.Fprintf(w, "         %s  %s\n", a.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"), dimStyle.Render(a.ID))
		if details := formatAlertDetails(a.Details); details != "" {
			fmt.Fprintf(w, "         %s\n", details)
		}
	}
}

func formatAlertDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}
