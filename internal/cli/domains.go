package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/scrapewatch/internal/core"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

var (
	domainsDate     string
	domainsProfiles bool
	domainsJSON     bool
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Group logs by domain",
	Long: `Group one day's captured logs by the hostname of their URL. Lines
without a URL land in "general"; lines whose URL cannot be parsed land in
"invalid-urls".

With --profiles the buckets are built from the domain store instead: one
entry per recorded scraping error and one per step that has succeeded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("session registry not initialized")
		}

		var buckets map[string]models.DomainLogs
		title := "Domains from domain store"
		if domainsProfiles {
			buckets = Registry.LoadScrapingErrorsByDomain()
		} else {
			date, err := resolveDate(domainsDate)
			if err != nil {
				return err
			}
			buckets = core.OrganizeLogsByDomain(Registry.LoadLogsFromFile(date))
			title = "Domains " + date
		}
		sorted := core.SortedDomains(buckets)

		out := cmd.OutOrStdout()
		if domainsJSON {
			return writeJSON(out, sorted)
		}
		if len(sorted) == 0 {
			fmt.Fprintln(out, "No domain activity.")
			return nil
		}
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s (%d)", title, len(sorted))))
		fmt.Fprintln(out)
		for _, b := range sorted {
			renderDomainRow(out, b)
		}
		return nil
	},
}

func renderDomainRow(w io.Writer, b models.DomainLogs) {
	last := "-"
	if !b.LastActivity.IsZero() {
		last = b.LastActivity.UTC().Format(time.RFC3339)
	}
	errs := fmt.Sprintf("%d errors", b.Errors)
	if b.Errors > 0 {
		errs = levelError.Render(errs)
	}
	warns := fmt.Sprintf("%d warnings", b.Warnings)
	if b.Warnings > 0 {
		warns = levelWarn.Render(warns)
	}
	fmt.Fprintf(w, "  %-32s %4d logs  %s  %s  %d ok  %s\n",
		b.Domain, b.Total, errs, warns, b.Successes, dimStyle.Render(last))
}

func init() {
	domainsCmd.Flags().StringVar(&domainsDate, "date", "", "Day to group (YYYY-MM-DD, default today UTC)")
	domainsCmd.Flags().BoolVar(&domainsProfiles, "profiles", false, "Group domain store entries instead of day logs")
	domainsCmd.Flags().BoolVar(&domainsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(domainsCmd)
}
