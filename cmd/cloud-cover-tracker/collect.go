package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

var (
	collectLocations []string
	collectLeadDays  []int
	collectJSON      bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle now and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := weather.CheckLeadDays(collectLeadDays); err != nil {
			return fmt.Errorf("--lead-days: %w", err)
		}

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		locations := cfg.Locations
		if len(collectLocations) > 0 {
			locations = collectLocations
		}
		leads := cfg.LeadDays
		if len(collectLeadDays) > 0 {
			leads = collectLeadDays
		}

		summary := env.Service.Collect(ctx, locations, leads)

		if collectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		printRunSummary(os.Stdout, summary, env.Calls.Snapshot())
		return nil
	},
}

func init() {
	collectCmd.Flags().StringSliceVar(&collectLocations, "location", nil, "locations to collect (defaults to LOCATIONS)")
	collectCmd.Flags().IntSliceVar(&collectLeadDays, "lead-days", nil, "target-date offsets in days (defaults to LEAD_DAYS)")
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "print the run summary as JSON")
}

func printRunSummary(out io.Writer, s weather.RunSummary, calls map[string]int64) {
	fmt.Fprintf(out, "Run %s: %d saved, %d skipped, %d failed in %s\n",
		s.RunID, s.Saved, s.Skipped, s.Failed, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if len(s.UnusableProviders) > 0 {
		fmt.Fprintf(out, "Unusable providers: %s\n", strings.Join(s.UnusableProviders, ", "))
	}
	if len(s.RejectedLeadDays) > 0 {
		fmt.Fprintf(out, "Rejected lead days: %v\n", s.RejectedLeadDays)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATION\tDATE\tLEAD\tRESULT")
	for _, loc := range s.Locations {
		if loc.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\terror: %s\n", loc.Location, loc.Error)
			continue
		}
		for _, r := range loc.Records {
			result := r.Status
			if r.Error != "" {
				result += ": " + r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", loc.Location, r.Key.DateFor, r.Key.LeadDays, result)
		}
	}
	w.Flush()

	if len(calls) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tCALLS")
		for _, name := range sortedKeys(calls) {
			fmt.Fprintf(w, "%s\t%d\n", name, calls[name])
		}
		w.Flush()
	}
}
