package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/i474232898/cloud-cover-tracker/internal/analysis"
	"github.com/i474232898/cloud-cover-tracker/internal/store"
	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

var (
	analyzeTolerance   int
	analyzeByLead      bool
	analyzeThreshold   int
	analyzeLocation    string
	analyzeFlaggedOnly bool
	analyzeSunny       float64
	analyzeSources     []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze stored forecasts",
}

var analyzeAccuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Rank providers by agreement of 3- and 5-day forecasts with same-day actuals",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecords(cmd)
		if err != nil {
			return err
		}
		tol := cfg.AccuracyTolerance
		if cmd.Flags().Changed("tolerance") {
			tol = analyzeTolerance
		}
		rows := analysis.RankAccuracy(records, tol)
		if analyzeByLead {
			rows = analysis.RankAccuracyByLead(records, tol)
		}
		printAccuracy(os.Stdout, rows, tol, analyzeByLead)
		return nil
	},
}

var analyzeDiscrepanciesCmd = &cobra.Command{
	Use:   "discrepancies",
	Short: "Flag hours where providers or forecast ages disagree beyond a threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecords(cmd)
		if err != nil {
			return err
		}
		if analyzeLocation != "" {
			if records, err = store.FilterByLocation(records, analyzeLocation); err != nil {
				return fmt.Errorf("%s: %w", analyzeLocation, err)
			}
		}
		threshold := cfg.DiscrepancyThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = analyzeThreshold
		}
		printDiscrepancies(os.Stdout, analysis.FindDiscrepancies(records, threshold), analyzeFlaggedOnly)
		return nil
	},
}

var analyzeSunnyCmd = &cobra.Command{
	Use:   "sunny",
	Short: "Count sunny days and day blocks among same-day observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecords(cmd)
		if err != nil {
			return err
		}
		threshold := cfg.SunnyThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = analyzeSunny
		}
		printSunny(os.Stdout, analysis.Sunny(records, analyzeLocation, threshold, analyzeSources))
		return nil
	},
}

func init() {
	analyzeAccuracyCmd.Flags().IntVar(&analyzeTolerance, "tolerance", analysis.DefaultTolerance, "accepted difference in percentage points (defaults to ACCURACY_TOLERANCE)")
	analyzeAccuracyCmd.Flags().BoolVar(&analyzeByLead, "by-lead", false, "split rows per forecast age")

	analyzeDiscrepanciesCmd.Flags().IntVar(&analyzeThreshold, "threshold", 10, "spread in percentage points above which readings are flagged (defaults to DISCREPANCY_THRESHOLD)")
	analyzeDiscrepanciesCmd.Flags().StringVar(&analyzeLocation, "location", "", "restrict to one location")
	analyzeDiscrepanciesCmd.Flags().BoolVar(&analyzeFlaggedOnly, "flagged-only", false, "print only discrepant readings")

	analyzeSunnyCmd.Flags().StringVar(&analyzeLocation, "location", "", "location to evaluate")
	analyzeSunnyCmd.Flags().Float64Var(&analyzeSunny, "threshold", analysis.DefaultSunnyThreshold, "highest average cloud cover counted as sunny (defaults to SUNNY_THRESHOLD)")
	analyzeSunnyCmd.Flags().StringSliceVar(&analyzeSources, "sources", nil, "providers to average (defaults to all)")
	_ = analyzeSunnyCmd.MarkFlagRequired("location")

	analyzeCmd.AddCommand(analyzeAccuracyCmd, analyzeDiscrepanciesCmd, analyzeSunnyCmd)
}

func readRecords(cmd *cobra.Command) ([]weather.ForecastRecord, error) {
	st, closeStore, err := initStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return st.All(cmd.Context())
}

func printAccuracy(out io.Writer, rows []analysis.AccuracyRow, tolerance int, byLead bool) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No data available: no same-day actuals to compare against.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "PROVIDER\tTOTAL\tCORRECT (±%d%%)\tACCURACY\n"
	if byLead {
		header = "PROVIDER\tLEAD\tTOTAL\tCORRECT (±%d%%)\tACCURACY\n"
	}
	fmt.Fprintf(w, header, tolerance)
	for _, r := range rows {
		if byLead {
			fmt.Fprintf(w, "%s\t%dd\t%d\t%d\t%.2f%%\n", r.Provider, r.LeadDays, r.Total, r.Correct, r.AccuracyPercent)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\n", r.Provider, r.Total, r.Correct, r.AccuracyPercent)
	}
	w.Flush()
}

func printDiscrepancies(out io.Writer, groups []analysis.DateDiscrepancies, flaggedOnly bool) {
	if len(groups) == 0 {
		fmt.Fprintln(out, "No data available.")
		return
	}
	for _, g := range groups {
		ages := make([]string, len(g.LeadDays))
		for i, d := range g.LeadDays {
			ages[i] = fmt.Sprintf("%dd", d)
		}
		fmt.Fprintf(out, "%s %s (includes %s forecasts, %d flagged)\n",
			g.Location, g.DateFor.Format(weather.DateLayout), strings.Join(ages, ", "), g.Flagged)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HOUR\tSOURCE\tLEAD\tCLOUD COVER\t")
		for _, r := range g.Rows {
			if flaggedOnly && !r.Discrepant {
				continue
			}
			mark := ""
			if r.Discrepant {
				mark = "!"
			}
			fmt.Fprintf(w, "%s\t%s\t%dd\t%s\t%s\n", r.Hour, r.Source, r.LeadDays, r.Value, mark)
		}
		w.Flush()
		fmt.Fprintln(out)
	}
}

func printSunny(out io.Writer, s analysis.SunnyStats) {
	if s.TotalDays == 0 {
		fmt.Fprintf(out, "No same-day observations for %s.\n", s.Location)
		return
	}
	fmt.Fprintf(out, "%s: %d of %d days sunny (average cloud cover <= %.0f%%)\n",
		s.Location, s.SunnyDays, s.TotalDays, s.Threshold)
	for _, b := range weather.Blocks {
		fmt.Fprintf(out, "  %-9s sunny on %d days\n", b, s.SunnyBlocks[b])
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tMORNING\tAFTERNOON\tEVENING\tSUNNY")
	for _, d := range s.Days {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			d.DateFor.Format(weather.DateLayout),
			formatAvg(d.Blocks[weather.BlockMorning]),
			formatAvg(d.Blocks[weather.BlockAfternoon]),
			formatAvg(d.Blocks[weather.BlockEvening]),
			d.Sunny)
	}
	w.Flush()
}

func formatAvg(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
