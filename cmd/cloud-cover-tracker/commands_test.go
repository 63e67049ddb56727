package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/cloud-cover-tracker/internal/analysis"
	"github.com/i474232898/cloud-cover-tracker/internal/config"
	"github.com/i474232898/cloud-cover-tracker/internal/store"
	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

func TestInitStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for driver, want := range map[string]any{
		"json":   &store.JSONFileStore{},
		"sqlite": &store.SQLiteStore{},
		"memory": &store.MemoryStore{},
	} {
		t.Run(driver, func(t *testing.T) {
			c := &config.AppConfig{
				StoreDriver: driver,
				StorePath:   filepath.Join(dir, "records.json"),
				SQLitePath:  filepath.Join(dir, "records.db"),
			}
			st, closeStore, err := initStore(ctx, c)
			require.NoError(t, err)
			defer closeStore()
			assert.IsType(t, want, st)
		})
	}

	_, _, err := initStore(ctx, &config.AppConfig{StoreDriver: "postgres"})
	assert.Error(t, err)
}

func TestPrintRunSummary(t *testing.T) {
	start := time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	s := weather.RunSummary{
		RunID:             "run-1",
		StartedAt:         start,
		FinishedAt:        start.Add(1500 * time.Millisecond),
		Saved:             1,
		Failed:            1,
		UnusableProviders: []string{"OpenWeatherMap.com"},
		RejectedLeadDays:  []int{-2},
		Locations: []weather.LocationOutcome{
			{Location: "Atlantis", Error: "location not found"},
			{Location: "Bristol", Records: []weather.RecordOutcome{
				{Key: weather.NewRecordKey("Bristol", day, 3), Status: "saved"},
			}},
		},
	}

	var buf bytes.Buffer
	printRunSummary(&buf, s, map[string]int64{"OpenMeteo.com": 2})
	out := buf.String()

	assert.Contains(t, out, "Run run-1: 1 saved, 0 skipped, 1 failed in 1.5s")
	assert.Contains(t, out, "Unusable providers: OpenWeatherMap.com")
	assert.Contains(t, out, "Rejected lead days: [-2]")
	assert.Contains(t, out, "error: location not found")
	assert.Contains(t, out, "18/10/2026")
	assert.Contains(t, out, "OpenMeteo.com")
}

func TestPrintAccuracy(t *testing.T) {
	var buf bytes.Buffer
	printAccuracy(&buf, nil, 10, false)
	assert.Contains(t, buf.String(), "No data available")

	buf.Reset()
	printAccuracy(&buf, []analysis.AccuracyRow{
		{Provider: "OpenMeteo.com", Total: 4, Correct: 3, AccuracyPercent: 75},
	}, 10, false)
	assert.Contains(t, buf.String(), "75.00%")
	assert.Contains(t, buf.String(), "±10%")
}

func TestPrintDiscrepancies(t *testing.T) {
	groups := []analysis.DateDiscrepancies{{
		Location: "Bristol",
		DateFor:  time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		LeadDays: []int{3, 0},
		Flagged:  1,
		Rows: []analysis.DiscrepancyRow{
			{Hour: "06:00 UTC", Source: "A", LeadDays: 3, Value: weather.PercentOf(80), Discrepant: true},
			{Hour: "06:00 UTC", Source: "A", LeadDays: 0, Value: weather.Missing()},
		},
	}}

	var buf bytes.Buffer
	printDiscrepancies(&buf, groups, true)
	out := buf.String()
	assert.Contains(t, out, "includes 3d, 0d forecasts, 1 flagged")
	assert.Contains(t, out, "80%")
	assert.NotContains(t, out, "n/a")
}

func TestCollectCmd_RejectsNegativeLeadDays(t *testing.T) {
	require.NoError(t, collectCmd.Flags().Set("lead-days", "0,-2"))
	t.Cleanup(func() { collectLeadDays = nil })

	collectCmd.SetContext(context.Background())
	err := collectCmd.RunE(collectCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrNegativeLeadDays)
	assert.Contains(t, err.Error(), "--lead-days")
}
