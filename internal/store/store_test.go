package store

import (
	"time"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

var testDay = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

func sampleRecord(location string, lead int) weather.ForecastRecord {
	readings := weather.Readings{}
	for i, h := range weather.ForecastHours {
		readings[weather.HourLabel(h)] = weather.PercentOf(10 * (i + 1))
	}
	readings[weather.HourLabel(18)] = weather.Missing()
	return weather.ForecastRecord{
		Location:    location,
		DateFor:     testDay,
		CollectedAt: testDay.AddDate(0, 0, -lead).Add(9*time.Hour + 30*time.Minute),
		LeadDays:    lead,
		Sources: []weather.SourceBlock{
			{Source: "OpenMeteo.com", Readings: readings, Summary: weather.Summarize(readings)},
		},
	}
}

var (
	_ weather.Store = (*MemoryStore)(nil)
	_ weather.Store = (*JSONFileStore)(nil)
	_ weather.Store = (*SQLiteStore)(nil)
)
