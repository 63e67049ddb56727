package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// DefaultSunnyThreshold is the highest average cloud cover still counted as sunny.
const DefaultSunnyThreshold = 35.0

// SunnyDay is the verdict for one observed (lead-0) day.
type SunnyDay struct {
	DateFor     time.Time              `json:"date_for"`
	Blocks      weather.BlockAverages  `json:"blocks"`
	Sunny       bool                   `json:"sunny"`
	SunnyBlocks map[weather.Block]bool `json:"sunny_blocks"`
}

// SunnyStats tallies sunny days and sunny day blocks for a location.
type SunnyStats struct {
	Location    string                `json:"location"`
	Threshold   float64               `json:"threshold"`
	Sources     []string              `json:"sources,omitempty"`
	TotalDays   int                   `json:"total_days"`
	SunnyDays   int                   `json:"sunny_days"`
	SunnyBlocks map[weather.Block]int `json:"sunny_blocks"`
	Days        []SunnyDay            `json:"days"`
}

// IsSunnyDay reports whether the mean of the present block averages is at
// most threshold. A day without any data is not sunny.
func IsSunnyDay(blocks weather.BlockAverages, threshold float64) bool {
	mean, ok := blocks.Mean()
	return ok && mean <= threshold
}

// SunnyBlocksOf reports, per block, whether its average is at most threshold.
func SunnyBlocksOf(blocks weather.BlockAverages, threshold float64) map[weather.Block]bool {
	out := make(map[weather.Block]bool, len(weather.Blocks))
	for _, b := range weather.Blocks {
		v := blocks[b]
		out[b] = v != nil && *v <= threshold
	}
	return out
}

// Sunny evaluates the lead-0 records of location (case-insensitive), averaging
// the selected sources; an empty selection uses every source. Days are in
// date order.
func Sunny(records []weather.ForecastRecord, location string, threshold float64, sources []string) SunnyStats {
	stats := SunnyStats{
		Location:    location,
		Threshold:   threshold,
		Sources:     sources,
		SunnyBlocks: make(map[weather.Block]int, len(weather.Blocks)),
		Days:        []SunnyDay{},
	}
	for _, b := range weather.Blocks {
		stats.SunnyBlocks[b] = 0
	}

	want := strings.ToLower(strings.TrimSpace(location))
	seen := make(map[string]bool)
	for _, rec := range records {
		k := rec.Key()
		if rec.LeadDays != 0 || k.Location != want || seen[k.DateFor] {
			continue
		}
		seen[k.DateFor] = true

		blocks := weather.AggregateBlocks(rec, sources)
		day := SunnyDay{
			DateFor:     rec.DateFor,
			Blocks:      blocks,
			Sunny:       IsSunnyDay(blocks, threshold),
			SunnyBlocks: SunnyBlocksOf(blocks, threshold),
		}
		stats.Days = append(stats.Days, day)
		stats.TotalDays++
		if day.Sunny {
			stats.SunnyDays++
		}
		for b, sunny := range day.SunnyBlocks {
			if sunny {
				stats.SunnyBlocks[b]++
			}
		}
	}

	sort.Slice(stats.Days, func(i, j int) bool {
		return stats.Days[i].DateFor.Before(stats.Days[j].DateFor)
	})
	return stats
}
