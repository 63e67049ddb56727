package analysis

import (
	"math"
	"sort"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// DefaultTolerance is the accepted absolute difference, in percentage points,
// between a forecast and the same-day actual.
const DefaultTolerance = 10

// ForecastLeads are the forecast ages compared against the actual.
var ForecastLeads = []int{3, 5}

// AccuracyRow is a provider's agreement with same-day actuals. LeadDays is
// zero when the row aggregates every forecast age.
type AccuracyRow struct {
	Provider        string  `json:"provider"`
	LeadDays        int     `json:"lead_days,omitempty"`
	Total           int     `json:"total_comparisons"`
	Correct         int     `json:"correct_comparisons"`
	AccuracyPercent float64 `json:"accuracy_percent"`
}

type tallyKey struct {
	provider string
	lead     int
}

type tally struct {
	total, correct int
}

// RankAccuracy compares every forecast of ForecastLeads age with the lead-0
// record of the same location and date, reading by reading and provider by
// provider. A comparison is correct when the difference is at most tolerance.
// Groups without a lead-0 record contribute nothing, so the result is empty
// when no actual exists. Rows are sorted by accuracy, highest first.
func RankAccuracy(records []weather.ForecastRecord, tolerance int) []AccuracyRow {
	merged := make(map[tallyKey]*tally)
	for k, t := range compare(records, tolerance) {
		mk := tallyKey{provider: k.provider}
		if merged[mk] == nil {
			merged[mk] = &tally{}
		}
		merged[mk].total += t.total
		merged[mk].correct += t.correct
	}
	return rows(merged)
}

// RankAccuracyByLead is RankAccuracy split per (provider, forecast age).
func RankAccuracyByLead(records []weather.ForecastRecord, tolerance int) []AccuracyRow {
	return rows(compare(records, tolerance))
}

func compare(records []weather.ForecastRecord, tolerance int) map[tallyKey]*tally {
	byGroup := make(map[groupKey]map[int]weather.ForecastRecord)
	for _, rec := range records {
		k := keyOf(rec)
		if byGroup[k] == nil {
			byGroup[k] = make(map[int]weather.ForecastRecord)
		}
		// First record per lead wins.
		if _, ok := byGroup[k][rec.LeadDays]; !ok {
			byGroup[k][rec.LeadDays] = rec
		}
	}

	out := make(map[tallyKey]*tally)
	for _, leads := range byGroup {
		actual, ok := leads[0]
		if !ok {
			continue
		}
		for _, lead := range ForecastLeads {
			forecast, ok := leads[lead]
			if !ok {
				continue
			}
			for _, predicted := range forecast.Sources {
				observed, ok := actual.Source(predicted.Source)
				if !ok {
					continue
				}
				for label, pv := range predicted.Readings {
					p, okP := pv.Value()
					a, okA := observed.Readings[label].Value()
					if !okP || !okA {
						continue
					}
					k := tallyKey{provider: predicted.Source, lead: lead}
					if out[k] == nil {
						out[k] = &tally{}
					}
					out[k].total++
					if abs(p-a) <= tolerance {
						out[k].correct++
					}
				}
			}
		}
	}
	return out
}

func rows(tallies map[tallyKey]*tally) []AccuracyRow {
	out := make([]AccuracyRow, 0, len(tallies))
	for k, t := range tallies {
		row := AccuracyRow{Provider: k.provider, LeadDays: k.lead, Total: t.total, Correct: t.correct}
		if t.total > 0 {
			row.AccuracyPercent = math.Round(float64(t.correct)/float64(t.total)*100*100) / 100
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccuracyPercent != out[j].AccuracyPercent {
			return out[i].AccuracyPercent > out[j].AccuracyPercent
		}
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].LeadDays < out[j].LeadDays
	})
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
