// Package analysis replays stored forecast records to measure how providers
// and forecast ages disagree with each other and with same-day actuals.
package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// DiscrepancyRow is one reading of a (location, date) group.
type DiscrepancyRow struct {
	Hour       string          `json:"hour"`
	Source     string          `json:"source"`
	LeadDays   int             `json:"lead_days"`
	Value      weather.Percent `json:"value"`
	Discrepant bool            `json:"discrepant"`
}

// DateDiscrepancies holds every reading for one location and target date,
// with discrepant readings flagged.
type DateDiscrepancies struct {
	Location string           `json:"location"`
	DateFor  time.Time        `json:"date_for"`
	LeadDays []int            `json:"lead_days"` // forecast ages present, descending
	Flagged  int              `json:"flagged"`
	Rows     []DiscrepancyRow `json:"rows"`
}

type groupKey struct {
	location string
	dateFor  string
}

func keyOf(rec weather.ForecastRecord) groupKey {
	k := rec.Key()
	return groupKey{location: k.Location, dateFor: k.DateFor}
}

// FindDiscrepancies groups records by location and target date and, for each
// hour, flags every present reading when the spread between the highest and
// lowest reading exceeds threshold. An hour with fewer than two present
// readings is never flagged. Groups are ordered by location then date.
func FindDiscrepancies(records []weather.ForecastRecord, threshold int) []DateDiscrepancies {
	var order []groupKey
	groups := make(map[groupKey]*DateDiscrepancies)
	for _, rec := range records {
		k := keyOf(rec)
		g, ok := groups[k]
		if !ok {
			g = &DateDiscrepancies{Location: rec.Location, DateFor: rec.DateFor}
			groups[k] = g
			order = append(order, k)
		}
		for _, src := range rec.Sources {
			for _, label := range weather.HourLabels() {
				g.Rows = append(g.Rows, DiscrepancyRow{
					Hour:     label,
					Source:   src.Source,
					LeadDays: rec.LeadDays,
					Value:    src.Readings[label],
				})
			}
		}
		if !containsInt(g.LeadDays, rec.LeadDays) {
			g.LeadDays = append(g.LeadDays, rec.LeadDays)
		}
	}

	out := make([]DateDiscrepancies, 0, len(order))
	for _, k := range order {
		g := groups[k]
		flagGroup(g, threshold)
		sort.Sort(sort.Reverse(sort.IntSlice(g.LeadDays)))
		sort.SliceStable(g.Rows, func(i, j int) bool {
			a, b := g.Rows[i], g.Rows[j]
			if a.Hour != b.Hour {
				return a.Hour < b.Hour
			}
			if a.Source != b.Source {
				return a.Source < b.Source
			}
			return a.LeadDays > b.LeadDays
		})
		out = append(out, *g)
	}

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i].Location), strings.ToLower(out[j].Location)
		if li != lj {
			return li < lj
		}
		return out[i].DateFor.Before(out[j].DateFor)
	})
	return out
}

func flagGroup(g *DateDiscrepancies, threshold int) {
	type spread struct {
		min, max, n int
	}
	byHour := make(map[string]*spread)
	for _, row := range g.Rows {
		v, ok := row.Value.Value()
		if !ok {
			continue
		}
		s, exists := byHour[row.Hour]
		if !exists {
			byHour[row.Hour] = &spread{min: v, max: v, n: 1}
			continue
		}
		s.min = min(s.min, v)
		s.max = max(s.max, v)
		s.n++
	}

	for i := range g.Rows {
		row := &g.Rows[i]
		if !row.Value.Valid() {
			continue
		}
		s := byHour[row.Hour]
		if s.n >= 2 && s.max-s.min > threshold {
			row.Discrepant = true
			g.Flagged++
		}
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
