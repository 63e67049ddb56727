package weather

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Wire formats of the persisted collection.
const (
	DateLayout      = "02/01/2006"
	TimestampLayout = "02/01/2006 15:04"
)

// ForecastHours are the fixed UTC hours sampled for every record.
var ForecastHours = []int{6, 9, 12, 15, 18}

// HourLabel returns the reading key for a UTC hour, e.g. "06:00 UTC".
func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00 UTC", hour)
}

// HourLabels returns the labels of ForecastHours in hour order.
func HourLabels() []string {
	labels := make([]string, len(ForecastHours))
	for i, h := range ForecastHours {
		labels[i] = HourLabel(h)
	}
	return labels
}

// Coordinates is a resolved location.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Readings maps an hour label to a cloud-cover percentage.
// Hour labels are zero-padded, so sorted keys are in hour order.
type Readings map[string]Percent

// Labels returns the reading keys sorted in hour order.
func (r Readings) Labels() []string {
	labels := make([]string, 0, len(r))
	for k := range r {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

// Summary holds the qualitative sky labels for the three day blocks.
type Summary struct {
	Morning   string `json:"morning"`
	Afternoon string `json:"afternoon"`
	Evening   string `json:"evening"`
}

// SourceBlock is one provider's contribution to a ForecastRecord.
type SourceBlock struct {
	Source   string   `json:"source"`
	Readings Readings `json:"data"`
	Summary  Summary  `json:"summary"`
}

// ForecastRecord is the canonical persisted unit: one location's cloud-cover
// forecast for one target date, as seen LeadDays before that date.
type ForecastRecord struct {
	Location    string
	DateFor     time.Time // UTC midnight of the forecast day
	CollectedAt time.Time // local time at the location
	LeadDays    int
	Sources     []SourceBlock
}

// Source returns the block for the named provider.
func (r ForecastRecord) Source(name string) (SourceBlock, bool) {
	for _, s := range r.Sources {
		if s.Source == name {
			return s, true
		}
	}
	return SourceBlock{}, false
}

// Key returns the uniqueness key of the record.
func (r ForecastRecord) Key() RecordKey {
	return NewRecordKey(r.Location, r.DateFor, r.LeadDays)
}

// RecordKey identifies a record in a store: location (case-insensitive),
// target date and lead time.
type RecordKey struct {
	Location string
	DateFor  string
	LeadDays int
}

// NewRecordKey builds a RecordKey with a normalized location.
func NewRecordKey(location string, dateFor time.Time, leadDays int) RecordKey {
	return RecordKey{
		Location: strings.ToLower(strings.TrimSpace(location)),
		DateFor:  dateFor.Format(DateLayout),
		LeadDays: leadDays,
	}
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s %s (%d days before)", k.Location, k.DateFor, k.LeadDays)
}

type overviewWire struct {
	DateFor     string `json:"date_for"`
	CollectedAt string `json:"date_time_collected"`
	LeadDays    *int   `json:"num_of_days_between_forecast"`
}

type recordWire struct {
	Location   string        `json:"location"`
	Overview   overviewWire  `json:"overview"`
	CloudCover []SourceBlock `json:"cloud_cover"`
}

// MarshalJSON writes the record in the persisted collection layout.
func (r ForecastRecord) MarshalJSON() ([]byte, error) {
	lead := r.LeadDays
	sources := r.Sources
	if sources == nil {
		sources = []SourceBlock{}
	}
	return json.Marshal(recordWire{
		Location: r.Location,
		Overview: overviewWire{
			DateFor:     r.DateFor.Format(DateLayout),
			CollectedAt: r.CollectedAt.Format(TimestampLayout),
			LeadDays:    &lead,
		},
		CloudCover: sources,
	})
}

// UnmarshalJSON reads the persisted layout. Entries without a location,
// a parseable target date or a lead time are rejected with ErrInvalidPayload.
func (r *ForecastRecord) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(w.Location) == "" {
		return fmt.Errorf("%w: missing location", ErrInvalidPayload)
	}
	if w.Overview.LeadDays == nil {
		return fmt.Errorf("%w: missing num_of_days_between_forecast", ErrInvalidPayload)
	}
	dateFor, err := time.ParseInLocation(DateLayout, w.Overview.DateFor, time.UTC)
	if err != nil {
		return fmt.Errorf("%w: date_for: %v", ErrInvalidPayload, err)
	}

	// Collection time is informational; tolerate its absence.
	collected, err := time.ParseInLocation(TimestampLayout, w.Overview.CollectedAt, time.UTC)
	if err != nil {
		collected = time.Time{}
	}

	*r = ForecastRecord{
		Location:    w.Location,
		DateFor:     dateFor,
		CollectedAt: collected,
		LeadDays:    *w.Overview.LeadDays,
		Sources:     w.CloudCover,
	}
	return nil
}
