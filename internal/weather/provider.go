package weather

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLocationNotFound is returned when geocoding yields no result.
	ErrLocationNotFound = errors.New("location not found")
	// ErrMissingCredential is returned when a provider needs an API key that is not configured.
	ErrMissingCredential = errors.New("missing credential")
	// ErrNoData is returned when a provider could not deliver usable data after retries.
	ErrNoData = errors.New("no data")
	// ErrInvalidPayload is returned when a response or stored entry fails schema validation.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNegativeLeadDays is returned for target offsets before the collection day.
	ErrNegativeLeadDays = errors.New("lead days must not be negative")
)

// Geocoder resolves a free-text place name to coordinates.
type Geocoder interface {
	ResolveCoordinates(ctx context.Context, name string) (Coordinates, error)
}

// Dataset is a provider's prefetched forecast for one location.
type Dataset interface {
	// CloudCoverAt returns the reading for a UTC target hour, or missing when
	// the target is outside the dataset's window.
	CloudCoverAt(target time.Time) Percent
}

// Provider abstracts a cloud-cover forecast source
// (e.g. OpenWeatherMap, Open-Meteo, WeatherAPI).
type Provider interface {
	// Name is the source label written into records.
	Name() string
	// Fetch downloads the provider's forecast covering the given UTC date.
	Fetch(ctx context.Context, coords Coordinates, date time.Time) (Dataset, error)
}

// CloudCoverAt returns a provider's reading at target, reusing prefetched
// data when supplied and fetching it otherwise.
func CloudCoverAt(ctx context.Context, p Provider, coords Coordinates, target time.Time, prefetched Dataset) (Percent, error) {
	data := prefetched
	if data == nil {
		var err error
		data, err = p.Fetch(ctx, coords, target)
		if err != nil {
			return Missing(), err
		}
	}
	return data.CloudCoverAt(target.UTC()), nil
}

// AppendResult reports what a store did with a record.
type AppendResult int

const (
	Saved AppendResult = iota
	SkippedDuplicate
)

func (r AppendResult) String() string {
	switch r {
	case Saved:
		return "saved"
	case SkippedDuplicate:
		return "skipped"
	default:
		return "unknown"
	}
}

// Store is the contract every record store (JSON file, SQLite, memory) satisfies.
type Store interface {
	// Append persists rec unless a record with the same key already exists.
	Append(ctx context.Context, rec ForecastRecord) (AppendResult, error)
	// All returns every stored record in insertion order.
	All(ctx context.Context) ([]ForecastRecord, error)
}

// TimezoneResolver finds the time zone at a coordinate.
type TimezoneResolver interface {
	Location(coords Coordinates) (*time.Location, error)
}

// CallRecorder counts outbound provider calls.
type CallRecorder interface {
	Inc(provider string)
}
