package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// OpenMeteoName is the source label of Open-Meteo readings.
const OpenMeteoName = "OpenMeteo.com"

// openMeteoTimeLayout is the hourly timestamp format returned by Open-Meteo.
const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteoProvider implements weather.Provider for the keyless Open-Meteo
// hourly forecast. Calls are spaced at one per second by default to respect
// the free tier's fair-use limit.
type OpenMeteoProvider struct {
	name       string
	baseURL    string
	geocodeURL string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, opts ...Option) *OpenMeteoProvider {
	opts = append([]Option{WithRateLimit(1)}, opts...)
	o := buildOptions(client,
		"https://api.open-meteo.com/v1/forecast",
		"https://geocoding-api.open-meteo.com/v1/search",
		opts,
	)

	return &OpenMeteoProvider{
		name:       OpenMeteoName,
		baseURL:    o.baseURL,
		geocodeURL: o.geocodeURL,
		httpCfg:    o.httpCfg,
		circuit:    newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoHourlyPayload struct {
	Hourly *struct {
		Time       []string `json:"time"`
		CloudCover []any    `json:"cloudcover"`
	} `json:"hourly"`
}

// Fetch downloads one UTC day of hourly cloud cover.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, coords weather.Coordinates, date time.Time) (weather.Dataset, error) {
	day := date.UTC().Format("2006-01-02")

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	values.Set("hourly", "cloudcover")
	// GMT keeps the hourly timestamps aligned with the UTC hour labels.
	values.Set("timezone", "GMT")
	values.Set("start_date", day)
	values.Set("end_date", day)

	var payload openMeteoHourlyPayload
	if err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Hourly == nil {
		return nil, fmt.Errorf("%w: open-meteo response has no hourly block", weather.ErrInvalidPayload)
	}
	if len(payload.Hourly.Time) != len(payload.Hourly.CloudCover) {
		return nil, fmt.Errorf("%w: open-meteo time/cloudcover length mismatch (%d != %d)",
			weather.ErrInvalidPayload, len(payload.Hourly.Time), len(payload.Hourly.CloudCover))
	}

	hours := make(map[string]weather.Percent, len(payload.Hourly.Time))
	for i, ts := range payload.Hourly.Time {
		if _, seen := hours[ts]; seen {
			continue
		}
		hours[ts] = weather.ParsePercent(payload.Hourly.CloudCover[i])
	}
	return &HourlyForecast{Hours: hours, Layout: openMeteoTimeLayout}, nil
}

type openMeteoGeocodePayload struct {
	Results []struct {
		Name      string   `json:"name"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Timezone  string   `json:"timezone"`
	} `json:"results"`
}

// ResolveCoordinates geocodes a place name through Open-Meteo's keyless
// geocoding API.
func (p *OpenMeteoProvider) ResolveCoordinates(ctx context.Context, name string) (weather.Coordinates, error) {
	values := url.Values{}
	values.Set("name", name)
	values.Set("count", "1")
	values.Set("format", "json")

	var payload openMeteoGeocodePayload
	if err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.geocodeURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Coordinates{}, err
	}
	if len(payload.Results) == 0 {
		return weather.Coordinates{}, fmt.Errorf("%w: %q", weather.ErrLocationNotFound, name)
	}
	first := payload.Results[0]
	if first.Latitude == nil || first.Longitude == nil {
		return weather.Coordinates{}, fmt.Errorf("%w: geocoding result for %q has no coordinates", weather.ErrInvalidPayload, name)
	}
	return weather.Coordinates{Lat: *first.Latitude, Lon: *first.Longitude}, nil
}

// HourlyForecast is matched by exact timestamp.
type HourlyForecast struct {
	// Hours maps a UTC timestamp formatted with Layout to its reading.
	Hours  map[string]weather.Percent
	Layout string
}

// CloudCoverAt returns the reading for exactly target, or missing.
func (f *HourlyForecast) CloudCoverAt(target time.Time) weather.Percent {
	v, ok := f.Hours[target.UTC().Format(f.Layout)]
	if !ok {
		return weather.Missing()
	}
	return v
}
