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

// OpenWeatherName is the source label of OpenWeatherMap readings.
const OpenWeatherName = "OpenWeatherMap.com"

// OpenWeatherProvider reads the free-tier 3-hour forecast of OpenWeatherMap
// (up to 5 days ahead) and geocodes place names through its direct geocoding API.
type OpenWeatherProvider struct {
	name       string
	apiKey     string
	baseURL    string
	geocodeURL string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	o := buildOptions(client,
		"https://api.openweathermap.org/data/2.5/forecast",
		"https://api.openweathermap.org/geo/1.0/direct",
		opts,
	)

	return &OpenWeatherProvider{
		name:       OpenWeatherName,
		apiKey:     apiKey,
		baseURL:    o.baseURL,
		geocodeURL: o.geocodeURL,
		httpCfg:    o.httpCfg,
		circuit:    newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owmGeocodeEntry struct {
	Name    string   `json:"name"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// ResolveCoordinates geocodes a place name with the first match.
func (p *OpenWeatherProvider) ResolveCoordinates(ctx context.Context, name string) (weather.Coordinates, error) {
	if p.apiKey == "" {
		return weather.Coordinates{}, fmt.Errorf("%w: openweather api key is not configured", weather.ErrMissingCredential)
	}

	values := url.Values{}
	values.Set("q", name)
	values.Set("limit", "1")
	values.Set("appid", p.apiKey)

	var payload []owmGeocodeEntry
	if err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.geocodeURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Coordinates{}, err
	}
	if len(payload) == 0 {
		return weather.Coordinates{}, fmt.Errorf("%w: %q", weather.ErrLocationNotFound, name)
	}
	first := payload[0]
	if first.Lat == nil || first.Lon == nil {
		return weather.Coordinates{}, fmt.Errorf("%w: geocoding result for %q has no coordinates", weather.ErrInvalidPayload, name)
	}
	return weather.Coordinates{Lat: *first.Lat, Lon: *first.Lon}, nil
}

type owmForecastPayload struct {
	List *[]struct {
		Dt     int64 `json:"dt"`
		Clouds *struct {
			All any `json:"all"`
		} `json:"clouds"`
	} `json:"list"`
}

// Fetch downloads the multi-day 3-hour forecast. The same dataset covers
// every target date inside the provider's window.
func (p *OpenWeatherProvider) Fetch(ctx context.Context, coords weather.Coordinates, _ time.Time) (weather.Dataset, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: openweather api key is not configured", weather.ErrMissingCredential)
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	values.Set("units", "metric")
	values.Set("appid", p.apiKey)

	var payload owmForecastPayload
	if err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.List == nil {
		return nil, fmt.Errorf("%w: openweather forecast has no list", weather.ErrInvalidPayload)
	}

	entries := make([]IntervalEntry, 0, len(*payload.List))
	for _, e := range *payload.List {
		if e.Dt <= 0 {
			continue
		}
		cover := weather.Missing()
		if e.Clouds != nil {
			cover = weather.ParsePercent(e.Clouds.All)
		}
		entries = append(entries, IntervalEntry{At: time.Unix(e.Dt, 0).UTC(), Cover: cover})
	}

	return &IntervalForecast{Entries: entries, MaxDistance: 3 * time.Hour}, nil
}

// IntervalEntry is one forecast slot of an interval forecast.
type IntervalEntry struct {
	At    time.Time
	Cover weather.Percent
}

// IntervalForecast is a coarse forecast matched by nearest timestamp.
type IntervalForecast struct {
	Entries []IntervalEntry
	// MaxDistance bounds how far the nearest slot may be from the target
	// before the target counts as outside the window. Zero means unbounded.
	MaxDistance time.Duration
}

// CloudCoverAt returns the reading of the slot closest to target; ties go to
// the earliest listed slot.
func (f *IntervalForecast) CloudCoverAt(target time.Time) weather.Percent {
	best := -1
	var bestDiff time.Duration
	for i, e := range f.Entries {
		diff := e.At.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	if best < 0 {
		return weather.Missing()
	}
	if f.MaxDistance > 0 && bestDiff > f.MaxDistance {
		return weather.Missing()
	}
	return f.Entries[best].Cover
}
