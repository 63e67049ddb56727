package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// WeatherAPIName is the source label of WeatherAPI.com readings.
const WeatherAPIName = "WeatherAPI.com"

// weatherAPIMaxDays is the longest forecast the API serves.
const weatherAPIMaxDays = 14

// WeatherAPIProvider implements weather.Provider for the WeatherAPI.com hourly forecast.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	o := buildOptions(client, "https://api.weatherapi.com/v1/forecast.json", "", opts)

	return &WeatherAPIProvider{
		name:    WeatherAPIName,
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: o.httpCfg,
		circuit: newCircuitBreaker("weatherapi"),
		now:     time.Now,
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPIForecastPayload struct {
	Forecast *struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Hour []struct {
				TimeEpoch int64 `json:"time_epoch"`
				Cloud     any   `json:"cloud"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Fetch downloads enough forecast days to reach date. Hours are keyed by
// their UTC instant so matching is independent of the location's zone.
func (p *WeatherAPIProvider) Fetch(ctx context.Context, coords weather.Coordinates, date time.Time) (weather.Dataset, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: weatherapi api key is not configured", weather.ErrMissingCredential)
	}

	// One extra day covers the UTC/local offset at either end.
	days := weather.LeadDays(p.now(), date) + 2
	if days > weatherAPIMaxDays {
		days = weatherAPIMaxDays
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
	values.Set("days", fmt.Sprintf("%d", days))
	values.Set("aqi", "no")
	values.Set("alerts", "no")

	var payload weatherAPIForecastPayload
	if err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Forecast == nil {
		return nil, fmt.Errorf("%w: weatherapi response has no forecast block", weather.ErrInvalidPayload)
	}

	hours := make(map[string]weather.Percent)
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			if h.TimeEpoch <= 0 {
				continue
			}
			hours[time.Unix(h.TimeEpoch, 0).UTC().Format(openMeteoTimeLayout)] = weather.ParsePercent(h.Cloud)
		}
	}
	return &HourlyForecast{Hours: hours, Layout: openMeteoTimeLayout}, nil
}
