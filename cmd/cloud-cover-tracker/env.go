package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/cloud-cover-tracker/internal/config"
	"github.com/i474232898/cloud-cover-tracker/internal/geo"
	"github.com/i474232898/cloud-cover-tracker/internal/metrics"
	"github.com/i474232898/cloud-cover-tracker/internal/store"
	"github.com/i474232898/cloud-cover-tracker/internal/weather"
	"github.com/i474232898/cloud-cover-tracker/internal/weather/providers"
)

// appEnv bundles the collaborators shared by the commands.
type appEnv struct {
	Store   weather.Store
	Service *weather.Service
	Calls   *metrics.CallCounter
	closers []func() error
}

// Close releases resources opened by initEnv.
func (e *appEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

// initStore opens the record store selected by STORE_DRIVER.
func initStore(ctx context.Context, c *config.AppConfig) (weather.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.StoreDriver {
	case "json":
		return store.NewJSONFileStore(c.StorePath), noop, nil
	case "sqlite":
		s, err := store.NewSQLite(ctx, c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return store.NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
}

// initEnv wires the store, providers, geocoders and collection service.
func initEnv(ctx context.Context, c *config.AppConfig) (*appEnv, error) {
	st, closeStore, err := initStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	calls := metrics.NewCallCounter()
	client := &http.Client{Timeout: c.HTTPTimeout}
	common := []providers.Option{
		providers.WithRetry(c.RetryAttempts, c.RetryDelay),
		providers.WithTimeout(c.HTTPTimeout),
		providers.WithCallRecorder(calls),
	}

	owm := providers.NewOpenWeatherProvider(client, c.OpenWeatherAPIKey, common...)
	om := providers.NewOpenMeteoProvider(client, append(common, providers.WithRateLimit(c.OpenMeteoRPS))...)

	provs := []weather.Provider{owm, om}
	if c.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(client, c.WeatherAPIKey, common...))
	}
	if c.OpenWeatherAPIKey == "" {
		log.Warn().Str("provider", owm.Name()).Msg("OPENWEATHER_API_KEY not set; its readings will be missing and geocoding falls back to Open-Meteo")
	}

	svc := weather.NewService(st, weather.GeocoderChain{owm, om}, provs,
		weather.WithWorkers(c.Workers),
		weather.WithTimezoneResolver(geo.NewTZFResolver()),
	)

	return &appEnv{
		Store:   st,
		Service: svc,
		Calls:   calls,
		closers: []func() error{closeStore},
	}, nil
}
