package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// AppConfig holds the application configuration. Every field is read from
// the environment variable named by its mapstructure tag, upper-cased.
type AppConfig struct {
	OpenWeatherAPIKey string `mapstructure:"openweather_api_key"`
	WeatherAPIKey     string `mapstructure:"weatherapi_api_key"`

	// Locations to collect, comma separated in the environment.
	LocationsRaw string   `mapstructure:"locations"`
	Locations    []string `mapstructure:"-" validate:"min=1,dive,required"`

	// LeadDays are the target-date offsets collected each run.
	LeadDaysRaw string `mapstructure:"lead_days"`
	LeadDays    []int  `mapstructure:"-" validate:"min=1,dive,gte=0,lte=14"`

	// CollectAt is the daily UTC collection time, HH:MM.
	CollectAt string `mapstructure:"collect_at" validate:"required,datetime=15:04"`

	HTTPTimeout   time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=1,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	OpenMeteoRPS  float64       `mapstructure:"openmeteo_rps" validate:"gte=0"`
	Workers       int           `mapstructure:"workers" validate:"gte=1"`

	StoreDriver string `mapstructure:"store_driver" validate:"oneof=json sqlite memory"`
	StorePath   string `mapstructure:"store_path" validate:"required_if=StoreDriver json"`
	SQLitePath  string `mapstructure:"sqlite_path" validate:"required_if=StoreDriver sqlite"`

	Port string `mapstructure:"port" validate:"required,numeric"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=console json"`

	AccuracyTolerance    int     `mapstructure:"accuracy_tolerance" validate:"gte=0,lte=100"`
	DiscrepancyThreshold int     `mapstructure:"discrepancy_threshold" validate:"gte=0,lte=100"`
	SunnyThreshold       float64 `mapstructure:"sunny_threshold" validate:"gte=0,lte=100"`
}

var defaults = map[string]any{
	"openweather_api_key":   "",
	"weatherapi_api_key":    "",
	"locations":             "London",
	"lead_days":             "0,3,5",
	"collect_at":            "06:00",
	"http_timeout":          "10s",
	"retry_attempts":        3,
	"retry_delay":           "2s",
	"openmeteo_rps":         1.0,
	"workers":               4,
	"store_driver":          "json",
	"store_path":            "data/cloud_cover.json",
	"sqlite_path":           "data/cloud_cover.db",
	"port":                  "8080",
	"log_level":             "info",
	"log_format":            "console",
	"accuracy_tolerance":    10,
	"discrepancy_threshold": 10,
	"sunny_threshold":       35.0,
}

var validate = validator.New()

// Load reads configuration from an optional .env file and the environment,
// applies defaults and validates the result.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Locations = splitList(cfg.LocationsRaw)

	leads, err := parseInts(cfg.LeadDaysRaw)
	if err != nil {
		return nil, fmt.Errorf("config: invalid LEAD_DAYS: %w", err)
	}
	cfg.LeadDays = leads

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", p)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}

// InitLogger configures the global zerolog logger.
func InitLogger(level, format string) error {
	return initLogger(os.Stderr, level, format)
}

func initLogger(w io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("config: parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}
