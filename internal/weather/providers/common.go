package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/cloud-cover-tracker/internal/metrics"
	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
	maxBodyBytes       = 8 << 20
	userAgent          = "cloud-cover-tracker/1.0"
)

// RetryConfig controls the fixed-delay retry policy.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first
	Delay       time.Duration // pause between attempts
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Timeout time.Duration // per attempt
	Retry   RetryConfig
	// Limiter spaces calls to the provider. Nil means unlimited.
	Limiter *rate.Limiter
	Calls   weather.CallRecorder
}

var (
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errNoHTTPClient = errors.New("http client not configured")
)

type options struct {
	baseURL    string
	geocodeURL string
	httpCfg    HTTPClientConfig
}

// Option configures a provider adapter.
type Option func(*options)

// WithBaseURL overrides the forecast endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithGeocodeURL overrides the geocoding endpoint.
func WithGeocodeURL(u string) Option {
	return func(o *options) { o.geocodeURL = u }
}

// WithRetry sets the attempt budget and the fixed delay between attempts.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(o *options) {
		o.httpCfg.Retry = RetryConfig{MaxAttempts: maxAttempts, Delay: delay}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.httpCfg.Timeout = d }
}

// WithRateLimit spaces calls at rps requests per second; 0 disables limiting.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		if rps <= 0 {
			o.httpCfg.Limiter = nil
			return
		}
		o.httpCfg.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithCallRecorder counts every outbound attempt.
func WithCallRecorder(r weather.CallRecorder) Option {
	return func(o *options) { o.httpCfg.Calls = r }
}

func buildOptions(client *http.Client, baseURL, geocodeURL string, opts []Option) options {
	o := options{
		baseURL:    baseURL,
		geocodeURL: geocodeURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: defaultTimeout,
			Retry: RetryConfig{
				MaxAttempts: defaultMaxAttempts,
				Delay:       defaultRetryDelay,
			},
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequestWithResilience GETs rawURL with a per-attempt timeout, provider
// rate limiting, fixed-delay retries and a circuit breaker. It returns the
// response body, or an error wrapping weather.ErrNoData once retries are
// exhausted.
func doRequestWithResilience(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	rawURL string,
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	attempts := cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		// Spacing wait only; the limiter's lock is released before the call.
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}
		if cfg.Calls != nil {
			cfg.Calls.Inc(provider)
		}

		log.Debug().Str("provider", provider).Int("attempt", attempt).Msg("provider request")

		result, err := cb.Execute(func() (interface{}, error) {
			return doOnce(ctx, cfg, rawURL)
		})
		if err == nil {
			body, ok := result.([]byte)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return body, nil
		}

		lastErr = err
		// If circuit is open, give up immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().Str("provider", provider).Err(err).Msg("circuit breaker open; not retrying")
			break
		}

		log.Warn().
			Str("provider", provider).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Err(err).
			Msg("provider request failed")

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(cfg.Retry.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
			attempt = attempts
		case <-timer.C:
		}
	}

	metrics.ProviderFailures.WithLabelValues(provider).Inc()
	log.Error().Str("provider", provider).Err(lastErr).Msg("provider request gave no data")
	return nil, fmt.Errorf("%w from %s: %v", weather.ErrNoData, provider, lastErr)
}

func doOnce(ctx context.Context, cfg HTTPClientConfig, rawURL string) ([]byte, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// getJSON fetches rawURL and decodes it into out. Decode failures wrap
// weather.ErrInvalidPayload.
func getJSON(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	rawURL string,
	out any,
) error {
	body, err := doRequestWithResilience(ctx, provider, cfg, cb, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w from %s: %v", weather.ErrInvalidPayload, provider, err)
	}
	return nil
}
