package weather

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/cloud-cover-tracker/internal/metrics"
)

// DefaultLeadDays are the conventional target offsets: today, +3 and +5 days.
var DefaultLeadDays = []int{0, 3, 5}

// Service orchestrates collection from multiple providers and persists records.
type Service struct {
	store     Store
	geocoder  Geocoder
	providers []Provider
	tz        TimezoneResolver
	workers   int
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithWorkers bounds the number of concurrently processed locations or
// (location, date) pairs.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimezoneResolver sets the resolver used for collectedAt.
func WithTimezoneResolver(tz TimezoneResolver) Option {
	return func(s *Service) {
		s.tz = tz
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(store Store, geocoder Geocoder, providers []Provider, opts ...Option) *Service {
	s := &Service{
		store:     store,
		geocoder:  geocoder,
		providers: providers,
		workers:   runtime.NumCPU(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Providers returns the configured provider names in record order.
func (s *Service) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Store exposes the underlying record store for readers.
func (s *Service) Store() Store {
	return s.store
}

// TargetDates returns UTC midnight of now shifted by each offset in days.
func TargetDates(now time.Time, offsets []int) []time.Time {
	base := midnightUTC(now)
	dates := make([]time.Time, len(offsets))
	for i, off := range offsets {
		dates[i] = base.AddDate(0, 0, off)
	}
	return dates
}

// LeadDays returns the whole days between the collection day and dateFor,
// both taken as UTC calendar days. It is never negative.
func LeadDays(collected, dateFor time.Time) int {
	d := int(midnightUTC(dateFor).Sub(midnightUTC(collected)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// CheckLeadDays reports ErrNegativeLeadDays if any offset is below zero.
func CheckLeadDays(offsets []int) error {
	if bad := negativeLeadDays(offsets); len(bad) > 0 {
		return fmt.Errorf("%w: %v", ErrNegativeLeadDays, bad)
	}
	return nil
}

func negativeLeadDays(offsets []int) []int {
	var bad []int
	for _, off := range offsets {
		if off < 0 {
			bad = append(bad, off)
		}
	}
	return bad
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RecordOutcome is the fate of one (location, date) record in a run.
type RecordOutcome struct {
	Key    RecordKey    `json:"key"`
	Result AppendResult `json:"-"`
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// LocationOutcome groups the outcomes of one location in a run.
type LocationOutcome struct {
	Location string          `json:"location"`
	Coords   *Coordinates    `json:"coords,omitempty"`
	Error    string          `json:"error,omitempty"`
	Records  []RecordOutcome `json:"records"`
}

// RunSummary reports a whole collection run.
type RunSummary struct {
	RunID             string            `json:"run_id"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
	Saved             int               `json:"saved"`
	Skipped           int               `json:"skipped"`
	Failed            int               `json:"failed"`
	UnusableProviders []string          `json:"unusable_providers,omitempty"`
	RejectedLeadDays  []int             `json:"rejected_lead_days,omitempty"`
	Locations         []LocationOutcome `json:"locations"`
}

type runIDKey struct{}

// ContextWithRunID makes Collect use id as the run identifier.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

type pairJob struct {
	locIdx int
	date   time.Time
	lead   int
}

// Collect runs one collection cycle: every location is geocoded once, then
// every (location, target date) pair is collected and appended to the store.
// Failures are logged and reported in the summary; they never abort the run.
func (s *Service) Collect(ctx context.Context, locations []string, offsets []int) RunSummary {
	runID := runIDFrom(ctx)
	logger := log.With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)

	started := s.now()
	summary := RunSummary{
		RunID:     runID,
		StartedAt: started,
		Locations: make([]LocationOutcome, len(locations)),
	}

	logger.Info().
		Int("locations", len(locations)).
		Ints("lead_days", offsets).
		Strs("providers", s.Providers()).
		Msg("collection run started")

	if len(s.providers) == 0 {
		logger.Error().Msg("no weather providers configured")
	}

	// dateFor never precedes the collection day.
	if bad := negativeLeadDays(offsets); len(bad) > 0 {
		logger.Error().Ints("lead_days", bad).Msg("rejecting negative lead days")
		summary.RejectedLeadDays = bad
		summary.Failed += len(bad)
		valid := make([]int, 0, len(offsets)-len(bad))
		for _, off := range offsets {
			if off >= 0 {
				valid = append(valid, off)
			}
		}
		offsets = valid
	}

	coords := make([]*Coordinates, len(locations))

	// Resolve coordinates once per location.
	var geo errgroup.Group
	geo.SetLimit(s.workers)
	for i, name := range locations {
		summary.Locations[i].Location = name
		geo.Go(func() error {
			c, err := s.geocoder.ResolveCoordinates(ctx, name)
			if err != nil {
				logger.Error().Err(err).Str("location", name).Msg("could not resolve location; skipping")
				summary.Locations[i].Error = err.Error()
				return nil
			}
			coords[i] = &c
			summary.Locations[i].Coords = &c
			return nil
		})
	}
	_ = geo.Wait()

	dates := TargetDates(started, offsets)
	var jobs []pairJob
	for i := range locations {
		if coords[i] == nil {
			continue
		}
		for _, d := range dates {
			jobs = append(jobs, pairJob{locIdx: i, date: d, lead: LeadDays(started, d)})
		}
	}

	var (
		mu       sync.Mutex
		unusable = make(map[string]bool)
		pairs    errgroup.Group
	)
	pairs.SetLimit(s.workers)
	for _, job := range jobs {
		pairs.Go(func() error {
			name := locations[job.locIdx]
			rec, bad := s.collectRecord(ctx, name, *coords[job.locIdx], job.date, job.lead)

			out := RecordOutcome{Key: rec.Key()}
			res, err := s.store.Append(ctx, rec)
			if err != nil {
				logger.Error().Err(err).Str("record", out.Key.String()).Msg("failed to store record")
				out.Status = "failed"
				out.Error = err.Error()
			} else {
				out.Result = res
				out.Status = res.String()
				ev := logger.Info()
				if res == SkippedDuplicate {
					ev = logger.Debug()
				}
				ev.Str("record", out.Key.String()).Str("result", res.String()).Msg("record processed")
			}

			mu.Lock()
			defer mu.Unlock()
			for _, p := range bad {
				unusable[p] = true
			}
			summary.Locations[job.locIdx].Records = append(summary.Locations[job.locIdx].Records, out)
			switch {
			case out.Error != "":
				summary.Failed++
			case res == SkippedDuplicate:
				summary.Skipped++
			default:
				summary.Saved++
			}
			metrics.RecordsProcessed.WithLabelValues(out.Status).Inc()
			return nil
		})
	}
	_ = pairs.Wait()

	for p := range unusable {
		summary.UnusableProviders = append(summary.UnusableProviders, p)
	}
	sort.Strings(summary.UnusableProviders)
	for i := range summary.Locations {
		if summary.Locations[i].Error != "" {
			summary.Failed++
		}
		recs := summary.Locations[i].Records
		sort.Slice(recs, func(a, b int) bool { return recs[a].Key.LeadDays < recs[b].Key.LeadDays })
	}

	summary.FinishedAt = s.now()
	logger.Info().
		Int("saved", summary.Saved).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Strs("unusable_providers", summary.UnusableProviders).
		Dur("took", summary.FinishedAt.Sub(started)).
		Msg("collection run finished")

	return summary
}

// CollectRecord queries every provider concurrently for the five forecast
// hours of date and assembles the canonical record. Provider failures become
// missing readings.
func (s *Service) CollectRecord(ctx context.Context, location string, coords Coordinates, date time.Time) ForecastRecord {
	if zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		ctx = log.Logger.WithContext(ctx)
	}
	rec, _ := s.collectRecord(ctx, location, coords, date, LeadDays(s.now(), date))
	return rec
}

// collectRecord also returns the providers that reported a missing credential.
func (s *Service) collectRecord(ctx context.Context, location string, coords Coordinates, date time.Time, lead int) (ForecastRecord, []string) {
	logger := zerolog.Ctx(ctx).With().
		Str("location", location).
		Str("date_for", date.Format(DateLayout)).
		Int("lead_days", lead).
		Logger()

	blocks := make([]SourceBlock, len(s.providers))
	unusable := make([]bool, len(s.providers))

	var wg sync.WaitGroup
	for i, p := range s.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			readings := make(Readings, len(ForecastHours))
			data, err := p.Fetch(ctx, coords, date)
			if err != nil {
				// Log and continue; the record keeps missing readings for this provider.
				if errors.Is(err, ErrMissingCredential) {
					unusable[i] = true
					logger.Warn().Err(err).Str("provider", p.Name()).Msg("provider unusable; readings recorded as missing")
				} else {
					logger.Warn().Err(err).Str("provider", p.Name()).Msg("provider fetch failed; readings recorded as missing")
				}
			}

			for _, h := range ForecastHours {
				target := time.Date(date.Year(), date.Month(), date.Day(), h, 0, 0, 0, time.UTC)
				if data == nil {
					readings[HourLabel(h)] = Missing()
					continue
				}
				v, _ := CloudCoverAt(ctx, p, coords, target, data)
				readings[HourLabel(h)] = v
			}

			blocks[i] = SourceBlock{
				Source:   p.Name(),
				Readings: readings,
				Summary:  Summarize(readings),
			}
		}()
	}
	wg.Wait()

	var bad []string
	for i, u := range unusable {
		if u {
			bad = append(bad, s.providers[i].Name())
		}
	}

	return ForecastRecord{
		Location:    location,
		DateFor:     midnightUTC(date),
		CollectedAt: s.localNow(ctx, coords),
		LeadDays:    lead,
		Sources:     blocks,
	}, bad
}

// localNow converts the current instant to the location's time zone, falling
// back to UTC when the lookup fails.
func (s *Service) localNow(ctx context.Context, coords Coordinates) time.Time {
	now := s.now().UTC()
	if s.tz == nil {
		return now
	}
	loc, err := s.tz.Location(coords)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("coords", coords.String()).Msg("timezone lookup failed; falling back to UTC")
		return now
	}
	return now.In(loc)
}

// GeocoderChain tries each geocoder in turn, moving on only when one lacks
// its credential.
type GeocoderChain []Geocoder

// ResolveCoordinates implements Geocoder.
func (c GeocoderChain) ResolveCoordinates(ctx context.Context, name string) (Coordinates, error) {
	lastErr := fmt.Errorf("%w: no geocoder configured", ErrMissingCredential)
	for _, g := range c {
		coords, err := g.ResolveCoordinates(ctx, name)
		if err == nil {
			return coords, nil
		}
		if !errors.Is(err, ErrMissingCredential) {
			return Coordinates{}, err
		}
		lastErr = err
	}
	return Coordinates{}, lastErr
}
