package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// ErrRunInProgress is returned when a collection run is requested while one
// is already running.
var ErrRunInProgress = errors.New("collection run already in progress")

// DefaultRunTimeout bounds a whole collection run.
const DefaultRunTimeout = 15 * time.Minute

// Collector runs one collection cycle.
type Collector interface {
	Collect(ctx context.Context, locations []string, offsets []int) weather.RunSummary
}

// Scheduler runs the daily collection and on-demand runs. At most one run is
// active at a time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Collector
	locations []string
	leadDays  []int
	at        string
	timeout   time.Duration

	running atomic.Bool
	mu      sync.RWMutex
	last    *weather.RunSummary
}

// New creates a new Scheduler that collects every day at the UTC time at (HH:MM).
func New(service Collector, locations []string, leadDays []int, at string) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		locations: locations,
		leadDays:  leadDays,
		at:        at,
		timeout:   DefaultRunTimeout,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Warn().Msg("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(1).Day().At(s.at).SingletonMode().Do(func() {
		log.Info().Msg("scheduler: running daily collection")
		if _, err := s.RunNow(context.Background()); err != nil {
			log.Warn().Err(err).Msg("scheduler: daily collection skipped")
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Info().Str("at", s.at).Time("next_run", s.NextRun()).Msg("scheduler started")
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// NextRun returns the time of the next scheduled run, or the zero time.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// RunNow performs a collection run synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (weather.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return weather.RunSummary{}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx), nil
}

// Trigger starts a collection run in the background and returns its id.
func (s *Scheduler) Trigger() (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}
	id := uuid.NewString()
	go func() {
		defer s.running.Store(false)
		s.run(weather.ContextWithRunID(context.Background(), id))
	}()
	return id, nil
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastRun returns the summary of the most recent completed run.
func (s *Scheduler) LastRun() (weather.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return weather.RunSummary{}, false
	}
	return *s.last, true
}

func (s *Scheduler) run(ctx context.Context) weather.RunSummary {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary := s.service.Collect(ctx, s.locations, s.leadDays)

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
	return summary
}
