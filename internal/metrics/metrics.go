// Package metrics counts outbound provider calls. Counts are kept in atomic
// counters for in-process reporting and mirrored to Prometheus for scraping.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCalls counts HTTP attempts per provider.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcover_provider_calls_total",
			Help: "Total number of outbound HTTP attempts per weather provider",
		},
		[]string{"provider"},
	)

	// ProviderFailures counts calls that exhausted their retries.
	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcover_provider_failures_total",
			Help: "Total number of provider requests that returned no data after retries",
		},
		[]string{"provider"},
	)

	// RecordsProcessed counts store outcomes by result (saved, skipped, failed).
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcover_records_total",
			Help: "Total number of collected records by store outcome",
		},
		[]string{"result"},
	)
)

// CallCounter is a concurrency-safe per-provider call counter.
type CallCounter struct {
	counts sync.Map // provider -> *atomic.Int64
}

// NewCallCounter creates an empty CallCounter.
func NewCallCounter() *CallCounter {
	return &CallCounter{}
}

// Inc records one call to provider.
func (c *CallCounter) Inc(provider string) {
	v, _ := c.counts.LoadOrStore(provider, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	ProviderCalls.WithLabelValues(provider).Inc()
}

// Get returns the number of calls recorded for provider.
func (c *CallCounter) Get(provider string) int64 {
	v, ok := c.counts.Load(provider)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Snapshot returns a copy of all counts.
func (c *CallCounter) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	c.counts.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Providers returns the providers seen so far, sorted.
func (c *CallCounter) Providers() []string {
	var names []string
	c.counts.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}
