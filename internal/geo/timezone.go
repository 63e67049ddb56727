// Package geo resolves the IANA time zone at a coordinate using an offline
// polygon index.
package geo

import (
	"errors"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"

	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

// ErrUnknownZone is returned when no zone covers a coordinate.
var ErrUnknownZone = errors.New("no time zone for coordinates")

// TZFResolver implements weather.TimezoneResolver. The polygon index is
// loaded on first use.
type TZFResolver struct {
	once    sync.Once
	finder  tzf.F
	initErr error

	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewTZFResolver creates a resolver; the index is loaded lazily.
func NewTZFResolver() *TZFResolver {
	return &TZFResolver{cache: make(map[string]*time.Location)}
}

// Location returns the zone at coords.
func (r *TZFResolver) Location(coords weather.Coordinates) (*time.Location, error) {
	r.once.Do(func() {
		r.finder, r.initErr = tzf.NewDefaultFinder()
	})
	if r.initErr != nil {
		return nil, fmt.Errorf("geo: load tz index: %w", r.initErr)
	}

	name := r.finder.GetTimezoneName(coords.Lon, coords.Lat)
	if name == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, coords)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if loc, ok := r.cache[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("geo: load zone %q: %w", name, err)
	}
	r.cache[name] = loc
	return loc, nil
}
