package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

type fixedDataset map[int]Percent

func (d fixedDataset) CloudCoverAt(target time.Time) Percent {
	return d[target.Hour()]
}

type fakeProvider struct {
	name  string
	data  fixedDataset
	err   error
	calls atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(_ context.Context, _ Coordinates, _ time.Time) (Dataset, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.data, nil
}

type fakeGeocoder struct {
	coords map[string]Coordinates
	err    error
}

func (g fakeGeocoder) ResolveCoordinates(_ context.Context, name string) (Coordinates, error) {
	if g.err != nil {
		return Coordinates{}, g.err
	}
	c, ok := g.coords[strings.ToLower(name)]
	if !ok {
		return Coordinates{}, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
	}
	return c, nil
}

type fakeTZ struct {
	loc *time.Location
	err error
}

func (z fakeTZ) Location(Coordinates) (*time.Location, error) {
	return z.loc, z.err
}

// memStore is a minimal Store used to keep this package's tests free of
// the store package.
type memStore struct {
	mu      sync.Mutex
	records []ForecastRecord
}

func (s *memStore) Append(_ context.Context, rec ForecastRecord) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Key() == rec.Key() {
			return SkippedDuplicate, nil
		}
	}
	s.records = append(s.records, rec)
	return Saved, nil
}

func (s *memStore) All(context.Context) ([]ForecastRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ForecastRecord(nil), s.records...), nil
}

func allHours(v int) fixedDataset {
	d := fixedDataset{}
	for i, h := range ForecastHours {
		d[h] = PercentOf(v + i)
	}
	return d
}

var bristol = fakeGeocoder{coords: map[string]Coordinates{
	"bristol": {Lat: 51.45, Lon: -2.58},
	"london":  {Lat: 51.50, Lon: -0.12},
}}

func newTestService(store Store, geo Geocoder, providers ...Provider) *Service {
	return NewService(store, geo, providers,
		WithWorkers(4),
		WithClock(func() time.Time { return testNow }),
	)
}

func TestTargetDates(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 59, 0, 0, time.FixedZone("X", -3*3600))
	dates := TargetDates(now, DefaultLeadDays)
	assert.Equal(t, []time.Time{
		time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC),
	}, dates)
}

func TestLeadDays(t *testing.T) {
	assert.Equal(t, 0, LeadDays(testNow, testNow))
	assert.Equal(t, 3, LeadDays(testNow, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, LeadDays(testNow, testNow.AddDate(0, 0, -2)))
}

func TestCollectRecord_FailedProviderBecomesMissing(t *testing.T) {
	a := &fakeProvider{name: "A", data: allHours(10)}
	b := &fakeProvider{name: "B", err: fmt.Errorf("%w: upstream down", ErrNoData)}
	store := &memStore{}
	svc := newTestService(store, bristol, a, b)

	sum := svc.Collect(context.Background(), []string{"Bristol"}, []int{0})
	assert.Equal(t, 1, sum.Saved)
	assert.Equal(t, 0, sum.Failed)
	assert.Empty(t, sum.UnusableProviders)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "Bristol", rec.Location)
	assert.Equal(t, 0, rec.LeadDays)
	require.Len(t, rec.Sources, 2)
	assert.Equal(t, "A", rec.Sources[0].Source)
	assert.Equal(t, "B", rec.Sources[1].Source)

	for i, label := range HourLabels() {
		assert.Equal(t, PercentOf(10+i), rec.Sources[0].Readings[label])
		v, present := rec.Sources[1].Readings[label]
		assert.True(t, present, "missing readings are still keyed")
		assert.False(t, v.Valid())
	}
	assert.Equal(t, Summary{SkySunnyClear, SkyMostlySunny, SkyMostlySunny}, rec.Sources[0].Summary)
	assert.Equal(t, SkySunnyClear, rec.Sources[1].Summary.Morning)
}

func TestCollect_MissingCredentialReported(t *testing.T) {
	a := &fakeProvider{name: "A", data: allHours(50)}
	b := &fakeProvider{name: "B", err: fmt.Errorf("%w: B needs a key", ErrMissingCredential)}
	store := &memStore{}
	svc := newTestService(store, bristol, a, b)

	sum := svc.Collect(context.Background(), []string{"Bristol"}, DefaultLeadDays)
	assert.Equal(t, 3, sum.Saved)
	assert.Equal(t, []string{"B"}, sum.UnusableProviders)
	require.Len(t, store.records, 3)
	for _, rec := range store.records {
		blk, ok := rec.Source("B")
		require.True(t, ok)
		for _, v := range blk.Readings {
			assert.False(t, v.Valid())
		}
	}
}

func TestCollect_UnknownLocationDoesNotStopOthers(t *testing.T) {
	a := &fakeProvider{name: "A", data: allHours(0)}
	store := &memStore{}
	svc := newTestService(store, bristol, a)

	sum := svc.Collect(context.Background(), []string{"Atlantis", "London"}, []int{0, 3})
	assert.Equal(t, 2, sum.Saved)
	assert.Equal(t, 1, sum.Failed)

	require.Len(t, sum.Locations, 2)
	assert.Equal(t, "Atlantis", sum.Locations[0].Location)
	assert.Contains(t, sum.Locations[0].Error, "location not found")
	assert.Nil(t, sum.Locations[0].Coords)
	assert.Len(t, sum.Locations[1].Records, 2)
	assert.Equal(t, 0, sum.Locations[1].Records[0].Key.LeadDays)
	assert.Equal(t, 3, sum.Locations[1].Records[1].Key.LeadDays)
}

func TestCollect_SecondRunSkipsDuplicates(t *testing.T) {
	a := &fakeProvider{name: "A", data: allHours(0)}
	store := &memStore{}
	svc := newTestService(store, bristol, a)

	first := svc.Collect(context.Background(), []string{"Bristol", "London"}, DefaultLeadDays)
	assert.Equal(t, 6, first.Saved)

	second := svc.Collect(context.Background(), []string{"bristol", "LONDON"}, DefaultLeadDays)
	assert.Equal(t, 0, second.Saved)
	assert.Equal(t, 6, second.Skipped)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, store.records, 6)
}

type failingStore struct{ memStore }

func (s *failingStore) Append(context.Context, ForecastRecord) (AppendResult, error) {
	return Saved, errors.New("disk full")
}

func TestCollect_StoreFailureCounted(t *testing.T) {
	a := &fakeProvider{name: "A", data: allHours(0)}
	svc := newTestService(&failingStore{}, bristol, a)

	sum := svc.Collect(context.Background(), []string{"Bristol"}, []int{0})
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Locations[0].Records, 1)
	assert.Equal(t, "failed", sum.Locations[0].Records[0].Status)
	assert.Equal(t, "disk full", sum.Locations[0].Records[0].Error)
}

func TestCollectRecord_CollectedAtUsesLocalZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	a := &fakeProvider{name: "A", data: allHours(0)}
	svc := NewService(&memStore{}, bristol, []Provider{a},
		WithClock(func() time.Time { return testNow }),
		WithTimezoneResolver(fakeTZ{loc: tokyo}),
	)

	rec := svc.CollectRecord(context.Background(), "Tokyo", Coordinates{}, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 3, rec.LeadDays)
	assert.Equal(t, "15/10/2026 18:30", rec.CollectedAt.Format(TimestampLayout))
}

func TestCollectRecord_TimezoneFailureFallsBackToUTC(t *testing.T) {
	a := &fakeProvider{name: "A", data: allHours(0)}
	svc := NewService(&memStore{}, bristol, []Provider{a},
		WithClock(func() time.Time { return testNow }),
		WithTimezoneResolver(fakeTZ{err: errors.New("no zone")}),
	)

	rec := svc.CollectRecord(context.Background(), "Bristol", Coordinates{}, testNow)
	assert.Equal(t, time.UTC, rec.CollectedAt.Location())
	assert.Equal(t, "15/10/2026 09:30", rec.CollectedAt.Format(TimestampLayout))
	assert.True(t, rec.DateFor.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))
}

func TestCollectRecord_FetchesOncePerProvider(t *testing.T) {
	a := &fakeProvider{name: "A", data: allHours(0)}
	svc := newTestService(&memStore{}, bristol, a)

	svc.CollectRecord(context.Background(), "Bristol", Coordinates{}, testNow)
	assert.EqualValues(t, 1, a.calls.Load())
}

type credentialGeocoder struct{ calls atomic.Int32 }

func (g *credentialGeocoder) ResolveCoordinates(context.Context, string) (Coordinates, error) {
	g.calls.Add(1)
	return Coordinates{}, ErrMissingCredential
}

func TestGeocoderChain(t *testing.T) {
	first := &credentialGeocoder{}
	chain := GeocoderChain{first, bristol}

	c, err := chain.ResolveCoordinates(context.Background(), "Bristol")
	require.NoError(t, err)
	assert.Equal(t, 51.45, c.Lat)
	assert.EqualValues(t, 1, first.calls.Load())

	_, err = chain.ResolveCoordinates(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)

	_, err = GeocoderChain{first}.ResolveCoordinates(context.Background(), "Bristol")
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = GeocoderChain{}.ResolveCoordinates(context.Background(), "Bristol")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestService_Providers(t *testing.T) {
	svc := newTestService(&memStore{}, bristol, &fakeProvider{name: "A"}, &fakeProvider{name: "B"})
	assert.Equal(t, []string{"A", "B"}, svc.Providers())
}

func TestCollect_UsesRunIDFromContext(t *testing.T) {
	svc := newTestService(&memStore{}, bristol, &fakeProvider{name: "A", data: allHours(0)})
	sum := svc.Collect(ContextWithRunID(context.Background(), "run-1"), []string{"Bristol"}, []int{0})
	assert.Equal(t, "run-1", sum.RunID)
}

func TestCollect_RejectsNegativeLeadDays(t *testing.T) {
	st := &memStore{}
	svc := newTestService(st, bristol, &fakeProvider{name: "A", data: allHours(10)})

	sum := svc.Collect(context.Background(), []string{"Bristol"}, []int{-2, 0})

	assert.Equal(t, 1, sum.Saved)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []int{-2}, sum.RejectedLeadDays)

	recs, err := st.All(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].DateFor.Equal(midnightUTC(testNow)))
	assert.Equal(t, 0, recs[0].LeadDays)
}

func TestCheckLeadDays(t *testing.T) {
	assert.NoError(t, CheckLeadDays([]int{0, 3, 5}))
	err := CheckLeadDays([]int{3, -1})
	assert.ErrorIs(t, err, ErrNegativeLeadDays)
	assert.Contains(t, err.Error(), "[-1]")
}
