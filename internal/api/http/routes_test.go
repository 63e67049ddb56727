package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/cloud-cover-tracker/internal/scheduler"
	"github.com/i474232898/cloud-cover-tracker/internal/store"
	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

var day = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

func record(location string, lead int, values ...int) weather.ForecastRecord {
	r := weather.Readings{}
	for i, h := range weather.ForecastHours {
		if i < len(values) {
			r[weather.HourLabel(h)] = weather.PercentOf(values[i])
		} else {
			r[weather.HourLabel(h)] = weather.Missing()
		}
	}
	return weather.ForecastRecord{
		Location: location,
		DateFor:  day,
		LeadDays: lead,
		Sources:  []weather.SourceBlock{{Source: "A", Readings: r, Summary: weather.Summarize(r)}},
	}
}

type fakeRunner struct {
	err  error
	last *weather.RunSummary
}

func (f *fakeRunner) Trigger() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "run-42", nil
}

func (f *fakeRunner) LastRun() (weather.RunSummary, bool) {
	if f.last == nil {
		return weather.RunSummary{}, false
	}
	return *f.last, true
}

func (f *fakeRunner) Running() bool { return false }

type fakeCalls map[string]int64

func (f fakeCalls) Snapshot() map[string]int64 { return f }

func newTestApp(t *testing.T, runner Runner) *fiber.App {
	t.Helper()
	s := store.NewMemoryStore()
	for _, rec := range []weather.ForecastRecord{
		record("Bristol", 0, 20, 20, 20, 20, 20),
		record("Bristol", 3, 28, 50, 20, 20, 20),
		record("London", 0, 90),
	} {
		_, err := s.Append(context.Background(), rec)
		require.NoError(t, err)
	}

	app := NewApp("test")
	RegisterRoutes(app, Deps{
		Store:          s,
		Runner:         runner,
		Calls:          fakeCalls{"OpenMeteo.com": 3},
		Providers:      []string{"A"},
		Tolerance:      10,
		Threshold:      10,
		SunnyThreshold: 35,
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	code, body := doJSON(t, newTestApp(t, nil), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestLocations(t *testing.T) {
	code, body := doJSON(t, newTestApp(t, nil), http.MethodGet, "/api/v1/locations")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"Bristol", "London"}, body["locations"])
}

func TestRecords(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/records")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["count"])

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/records?location=bristol&lead_days=3")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
	recs := body["records"].([]any)
	overview := recs[0].(map[string]any)["overview"].(map[string]any)
	assert.EqualValues(t, 3, overview["num_of_days_between_forecast"])

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/records?location=Paris")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/records?lead_days=-1")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, true, body["error"])

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/records?lead_days=99999999999999999999")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["message"], "lead_days")
}

func TestAccuracy(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/analysis/accuracy")
	assert.Equal(t, http.StatusOK, code)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "A", row["provider"])
	assert.EqualValues(t, 5, row["total_comparisons"])
	assert.EqualValues(t, 4, row["correct_comparisons"])
	assert.EqualValues(t, 80, row["accuracy_percent"])

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/analysis/accuracy?tolerance=5&by_lead=true")
	assert.Equal(t, http.StatusOK, code)
	row = body["rows"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 3, row["lead_days"])
	assert.EqualValues(t, 3, row["correct_comparisons"])

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/analysis/accuracy?tolerance=abc")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/analysis/accuracy?tolerance=500")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAccuracy_NoData(t *testing.T) {
	app := NewApp("test")
	RegisterRoutes(app, Deps{Store: store.NewMemoryStore(), Tolerance: 10})

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/analysis/accuracy")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "no data available", body["message"])
	assert.Empty(t, body["rows"])
}

func TestDiscrepancies(t *testing.T) {
	code, body := doJSON(t, newTestApp(t, nil), http.MethodGet, "/api/v1/analysis/discrepancies?location=Bristol&threshold=20")
	assert.Equal(t, http.StatusOK, code)
	dates := body["dates"].([]any)
	require.Len(t, dates, 1)
	g := dates[0].(map[string]any)
	assert.EqualValues(t, 2, g["flagged"])
	assert.Equal(t, []any{float64(3), float64(0)}, g["lead_days"])
}

func TestSunny(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/analysis/sunny?location=Bristol")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total_days"])
	assert.EqualValues(t, 1, body["sunny_days"])

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/analysis/sunny")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCallStats(t *testing.T) {
	code, body := doJSON(t, newTestApp(t, nil), http.MethodGet, "/api/v1/stats/calls")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"OpenMeteo.com": float64(3)}, body["calls"])
}

func TestCollect(t *testing.T) {
	code, body := doJSON(t, newTestApp(t, &fakeRunner{}), http.MethodPost, "/api/v1/collect")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "run-42", body["run_id"])

	code, _ = doJSON(t, newTestApp(t, &fakeRunner{err: scheduler.ErrRunInProgress}), http.MethodPost, "/api/v1/collect")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = doJSON(t, newTestApp(t, nil), http.MethodPost, "/api/v1/collect")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCollectLast(t *testing.T) {
	code, _ := doJSON(t, newTestApp(t, &fakeRunner{}), http.MethodGet, "/api/v1/collect/last")
	assert.Equal(t, http.StatusNotFound, code)

	last := &weather.RunSummary{RunID: "run-1", Saved: 3}
	code, body := doJSON(t, newTestApp(t, &fakeRunner{last: last}), http.MethodGet, "/api/v1/collect/last")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "run-1", body["last_run"].(map[string]any)["run_id"])
}

func TestMetrics(t *testing.T) {
	resp, err := newTestApp(t, nil).Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}
