package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/cloud-cover-tracker/internal/analysis"
	"github.com/i474232898/cloud-cover-tracker/internal/scheduler"
	"github.com/i474232898/cloud-cover-tracker/internal/store"
	"github.com/i474232898/cloud-cover-tracker/internal/weather"
)

var validate = validator.New()

// Runner starts collection runs on demand.
type Runner interface {
	Trigger() (string, error)
	LastRun() (weather.RunSummary, bool)
	Running() bool
}

// CallStats exposes outbound provider call counts.
type CallStats interface {
	Snapshot() map[string]int64
}

// Deps are the collaborators behind the HTTP API. Runner and Calls are optional.
type Deps struct {
	Store     weather.Store
	Runner    Runner
	Calls     CallStats
	Providers []string

	Tolerance      int
	Threshold      int
	SunnyThreshold float64
}

// NewApp creates the Fiber app with the JSON error handler.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "cloud-cover-tracker",
			"providers": deps.Providers,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		records, err := loadRecords(c, deps.Store)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"locations": store.Locations(records)})
	})

	v1.Get("/records", func(c *fiber.Ctx) error {
		var q recordsQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		lead := -1
		if q.LeadDays != "" {
			n, err := strconv.Atoi(q.LeadDays)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "lead_days: "+err.Error())
			}
			lead = n
		}
		records, err := loadRecords(c, deps.Store)
		if err != nil {
			return err
		}
		if q.Location != "" {
			records, err = store.FilterByLocation(records, q.Location)
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no forecast records for requested location")
			}
		}
		if lead >= 0 {
			records = filterLead(records, lead)
		}
		if records == nil {
			records = []weather.ForecastRecord{}
		}
		return c.JSON(fiber.Map{"count": len(records), "records": records})
	})

	an := v1.Group("/analysis")

	an.Get("/accuracy", func(c *fiber.Ctx) error {
		q := accuracyQuery{Tolerance: deps.Tolerance}
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		records, err := loadRecords(c, deps.Store)
		if err != nil {
			return err
		}
		var rows []analysis.AccuracyRow
		if q.ByLead {
			rows = analysis.RankAccuracyByLead(records, q.Tolerance)
		} else {
			rows = analysis.RankAccuracy(records, q.Tolerance)
		}
		resp := fiber.Map{"tolerance": q.Tolerance, "rows": rows}
		if len(rows) == 0 {
			resp["message"] = "no data available"
		}
		return c.JSON(resp)
	})

	an.Get("/discrepancies", func(c *fiber.Ctx) error {
		q := discrepancyQuery{Threshold: deps.Threshold}
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		records, err := loadRecords(c, deps.Store)
		if err != nil {
			return err
		}
		if q.Location != "" {
			records, err = store.FilterByLocation(records, q.Location)
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no forecast records for requested location")
			}
		}
		return c.JSON(fiber.Map{
			"threshold": q.Threshold,
			"dates":     analysis.FindDiscrepancies(records, q.Threshold),
		})
	})

	an.Get("/sunny", func(c *fiber.Ctx) error {
		q := sunnyQuery{Threshold: deps.SunnyThreshold}
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		records, err := loadRecords(c, deps.Store)
		if err != nil {
			return err
		}
		return c.JSON(analysis.Sunny(records, q.Location, q.Threshold, splitSources(q.Sources)))
	})

	v1.Get("/stats/calls", func(c *fiber.Ctx) error {
		calls := map[string]int64{}
		if deps.Calls != nil {
			calls = deps.Calls.Snapshot()
		}
		return c.JSON(fiber.Map{"calls": calls})
	})

	v1.Post("/collect", func(c *fiber.Ctx) error {
		if deps.Runner == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "collection is not enabled")
		}
		id, err := deps.Runner.Trigger()
		if errors.Is(err, scheduler.ErrRunInProgress) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to start collection")
		}
		log.Info().Str("run_id", id).Msg("collection triggered via API")
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": id})
	})

	v1.Get("/collect/last", func(c *fiber.Ctx) error {
		if deps.Runner == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "collection is not enabled")
		}
		last, ok := deps.Runner.LastRun()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no collection run has completed yet")
		}
		return c.JSON(fiber.Map{"running": deps.Runner.Running(), "last_run": last})
	})
}

type recordsQuery struct {
	Location string `query:"location"`
	LeadDays string `query:"lead_days" validate:"omitempty,number"`
}

type accuracyQuery struct {
	Tolerance int  `query:"tolerance" validate:"gte=0,lte=100"`
	ByLead    bool `query:"by_lead"`
}

type discrepancyQuery struct {
	Location  string `query:"location"`
	Threshold int    `query:"threshold" validate:"gte=0,lte=100"`
}

type sunnyQuery struct {
	Location  string  `query:"location" validate:"required"`
	Threshold float64 `query:"threshold" validate:"gte=0,lte=100"`
	Sources   string  `query:"sources"`
}

// bindQuery parses query parameters into q, keeping preset defaults for
// absent keys, and validates the result.
func bindQuery(c *fiber.Ctx, q any) error {
	if err := c.QueryParser(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func loadRecords(c *fiber.Ctx, s weather.Store) ([]weather.ForecastRecord, error) {
	records, err := s.All(c.UserContext())
	if err != nil {
		log.Error().Err(err).Msg("failed to read forecast records")
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to read forecast records")
	}
	return records, nil
}

func filterLead(records []weather.ForecastRecord, lead int) []weather.ForecastRecord {
	var out []weather.ForecastRecord
	for _, r := range records {
		if r.LeadDays == lead {
			out = append(out, r)
		}
	}
	return out
}

func splitSources(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
