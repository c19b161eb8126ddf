package httpapi

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/export"
	"github.com/kham-river/water-quality-monitor/internal/water"
	"github.com/kham-river/water-quality-monitor/internal/water/providers"
)

func parseDays(c *fiber.Ctx) (int, error) {
	days, err := strconv.Atoi(c.Params("days"))
	if err != nil || days < 1 || days > water.MaxDays {
		return 0, badRequest(fmt.Sprintf("days must be an integer between 1 and %d", water.MaxDays))
	}
	return days, nil
}

func parseEvalOptions(c *fiber.Ctx) (water.EvalOptions, error) {
	bins := c.QueryInt("bins", water.DefaultBins)
	if bins < 1 || bins > 100 {
		return water.EvalOptions{}, badRequest("bins must be between 1 and 100")
	}
	strategy, found := water.StrategyByName(c.Query("strategy"))
	if !found {
		return water.EvalOptions{}, badRequest("strategy must be one of endpoint, recent, ols")
	}
	return water.EvalOptions{Bins: bins, Strategy: strategy}, nil
}

// forecast fetches predictions and treats an empty forecast as a valid,
// empty result.
func (h *handlers) forecast(c *fiber.Ctx, stationID string) (water.Forecast, error) {
	days, err := parseDays(c)
	if err != nil {
		return water.Forecast{}, err
	}
	f, err := h.svc.Predictions(c.UserContext(), stationID, days)
	switch {
	case err == nil, errors.Is(err, water.ErrNoData):
		if f.Predictions == nil {
			f.Predictions = []water.Reading{}
		}
		return f, nil
	case errors.Is(err, water.ErrInvalidDays), errors.Is(err, providers.ErrCircuitOpen):
		return water.Forecast{}, err
	default:
		h.log.Error("prediction request failed", zap.String("station_id", stationID), zap.Int("days", days), zap.Error(err))
		return water.Forecast{}, fiber.NewError(fiber.StatusBadGateway, "Failed to fetch predictions")
	}
}

func (h *handlers) respondForecast(c *fiber.Ctx, f water.Forecast) error {
	return c.JSON(fiber.Map{
		"success":     true,
		"standards":   h.svc.EffectiveStandards(f),
		"predictions": f.Predictions,
		"data":        f.Predictions,
	})
}

func (h *handlers) predictions(c *fiber.Ctx) error {
	f, err := h.forecast(c, water.AllStations)
	if err != nil {
		return err
	}
	return h.respondForecast(c, f)
}

func (h *handlers) stationPredictions(c *fiber.Ctx) error {
	f, err := h.forecast(c, c.Params("stationId"))
	if err != nil {
		return err
	}
	return h.respondForecast(c, f)
}

func (h *handlers) standards(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"standards": h.svc.Standards(),
	})
}

func (h *handlers) exportPredictions(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return badRequest(err.Error())
	}
	stationID := c.Query("stationId", water.AllStations)
	f, err := h.forecast(c, stationID)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("predictions-%s-%dd", stationID, f.Days)
	return sendExport(c, format, name, "Predictions", f.Predictions, h.svc.EffectiveStandards(f))
}

func (h *handlers) insights(c *fiber.Ctx) error {
	days, err := parseDays(c)
	if err != nil {
		return err
	}
	opts, err := parseEvalOptions(c)
	if err != nil {
		return err
	}
	stationID := c.Query("stationId", water.AllStations)

	if c.QueryBool("compareAll", false) {
		cmp, err := h.svc.ComparePredictions(c.UserContext(), stationID, days, opts)
		if err != nil {
			return insightErr(err)
		}
		return ok(c, cmp)
	}

	in, err := h.svc.Insights(c.UserContext(), stationID, days, opts)
	if err != nil {
		return insightErr(err)
	}
	return ok(c, in)
}

func (h *handlers) stationInsights(c *fiber.Ctx) error {
	opts, err := parseEvalOptions(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 100)
	if limit <= 0 {
		limit = 100
	}

	in, err := h.svc.StationInsights(c.UserContext(), c.Params("stationId"), limit, opts)
	if err != nil {
		if errors.Is(err, water.ErrNoData) {
			return fiber.NewError(fiber.StatusNotFound, "No readings found for this station")
		}
		return err
	}
	return ok(c, in)
}

func insightErr(err error) error {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe),
		errors.Is(err, water.ErrInvalidDays),
		errors.Is(err, water.ErrNoData),
		errors.Is(err, providers.ErrCircuitOpen):
		return err
	default:
		return fiber.NewError(fiber.StatusBadGateway, "Failed to fetch predictions")
	}
}
