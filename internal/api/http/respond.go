package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kham-river/water-quality-monitor/internal/auth"
	"github.com/kham-river/water-quality-monitor/internal/water"
	"github.com/kham-river/water-quality-monitor/internal/water/providers"
)

// ErrorHandler renders every error as {"success": false, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	e := toFiberError(err)
	return c.Status(e.Code).JSON(fiber.Map{
		"success": false,
		"message": e.Message,
	})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func created(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

// toFiberError maps domain errors onto HTTP status codes.
func toFiberError(err error) *fiber.Error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}

	var verr *water.ValidationError
	if errors.As(err, &verr) {
		return fiber.NewError(fiber.StatusBadRequest, verr.Error())
	}
	var aerr *auth.ValidationError
	if errors.As(err, &aerr) {
		return fiber.NewError(fiber.StatusBadRequest, aerr.Error())
	}

	switch {
	case errors.Is(err, water.ErrStationNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Station not found")
	case errors.Is(err, water.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "not found")
	case errors.Is(err, water.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, "a station with this stationId already exists")
	case errors.Is(err, water.ErrInvalidDays):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, water.ErrNoData):
		return fiber.NewError(fiber.StatusNotFound, "no data available")
	case errors.Is(err, water.ErrAssistantUnavailable):
		return fiber.NewError(fiber.StatusInternalServerError,
			"GROQ_API_KEY is not set on the server. Please add it to your environment.")
	case errors.Is(err, providers.ErrEmptyAnswer):
		return fiber.NewError(fiber.StatusBadGateway, "No response from AI. Check model name or API key.")
	case errors.Is(err, providers.ErrCircuitOpen):
		return fiber.NewError(fiber.StatusServiceUnavailable, "prediction service temporarily unavailable")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, auth.ErrUserExists):
		return fiber.NewError(fiber.StatusConflict, "User already exists")
	case errors.Is(err, auth.ErrInvalidToken):
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
}
