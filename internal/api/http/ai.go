package httpapi

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/water"
	"github.com/kham-river/water-quality-monitor/internal/water/providers"
)

type askRequest struct {
	Question    string                    `json:"question"`
	Param       string                    `json:"param"`
	Value       *float64                  `json:"value"`
	StationName string                    `json:"stationName" validate:"max=200"`
	Standards   map[string]water.Standard `json:"standards"`
	MaxTokens   int                       `json:"maxTokens" validate:"gte=0,lte=2048"`
	Temperature *float64                  `json:"temperature" validate:"omitempty,gte=0,lte=2"`
}

func (r askRequest) toQuestion() water.Question {
	q := water.Question{
		Text:        strings.TrimSpace(r.Question),
		Value:       r.Value,
		StationName: strings.TrimSpace(r.StationName),
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	}
	if canon, found := water.CanonicalField(r.Param); found && water.Parameter(canon).Valid() {
		q.Parameter = water.Parameter(canon)
	}
	if len(r.Standards) > 0 {
		q.Standards = make(water.StandardsTable, len(r.Standards))
		for name, s := range r.Standards {
			if canon, found := water.CanonicalField(name); found && water.Parameter(canon).Valid() {
				q.Standards[water.Parameter(canon)] = s
			}
		}
	}
	return q
}

func (h *handlers) aiHealth(c *fiber.Ctx) error {
	configured, model := h.svc.AssistantStatus()
	key := "missing"
	if configured {
		key = "present"
	}
	return c.JSON(fiber.Map{
		"ok":         true,
		"groqApiKey": key,
		"model":      model,
	})
}

func (h *handlers) ask(c *fiber.Ctx) error {
	if configured, _ := h.svc.AssistantStatus(); !configured {
		return water.ErrAssistantUnavailable
	}

	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid or missing question")
	}
	if len([]rune(strings.TrimSpace(req.Question))) < 3 {
		return badRequest("Invalid or missing question")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(err.Error())
	}

	answer, err := h.svc.Ask(c.UserContext(), req.toQuestion())
	if err != nil {
		if errors.Is(err, water.ErrAssistantUnavailable) || errors.Is(err, providers.ErrEmptyAnswer) {
			return err
		}
		h.log.Error("ai request failed", zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "Failed to process AI request")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"answer":  answer,
	})
}
