package httpapi

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/auth"
	"github.com/kham-river/water-quality-monitor/internal/blog"
	"github.com/kham-river/water-quality-monitor/internal/water"
)

var validate = validator.New()

// NewsSource supplies scraped news items.
type NewsSource interface {
	News(ctx context.Context) []blog.NewsItem
}

// Deps are the services behind the HTTP API. News may be nil.
type Deps struct {
	Water  *water.Service
	Auth   *auth.Service
	News   NewsSource
	Logger *zap.Logger
}

type handlers struct {
	svc  *water.Service
	auth *auth.Service
	news NewsSource
	log  *zap.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{svc: deps.Water, auth: deps.Auth, news: deps.News, log: deps.Logger}
	protected := RequireAuth(deps.Auth.Tokens())

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", h.register)
	authGroup.Post("/login", h.login)
	authGroup.Get("/me", protected, h.me)

	station := api.Group("/station")
	station.Get("/getall", h.listStations)
	station.Get("/get/:id", h.getStation)
	station.Post("/create", protected, h.createStation)
	station.Put("/update/:id", protected, h.updateStation)
	station.Delete("/delete/:id", protected, h.deleteStation)

	wq := api.Group("/waterQuality")
	wq.Post("/add", protected, h.addReading)
	wq.Post("/upload-csv", protected, h.uploadCSV)
	wq.Get("/station/:stationId", h.stationReadings)
	wq.Get("/latest", h.latestAll)
	wq.Get("/latest/:stationId", h.latestForStation)
	wq.Get("/get/:id", h.getReading)
	wq.Put("/update/:id", protected, h.updateReading)
	wq.Delete("/delete/:id", protected, h.deleteReading)
	wq.Get("/export", h.exportReadings)
	wq.Get("/insights/:stationId", h.stationInsights)

	predict := api.Group("/predict")
	predict.Get("/standards", h.standards)
	predict.Get("/export/:days", h.exportPredictions)
	predict.Get("/station/:stationId/:days", h.stationPredictions)
	predict.Get("/:days", h.predictions)

	api.Get("/insights/:days", h.insights)

	ai := api.Group("/ai")
	ai.Get("/health", h.aiHealth)
	ai.Post("/ask", h.ask)

	blogGroup := api.Group("/blog")
	blogGroup.Get("/articles", h.articles)
	blogGroup.Get("/solutions", h.solutions)
	blogGroup.Get("/news", h.newsItems)
}
