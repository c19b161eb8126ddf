package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	httpapi "github.com/kham-river/water-quality-monitor/internal/api/http"
	"github.com/kham-river/water-quality-monitor/internal/auth"
	"github.com/kham-river/water-quality-monitor/internal/blog"
	"github.com/kham-river/water-quality-monitor/internal/cache"
	"github.com/kham-river/water-quality-monitor/internal/config"
	"github.com/kham-river/water-quality-monitor/internal/ingest"
	"github.com/kham-river/water-quality-monitor/internal/logger"
	"github.com/kham-river/water-quality-monitor/internal/mqtt"
	"github.com/kham-river/water-quality-monitor/internal/scheduler"
	"github.com/kham-river/water-quality-monitor/internal/store"
	"github.com/kham-river/water-quality-monitor/internal/water"
	"github.com/kham-river/water-quality-monitor/internal/water/providers"
)

const serviceName = "water-quality-monitor"

// backend is everything the API persists.
type backend interface {
	water.StationStore
	water.ReadingStore
	auth.UserStore
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if cfg.JWTSecret == "" {
		zlog.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, closeStore, err := openStore(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	kv, closeKV := openCache(ctx, cfg, zlog)
	defer closeKV()

	registry := water.NewRegistry(nil)
	if cfg.StandardsFile != "" {
		if err := config.ApplyStandardsFile(cfg.StandardsFile, registry); err != nil {
			zlog.Fatal("failed to load standards file", zap.String("path", cfg.StandardsFile), zap.Error(err))
		}
		if err := config.WatchStandards(ctx, cfg.StandardsFile, registry, zlog); err != nil {
			zlog.Warn("standards file will not be reloaded", zap.Error(err))
		}
	}

	// Shared HTTP client for the prediction service.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	predictor := providers.NewMLClient(httpClient, cfg.MLServiceURL, zlog)
	assistant := providers.NewChatAssistant(providers.AssistantConfig{
		APIKey:      cfg.Groq.APIKey,
		BaseURL:     cfg.Groq.BaseURL,
		Model:       cfg.Groq.Model,
		MaxTokens:   cfg.Groq.MaxTokens,
		Temperature: cfg.Groq.Temperature,
		MaxRetries:  2,
	}, zlog)
	if !assistant.Configured() {
		zlog.Warn("GROQ_API_KEY is not set, AI assistant disabled")
	}

	service := water.NewService(water.ServiceConfig{
		Stations:  db,
		Readings:  db,
		Predictor: predictor,
		Assistant: assistant,
		KV:        kv,
		Standards: registry,
		Logger:    zlog,
		CacheTTL:  cfg.PredictionCacheTTL,
	})
	defer service.Wait()

	authService := auth.NewService(db, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), zlog)

	// A standards file takes precedence over the ML service's table.
	refresh := cfg.StandardsRefreshInterval
	if cfg.StandardsFile != "" {
		refresh = 0
	}
	sched := scheduler.New(scheduler.Config{
		RetrainInterval:          cfg.RetrainInterval,
		StandardsRefreshInterval: refresh,
	}, service, zlog)
	if err := sched.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	if cfg.MQTT.Enabled {
		sub := mqtt.NewSubscriber(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      1,
		}, service, zlog)
		if err := sub.Start(); err != nil {
			zlog.Error("mqtt ingestion disabled", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			defer sub.Stop()
		}
	}

	news := blog.NewScraper(blog.ScraperConfig{
		Sources:  cfg.BlogSources,
		Timeout:  cfg.HTTPTimeout,
		Retries:  1,
		CacheTTL: 15 * time.Minute,
	}, zlog)

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		BodyLimit:             ingest.MaxUploadBytes + 1<<20,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		configured, _ := service.AssistantStatus()
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   serviceName,
			"store":     cfg.StoreDriver,
			"assistant": configured,
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Water:  service,
		Auth:   authService,
		News:   news,
		Logger: zlog,
	})

	go func() {
		zlog.Info("listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("fiber server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}

func openStore(cfg *config.AppConfig, zlog *zap.Logger) (backend, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		zlog.Info("using in-memory store",
			zap.Int("max_history", cfg.StoreMaxHistory),
			zap.Duration("max_age", cfg.StoreMaxAge))
		return store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge), func() {}, nil
	}

	s, err := store.NewSQLiteStore(cfg.SQLitePath, zlog)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			zlog.Warn("failed to close database", zap.Error(err))
		}
	}, nil
}

// openCache connects to Redis when configured and falls back to the
// in-process cache otherwise.
func openCache(ctx context.Context, cfg *config.AppConfig, zlog *zap.Logger) (water.KV, func()) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryKV(), func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := cache.NewRedisClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zlog.Warn("redis unavailable, using in-process cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return cache.NewMemoryKV(), func() {}
	}
	return cache.NewRedisKV(client), func() {
		if err := client.Close(); err != nil {
			zlog.Warn("failed to close redis client", zap.Error(err))
		}
	}
}
