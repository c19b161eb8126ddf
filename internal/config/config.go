package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration
	CORSOrigins string

	StoreDriver string
	SQLitePath  string

	// In-memory store retention.
	StoreMaxHistory int           // max readings per station (0 = unlimited)
	StoreMaxAge     time.Duration // max age of readings (0 = unlimited)

	MLServiceURL       string
	PredictionCacheTTL time.Duration

	Redis RedisConfig
	Groq  GroqConfig

	JWTSecret string
	JWTTTL    time.Duration

	StandardsFile            string
	RetrainInterval          time.Duration
	StandardsRefreshInterval time.Duration

	LogLevel  string
	LogFormat string

	MQTT MQTTConfig

	BlogSources []string
}

// RedisConfig is empty when the in-process cache should be used.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GroqConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = getenvDefault("CORS_ORIGINS", "*")

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", DriverSQLite))
	if cfg.StoreDriver != DriverMemory && cfg.StoreDriver != DriverSQLite {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want %s or %s", cfg.StoreDriver, DriverMemory, DriverSQLite)
	}
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "data/waterquality.db")

	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 0); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 0); err != nil {
		return nil, err
	}

	cfg.MLServiceURL = getenvDefault("ML_SERVICE_URL", "http://localhost:8000")
	if cfg.PredictionCacheTTL, err = getenvDuration("PREDICTION_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getenvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.Groq.APIKey = os.Getenv("GROQ_API_KEY")
	cfg.Groq.BaseURL = getenvDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1")
	cfg.Groq.Model = getenvDefault("GROQ_MODEL", "llama3-70b-8192")
	if cfg.Groq.MaxTokens, err = getenvInt("GROQ_MAX_TOKENS", 220); err != nil {
		return nil, err
	}
	if cfg.Groq.Temperature, err = getenvFloat("GROQ_TEMPERATURE", 0.2); err != nil {
		return nil, err
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTTTL, err = getenvDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.StandardsFile = os.Getenv("STANDARDS_FILE")
	if cfg.RetrainInterval, err = getenvDuration("RETRAIN_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StandardsRefreshInterval, err = getenvDuration("STANDARDS_REFRESH_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")

	if cfg.MQTT.Enabled, err = getenvBool("MQTT_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.MQTT.Broker = getenvDefault("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", "water-quality-monitor")
	cfg.MQTT.Username = os.Getenv("MQTT_USERNAME")
	cfg.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	cfg.MQTT.Topic = getenvDefault("MQTT_TOPIC", "stations/+/readings")

	cfg.BlogSources = splitList(os.Getenv("BLOG_SOURCES"))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
