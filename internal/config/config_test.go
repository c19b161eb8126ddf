package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "data/waterquality.db", cfg.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.PredictionCacheTTL)
	assert.Equal(t, "llama3-70b-8192", cfg.Groq.Model)
	assert.Equal(t, 220, cfg.Groq.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Groq.Temperature, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 6*time.Hour, cfg.RetrainInterval)
	assert.Equal(t, "stations/+/readings", cfg.MQTT.Topic)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Empty(t, cfg.BlogSources)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("STORE_MAX_HISTORY", "50")
	t.Setenv("STORE_MAX_AGE", "48h")
	t.Setenv("GROQ_TEMPERATURE", "0.7")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("BLOG_SOURCES", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 50, cfg.StoreMaxHistory)
	assert.Equal(t, 48*time.Hour, cfg.StoreMaxAge)
	assert.InDelta(t, 0.7, cfg.Groq.Temperature, 1e-9)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.BlogSources)
}

func TestLoad_Invalid(t *testing.T) {
	for key, val := range map[string]string{
		"HTTP_TIMEOUT":    "soon",
		"STORE_DRIVER":    "mongo",
		"REDIS_DB":        "zero",
		"GROQ_MAX_TOKENS": "many",
		"MQTT_ENABLED":    "perhaps",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

const standardsYAML = `
pH:
  min: 6
  max: 9
  unit: ""
  lowSolution: Dose lime.
Turbidity:
  max: 10
  unit: NTU
`

func TestParseStandards(t *testing.T) {
	table, err := ParseStandards([]byte(standardsYAML))
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, 6.0, *table[water.ParamPH].Min)
	assert.Equal(t, "Dose lime.", table[water.ParamPH].LowSolution)
	assert.Nil(t, table[water.ParamTurbidity].Min)
	assert.Equal(t, 10.0, *table[water.ParamTurbidity].Max)

	_, err = ParseStandards([]byte("lead:\n  max: 1\n"))
	assert.Error(t, err)
	_, err = ParseStandards([]byte("ph:\n  min: 9\n  max: 6\n"))
	assert.Error(t, err)
	_, err = ParseStandards([]byte(""))
	assert.Error(t, err)
}

func TestApplyStandardsFile_KeepsDefaultsForOmitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(standardsYAML), 0o644))

	reg := water.NewRegistry(nil)
	require.NoError(t, ApplyStandardsFile(path, reg))

	got := reg.Lookup(water.ParamPH)
	assert.Equal(t, 9.0, *got.Max)
	assert.Equal(t, 500.0, *reg.Lookup(water.ParamTDS).Max)
}

func TestWatchStandards(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standards.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ph:\n  min: 6.5\n  max: 8.5\n"), 0o644))

	reg := water.NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, WatchStandards(ctx, path, reg, nil))

	require.NoError(t, os.WriteFile(path, []byte("ph: [not, a, map]\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("ph:\n  min: 5\n  max: 10\n"), 0o644))

	assert.Eventually(t, func() bool {
		s := reg.Lookup(water.ParamPH)
		return s.Max != nil && *s.Max == 10
	}, 5*time.Second, 20*time.Millisecond)
}
