package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/model"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "65", cfg.Pricing.BaseRate)
	assert.Equal(t, 225, cfg.Pricing.WordsPerPage)
	assert.Equal(t, "1.15", cfg.Pricing.MediumMultiplier)
	assert.Equal(t, "1.30", cfg.Pricing.RushMultiplier)
	assert.Equal(t, "America/Chicago", cfg.Turnaround.Timezone)
	assert.Equal(t, 14, cfg.Turnaround.RushCutoffHour)
	assert.Equal(t, 10, cfg.Turnaround.SameDayCutoffHour)
	assert.Equal(t, 0, cfg.Turnaround.SameDayCutoffMinute)
	assert.Equal(t, 10, cfg.Watchdog.IntervalSecs)
	assert.Equal(t, 9, cfg.Watchdog.MaxAttempts)
	assert.InDelta(t, 0.75, cfg.Triggers.MinOCRConfidence, 0.001)
	assert.InDelta(t, 0.80, cfg.Triggers.MinLanguageConfidence, 0.001)
	assert.Equal(t, "1000", cfg.Triggers.HighValueThreshold)
	assert.Equal(t, 50, cfg.Triggers.HighPageThreshold)
	assert.Equal(t, 30, cfg.Analysis.TimeoutSecs)
	assert.Equal(t, "USD", cfg.Payment.Currency)
	assert.Equal(t, "9.95", cfg.Delivery.Fees["standard_mail"])
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: quotes.db
log:
  level: debug
  format: console
server:
  port: 9090
pricing:
  base_rate: "70"
turnaround:
  same_day_cutoff_hour: 11
  same_day_cutoff_minute: 30
watchdog:
  max_attempts: 12
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "70", cfg.Pricing.BaseRate)
	assert.Equal(t, 11, cfg.Turnaround.SameDayCutoffHour)
	assert.Equal(t, 30, cfg.Turnaround.SameDayCutoffMinute)
	assert.Equal(t, 12, cfg.Watchdog.MaxAttempts)
	// Defaults still apply for unset values
	assert.Equal(t, 225, cfg.Pricing.WordsPerPage)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0644))

	t.Setenv("QUOTEFLOW_STORE_DRIVER", "postgres")
	t.Setenv("QUOTEFLOW_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("QUOTEFLOW_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chtemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/quoteflow"
	cfg.Analysis.BaseURL = "https://analysis.example.com"

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults(t)

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "analysis.base_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/quoteflow"
	cfg.Analysis.BaseURL = "https://analysis.example.com"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateBadDriver(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateBadDecimal(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/quoteflow"
	cfg.Pricing.RushMultiplier = "fast"

	err := cfg.Validate("price")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pricing.rush_multiplier is not a valid decimal")
}

func TestValidateTriggerBounds(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/quoteflow"
	cfg.Analysis.BaseURL = "https://analysis.example.com"

	cfg.Triggers.MinOCRConfidence = 1.5
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "triggers.min_ocr_confidence must be between 0 and 1")

	cfg.Triggers.MinOCRConfidence = 0.75
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults(t)
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestRatesConversion(t *testing.T) {
	cfg := validDefaults(t)

	rates, err := cfg.Rates()
	require.NoError(t, err)
	assert.Equal(t, "65", rates.BaseRate.String())
	assert.Equal(t, 225, rates.WordsPerPage)
	assert.Equal(t, "1.15", rates.Complexity[model.ComplexityMedium].String())
	assert.Equal(t, "1.3", rates.RushMultiplier.String())

	cfg.Pricing.HardMultiplier = "bad"
	_, err = cfg.Rates()
	assert.Error(t, err)
}

func TestDeliveryTableConversion(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Delivery.Fees["broken"] = "not-a-fee"

	table := cfg.DeliveryTable()
	assert.Equal(t, "9.95", table.FeeFor("standard_mail").String())
	assert.Equal(t, "29.95", table.FeeFor("courier").String())
	assert.True(t, table.FeeFor("broken").IsZero())
	assert.True(t, table.FeeFor("digital").IsZero())
}

func TestWatchdogConfigConversion(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Watchdog.IntervalSecs = 5
	cfg.Triggers.HighValueThreshold = "2500"

	wcfg := cfg.WatchdogConfig()
	assert.Equal(t, 9, wcfg.MaxAttempts)
	assert.Equal(t, "5s", wcfg.Interval.String())
	assert.Equal(t, "2500", wcfg.Triggers.HighValueThreshold.String())
	assert.InDelta(t, 0.75, wcfg.Triggers.MinOCRConfidence, 0.001)
}
