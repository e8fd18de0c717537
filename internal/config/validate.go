package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Validate checks the configuration required by a run mode. All problems are
// reported at once so operators fix the config in one pass.
func (c *Config) Validate(mode string) error {
	var problems []string

	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.DatabaseURL == "" {
				add("store.database_url must point at the sqlite file")
			}
		default:
			add("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
		}
	}

	checkPricing := func() {
		for name, raw := range map[string]string{
			"pricing.base_rate":           c.Pricing.BaseRate,
			"pricing.easy_multiplier":     c.Pricing.EasyMultiplier,
			"pricing.medium_multiplier":   c.Pricing.MediumMultiplier,
			"pricing.hard_multiplier":     c.Pricing.HardMultiplier,
			"pricing.rush_multiplier":     c.Pricing.RushMultiplier,
			"pricing.same_day_multiplier": c.Pricing.SameDayMultiplier,
		} {
			if _, err := decimal.NewFromString(raw); err != nil {
				add("%s is not a valid decimal: %q", name, raw)
			}
		}
		if c.Pricing.WordsPerPage <= 0 {
			add("pricing.words_per_page must be > 0")
		}
		if c.Pricing.TaxRate < 0 || c.Pricing.TaxRate > 1 {
			add("pricing.tax_rate must be between 0 and 1")
		}
	}

	switch mode {
	case "serve":
		checkStore()
		checkPricing()
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if c.Analysis.BaseURL == "" {
			add("analysis.base_url is required")
		}
		if c.Watchdog.MaxAttempts <= 0 {
			add("watchdog.max_attempts must be > 0")
		}
		if c.Watchdog.IntervalSecs <= 0 {
			add("watchdog.interval_secs must be > 0")
		}
		for name, v := range map[string]float64{
			"triggers.min_ocr_confidence":      c.Triggers.MinOCRConfidence,
			"triggers.min_language_confidence": c.Triggers.MinLanguageConfidence,
			"triggers.min_classify_confidence": c.Triggers.MinClassifyConfidence,
		} {
			if v < 0 || v > 1 {
				add("%s must be between 0 and 1", name)
			}
		}
	case "migrate", "export":
		checkStore()
	case "price":
		checkPricing()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
