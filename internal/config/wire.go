package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lingua-desk/quoteflow/internal/analysis"
	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/pricing"
	"github.com/lingua-desk/quoteflow/internal/sla"
	"github.com/lingua-desk/quoteflow/internal/watchdog"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

// Rates converts the pricing section into calculator rates. Invalid decimals
// surface here rather than mid-quote; call Validate first.
func (c *Config) Rates() (pricing.Rates, error) {
	parse := func(s string) (decimal.Decimal, error) {
		return decimal.NewFromString(s)
	}

	base, err := parse(c.Pricing.BaseRate)
	if err != nil {
		return pricing.Rates{}, err
	}
	easy, err := parse(c.Pricing.EasyMultiplier)
	if err != nil {
		return pricing.Rates{}, err
	}
	medium, err := parse(c.Pricing.MediumMultiplier)
	if err != nil {
		return pricing.Rates{}, err
	}
	hard, err := parse(c.Pricing.HardMultiplier)
	if err != nil {
		return pricing.Rates{}, err
	}
	rush, err := parse(c.Pricing.RushMultiplier)
	if err != nil {
		return pricing.Rates{}, err
	}
	sameDay, err := parse(c.Pricing.SameDayMultiplier)
	if err != nil {
		return pricing.Rates{}, err
	}

	return pricing.Rates{
		BaseRate:     base,
		WordsPerPage: c.Pricing.WordsPerPage,
		Complexity: map[model.ComplexityLevel]decimal.Decimal{
			model.ComplexityEasy:   easy,
			model.ComplexityMedium: medium,
			model.ComplexityHard:   hard,
		},
		RushMultiplier:    rush,
		SameDayMultiplier: sameDay,
	}, nil
}

// DeliveryTable converts the delivery fee map. Unparseable fees are skipped;
// FeeFor treats unknown options as free, so a bad entry degrades rather than
// fails.
func (c *Config) DeliveryTable() workflow.DeliveryPriceTable {
	table := workflow.DeliveryPriceTable{}
	for option, raw := range c.Delivery.Fees {
		fee, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		table[option] = fee
	}
	return table
}

// WatchdogConfig builds the poll loop configuration including trigger
// thresholds.
func (c *Config) WatchdogConfig() watchdog.Config {
	cfg := watchdog.Config{
		Interval:    time.Duration(c.Watchdog.IntervalSecs) * time.Second,
		MaxAttempts: c.Watchdog.MaxAttempts,
		Triggers:    watchdog.DefaultTriggerConfig(),
	}
	if c.Triggers.MinOCRConfidence > 0 {
		cfg.Triggers.MinOCRConfidence = c.Triggers.MinOCRConfidence
	}
	if c.Triggers.MinLanguageConfidence > 0 {
		cfg.Triggers.MinLanguageConfidence = c.Triggers.MinLanguageConfidence
	}
	if c.Triggers.MinClassifyConfidence > 0 {
		cfg.Triggers.MinClassifyConfidence = c.Triggers.MinClassifyConfidence
	}
	if threshold, err := decimal.NewFromString(c.Triggers.HighValueThreshold); err == nil {
		cfg.Triggers.HighValueThreshold = threshold
	}
	if c.Triggers.HighPageThreshold > 0 {
		cfg.Triggers.HighPageThreshold = c.Triggers.HighPageThreshold
	}
	return cfg
}

// SLAThresholds builds the review-queue alert thresholds.
func (c *Config) SLAThresholds() sla.Thresholds {
	return sla.Thresholds{
		MaxQueueDepth: c.SLA.MaxQueueDepth,
		MaxUrgent:     c.SLA.MaxUrgent,
	}
}

// AnalysisOptions builds the analysis API client options.
func (c *Config) AnalysisOptions() analysis.Options {
	return analysis.Options{
		BaseURL:           c.Analysis.BaseURL,
		APIKey:            c.Analysis.Key,
		Timeout:           time.Duration(c.Analysis.TimeoutSecs) * time.Second,
		RequestsPerSecond: c.Analysis.RequestsPerSecond,
		Burst:             c.Analysis.Burst,
	}
}
