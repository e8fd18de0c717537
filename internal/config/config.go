package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Delivery   DeliveryConfig   `yaml:"delivery" mapstructure:"delivery"`
	Turnaround TurnaroundConfig `yaml:"turnaround" mapstructure:"turnaround"`
	Watchdog   WatchdogConfig   `yaml:"watchdog" mapstructure:"watchdog"`
	Triggers   TriggersConfig   `yaml:"triggers" mapstructure:"triggers"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Payment    PaymentConfig    `yaml:"payment" mapstructure:"payment"`
	SLA        SLAConfig        `yaml:"sla" mapstructure:"sla"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PricingConfig holds the business pricing constants. Decimal-valued fields
// are strings so money never round-trips through float64.
type PricingConfig struct {
	BaseRate          string  `yaml:"base_rate" mapstructure:"base_rate"`
	WordsPerPage      int     `yaml:"words_per_page" mapstructure:"words_per_page"`
	EasyMultiplier    string  `yaml:"easy_multiplier" mapstructure:"easy_multiplier"`
	MediumMultiplier  string  `yaml:"medium_multiplier" mapstructure:"medium_multiplier"`
	HardMultiplier    string  `yaml:"hard_multiplier" mapstructure:"hard_multiplier"`
	RushMultiplier    string  `yaml:"rush_multiplier" mapstructure:"rush_multiplier"`
	SameDayMultiplier string  `yaml:"same_day_multiplier" mapstructure:"same_day_multiplier"`
	CertificationFee  string  `yaml:"certification_fee" mapstructure:"certification_fee"`
	TaxRate           float64 `yaml:"tax_rate" mapstructure:"tax_rate"`
}

// DeliveryConfig maps physical delivery option codes to flat fees.
type DeliveryConfig struct {
	Fees map[string]string `yaml:"fees" mapstructure:"fees"`
}

// TurnaroundConfig configures turnaround availability and scheduling.
type TurnaroundConfig struct {
	Timezone            string `yaml:"timezone" mapstructure:"timezone"`
	RushCutoffHour      int    `yaml:"rush_cutoff_hour" mapstructure:"rush_cutoff_hour"`
	RushCutoffMinute    int    `yaml:"rush_cutoff_minute" mapstructure:"rush_cutoff_minute"`
	SameDayCutoffHour   int    `yaml:"same_day_cutoff_hour" mapstructure:"same_day_cutoff_hour"`
	SameDayCutoffMinute int    `yaml:"same_day_cutoff_minute" mapstructure:"same_day_cutoff_minute"`
	RushDays            int    `yaml:"rush_days" mapstructure:"rush_days"`
	TablesPath          string `yaml:"tables_path" mapstructure:"tables_path"`
}

// WatchdogConfig configures the analysis poll loop.
type WatchdogConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
	MaxAttempts  int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// TriggersConfig holds the thresholds that escalate a quote into review.
type TriggersConfig struct {
	MinOCRConfidence      float64 `yaml:"min_ocr_confidence" mapstructure:"min_ocr_confidence"`
	MinLanguageConfidence float64 `yaml:"min_language_confidence" mapstructure:"min_language_confidence"`
	MinClassifyConfidence float64 `yaml:"min_classify_confidence" mapstructure:"min_classify_confidence"`
	HighValueThreshold    string  `yaml:"high_value_threshold" mapstructure:"high_value_threshold"`
	HighPageThreshold     int     `yaml:"high_page_threshold" mapstructure:"high_page_threshold"`
}

// AnalysisConfig holds the external document analysis API settings.
type AnalysisConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Key               string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// NotifyConfig holds the customer messaging API settings.
type NotifyConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// PaymentConfig holds the payment gateway settings.
type PaymentConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Key      string `yaml:"key" mapstructure:"key"`
	Currency string `yaml:"currency" mapstructure:"currency"`
}

// SLAConfig configures the background review-queue sweep.
type SLAConfig struct {
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	MaxQueueDepth     int    `yaml:"max_queue_depth" mapstructure:"max_queue_depth"`
	MaxUrgent         int    `yaml:"max_urgent" mapstructure:"max_urgent"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUOTEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.base_rate", "65")
	v.SetDefault("pricing.words_per_page", 225)
	v.SetDefault("pricing.easy_multiplier", "1.0")
	v.SetDefault("pricing.medium_multiplier", "1.15")
	v.SetDefault("pricing.hard_multiplier", "1.25")
	v.SetDefault("pricing.rush_multiplier", "1.30")
	v.SetDefault("pricing.same_day_multiplier", "2.00")
	v.SetDefault("pricing.certification_fee", "25.00")
	v.SetDefault("pricing.tax_rate", 0)
	v.SetDefault("delivery.fees", map[string]string{
		"standard_mail": "9.95",
		"courier":       "29.95",
	})
	v.SetDefault("turnaround.timezone", "America/Chicago")
	v.SetDefault("turnaround.rush_cutoff_hour", 14)
	v.SetDefault("turnaround.rush_cutoff_minute", 0)
	v.SetDefault("turnaround.same_day_cutoff_hour", 10)
	v.SetDefault("turnaround.same_day_cutoff_minute", 0)
	v.SetDefault("turnaround.rush_days", 1)
	v.SetDefault("watchdog.interval_secs", 10)
	v.SetDefault("watchdog.max_attempts", 9)
	v.SetDefault("triggers.min_ocr_confidence", 0.75)
	v.SetDefault("triggers.min_language_confidence", 0.80)
	v.SetDefault("triggers.min_classify_confidence", 0.70)
	v.SetDefault("triggers.high_value_threshold", "1000")
	v.SetDefault("triggers.high_page_threshold", 50)
	v.SetDefault("analysis.timeout_secs", 30)
	v.SetDefault("analysis.requests_per_second", 5)
	v.SetDefault("analysis.burst", 10)
	v.SetDefault("payment.currency", "USD")
	v.SetDefault("sla.check_interval_secs", 300)
	v.SetDefault("sla.max_queue_depth", 25)
	v.SetDefault("sla.max_urgent", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
