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
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Reanalysis ReanalysisConfig `yaml:"reanalysis" mapstructure:"reanalysis"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the analysis workers.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ExtractConfig configures the extraction retry controller.
type ExtractConfig struct {
	MaxRetries            int    `yaml:"max_retries" mapstructure:"max_retries"`
	BaseRetryDelaySeconds int    `yaml:"base_retry_delay_seconds" mapstructure:"base_retry_delay_seconds"`
	MinTextLength         int    `yaml:"min_text_length" mapstructure:"min_text_length"`
	FetchTimeoutSecs      int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	UserAgent             string `yaml:"user_agent" mapstructure:"user_agent"`
}

// AnalysisConfig configures the orchestrator's worker fan-out.
type AnalysisConfig struct {
	WorkerTimeoutSecs int     `yaml:"worker_timeout_secs" mapstructure:"worker_timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ReanalysisConfig configures the low-confidence reanalysis scheduler.
type ReanalysisConfig struct {
	Threshold int `yaml:"threshold" mapstructure:"threshold"`
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// BatchConfig configures cross-article concurrency for batch jobs.
type BatchConfig struct {
	MaxConcurrentArticles int `yaml:"max_concurrent_articles" mapstructure:"max_concurrent_articles"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NEWSAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extract.max_retries", 5)
	v.SetDefault("extract.base_retry_delay_seconds", 60)
	v.SetDefault("extract.min_text_length", 250)
	v.SetDefault("extract.fetch_timeout_secs", 30)
	v.SetDefault("extract.user_agent", "Mozilla/5.0 (compatible; NewsAuditBot/1.0)")
	v.SetDefault("analysis.worker_timeout_secs", 90)
	v.SetDefault("analysis.requests_per_second", 2.0)
	v.SetDefault("reanalysis.threshold", 85)
	v.SetDefault("reanalysis.batch_size", 5)
	v.SetDefault("batch.max_concurrent_articles", 3)

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
