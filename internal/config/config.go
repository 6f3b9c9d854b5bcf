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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Socrata  SocrataConfig  `yaml:"socrata" mapstructure:"socrata"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SocrataConfig configures the open-data source.
type SocrataConfig struct {
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url"`
	AppToken            string  `yaml:"app_token" mapstructure:"app_token"`
	PermitsDataset      string  `yaml:"permits_dataset" mapstructure:"permits_dataset"`
	InspectionsDataset  string  `yaml:"inspections_dataset" mapstructure:"inspections_dataset"`
	CertificatesDataset string  `yaml:"certificates_dataset" mapstructure:"certificates_dataset"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec      float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// PipelineConfig configures sync and computation behavior.
type PipelineConfig struct {
	Jurisdiction string `yaml:"jurisdiction" mapstructure:"jurisdiction"`
	// BackfillStart is the issue-date floor used when no watermark exists yet.
	BackfillStart string `yaml:"backfill_start" mapstructure:"backfill_start"`
	PageSize      int    `yaml:"page_size" mapstructure:"page_size"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	// PermitBatch is how many of our own permit numbers go into one
	// batched source query (amendments, inspections).
	PermitBatch int `yaml:"permit_batch" mapstructure:"permit_batch"`
	// AmendmentDigitOffset is the zero-based position of the amendment
	// sequence digit within the 13-character permit number. The documented
	// layout is CCYYLLNNN S NNN with the sequence digit at position 9.
	AmendmentDigitOffset int `yaml:"amendment_digit_offset" mapstructure:"amendment_digit_offset"`
	// StalenessMonths bounds how old a started build may be and still count
	// as active in contractor metrics.
	StalenessMonths int `yaml:"staleness_months" mapstructure:"staleness_months"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// CronSecret is the bearer token required on /api/cron endpoints.
	CronSecret     string   `yaml:"cron_secret" mapstructure:"cron_secret"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("PERMITSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("socrata.base_url", "https://data.lacity.org/resource")
	v.SetDefault("socrata.permits_dataset", "pi9x-tg5x")
	v.SetDefault("socrata.inspections_dataset", "9w5z-rg2h")
	v.SetDefault("socrata.certificates_dataset", "y3gg-54j8")
	v.SetDefault("socrata.timeout_secs", 30)
	v.SetDefault("socrata.requests_per_sec", 5.0)
	v.SetDefault("pipeline.jurisdiction", "Los Angeles")
	v.SetDefault("pipeline.backfill_start", "2020-01-01")
	v.SetDefault("pipeline.page_size", 1000)
	v.SetDefault("pipeline.max_pages", 10)
	v.SetDefault("pipeline.permit_batch", 100)
	v.SetDefault("pipeline.amendment_digit_offset", 9)
	v.SetDefault("pipeline.staleness_months", 18)

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
