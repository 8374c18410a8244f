package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/onuralpArsln/AINewspaper/internal/grouping"
	"github.com/onuralpArsln/AINewspaper/internal/textsim"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	SimilarityThreshold float64 `envconfig:"GROUPING_SIMILARITY_THRESHOLD" default:"0.3"`
	LookbackDays        int     `envconfig:"GROUPING_LOOKBACK_DAYS" default:"7"`
	MaxTimeDiffDays     int     `envconfig:"GROUPING_MAX_TIME_DIFF_DAYS" default:"2"`
	MinGroupSize        int     `envconfig:"GROUPING_MIN_GROUP_SIZE" default:"2"`
	TitleWeight         float64 `envconfig:"GROUPING_TITLE_WEIGHT" default:"0.6"`
	BodyWeight          float64 `envconfig:"GROUPING_BODY_WEIGHT" default:"0.4"`
	StopWordsFile       string  `envconfig:"GROUPING_STOPWORDS_FILE" default:""`
	CaseLocale          string  `envconfig:"GROUPING_CASE_LOCALE" default:"tr"`
	MinTokenLength      int     `envconfig:"GROUPING_MIN_TOKEN_LENGTH" default:"2"`
	KeepApostrophe      bool    `envconfig:"GROUPING_KEEP_APOSTROPHE_SUFFIX" default:"false"`
	Workers             int     `envconfig:"GROUPING_WORKERS" default:"0"`
	MaxPairsWarn        int     `envconfig:"GROUPING_MAX_PAIRS_WARN" default:"2000000"`

	OTelServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"event-grouper"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if math.IsNaN(c.SimilarityThreshold) || c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("GROUPING_SIMILARITY_THRESHOLD must be within [0,1]")
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("GROUPING_LOOKBACK_DAYS must be >= 1")
	}
	if c.MaxTimeDiffDays < 0 {
		return fmt.Errorf("GROUPING_MAX_TIME_DIFF_DAYS must be >= 0")
	}
	if c.MinGroupSize < 2 {
		return fmt.Errorf("GROUPING_MIN_GROUP_SIZE must be >= 2")
	}
	if err := (textsim.Weights{Title: c.TitleWeight, Body: c.BodyWeight}).Validate(); err != nil {
		return fmt.Errorf("GROUPING_TITLE_WEIGHT/GROUPING_BODY_WEIGHT: %w", err)
	}
	if c.MinTokenLength < 1 {
		return fmt.Errorf("GROUPING_MIN_TOKEN_LENGTH must be >= 1")
	}
	if c.Workers < 0 {
		return fmt.Errorf("GROUPING_WORKERS must be >= 0")
	}
	if c.MaxPairsWarn < 0 {
		return fmt.Errorf("GROUPING_MAX_PAIRS_WARN must be >= 0")
	}
	return nil
}

// GroupingParams maps the env configuration onto engine parameters. CLI
// flags may override fields of the result per run.
func (c *Config) GroupingParams() grouping.Params {
	return grouping.Params{
		SimilarityThreshold: c.SimilarityThreshold,
		LookbackDays:        c.LookbackDays,
		MaxTimeDiffDays:     c.MaxTimeDiffDays,
		MinGroupSize:        c.MinGroupSize,
		Weights:             textsim.Weights{Title: c.TitleWeight, Body: c.BodyWeight},
		Workers:             c.Workers,
		PairWarnLevel:       c.MaxPairsWarn,
	}
}

// TokenizerOptions resolves the stop-word file and casing settings.
func (c *Config) TokenizerOptions() (textsim.TokenizerOptions, error) {
	stop, err := textsim.LoadStopWords(c.StopWordsFile)
	if err != nil {
		return textsim.TokenizerOptions{}, err
	}
	return textsim.TokenizerOptions{
		Locale:               c.CaseLocale,
		MinTokenLength:       c.MinTokenLength,
		DropApostropheSuffix: !c.KeepApostrophe,
		StopWords:            stop,
	}, nil
}
