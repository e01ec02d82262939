// Package config loads the pipeline's YAML configuration, with scalar
// fields overridable by environment variables at the call sites that
// construct each component (database pool, provider clients, the
// enrichment engine, the lot matcher).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig is the per-provider connection and rate-limit policy.
type ProviderConfig struct {
	Name           string        `yaml:"name"`
	RPCURL         string        `yaml:"rpc_url"`
	APIKey         string        `yaml:"api_key"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Burst          int           `yaml:"burst"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// EnrichmentConfig governs the price-enrichment fixpoint loop.
type EnrichmentConfig struct {
	MaxIterations   int     `yaml:"max_iterations"`
	EnableFXLookup  bool    `yaml:"enable_fx_lookup"`
	FXProvider      string  `yaml:"fx_provider"`
	StablecoinDePeg bool    `yaml:"stablecoin_depeg_fallback"`
	RatioTolerance  float64 `yaml:"ratio_tolerance"`
}

// LotMatchingConfig governs the cost-basis lot matcher.
type LotMatchingConfig struct {
	DefaultMethod          string            `yaml:"default_method"` // FIFO | LIFO | HIFO
	Jurisdiction           string            `yaml:"jurisdiction"`
	PerAssetMethods        map[string]string `yaml:"per_asset_methods"`
	SameAssetFeePolicy     string            `yaml:"same_asset_transfer_fee_policy"` // disposal | add-to-basis
	VarianceWarnPercent    map[string]float64 `yaml:"variance_warn_percent"`         // keyed by exchange/source name
	VarianceErrorPercent   map[string]float64 `yaml:"variance_error_percent"`
	DefaultVarianceWarn    float64           `yaml:"default_variance_warn_percent"`
	DefaultVarianceError   float64           `yaml:"default_variance_error_percent"`
}

// ImportConfig governs the streaming import runner.
type ImportConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	ReplayWindow    int           `yaml:"replay_window"`
	DedupCapacity   int           `yaml:"dedup_capacity"`
	WorkerCount     int           `yaml:"worker_count"`
	SessionTimeout  time.Duration `yaml:"session_timeout"`
}

type Config struct {
	DatabaseURL string                     `yaml:"database_url"`
	Providers   map[string]ProviderConfig  `yaml:"providers"`
	Import      ImportConfig               `yaml:"import"`
	Enrichment  EnrichmentConfig           `yaml:"enrichment"`
	LotMatching LotMatchingConfig          `yaml:"lot_matching"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	return cfg, nil
}

// Default returns the baseline configuration applied before YAML
// overrides, mirroring the conservative defaults a fresh deployment
// should start with.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			BatchSize:      500,
			ReplayWindow:   12,
			DedupCapacity:  500,
			WorkerCount:    4,
			SessionTimeout: 30 * time.Minute,
		},
		Enrichment: EnrichmentConfig{
			MaxIterations:   10,
			EnableFXLookup:  true,
			FXProvider:      "ecb",
			StablecoinDePeg: false,
			RatioTolerance:  0.0001,
		},
		LotMatching: LotMatchingConfig{
			DefaultMethod:      "FIFO",
			Jurisdiction:       "US",
			SameAssetFeePolicy: "disposal",
			VarianceWarnPercent: map[string]float64{
				"kraken":  0.5,
				"binance": 1.5,
			},
			VarianceErrorPercent: map[string]float64{
				"kraken":  2.0,
				"binance": 5.0,
			},
			DefaultVarianceWarn:  1.0,
			DefaultVarianceError: 3.0,
		},
		Providers: map[string]ProviderConfig{},
	}
}
