// Package config loads and validates curator configuration.
//
// Configuration is explicit: Load returns a validated *Config, Default
// returns the built-in defaults, and nothing in this package is global.
// State (job progress, review outcomes, history) belongs in the database,
// never in config.
package config

// Default values applied to fields left unset in the config file.
const (
	DefaultDatabasePath        = "curator.db"
	DefaultEventsDir           = "logs"
	DefaultConfidenceThreshold = 0.7
	DefaultTokenBudget         = 8000
	DefaultBudgetFraction      = 0.8
	DefaultRetentionWindow     = 3
	DefaultKeepCheckpoints     = 5
)

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// EventsConfig locates the operational event stream.
type EventsConfig struct {
	Dir string `yaml:"dir"` // Directory for JSONL event logs
}

// ReviewConfig tunes the review queue.
type ReviewConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // Submissions below this need a cache hit or a human
}

// MemoryConfig tunes the working-memory budget and compaction.
type MemoryConfig struct {
	TokenBudget     int64   `yaml:"token_budget"`     // Active token budget per job
	BudgetFraction  float64 `yaml:"budget_fraction"`  // Fraction of the budget that triggers compaction
	RetentionWindow int     `yaml:"retention_window"` // Newest entries exempt from compaction
	Tokenizer       string  `yaml:"tokenizer"`        // Optional advisory model encoding (e.g. "gpt-4"); empty disables
}

// JobsConfig tunes job bookkeeping.
type JobsConfig struct {
	KeepCheckpoints int `yaml:"keep_checkpoints"` // Checkpoints retained per job
}

// MetricsConfig points the stats commands at an optional Prometheus server.
type MetricsConfig struct {
	PrometheusURL string `yaml:"prometheus_url"` // Base URL for the query service; empty disables
}

// Config is the root curator configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Events   EventsConfig   `yaml:"events"`
	Review   ReviewConfig   `yaml:"review"`
	Memory   MemoryConfig   `yaml:"memory"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills empty fields with default values.
func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Events.Dir == "" {
		cfg.Events.Dir = DefaultEventsDir
	}
	if cfg.Review.ConfidenceThreshold == 0 {
		cfg.Review.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.Memory.TokenBudget == 0 {
		cfg.Memory.TokenBudget = DefaultTokenBudget
	}
	if cfg.Memory.BudgetFraction == 0 {
		cfg.Memory.BudgetFraction = DefaultBudgetFraction
	}
	if cfg.Memory.RetentionWindow == 0 {
		cfg.Memory.RetentionWindow = DefaultRetentionWindow
	}
	if cfg.Jobs.KeepCheckpoints == 0 {
		cfg.Jobs.KeepCheckpoints = DefaultKeepCheckpoints
	}
}
