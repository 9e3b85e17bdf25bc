// Package config provides centralized configuration management for the
// pipeline. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

// Config holds all pipeline configuration.
// All settings can be configured via environment variables.
type Config struct {
	Pipeline PipelineConfig
	Paths    PathsConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// PipelineConfig holds transformation settings.
type PipelineConfig struct {
	// Strict aborts on the first value-conversion error instead of
	// collecting all errors into the run report (default: false)
	Strict bool `env:"SCF_STRICT" default:"false"`

	// Workers is the number of parallel document-assembly workers (default: 4)
	Workers int `env:"SCF_WORKERS" default:"4"`

	// DomainIDLength is how many leading characters of a control ID name
	// its domain (default: 3)
	DomainIDLength int `env:"SCF_DOMAIN_ID_LENGTH" default:"3"`

	// MaxWarnings escalates the run to a failure when integrity warnings
	// exceed it; 0 disables escalation (default: 0)
	MaxWarnings int `env:"SCF_MAX_WARNINGS" default:"0"`

	// Frameworks is a comma-separated list of framework keys to include in
	// assembled documents. Empty means all frameworks.
	Frameworks []string `env:"SCF_FRAMEWORKS"`
}

// PathsConfig holds input and output locations.
type PathsConfig struct {
	// InputDir is the directory of raw per-sheet CSV extractions (default: extracted)
	InputDir string `env:"SCF_INPUT_DIR" default:"extracted"`

	// RegisterFile is the column register path (default: column_register.csv)
	RegisterFile string `env:"SCF_REGISTER_FILE" default:"column_register.csv"`

	// OutputDir is where flat exports and documents are written (default: output)
	OutputDir string `env:"SCF_OUTPUT_DIR" default:"output"`
}

// DatabaseConfig holds document-store connection settings. The database is
// optional; only the load subcommand requires it.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
