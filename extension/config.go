package extension

import "time"

// Config holds the Trueque extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.trueque" or "trueque" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend: "memory", "postgres", or "mongo"
	// (default: "memory"). Ignored when a store is supplied via WithStore.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for the postgres or mongo driver.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the database name for the mongo driver (default: "trueque").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// LockTimeout bounds how long a settlement waits on contended member
	// rows before aborting with a settlement timeout (default: 3s).
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// DefaultMargin is the matching band width when queries do not
	// override it (default: 0.2, meaning ±20%).
	DefaultMargin float64 `json:"default_margin" mapstructure:"default_margin" yaml:"default_margin"`

	// NotifyBuffer is the conversation notification buffer capacity
	// (default: 1024). Overflow drops notifications; settlement is
	// unaffected.
	NotifyBuffer int `json:"notify_buffer" mapstructure:"notify_buffer" yaml:"notify_buffer"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:        "memory",
		Database:      "trueque",
		LockTimeout:   3 * time.Second,
		DefaultMargin: 0.2,
		NotifyBuffer:  1024,
	}
}
