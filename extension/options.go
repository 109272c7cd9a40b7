package extension

import (
	"time"

	trueque "github.com/xraph/trueque"
	"github.com/xraph/trueque/plugin"
	"github.com/xraph/trueque/store"
)

// Option configures the Trueque Forge extension.
type Option func(*Extension)

// WithStore sets the store for the trueque engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a trueque.Option through to the underlying engine.
func WithEngineOption(opt trueque.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a trueque plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, trueque.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithDriver selects the store backend ("memory", "postgres" or "mongo").
func WithDriver(driver string) Option {
	return func(e *Extension) { e.config.Driver = driver }
}

// WithDSN sets the connection string for the postgres or mongo driver.
func WithDSN(dsn string) Option {
	return func(e *Extension) { e.config.DSN = dsn }
}

// WithDatabase sets the database name for the mongo driver.
func WithDatabase(name string) Option {
	return func(e *Extension) { e.config.Database = name }
}

// WithLockTimeout bounds how long a settlement waits on contended member rows.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTimeout = d }
}

// WithDefaultMargin sets the default matching band width.
func WithDefaultMargin(m float64) Option {
	return func(e *Extension) { e.config.DefaultMargin = m }
}

// WithNotifyBuffer sets the conversation notification buffer capacity.
func WithNotifyBuffer(n int) Option {
	return func(e *Extension) { e.config.NotifyBuffer = n }
}
