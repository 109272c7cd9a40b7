// Package extension provides the Forge extension adapter for Trueque.
//
// It implements the forge.Extension interface to integrate Trueque
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.trueque" or "trueque" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	trueque "github.com/xraph/trueque"
	"github.com/xraph/trueque/store"
	"github.com/xraph/trueque/store/memory"
	"github.com/xraph/trueque/store/mongo"
	"github.com/xraph/trueque/store/postgres"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "trueque"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Community barter credit ledger with matching and settlement"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Trueque as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *trueque.Engine
	store      store.Store
	engineOpts []trueque.Option
}

// New creates a new Trueque Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying trueque engine.
// This is nil until Register is called.
func (e *Extension) Engine() *trueque.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// builds the store backend, initializes the engine, and registers it
// in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Construct the store from config unless one was provided programmatically.
	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	opts := e.buildEngineOpts()

	eng := trueque.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*trueque.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("trueque: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("trueque: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore constructs the store backend named by the resolved config.
func (e *Extension) buildStore() (store.Store, error) {
	switch e.config.Driver {
	case "", "memory":
		return memory.New(memory.WithLockTimeout(e.config.LockTimeout)), nil
	case "postgres":
		if e.config.DSN == "" {
			return nil, errors.New("trueque: postgres driver requires a dsn")
		}
		return postgres.New(context.Background(), e.config.DSN,
			postgres.WithLockTimeout(e.config.LockTimeout),
		)
	case "mongo":
		if e.config.DSN == "" {
			return nil, errors.New("trueque: mongo driver requires a dsn")
		}
		return mongo.New(context.Background(), e.config.DSN, e.config.Database)
	default:
		return nil, fmt.Errorf("trueque: unknown store driver %q", e.config.Driver)
	}
}

// buildEngineOpts constructs trueque.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []trueque.Option {
	opts := make([]trueque.Option, 0, len(e.engineOpts)+2)

	if e.config.DefaultMargin > 0 {
		opts = append(opts, trueque.WithDefaultMargin(e.config.DefaultMargin))
	}
	if e.config.NotifyBuffer > 0 {
		opts = append(opts, trueque.WithNotifyBuffer(e.config.NotifyBuffer))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("trueque: configuration is required but not found in config files; " +
				"ensure 'extensions.trueque' or 'trueque' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("trueque: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("driver", e.config.Driver),
		forge.F("lock_timeout", e.config.LockTimeout),
		forge.F("default_margin", e.config.DefaultMargin),
		forge.F("notify_buffer", e.config.NotifyBuffer),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.trueque" first (namespaced pattern).
	if cm.IsSet("extensions.trueque") {
		if err := cm.Bind("extensions.trueque", &cfg); err == nil {
			e.Logger().Debug("trueque: loaded config from file",
				forge.F("key", "extensions.trueque"),
			)
			return cfg, true
		}
		e.Logger().Warn("trueque: failed to bind extensions.trueque config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "trueque" key.
	if cm.IsSet("trueque") {
		if err := cm.Bind("trueque", &cfg); err == nil {
			e.Logger().Debug("trueque: loaded config from file",
				forge.F("key", "trueque"),
			)
			return cfg, true
		}
		e.Logger().Warn("trueque: failed to bind trueque config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	if cfg.DefaultMargin == 0 {
		cfg.DefaultMargin = defaults.DefaultMargin
	}
	if cfg.NotifyBuffer == 0 {
		cfg.NotifyBuffer = defaults.NotifyBuffer
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DSN == "" && programmaticConfig.DSN != "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.Database == "" && programmaticConfig.Database != "" {
		yamlConfig.Database = programmaticConfig.Database
	}

	// Duration/numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.LockTimeout == 0 && programmaticConfig.LockTimeout != 0 {
		yamlConfig.LockTimeout = programmaticConfig.LockTimeout
	}
	if yamlConfig.DefaultMargin == 0 && programmaticConfig.DefaultMargin != 0 {
		yamlConfig.DefaultMargin = programmaticConfig.DefaultMargin
	}
	if yamlConfig.NotifyBuffer == 0 && programmaticConfig.NotifyBuffer != 0 {
		yamlConfig.NotifyBuffer = programmaticConfig.NotifyBuffer
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
