package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onMemberCreated       []OnMemberCreated
	onLimitExceeded       []OnLimitExceeded
	onExchangeCreated     []OnExchangeCreated
	onExchangeConfirmed   []OnExchangeConfirmed
	onExchangeCancelled   []OnExchangeCancelled
	onSettlementCompleted []OnSettlementCompleted
	onSettlementFailed    []OnSettlementFailed
	onConversationLinked  []OnConversationLinked
	onMatchesComputed     []OnMatchesComputed
	matchScorers          map[string]MatchScorer
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:       slog.Default(),
		matchScorers: make(map[string]MatchScorer),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnMemberCreated); ok {
		r.onMemberCreated = append(r.onMemberCreated, v)
	}
	if v, ok := p.(OnLimitExceeded); ok {
		r.onLimitExceeded = append(r.onLimitExceeded, v)
	}
	if v, ok := p.(OnExchangeCreated); ok {
		r.onExchangeCreated = append(r.onExchangeCreated, v)
	}
	if v, ok := p.(OnExchangeConfirmed); ok {
		r.onExchangeConfirmed = append(r.onExchangeConfirmed, v)
	}
	if v, ok := p.(OnExchangeCancelled); ok {
		r.onExchangeCancelled = append(r.onExchangeCancelled, v)
	}
	if v, ok := p.(OnSettlementCompleted); ok {
		r.onSettlementCompleted = append(r.onSettlementCompleted, v)
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
	}
	if v, ok := p.(OnConversationLinked); ok {
		r.onConversationLinked = append(r.onConversationLinked, v)
	}
	if v, ok := p.(OnMatchesComputed); ok {
		r.onMatchesComputed = append(r.onMatchesComputed, v)
	}
	if v, ok := p.(MatchScorer); ok {
		r.matchScorers[v.ScorerName()] = v
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnMemberCreated)(nil)).Elem(), "OnMemberCreated")
	checkInterface(reflect.TypeOf((*OnLimitExceeded)(nil)).Elem(), "OnLimitExceeded")
	checkInterface(reflect.TypeOf((*OnExchangeCreated)(nil)).Elem(), "OnExchangeCreated")
	checkInterface(reflect.TypeOf((*OnExchangeConfirmed)(nil)).Elem(), "OnExchangeConfirmed")
	checkInterface(reflect.TypeOf((*OnExchangeCancelled)(nil)).Elem(), "OnExchangeCancelled")
	checkInterface(reflect.TypeOf((*OnSettlementCompleted)(nil)).Elem(), "OnSettlementCompleted")
	checkInterface(reflect.TypeOf((*OnSettlementFailed)(nil)).Elem(), "OnSettlementFailed")
	checkInterface(reflect.TypeOf((*OnConversationLinked)(nil)).Elem(), "OnConversationLinked")
	checkInterface(reflect.TypeOf((*OnMatchesComputed)(nil)).Elem(), "OnMatchesComputed")
	checkInterface(reflect.TypeOf((*MatchScorer)(nil)).Elem(), "MatchScorer")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// GetMatchScorer returns a match scorer by name.
func (r *Registry) GetMatchScorer(name string) MatchScorer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matchScorers[name]
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMemberCreated emits a member created event.
func (r *Registry) EmitMemberCreated(ctx context.Context, m interface{}) {
	r.mu.RLock()
	plugins := r.onMemberCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMemberCreated(ctx, m)
		}); err != nil {
			r.logger.Warn("plugin OnMemberCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLimitExceeded emits a limit exceeded event.
func (r *Registry) EmitLimitExceeded(ctx context.Context, memberID int64, attempted, ceiling int64) {
	r.mu.RLock()
	plugins := r.onLimitExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLimitExceeded(ctx, memberID, attempted, ceiling)
		}); err != nil {
			r.logger.Warn("plugin OnLimitExceeded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitExchangeCreated emits an exchange created event.
func (r *Registry) EmitExchangeCreated(ctx context.Context, record interface{}) {
	r.mu.RLock()
	plugins := r.onExchangeCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExchangeCreated(ctx, record)
		}); err != nil {
			r.logger.Warn("plugin OnExchangeCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitExchangeConfirmed emits an exchange confirmed event.
func (r *Registry) EmitExchangeConfirmed(ctx context.Context, record interface{}) {
	r.mu.RLock()
	plugins := r.onExchangeConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExchangeConfirmed(ctx, record)
		}); err != nil {
			r.logger.Warn("plugin OnExchangeConfirmed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitExchangeCancelled emits an exchange cancelled event.
func (r *Registry) EmitExchangeCancelled(ctx context.Context, record interface{}) {
	r.mu.RLock()
	plugins := r.onExchangeCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExchangeCancelled(ctx, record)
		}); err != nil {
			r.logger.Warn("plugin OnExchangeCancelled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSettlementCompleted emits a settlement completed event.
func (r *Registry) EmitSettlementCompleted(ctx context.Context, result interface{}, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onSettlementCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSettlementCompleted(ctx, result, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnSettlementCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSettlementFailed emits a settlement failed event.
func (r *Registry) EmitSettlementFailed(ctx context.Context, buyerID, listingID int64, failure error) {
	r.mu.RLock()
	plugins := r.onSettlementFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSettlementFailed(ctx, buyerID, listingID, failure)
		}); err != nil {
			r.logger.Warn("plugin OnSettlementFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitConversationLinked emits a conversation linked settlement event.
func (r *Registry) EmitConversationLinked(ctx context.Context, event interface{}) {
	r.mu.RLock()
	plugins := r.onConversationLinked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnConversationLinked(ctx, event)
		}); err != nil {
			r.logger.Warn("plugin OnConversationLinked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMatchesComputed emits a matches computed event.
func (r *Registry) EmitMatchesComputed(ctx context.Context, result interface{}) {
	r.mu.RLock()
	plugins := r.onMatchesComputed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMatchesComputed(ctx, result)
		}); err != nil {
			r.logger.Warn("plugin OnMatchesComputed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
