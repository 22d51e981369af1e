package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rezkam/codedive/internal/config"
	"github.com/rezkam/codedive/internal/domain"
)

// ProviderConstructor builds a provider from its config entry.
type ProviderConstructor func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider

// Factory resolves provider names to live clients. Each provider is built
// once and reused; config entries without a registered constructor fall back
// to the OpenAI-compatible client when they carry an API base and key.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	mu    sync.RWMutex
	ctors map[string]ProviderConstructor
	built map[string]domain.Provider
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:    cfg,
		logger: logger,
		ctors:  make(map[string]ProviderConstructor),
		built:  make(map[string]domain.Provider),
	}
	f.ctors["ollama"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, Logger: logger})
	}
	f.ctors["openai"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: logger})
	}
	return f
}

// RegisterConstructor adds or replaces a constructor by name. Later Get calls
// for that name use the new constructor; already-built instances stay cached.
func (f *Factory) RegisterConstructor(name string, ctor ProviderConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[name] = ctor
}

// Get returns the provider with the given name, or the configured default
// when name is empty.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	if p, ok := f.cached(name); ok {
		return p, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.built[name]; ok {
		return p, nil
	}
	p, err := f.build(name)
	if err != nil {
		return nil, err
	}
	f.built[name] = p
	return p, nil
}

func (f *Factory) cached(name string) (domain.Provider, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.built[name]
	return p, ok
}

// build constructs a provider. Caller holds the write lock.
func (f *Factory) build(name string) (domain.Provider, error) {
	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	if ctor, ok := f.ctors[name]; ok {
		return ctor(pc, f.logger), nil
	}
	if pc.APIBase != "" && pc.APIKey != "" {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: f.logger}), nil
	}
	return nil, fmt.Errorf("provider %s: no constructor registered and no API base/key configured", name)
}

// DefaultProvider returns the configured default provider.
func (f *Factory) DefaultProvider() (domain.Provider, error) {
	return f.Get("")
}

// HealthyProvider returns the first configured provider that answers a health
// check, or nil when none do.
func (f *Factory) HealthyProvider(ctx context.Context) domain.Provider {
	for name := range f.cfg.Providers {
		p, err := f.Get(name)
		if err != nil || p == nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}
