package llm

import (
	"fmt"
	"log/slog"
	"sync"

	"teamforge/internal/domain"
	"teamforge/internal/infra/config"
)

// Registry holds named LLM providers and implements domain.ProviderResolver.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// NewRegistryFromConfig builds a registry with one circuit-breaker-wrapped
// OpenAI-compatible provider per configured endpoint.
func NewRegistryFromConfig(cfgs []config.ProviderConfig, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, pc := range cfgs {
		provider := NewCircuitBreakerProvider(NewOpenAIProvider(pc, logger), pc.CircuitBreaker, logger)
		if err := r.Register(provider); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a provider. Returns error if the name is already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Resolve implements domain.ProviderResolver. The model parameter selects
// nothing here: one registered client serves all of a provider's models,
// the model travels in the request.
func (r *Registry) Resolve(provider, _ string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[provider]
	if !ok {
		return nil, domain.NewDomainError("Registry.Resolve", domain.ErrDependencyUnavailable, "provider "+provider)
	}
	return p, nil
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
