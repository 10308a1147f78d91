package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry is a thread-safe registry of model providers keyed by
// provider id ("openai", "anthropic", "ollama", ...). Lookups are case-insensitive.
type ProviderRegistry struct {
	providers       map[string]ModelProvider
	defaultProvider string
	mu              sync.RWMutex
}

// NewProviderRegistry creates an empty ProviderRegistry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ModelProvider),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a provider under name, replacing any previous entry.
func (r *ProviderRegistry) Register(name string, p ModelProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[normalizeName(name)] = p
}

// Get retrieves a provider by name.
func (r *ProviderRegistry) Get(name string) (ModelProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[normalizeName(name)]
	return p, ok
}

// Resolve returns the named provider, or the default when name is empty.
func (r *ProviderRegistry) Resolve(name string) (ModelProvider, error) {
	if name == "" {
		return r.Default()
	}
	if p, ok := r.Get(name); ok {
		return p, nil
	}
	return nil, &Error{
		Code:       ErrRoutingUnavailable,
		Message:    fmt.Sprintf("model provider %q not registered", name),
		HTTPStatus: 503,
		Provider:   name,
	}
}

// Default returns the default provider.
func (r *ProviderRegistry) Default() (ModelProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultProvider == "" {
		return nil, &Error{Code: ErrRoutingUnavailable, Message: "no default model provider set", HTTPStatus: 503}
	}
	p, ok := r.providers[r.defaultProvider]
	if !ok {
		return nil, &Error{
			Code:       ErrRoutingUnavailable,
			Message:    fmt.Sprintf("default provider %q not found in registry", r.defaultProvider),
			HTTPStatus: 503,
		}
	}
	return p, nil
}

// SetDefault designates an existing registered provider as the default.
func (r *ProviderRegistry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeName(name)
	if _, ok := r.providers[key]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.defaultProvider = key
	return nil
}

// List returns the sorted names of all registered providers.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a provider; removing the default clears it.
func (r *ProviderRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeName(name)
	delete(r.providers, key)
	if r.defaultProvider == key {
		r.defaultProvider = ""
	}
}

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
