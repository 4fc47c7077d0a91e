package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/integration-gateway/internal/policy"
)

var (
	// ErrConnectorNotFound is returned when no connector serves a provider
	ErrConnectorNotFound = errors.New("connector not found")

	// ErrConnectorAlreadyRegistered is returned when trying to register a duplicate connector
	ErrConnectorAlreadyRegistered = errors.New("connector already registered")
)

// Registry manages connector instances by provider
type Registry struct {
	mu         sync.RWMutex
	connectors map[policy.Provider]Connector
}

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[policy.Provider]Connector),
	}
}

// Register registers a connector instance
func (r *Registry) Register(connector Connector) error {
	if connector == nil {
		return errors.New("connector cannot be nil")
	}

	provider := connector.Provider()
	if _, err := policy.ParseProvider(string(provider)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[provider]; exists {
		return ErrConnectorAlreadyRegistered
	}
	r.connectors[provider] = connector
	return nil
}

// Unregister removes a connector from the registry
func (r *Registry) Unregister(provider policy.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[provider]; !exists {
		return ErrConnectorNotFound
	}
	delete(r.connectors, provider)
	return nil
}

// Get retrieves the connector for a provider
func (r *Registry) Get(provider policy.Provider) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connector, exists := r.connectors[provider]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotFound, provider)
	}
	return connector, nil
}

// List returns the registered providers in sorted order
func (r *Registry) List() []policy.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]policy.Provider, 0, len(r.connectors))
	for p := range r.connectors {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of registered connectors
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectors)
}

// ConnectorBuilder creates a connector from its configuration
type ConnectorBuilder func(provider policy.Provider, config ConnectorConfig) (Connector, error)

// BuildRegistry creates one connector per configured provider. Providers
// without an endpoint are skipped.
func BuildRegistry(configs map[policy.Provider]ConnectorConfig, build ConnectorBuilder) (*Registry, error) {
	registry := NewRegistry()
	for provider, config := range configs {
		if config.Endpoint == "" {
			continue
		}
		connector, err := build(provider, config)
		if err != nil {
			return nil, fmt.Errorf("failed to build connector %s: %w", provider, err)
		}
		if err := registry.Register(connector); err != nil {
			return nil, fmt.Errorf("failed to register connector %s: %w", provider, err)
		}
	}
	return registry, nil
}
