package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnavailable marks an adapter without valid credentials or connection.
// Orchestrators treat it as "skip this provider for this scope".
var ErrUnavailable = errors.New("provider unavailable")

// Registry stores search-analytics adapters by name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds one adapter.
func (r *Registry) Register(adapter Adapter) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	name := normalizeAdapterName(adapter.Name())
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}
	r.adapters[name] = adapter
	return nil
}

// Adapter resolves an adapter by name.
func (r *Registry) Adapter(name string) (Adapter, error) {
	if r == nil || len(r.adapters) == 0 {
		return nil, fmt.Errorf("no provider adapters are registered")
	}
	resolved := normalizeAdapterName(name)
	adapter, ok := r.adapters[resolved]
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered (available: %s)",
			resolved, strings.Join(r.Names(), ", "))
	}
	return adapter, nil
}

// Available lists registered adapters that currently have credentials,
// in stable name order.
func (r *Registry) Available() []Adapter {
	if r == nil {
		return nil
	}
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, name := range r.Names() {
		if adapter := r.adapters[name]; adapter.Available() {
			adapters = append(adapters, adapter)
		}
	}
	return adapters
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeAdapterName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
