package registry

import (
	"fmt"
	"sync"
)

var (
	defaultRegistry = NewRegistry()
	initOnce        sync.Once
	initErr         error
)

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Init populates the process-wide registry from the given plug-ins and seals it.
// Only the first call has any effect; later calls return the first call's error.
func Init(plugins ...Plugin) error {
	initOnce.Do(func() {
		for i, p := range plugins {
			if err := p(defaultRegistry); err != nil {
				initErr = fmt.Errorf("plugin %d: %w", i, err)
				break
			}
		}
		defaultRegistry.Seal()
	})
	return initErr
}

// Load builds a fresh, sealed registry from plug-ins.
// Useful for tests and embedders that do not want the process-wide catalog.
func Load(plugins ...Plugin) (*Registry, error) {
	r := NewRegistry()
	for i, p := range plugins {
		if err := p(r); err != nil {
			return nil, fmt.Errorf("plugin %d: %w", i, err)
		}
	}
	r.Seal()
	return r, nil
}
