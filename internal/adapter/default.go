package adapter

import (
	"sync"

	"netgazer/internal/capture"
)

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Init creates the process-wide registry. A registry installed by an
// earlier Init is disposed and replaced.
func Init(driver capture.Driver, opts ...Option) (*Registry, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry != nil {
		defaultRegistry.Dispose()
		defaultRegistry = nil
	}
	r, err := New(driver, opts...)
	if err != nil {
		return nil, err
	}
	defaultRegistry = r
	return r, nil
}

// Default returns the process-wide registry, or nil if none is installed.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRegistry
}

// Dispose releases the process-wide registry and everything it owns.
func Dispose() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry != nil {
		defaultRegistry.Dispose()
		defaultRegistry = nil
	}
}
