package cpa

import "sync"

var (
	defaultMu       sync.RWMutex
	defaultProvider *Provider
)

// SetDefault installs p as the process-wide default provider and returns the
// previously installed one, or nil. Passing nil clears the slot.
//
// The slot is a convenience for applications that share one provider; it is
// never populated implicitly and other providers can coexist with it.
func SetDefault(p *Provider) *Provider {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	previous := defaultProvider
	defaultProvider = p
	return previous
}

// Default returns the provider installed with SetDefault, or nil.
func Default() *Provider {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultProvider
}
