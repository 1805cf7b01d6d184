// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// SkippedProvider records a configured backend that the registry
// could not use.
type SkippedProvider struct {
	Name string
	Err  error
}

// Registry is the immutable set of usable providers, keyed by name.
// It has no mutators, so concurrent readers need no locking.
// Switching the active provider for a session is the caller's
// concern: it looks up a different name.
type Registry struct {
	providers   map[string]Provider
	order       []string
	defaultName string
	skipped     []SkippedProvider
}

// NewRegistry constructs and validates a provider for each config.
// A backend whose protocol is unknown, whose configuration fails
// Validate, or whose name repeats an earlier one is skipped with a
// warning. Construction fails, with an error wrapping [ErrNoProviders]
// and every skip reason, only when nothing is usable.
//
// The default is preferred when that name is usable, otherwise the
// first usable backend in configuration order.
func NewRegistry(configs []ProviderConfig, preferred string, options Options) (*Registry, error) {
	logger := options.logger()
	registry := &Registry{providers: make(map[string]Provider, len(configs))}

	for _, config := range configs {
		provider, err := NewProvider(config, options)
		if err == nil {
			err = provider.Validate()
		}
		name := config.Name
		if provider != nil {
			name = provider.Name()
		}
		if err == nil {
			if _, exists := registry.providers[name]; exists {
				err = configError(name, "duplicate provider name")
			}
		}
		if err != nil {
			logger.Warn("skipping provider", "provider", name, "error", err)
			registry.skipped = append(registry.skipped, SkippedProvider{Name: name, Err: err})
			continue
		}
		registry.providers[name] = provider
		registry.order = append(registry.order, name)
	}

	if len(registry.order) == 0 {
		reasons := make([]error, 0, len(registry.skipped))
		for _, skipped := range registry.skipped {
			reasons = append(reasons, skipped.Err)
		}
		if len(reasons) == 0 {
			return nil, fmt.Errorf("%w: none configured", ErrNoProviders)
		}
		return nil, fmt.Errorf("%w: %w", ErrNoProviders, errors.Join(reasons...))
	}

	registry.defaultName = registry.order[0]
	if preferred != "" {
		if _, ok := registry.providers[preferred]; ok {
			registry.defaultName = preferred
		} else {
			logger.Warn("preferred provider unavailable, using first usable provider",
				"preferred", preferred, "default", registry.defaultName)
		}
	}
	return registry, nil
}

// Lookup returns the named provider, or an error wrapping
// [ErrProviderNotFound].
func (registry *Registry) Lookup(name string) (Provider, error) {
	provider, ok := registry.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrProviderNotFound, name, registry.order)
	}
	return provider, nil
}

// Default returns the default provider.
func (registry *Registry) Default() Provider {
	return registry.providers[registry.defaultName]
}

// DefaultName returns the default provider's name.
func (registry *Registry) DefaultName() string {
	return registry.defaultName
}

// Names returns the usable provider names in configuration order.
func (registry *Registry) Names() []string {
	return slices.Clone(registry.order)
}

// Skipped returns the configured backends that were not usable, with
// the reason for each.
func (registry *Registry) Skipped() []SkippedProvider {
	return slices.Clone(registry.skipped)
}

// HealthResult is one provider's health check outcome. Err is nil when
// the provider is healthy.
type HealthResult struct {
	Name string
	Err  error
}

// HealthCheckAll checks every usable provider in configuration order.
func (registry *Registry) HealthCheckAll(ctx context.Context) []HealthResult {
	results := make([]HealthResult, 0, len(registry.order))
	for _, name := range registry.order {
		results = append(results, HealthResult{
			Name: name,
			Err:  registry.providers[name].HealthCheck(ctx),
		})
	}
	return results
}
