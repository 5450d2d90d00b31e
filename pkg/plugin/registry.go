// Package plugin defines the plugin registries.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/flowanalyzer/internal/core"
)

// SourceFactory creates a new Source instance.
type SourceFactory func() Source

// ReporterFactory creates a new Reporter instance.
type ReporterFactory func() Reporter

type registry[F any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]F
	notFound  error
}

func newRegistry[F any](kind string, notFound error) *registry[F] {
	return &registry[F]{
		kind:      kind,
		factories: make(map[string]F),
		notFound:  notFound,
	}
}

func (r *registry[F]) register(name string, factory F, isNil bool) {
	if name == "" {
		panic(fmt.Sprintf("plugin: empty %s name", r.kind))
	}
	if isNil {
		panic(fmt.Sprintf("plugin: nil %s factory for %q", r.kind, name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("plugin: %s %q already registered", r.kind, name))
	}
	r.factories[name] = factory
}

func (r *registry[F]) get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s", r.notFound, name)
	}
	return f, nil
}

func (r *registry[F]) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all registrations. Tests only.
func (r *registry[F]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]F)
}

var (
	sourceReg   = newRegistry[SourceFactory]("source", core.ErrSourceNotFound)
	reporterReg = newRegistry[ReporterFactory]("reporter", core.ErrReporterNotFound)
)

// RegisterSource registers a source factory. Panics on empty name, nil
// factory or duplicate registration.
func RegisterSource(name string, factory SourceFactory) {
	sourceReg.register(name, factory, factory == nil)
}

// RegisterReporter registers a reporter factory. Panics on empty name, nil
// factory or duplicate registration.
func RegisterReporter(name string, factory ReporterFactory) {
	reporterReg.register(name, factory, factory == nil)
}

// GetSourceFactory returns the factory registered under name.
func GetSourceFactory(name string) (SourceFactory, error) {
	return sourceReg.get(name)
}

// GetReporterFactory returns the factory registered under name.
func GetReporterFactory(name string) (ReporterFactory, error) {
	return reporterReg.get(name)
}

// ListSources returns registered source names, sorted.
func ListSources() []string {
	return sourceReg.list()
}

// ListReporters returns registered reporter names, sorted.
func ListReporters() []string {
	return reporterReg.list()
}
