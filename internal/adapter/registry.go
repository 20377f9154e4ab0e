package adapter

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/Ning0612/treeblob/internal/domain"
)

// Registry picks a factory by the scheme of a store root URI
type Registry struct {
	mu        sync.RWMutex
	factories []AdapterFactory
}

// NewRegistry creates a registry holding the given factories
func NewRegistry(factories ...AdapterFactory) *Registry {
	return &Registry{factories: factories}
}

// Register adds a factory. Factories registered first win when more than
// one supports a scheme.
func (r *Registry) Register(f AdapterFactory) {
	r.mu.Lock()
	r.factories = append(r.factories, f)
	r.mu.Unlock()
}

// Lookup returns the factory for a scheme
func (r *Registry) Lookup(scheme string) (AdapterFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.factories {
		if f.Supports(scheme) {
			return f, true
		}
	}
	return nil, false
}

// Connect parses root and connects the matching adapter. Every failure is
// reported as domain.ErrConnection.
func (r *Registry) Connect(ctx context.Context, root string) (Adapter, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid root %q: %w", domain.ErrConnection, root, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: root %q has no scheme", domain.ErrConnection, root)
	}

	f, ok := r.Lookup(u.Scheme)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for scheme %q", domain.ErrConnection, u.Scheme)
	}

	a, err := f.Connect(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrConnection, root, err)
	}
	return a, nil
}
