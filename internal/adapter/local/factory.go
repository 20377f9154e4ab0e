package local

import (
	"context"
	"net/url"

	"github.com/spf13/afero"

	"github.com/Ning0612/treeblob/internal/adapter"
)

// Scheme names served by the built-in factories
const (
	SchemeFile   = "file"
	SchemeMemory = "mem"
)

// Factory connects adapters on one shared afero.Fs for a set of schemes.
// The path component of the store root becomes the adapter root; the host
// is ignored.
type Factory struct {
	fs      afero.Fs
	schemes map[string]bool
}

// NewFactory creates a factory serving the given schemes from fs
func NewFactory(fs afero.Fs, schemes ...string) *Factory {
	f := &Factory{fs: fs, schemes: make(map[string]bool, len(schemes))}
	for _, s := range schemes {
		f.schemes[s] = true
	}
	return f
}

// NewOSFactory serves file:// roots from the operating system filesystem
func NewOSFactory() *Factory {
	return NewFactory(afero.NewOsFs(), SchemeFile)
}

// NewMemoryFactory serves roots from a process-local in-memory filesystem.
// Every adapter connected by the same factory sees the same data.
func NewMemoryFactory(schemes ...string) *Factory {
	if len(schemes) == 0 {
		schemes = []string{SchemeMemory}
	}
	return NewFactory(afero.NewMemMapFs(), schemes...)
}

// Connect implements adapter.AdapterFactory
func (f *Factory) Connect(ctx context.Context, root *url.URL) (adapter.Adapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return New(f.fs, root.Path)
}

// Supports implements adapter.AdapterFactory
func (f *Factory) Supports(scheme string) bool {
	return f.schemes[scheme]
}

// Fs exposes the underlying filesystem, mainly for tests and tooling
func (f *Factory) Fs() afero.Fs {
	return f.fs
}

var _ adapter.AdapterFactory = (*Factory)(nil)
var _ adapter.Adapter = (*Adapter)(nil)
