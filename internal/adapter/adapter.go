package adapter

import (
	"context"
	"io"
	"net/url"

	"github.com/Ning0612/treeblob/internal/domain"
)

// Adapter defines the interface for hierarchical filesystem backends.
// Paths are absolute, slash separated internal paths.
// Implementations return domain-level errors for consistent error handling.
type Adapter interface {
	// Exists checks if a path exists
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns metadata for a single path
	// Returns domain.ErrNotFound if path doesn't exist
	Stat(ctx context.Context, path string) (domain.FileInfo, error)

	// Open opens a file for reading
	// Caller is responsible for closing the reader
	// Returns domain.ErrNotFound if file doesn't exist
	// Returns domain.ErrNotFile if path is a directory
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create opens a file for writing, creating parent directories
	// If overwrite is false and the file exists, returns domain.ErrAlreadyExists
	// If overwrite is true, existing content is truncated
	Create(ctx context.Context, path string, overwrite bool) (io.WriteCloser, error)

	// Delete removes a file or directory
	// Returns false (and no error) if there was nothing to delete
	// A non-empty directory requires recursive
	Delete(ctx context.Context, path string, recursive bool) (bool, error)

	// Rename moves src to dst; the parent of dst must exist
	// Returns false if dst already exists or src is missing
	// Returns domain.ErrNotSupported if the backend cannot rename
	Rename(ctx context.Context, src, dst string) (bool, error)

	// Mkdirs creates a directory and any necessary parents
	// No error if directory already exists
	Mkdirs(ctx context.Context, path string) (bool, error)

	// List returns the immediate children of a directory
	// Returns domain.ErrNotFound if path doesn't exist
	// Returns domain.ErrNotDirectory if path is a file
	List(ctx context.Context, path string) ([]domain.FileInfo, error)

	// Close releases any resources held by the adapter
	Close() error
}

// AdapterFactory connects adapters for a family of root URIs
type AdapterFactory interface {
	// Connect returns an adapter for the given store root
	Connect(ctx context.Context, root *url.URL) (Adapter, error)

	// Supports returns true if this factory can handle the URI scheme
	Supports(scheme string) bool
}
