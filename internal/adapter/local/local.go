package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/Ning0612/treeblob/internal/domain"
)

// Adapter implements the adapter.Adapter interface on top of an afero.Fs,
// which is the OS filesystem in production and a MemMapFs in tests
type Adapter struct {
	fs     afero.Fs
	root   string
	closed atomic.Bool
}

// New creates a new filesystem adapter confined to root.
// The root directory is created if it doesn't exist yet.
func New(fs afero.Fs, root string) (*Adapter, error) {
	root = path.Clean("/" + filepath.ToSlash(root))

	info, err := fs.Stat(filepath.FromSlash(root))
	switch {
	case err == nil && !info.IsDir():
		return nil, domain.ErrNotDirectory
	case err == nil:
	case os.IsNotExist(err):
		if err := fs.MkdirAll(filepath.FromSlash(root), 0755); err != nil {
			return nil, mapError(err)
		}
	default:
		return nil, mapError(err)
	}

	return &Adapter{fs: fs, root: root}, nil
}

// resolvePath validates an internal path and converts it for the afero.Fs.
// Returns error if path attempts to escape root directory.
func (a *Adapter) resolvePath(ctx context.Context, p string) (string, error) {
	if a.closed.Load() {
		return "", fmt.Errorf("%w: adapter for %s is closed", domain.ErrConnection, a.root)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q is not absolute", domain.ErrPermissionDenied, p)
	}
	clean := path.Clean(p)

	if a.root != "/" && clean != a.root && !strings.HasPrefix(clean, a.root+"/") {
		return "", fmt.Errorf("%w: %q is outside of %s", domain.ErrPermissionDenied, p, a.root)
	}

	return filepath.FromSlash(clean), nil
}

// Exists checks if a path exists
func (a *Adapter) Exists(ctx context.Context, p string) (bool, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return false, err
	}

	ok, err := afero.Exists(a.fs, full)
	if err != nil {
		return false, mapError(err)
	}
	return ok, nil
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, p string) (domain.FileInfo, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return domain.FileInfo{}, err
	}

	info, err := a.fs.Stat(full)
	if err != nil {
		return domain.FileInfo{}, mapError(err)
	}
	return fileInfoFromOS(path.Clean(p), info), nil
}

// Open opens a file for reading
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(full)
	if err != nil {
		return nil, mapError(err)
	}
	if info.IsDir() {
		return nil, domain.ErrNotFile
	}

	file, err := a.fs.Open(full)
	if err != nil {
		return nil, mapError(err)
	}
	return file, nil
}

// Create opens a file for writing, creating parent directories
func (a *Adapter) Create(ctx context.Context, p string, overwrite bool) (io.WriteCloser, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return nil, err
	}

	if err := a.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, mapError(err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	file, err := a.fs.OpenFile(full, flags, 0644)
	if err != nil {
		return nil, mapError(err)
	}
	return file, nil
}

// Delete removes a file or directory
func (a *Adapter) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return false, err
	}

	info, err := a.fs.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}

	if info.IsDir() && recursive {
		err = a.fs.RemoveAll(full)
	} else {
		err = a.fs.Remove(full)
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// Rename moves src to dst without creating parents or replacing dst
func (a *Adapter) Rename(ctx context.Context, src, dst string) (bool, error) {
	fullSrc, err := a.resolvePath(ctx, src)
	if err != nil {
		return false, err
	}
	fullDst, err := a.resolvePath(ctx, dst)
	if err != nil {
		return false, err
	}

	if ok, err := afero.Exists(a.fs, fullSrc); err != nil || !ok {
		return false, mapError(err)
	}
	if ok, err := afero.Exists(a.fs, fullDst); err != nil || ok {
		return false, mapError(err)
	}
	if ok, err := afero.DirExists(a.fs, filepath.Dir(fullDst)); err != nil || !ok {
		return false, mapError(err)
	}

	if err := a.fs.Rename(fullSrc, fullDst); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// Mkdirs creates a directory and any necessary parents
func (a *Adapter) Mkdirs(ctx context.Context, p string) (bool, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return false, err
	}

	info, err := a.fs.Stat(full)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%w: %s", domain.ErrNotDirectory, p)
		}
		return true, nil
	}

	if err := a.fs.MkdirAll(full, 0755); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// List returns the immediate children of a directory
func (a *Adapter) List(ctx context.Context, p string) ([]domain.FileInfo, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(full)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	entries, err := afero.ReadDir(a.fs, full)
	if err != nil {
		return nil, mapError(err)
	}

	dir := path.Clean(p)
	result := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		result = append(result, fileInfoFromOS(path.Join(dir, entry.Name()), entry))
	}

	return result, nil
}

// Close marks the adapter unusable; later calls fail with domain.ErrConnection
func (a *Adapter) Close() error {
	a.closed.Store(true)
	return nil
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// fileInfoFromOS converts os.FileInfo to domain.FileInfo
func fileInfoFromOS(p string, info os.FileInfo) domain.FileInfo {
	fileType := domain.FileTypeRegular
	if info.IsDir() {
		fileType = domain.FileTypeDirectory
	} else if info.Mode()&os.ModeSymlink != 0 {
		fileType = domain.FileTypeSymlink
	}

	size := info.Size()
	if info.IsDir() {
		size = 0
	}

	return domain.FileInfo{
		Path:    p,
		Type:    fileType,
		Size:    size,
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors, keeping the cause
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	case os.IsExist(err):
		return fmt.Errorf("%w: %w", domain.ErrAlreadyExists, err)
	}

	return err
}
