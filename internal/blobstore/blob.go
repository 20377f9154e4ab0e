package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Ning0612/treeblob/internal/adapter"
	"github.com/Ning0612/treeblob/internal/domain"
	"github.com/Ning0612/treeblob/internal/journal"
)

// Blob is a handle to one identifier in a session. The blob itself may or
// may not exist.
type Blob struct {
	id      string
	path    string
	session *Session
}

// ID returns the external identifier
func (b *Blob) ID() string {
	return b.id
}

// CanonicalID returns the identifier the blob is stored under. Identifiers
// are not aliased, so it is the same as ID.
func (b *Blob) CanonicalID() string {
	return b.id
}

// Path returns the internal filesystem path
func (b *Blob) Path() string {
	return b.path
}

// Session returns the session the handle belongs to
func (b *Blob) Session() *Session {
	return b.session
}

// Exists reports whether the blob is present
func (b *Blob) Exists(ctx context.Context) (bool, error) {
	ok, err := withAdapter(ctx, b.session, "exists", func(fs adapter.Adapter) (bool, error) {
		return fs.Exists(ctx, b.path)
	})
	if err != nil {
		return false, ioError(err, "checking", b.id)
	}
	return ok, nil
}

// Size returns the length of the blob in bytes
func (b *Blob) Size(ctx context.Context) (int64, error) {
	info, err := withAdapter(ctx, b.session, "stat", func(fs adapter.Adapter) (domain.FileInfo, error) {
		return fs.Stat(ctx, b.path)
	})
	if errors.Is(err, domain.ErrNotFound) || (err == nil && info.IsDir()) {
		return 0, fmt.Errorf("%w: %s", domain.ErrBlobMissing, b.id)
	}
	if err != nil {
		return 0, ioError(err, "reading size of", b.id)
	}
	return info.Size, nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (b *Blob) Delete(ctx context.Context) error {
	_, err := withAdapter(ctx, b.session, "delete", func(fs adapter.Adapter) (bool, error) {
		return fs.Delete(ctx, b.path, false)
	})
	if err != nil {
		return ioError(err, "deleting", b.id)
	}
	return nil
}

// OpenReader opens the blob for reading
func (b *Blob) OpenReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := withAdapter(ctx, b.session, "open", func(fs adapter.Adapter) (io.ReadCloser, error) {
		return fs.Open(ctx, b.path)
	})
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNotFile) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobMissing, b.id)
	}
	if err != nil {
		return nil, ioError(err, "opening", b.id)
	}
	return r, nil
}

// OpenWriter opens the blob for writing. An existing blob is truncated when
// overwrite is set and reported as domain.ErrDuplicateBlob otherwise.
// sizeHint is advisory.
func (b *Blob) OpenWriter(ctx context.Context, sizeHint int64, overwrite bool) (io.WriteCloser, error) {
	exists, err := b.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists && !overwrite {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateBlob, b.id)
	}

	w, err := withAdapter(ctx, b.session, "create", func(fs adapter.Adapter) (io.WriteCloser, error) {
		return fs.Create(ctx, b.path, overwrite)
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateBlob, b.id)
	}
	if err != nil {
		return nil, ioError(err, "creating", b.id)
	}
	return w, nil
}

// WriteFrom stores the contents of r in the blob and returns the number of
// bytes written. A failed copy may leave a partial blob behind.
func (b *Blob) WriteFrom(ctx context.Context, r io.Reader, sizeHint int64, overwrite bool) (int64, error) {
	w, err := b.OpenWriter(ctx, sizeHint, overwrite)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return n, fmt.Errorf("%w: writing %s: %w", domain.ErrIO, b.id, err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("%w: closing %s: %w", domain.ErrIO, b.id, err)
	}
	return n, nil
}

// MoveTo moves the blob to target and returns the handle for it. An empty
// target synthesizes a fresh id. Missing parent directories of the target are
// created. When the filesystem cannot rename, the content is copied, verified
// and the source deleted; a failed copy leaves the source in place.
func (b *Blob) MoveTo(ctx context.Context, target string, hints map[string]string) (*Blob, error) {
	s := b.session
	dst, err := s.Blob(target)
	if err != nil {
		return nil, err
	}

	exists, err := b.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobMissing, b.id)
	}

	exists, err = dst.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateBlob, dst.id)
	}

	if err := b.makeParents(ctx, dst.path); err != nil {
		return nil, err
	}

	record := journal.MoveRecord{
		Source:    b.id,
		Target:    dst.id,
		Method:    journal.MethodRename,
		StartTime: time.Now(),
	}

	renamed, err := b.rename(ctx, dst)
	if renamed {
		s.store.recordMove(ctx, record, 0, nil)
		return dst, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.store.recordMove(ctx, record, 0, ctxErr)
		return nil, ioError(ctxErr, "moving", b.id)
	}

	log := s.store.log.With("source", b.id, "target", dst.id)
	if err != nil && !errors.Is(err, domain.ErrNotSupported) {
		log.Warn("Rename failed, falling back to copy", "error", err)
	} else {
		log.Debug("Rename unavailable, falling back to copy")
	}

	record.Method = journal.MethodCopy
	n, err := b.copyTo(ctx, dst)
	if err != nil {
		s.store.recordMove(ctx, record, n, err)
		return nil, ioError(err, "copying "+b.id+" to", dst.id)
	}

	if err := b.Delete(ctx); err != nil {
		s.store.recordMove(ctx, record, n, err)
		return nil, err
	}

	s.store.recordMove(ctx, record, n, nil)
	return dst, nil
}

// rename is not retried: it is not idempotent
func (b *Blob) rename(ctx context.Context, dst *Blob) (bool, error) {
	fs, err := b.session.active(ctx)
	if err != nil {
		return false, err
	}
	return fs.Rename(ctx, b.path, dst.path)
}

// makeParents creates every directory between the store root and p, root first
func (b *Blob) makeParents(ctx context.Context, p string) error {
	root := b.session.store.codec.Root()
	dir := path.Dir(p)
	if dir == root {
		return nil
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(dir, root), "/")
	current := strings.TrimSuffix(root, "/")
	for _, seg := range strings.Split(rel, "/") {
		current += "/" + seg
		ok, err := withAdapter(ctx, b.session, "mkdirs", func(fs adapter.Adapter) (bool, error) {
			return fs.Mkdirs(ctx, current)
		})
		if err != nil {
			return ioError(err, "creating directory for", b.id)
		}
		if !ok {
			return fmt.Errorf("%w: could not create %s", domain.ErrIO, current)
		}
	}
	return nil
}

// copyTo streams the blob into dst and verifies the copy. Both streams are
// closed before it returns.
func (b *Blob) copyTo(ctx context.Context, dst *Blob) (int64, error) {
	r, err := b.OpenReader(ctx)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n, err := dst.WriteFrom(ctx, r, -1, false)
	if err != nil {
		return n, err
	}
	return n, b.verifyCopy(ctx, dst, n)
}

func (b *Blob) verifyCopy(ctx context.Context, dst *Blob, copied int64) error {
	srcSize, err := b.Size(ctx)
	if err != nil {
		return err
	}
	dstSize, err := dst.Size(ctx)
	if err != nil {
		return err
	}
	if srcSize != copied || dstSize != copied {
		return fmt.Errorf("copy size mismatch: source %d, target %d, copied %d", srcSize, dstSize, copied)
	}

	store := b.session.store
	if store.calc == nil {
		return nil
	}

	src, err := b.OpenReader(ctx)
	if err != nil {
		return err
	}
	defer src.Close()
	cp, err := dst.OpenReader(ctx)
	if err != nil {
		return err
	}
	defer cp.Close()

	same, err := store.calc.Same(ctx, src, cp, store.verify)
	if err != nil {
		return err
	}
	if !same {
		return fmt.Errorf("copy %s checksum mismatch", store.verify)
	}
	return nil
}

// recordMove writes a journal entry; journal failures never fail the move
func (s *Store) recordMove(ctx context.Context, record journal.MoveRecord, n int64, moveErr error) {
	if s.journal == nil {
		return
	}

	record.EndTime = time.Now()
	record.Bytes = n
	record.Status = journal.StatusSuccess
	if moveErr != nil {
		record.Status = journal.StatusFailed
		record.Error = moveErr.Error()
	}

	if err := s.journal.Record(context.WithoutCancel(ctx), record); err != nil {
		s.log.Warn("Failed to record move", "source", record.Source, "target", record.Target, "error", err)
	}
}

// ioError reports an adapter failure as domain.ErrIO unless it already
// carries a session level error
func ioError(err error, action, id string) error {
	switch {
	case errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrConnection),
		errors.Is(err, domain.ErrIO):
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", domain.ErrIO, action, id, err)
}
