package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Ning0612/treeblob/internal/adapter"
	"github.com/Ning0612/treeblob/internal/domain"
)

// Session owns one adapter connection to the store root.
//
// A session and the blobs it hands out are meant to be used by one goroutine.
// The mutex only guards the adapter and the closed flag so a reconnect can
// never leak a handle.
type Session struct {
	store *Store

	mu     sync.Mutex
	fs     adapter.Adapter
	closed bool
}

// Store returns the store the session was opened on
func (s *Session) Store() *Store {
	return s.store
}

// Handle returns the adapter, connecting when there is none yet or the
// session was closed. Calling Handle on a closed session reopens it.
func (s *Session) Handle(ctx context.Context) (adapter.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fs != nil && !s.closed {
		return s.fs, nil
	}
	return s.connectLocked(ctx)
}

// Close marks the session closed and releases the adapter. Release errors
// are logged.
func (s *Session) Close() {
	s.mu.Lock()
	fs := s.fs
	s.fs = nil
	s.closed = true
	s.mu.Unlock()

	if fs == nil {
		return
	}
	if err := fs.Close(); err != nil {
		s.store.log.Warn("Failed to release filesystem handle", "error", err)
	}
}

// IsClosed reports whether Close was called since the last connect
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Blob returns a handle for id. An empty id synthesizes a fresh one.
func (s *Session) Blob(id string) (*Blob, error) {
	if s.IsClosed() {
		return nil, domain.ErrSessionClosed
	}
	if id == "" {
		id = s.store.synthesizeID()
	}

	parsed, err := s.store.codec.Parse(id)
	if err != nil {
		return nil, err
	}
	return &Blob{
		id:      parsed.String(),
		path:    s.store.codec.PathOf(parsed),
		session: s,
	}, nil
}

// CreateBlob stores the contents of r under a fresh id. r is closed when it
// is an io.Closer.
func (s *Session) CreateBlob(ctx context.Context, r io.Reader, sizeHint int64, hints map[string]string) (*Blob, error) {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	blob, err := s.Blob("")
	if err != nil {
		return nil, err
	}

	if _, err := blob.WriteFrom(ctx, r, sizeHint, false); err != nil {
		return nil, err
	}
	return blob, nil
}

// ListIDs returns the ids of all blobs whose name starts with prefix. When
// prefix contains '/', the part up to the last '/' selects the directory the
// scan starts in and the rest filters names.
func (s *Session) ListIDs(ctx context.Context, prefix string) (*IDIterator, error) {
	if s.IsClosed() {
		return nil, domain.ErrSessionClosed
	}

	codec := s.store.codec
	start, name := codec.Root(), prefix
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		start = codec.PrefixToInternal(prefix[:i])
		name = prefix[i+1:]
	}

	// names are matched after decoding; reserved names sit on disk under a
	// sentinel that shares no prefix with them
	enum := NewEnumerator(ctx, sessionLister{s}, start, "")
	return &IDIterator{enum: enum, codec: codec, prefix: name, log: s.store.log}, nil
}

// Sync is not supported
func (s *Session) Sync(ctx context.Context) error {
	if s.IsClosed() {
		return domain.ErrSessionClosed
	}
	return fmt.Errorf("%w: sync", domain.ErrNotSupported)
}

func (s *Session) connectLocked(ctx context.Context) (adapter.Adapter, error) {
	fs, err := s.store.connector.Connect(ctx, s.store.rootID)
	if err != nil {
		if !errors.Is(err, domain.ErrConnection) {
			err = fmt.Errorf("%w: %w", domain.ErrConnection, err)
		}
		return nil, err
	}

	s.fs = fs
	s.closed = false
	s.store.log.Debug("Connected filesystem handle")
	return fs, nil
}

// active returns the adapter for a blob operation
func (s *Session) active(ctx context.Context) (adapter.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.fs != nil {
		return s.fs, nil
	}
	return s.connectLocked(ctx)
}

// reconnect replaces stale with a fresh adapter. When another caller already
// replaced it, the current adapter is returned instead.
func (s *Session) reconnect(ctx context.Context, stale adapter.Adapter) (adapter.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.fs != nil && s.fs != stale {
		return s.fs, nil
	}
	if s.fs != nil {
		if err := s.fs.Close(); err != nil {
			s.store.log.Debug("Failed to release stale filesystem handle", "error", err)
		}
		s.fs = nil
	}
	return s.connectLocked(ctx)
}

// withAdapter runs an idempotent adapter call, retrying it once on a fresh
// connection when it fails with a transient error.
func withAdapter[T any](ctx context.Context, s *Session, op string, fn func(adapter.Adapter) (T, error)) (T, error) {
	fs, err := s.active(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	v, err := fn(fs)
	if err == nil || !domain.IsTransient(err) {
		return v, err
	}

	s.store.log.Warn("Transient filesystem failure, reconnecting", "op", op, "error", err)
	fs, rerr := s.reconnect(ctx, fs)
	if rerr != nil {
		var zero T
		return zero, rerr
	}
	return fn(fs)
}

type sessionLister struct {
	s *Session
}

func (l sessionLister) List(ctx context.Context, dir string) ([]domain.FileInfo, error) {
	return withAdapter(ctx, l.s, "list", func(fs adapter.Adapter) ([]domain.FileInfo, error) {
		return fs.List(ctx, dir)
	})
}
