package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ning0612/treeblob/internal/adapter"
	"github.com/Ning0612/treeblob/internal/adapter/local"
	"github.com/Ning0612/treeblob/internal/domain"
	"github.com/Ning0612/treeblob/internal/journal"
)

const testRoot = "store://host/"

// testConnector connects through a registry and counts connections. wrap,
// when set, decorates every adapter it hands out.
type testConnector struct {
	registry *adapter.Registry
	wrap     func(adapter.Adapter) adapter.Adapter

	mu       sync.Mutex
	connects int
}

func (c *testConnector) Connect(ctx context.Context, root string) (adapter.Adapter, error) {
	a, err := c.registry.Connect(ctx, root)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()
	if c.wrap != nil {
		a = c.wrap(a)
	}
	return a, nil
}

func (c *testConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

type fixture struct {
	store     *Store
	session   *Session
	factory   *local.Factory
	connector *testConnector
}

func newFixture(t *testing.T, wrap func(adapter.Adapter) adapter.Adapter, opts ...Option) *fixture {
	t.Helper()
	factory := local.NewMemoryFactory("store")
	connector := &testConnector{registry: adapter.NewRegistry(factory), wrap: wrap}

	store, err := New(testRoot, connector, opts...)
	require.NoError(t, err)

	session, err := store.OpenSession(nil)
	require.NoError(t, err)
	t.Cleanup(session.Close)

	return &fixture{store: store, session: session, factory: factory, connector: connector}
}

func (f *fixture) put(t *testing.T, id, content string) *Blob {
	t.Helper()
	b, err := f.session.Blob(id)
	require.NoError(t, err)
	w, err := b.OpenWriter(context.Background(), int64(len(content)), false)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return b
}

func read(t *testing.T, b *Blob) string {
	t.Helper()
	r, err := b.OpenReader(context.Background())
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// flakyAdapter fails Exists and List with a network error while the shared
// budget lasts
type flakyAdapter struct {
	adapter.Adapter
	failures *int
	mu       *sync.Mutex
}

func (a *flakyAdapter) fail() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if *a.failures > 0 {
		*a.failures--
		return true
	}
	return false
}

func (a *flakyAdapter) Exists(ctx context.Context, p string) (bool, error) {
	if a.fail() {
		return false, domain.ErrNetworkError
	}
	return a.Adapter.Exists(ctx, p)
}

func (a *flakyAdapter) List(ctx context.Context, p string) ([]domain.FileInfo, error) {
	if a.fail() {
		return nil, domain.ErrNetworkError
	}
	return a.Adapter.List(ctx, p)
}

func flaky(failures int) func(adapter.Adapter) adapter.Adapter {
	budget := failures
	mu := &sync.Mutex{}
	return func(a adapter.Adapter) adapter.Adapter {
		return &flakyAdapter{Adapter: a, failures: &budget, mu: mu}
	}
}

// renamelessAdapter cannot rename, like object stores without a move call
type renamelessAdapter struct {
	adapter.Adapter
	renames int
}

func (a *renamelessAdapter) Rename(context.Context, string, string) (bool, error) {
	a.renames++
	return false, domain.ErrNotSupported
}

// brokenWriteAdapter cannot rename and truncates every write after limit bytes
type brokenWriteAdapter struct {
	renamelessAdapter
	limit int
}

func (a *brokenWriteAdapter) Create(ctx context.Context, p string, overwrite bool) (io.WriteCloser, error) {
	w, err := a.Adapter.Create(ctx, p, overwrite)
	if err != nil {
		return nil, err
	}
	return &limitedWriter{WriteCloser: w, left: a.limit}, nil
}

type limitedWriter struct {
	io.WriteCloser
	left int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > w.left {
		n, _ := w.WriteCloser.Write(p[:w.left])
		w.left = 0
		return n, errors.New("disk full")
	}
	w.left -= len(p)
	return w.WriteCloser.Write(p)
}

type fakeJournal struct {
	records []journal.MoveRecord
	err     error
}

func (j *fakeJournal) Record(_ context.Context, r journal.MoveRecord) error {
	j.records = append(j.records, r)
	return j.err
}

// closingReader tracks whether CreateBlob closed its input
type closingReader struct {
	*strings.Reader
	closed bool
}

func (r *closingReader) Close() error {
	r.closed = true
	return nil
}

// failingReader returns an error after the first read
type failingReader struct {
	reads int
}

func (r *failingReader) Read(p []byte) (int, error) {
	r.reads++
	if r.reads > 1 {
		return 0, errors.New("connection reset")
	}
	return copy(p, "partial"), nil
}
