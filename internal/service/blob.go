package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Ning0612/treeblob/internal/adapter"
	"github.com/Ning0612/treeblob/internal/adapter/gdrive"
	"github.com/Ning0612/treeblob/internal/adapter/local"
	"github.com/Ning0612/treeblob/internal/blobstore"
	"github.com/Ning0612/treeblob/internal/config"
	"github.com/Ning0612/treeblob/internal/domain"
	"github.com/Ning0612/treeblob/internal/journal"
	"github.com/Ning0612/treeblob/internal/logger"
	"github.com/Ning0612/treeblob/internal/progress"
)

// ErrJournalDisabled is returned by History when no journal is configured
var ErrJournalDisabled = errors.New("move journal is disabled")

// BlobInfo describes a stored blob
type BlobInfo struct {
	ID   string
	Path string
	Size int64
}

// BlobService wires a configured store, its session and the move journal
// behind the operations the command line offers
type BlobService struct {
	config   *config.Config
	store    *blobstore.Store
	session  *blobstore.Session
	journal  *journal.Journal
	reporter progress.Reporter
}

// DefaultRegistry returns a registry serving file://, mem:// and, when
// OAuth credentials are configured, gdrive:// roots
func DefaultRegistry(cfg *config.Config) *adapter.Registry {
	r := adapter.NewRegistry(local.NewOSFactory(), local.NewMemoryFactory())
	if cfg.GDrive.ClientID != "" && cfg.GDrive.ClientSecret != "" {
		r.Register(gdrive.NewFactory(cfg.GDrive.ClientID, cfg.GDrive.ClientSecret, cfg.GDrive.TokenPath))
	}
	return r
}

// NewBlobService creates a service for cfg. A nil registry means
// DefaultRegistry(cfg).
func NewBlobService(cfg *config.Config, registry *adapter.Registry) (*BlobService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if registry == nil {
		registry = DefaultRegistry(cfg)
	}

	svc := &BlobService{config: cfg}

	opts := []blobstore.Option{
		blobstore.WithScheme(cfg.Store.Scheme),
		blobstore.WithChecksum(cfg.CopyChecksum()),
		blobstore.WithLogger(logger.With("component", "blobstore")),
	}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		svc.journal = j
		opts = append(opts, blobstore.WithJournal(j))
	}

	store, err := blobstore.New(cfg.Store.Root, registry, opts...)
	if err != nil {
		svc.closeJournal()
		return nil, err
	}
	session, err := store.OpenSession(nil)
	if err != nil {
		svc.closeJournal()
		return nil, err
	}

	svc.store = store
	svc.session = session
	return svc, nil
}

// SetProgressReporter sets the progress reporter for transfers
func (s *BlobService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// getReporter returns the current progress reporter or a null reporter
func (s *BlobService) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

// Store returns the underlying store
func (s *BlobService) Store() *blobstore.Store {
	return s.store
}

// Put stores r under id, or under a fresh id when id is empty, and
// returns the id used. size may be -1 when unknown.
func (s *BlobService) Put(ctx context.Context, r io.Reader, size int64, id string) (string, error) {
	reporter := s.getReporter()
	label := id
	if label == "" {
		label = "new blob"
	}
	reporter.Start(label, size)
	pr := progress.NewProgressReader(r, reporter)

	var stored string
	var err error
	if id == "" {
		var blob *blobstore.Blob
		blob, err = s.session.CreateBlob(ctx, pr, size, nil)
		if err == nil {
			stored = blob.CanonicalID()
		}
	} else {
		stored, err = s.write(ctx, pr, size, id)
	}
	if err != nil {
		reporter.Error(err)
		return "", err
	}

	reporter.Complete()
	logger.Get().Debug("blob stored", "id", stored, "bytes", pr.Transferred())
	return stored, nil
}

func (s *BlobService) write(ctx context.Context, r io.Reader, size int64, id string) (string, error) {
	blob, err := s.session.Blob(id)
	if err != nil {
		return "", err
	}
	if _, err := blob.WriteFrom(ctx, r, size, false); err != nil {
		return "", err
	}
	return blob.CanonicalID(), nil
}

// Get copies the contents of blob id to w
func (s *BlobService) Get(ctx context.Context, id string, w io.Writer) (int64, error) {
	blob, err := s.session.Blob(id)
	if err != nil {
		return 0, err
	}
	size, err := blob.Size(ctx)
	if err != nil {
		return 0, err
	}
	r, err := blob.OpenReader(ctx)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	reporter := s.getReporter()
	reporter.Start(blob.ID(), size)
	n, err := io.Copy(progress.NewProgressWriter(w, reporter), r)
	if err != nil {
		reporter.Error(err)
		return n, fmt.Errorf("%w: reading %s: %w", domain.ErrIO, id, err)
	}
	reporter.Complete()
	return n, nil
}

// Stat returns the canonical id, internal path and size of blob id
func (s *BlobService) Stat(ctx context.Context, id string) (BlobInfo, error) {
	blob, err := s.session.Blob(id)
	if err != nil {
		return BlobInfo{}, err
	}
	size, err := blob.Size(ctx)
	if err != nil {
		return BlobInfo{}, err
	}
	return BlobInfo{ID: blob.CanonicalID(), Path: blob.Path(), Size: size}, nil
}

// Remove deletes blob id; removing a missing blob is not an error
func (s *BlobService) Remove(ctx context.Context, id string) error {
	blob, err := s.session.Blob(id)
	if err != nil {
		return err
	}
	return blob.Delete(ctx)
}

// Move moves blob src to dst, or to a fresh id when dst is empty, and
// returns the id of the moved blob
func (s *BlobService) Move(ctx context.Context, src, dst string) (string, error) {
	blob, err := s.session.Blob(src)
	if err != nil {
		return "", err
	}
	moved, err := blob.MoveTo(ctx, dst, nil)
	if err != nil {
		return "", err
	}
	return moved.CanonicalID(), nil
}

// List calls fn for every blob id starting with prefix, stopping at the
// first error
func (s *BlobService) List(ctx context.Context, prefix string, fn func(id string) error) error {
	it, err := s.session.ListIDs(ctx, prefix)
	if err != nil {
		return err
	}
	for id, err := range it.All() {
		if err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// History returns recent moves, newest first. With failedOnly only failed
// moves are returned.
func (s *BlobService) History(ctx context.Context, limit int, failedOnly bool) ([]journal.MoveRecord, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	if failedOnly {
		return s.journal.Failed(ctx, limit)
	}
	return s.journal.Recent(ctx, limit)
}

// Close releases the session and the journal
func (s *BlobService) Close() error {
	s.session.Close()
	return s.closeJournal()
}

func (s *BlobService) closeJournal() error {
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}
