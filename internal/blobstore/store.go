// Package blobstore exposes a hierarchical filesystem as a store of blobs
// addressed by URI.
//
// A Store is bound to one root URI. Sessions opened on it lazily connect an
// adapter.Adapter for that root and hand out Blob handles; every identifier is
// translated to a filesystem path through an idmap.Codec before the adapter
// sees it.
package blobstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/Ning0612/treeblob/internal/adapter"
	"github.com/Ning0612/treeblob/internal/checksum"
	"github.com/Ning0612/treeblob/internal/domain"
	"github.com/Ning0612/treeblob/internal/idmap"
	"github.com/Ning0612/treeblob/internal/journal"
	"github.com/Ning0612/treeblob/internal/logger"
)

// Connector connects an adapter for a store root URI. *adapter.Registry is
// the production implementation.
type Connector interface {
	Connect(ctx context.Context, root string) (adapter.Adapter, error)
}

// MoveRecorder receives one record per MoveTo call
type MoveRecorder interface {
	Record(ctx context.Context, record journal.MoveRecord) error
}

// Transaction is accepted by OpenSession for API compatibility only;
// transactions are not supported.
type Transaction interface{}

// Store is the root of a blob store. It is immutable after New.
type Store struct {
	rootID    string
	codec     *idmap.Codec
	connector Connector

	scheme  string
	log     logger.Logger
	journal MoveRecorder
	verify  checksum.Algorithm
	calc    *checksum.Calculator
	newName func() string
}

// Option configures a Store
type Option func(*Store)

// WithScheme sets the scheme of external identifiers (default idmap.DefaultScheme)
func WithScheme(scheme string) Option {
	return func(s *Store) { s.scheme = scheme }
}

// WithLogger sets the logger; logger.Get() is used otherwise
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithJournal records every move in j
func WithJournal(j MoveRecorder) Option {
	return func(s *Store) { s.journal = j }
}

// WithChecksum verifies copy-based moves with the given algorithm in
// addition to the size check. An empty algorithm disables it.
func WithChecksum(algo checksum.Algorithm) Option {
	return func(s *Store) { s.verify = algo }
}

// WithNameGenerator replaces the random name used for synthesized ids
func WithNameGenerator(fn func() string) Option {
	return func(s *Store) { s.newName = fn }
}

// New creates a store for rootID, e.g. "file:///var/lib/treeblob" or
// "gdrive:///Blobs". Connections are made later, per session.
func New(rootID string, connector Connector, opts ...Option) (*Store, error) {
	u, err := url.Parse(rootID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid store root %q: %w", domain.ErrInvalidIdentifier, rootID, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: store root %q has no scheme", domain.ErrInvalidIdentifier, rootID)
	}
	if connector == nil {
		return nil, fmt.Errorf("store %s: connector is required", rootID)
	}

	s := &Store{
		rootID:    rootID,
		connector: connector,
		newName:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.scheme != "" && !idmap.ValidScheme(s.scheme) {
		return nil, fmt.Errorf("%w: store %s: malformed id scheme %q", domain.ErrInvalidIdentifier, rootID, s.scheme)
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	if s.verify != "" {
		if !checksum.IsSupported(s.verify) {
			return nil, fmt.Errorf("store %s: unsupported checksum %q", rootID, s.verify)
		}
		s.calc = checksum.NewDefaultCalculator()
	}

	s.codec = idmap.NewCodec(s.scheme, u.Path)
	s.log = s.log.With("store", rootID)
	return s, nil
}

// ID returns the root URI of the store
func (s *Store) ID() string {
	return s.rootID
}

// Codec returns the identifier codec of the store
func (s *Store) Codec() *idmap.Codec {
	return s.codec
}

// OpenSession opens a new session. It does not connect yet; the adapter is
// created on first use. Transactions are rejected.
func (s *Store) OpenSession(tx Transaction) (*Session, error) {
	if tx != nil {
		return nil, fmt.Errorf("%w: transactions", domain.ErrNotSupported)
	}
	return &Session{store: s}, nil
}

// synthesizeID returns a fresh identifier in the store scheme
func (s *Store) synthesizeID() string {
	return s.codec.Scheme() + ":" + s.newName()
}
