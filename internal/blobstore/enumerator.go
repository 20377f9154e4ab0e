package blobstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/Ning0612/treeblob/internal/domain"
)

// Lister lists the immediate children of a directory
type Lister interface {
	List(ctx context.Context, path string) ([]domain.FileInfo, error)
}

// Enumerator walks a directory tree breadth first and yields the paths of
// files whose name starts with a prefix. Directories are listed one at a time,
// only when the pending files run out. Entries keep the order the filesystem
// reports; nothing is sorted.
//
// An Enumerator is single pass and not safe for concurrent use.
type Enumerator struct {
	ctx    context.Context
	lister Lister
	prefix string

	dirs  []string
	files []string
	err   error
}

// NewEnumerator creates an enumerator rooted at root. An empty prefix
// matches every file.
func NewEnumerator(ctx context.Context, lister Lister, root, prefix string) *Enumerator {
	return &Enumerator{
		ctx:    ctx,
		lister: lister,
		prefix: prefix,
		dirs:   []string{root},
	}
}

// HasNext reports whether Next will return a path
func (e *Enumerator) HasNext() bool {
	return e.fill()
}

// Next returns the next matching file path. It returns false once the tree
// is exhausted or a listing failed; see Err.
func (e *Enumerator) Next() (string, bool) {
	if !e.fill() {
		return "", false
	}
	p := e.files[0]
	e.files = e.files[1:]
	return p, true
}

// Err returns the listing failure that ended the enumeration, if any
func (e *Enumerator) Err() error {
	return e.err
}

// Remove is not supported
func (e *Enumerator) Remove() error {
	return fmt.Errorf("%w: remove during enumeration", domain.ErrNotSupported)
}

// All returns the remaining paths as an iterator. A listing failure is
// yielded once as the last element.
func (e *Enumerator) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			p, ok := e.Next()
			if !ok {
				if e.err != nil {
					yield("", e.err)
				}
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

// fill lists directories until a file is queued or the tree is exhausted
func (e *Enumerator) fill() bool {
	for len(e.files) == 0 {
		if e.err != nil || len(e.dirs) == 0 {
			return false
		}

		dir := e.dirs[0]
		e.dirs = e.dirs[1:]

		entries, err := e.lister.List(e.ctx, dir)
		if errors.Is(err, domain.ErrNotFound) {
			// removed since it was queued, or the root was never created
			continue
		}
		if err != nil {
			e.err = fmt.Errorf("%w: listing %s: %w", domain.ErrIO, dir, err)
			e.dirs = nil
			return false
		}

		for _, entry := range entries {
			if entry.IsDir() {
				e.dirs = append(e.dirs, entry.Path)
			} else if strings.HasPrefix(entry.Name(), e.prefix) {
				e.files = append(e.files, entry.Path)
			}
		}
	}
	return true
}
