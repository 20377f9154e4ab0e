package blobstore

import (
	"iter"
	"path"
	"strings"

	"github.com/Ning0612/treeblob/internal/idmap"
	"github.com/Ning0612/treeblob/internal/logger"
)

// IDIterator yields external identifiers for the files found by an
// Enumerator. Files whose names were not produced by the codec are skipped,
// as are names whose decoded form does not start with prefix.
type IDIterator struct {
	enum   *Enumerator
	codec  *idmap.Codec
	prefix string
	log    logger.Logger

	pending    string
	hasPending bool
}

// HasNext reports whether Next will return an id
func (it *IDIterator) HasNext() bool {
	return it.fill()
}

// Next returns the next id
func (it *IDIterator) Next() (string, bool) {
	if !it.fill() {
		return "", false
	}
	id := it.pending
	it.pending, it.hasPending = "", false
	return id, true
}

// Err returns the listing failure that ended the iteration, if any
func (it *IDIterator) Err() error {
	return it.enum.Err()
}

// All returns the remaining ids as an iterator. A listing failure is yielded
// once as the last element.
func (it *IDIterator) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			id, ok := it.Next()
			if !ok {
				if err := it.Err(); err != nil {
					yield("", err)
				}
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// Collect drains the iterator
func (it *IDIterator) Collect() ([]string, error) {
	var ids []string
	for id, err := range it.All() {
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (it *IDIterator) fill() bool {
	if it.hasPending {
		return true
	}
	for {
		p, ok := it.enum.Next()
		if !ok {
			return false
		}
		id, err := it.codec.ToExternal(p)
		if err != nil {
			it.log.Debug("Skipping foreign entry", "path", p, "error", err)
			continue
		}
		if it.prefix != "" {
			// ToExternal succeeded, so the base name decodes
			name, _ := idmap.UnescapeName(path.Base(p))
			if !strings.HasPrefix(name, it.prefix) {
				continue
			}
		}
		it.pending, it.hasPending = id, true
		return true
	}
}
