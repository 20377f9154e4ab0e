// Package checksum streams blob contents through a hash so copies can be
// compared without buffering them.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Algorithm names a supported hash
type Algorithm string

const (
	// MD5 is fast and good enough to compare two copies of the same blob
	MD5 Algorithm = "md5"
	// SHA256 is the default
	SHA256 Algorithm = "sha256"
)

// Options configures a Calculator
type Options struct {
	// MaxSize: inputs larger than this fail with an error (0 = unlimited)
	MaxSize int64

	// BufferSize: size of buffer for streaming reads
	// Default: 32KB
	BufferSize int
}

// DefaultOptions returns options with no size limit and a 32KB buffer
func DefaultOptions() Options {
	return Options{
		MaxSize:    0,
		BufferSize: 32 * 1024,
	}
}

// Digest is the result of hashing one stream
type Digest struct {
	Algorithm Algorithm
	Sum       string // hex encoded
	Size      int64  // bytes read
}

// Equal reports whether two digests describe the same content
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Sum == other.Sum && d.Size == other.Size
}

func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Sum
}

// Calculator computes digests of streams
type Calculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *Calculator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &Calculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *Calculator {
	return NewCalculator(DefaultOptions())
}

// Sum reads r until EOF and returns its digest. The context is checked
// between reads.
func (c *Calculator) Sum(ctx context.Context, r io.Reader, algo Algorithm) (Digest, error) {
	h, err := newHash(algo)
	if err != nil {
		return Digest{}, err
	}

	src := r
	if c.opts.MaxSize > 0 {
		src = io.LimitReader(r, c.opts.MaxSize+1)
	}

	buffer := make([]byte, c.opts.BufferSize)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return Digest{}, ctx.Err()
		default:
		}

		n, err := src.Read(buffer)
		if n > 0 {
			total += int64(n)
			if c.opts.MaxSize > 0 && total > c.opts.MaxSize {
				return Digest{}, fmt.Errorf("input exceeds maximum size (%d bytes)", c.opts.MaxSize)
			}
			// hash.Hash never returns an error from Write
			h.Write(buffer[:n])
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, fmt.Errorf("read error: %w", err)
		}
	}

	return Digest{Algorithm: algo, Sum: hex.EncodeToString(h.Sum(nil)), Size: total}, nil
}

// Same hashes both streams and reports whether their contents match
func (c *Calculator) Same(ctx context.Context, a, b io.Reader, algo Algorithm) (bool, error) {
	da, err := c.Sum(ctx, a, algo)
	if err != nil {
		return false, err
	}
	db, err := c.Sum(ctx, b, algo)
	if err != nil {
		return false, err
	}
	return da.Equal(db), nil
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	switch algo {
	case MD5, SHA256:
		return true
	default:
		return false
	}
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}
