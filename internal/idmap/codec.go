// Package idmap translates external blob identifiers to internal filesystem
// paths and back.
//
// An external identifier has the form "<scheme>:<dir>/<dir>/<name>". The
// directory segments are used verbatim as directories below the store root;
// only the final segment is escaped, so that any byte sequence can be used as
// a blob name without producing an illegal or ambiguous file name.
package idmap

import (
	"fmt"
	"strings"

	"github.com/Ning0612/treeblob/internal/domain"
)

// DefaultScheme is the external scheme used when a store does not configure one
const DefaultScheme = "blob"

// Reserved names that map to staging sentinels instead of being escaped.
const (
	ReservedNew = "new"
	ReservedOld = "old"

	sentinelNew = ".new"
	sentinelOld = ".old"
)

// ID is a parsed external identifier
type ID struct {
	Scheme string
	Path   string // slash separated, unescaped, no leading slash
}

// String returns the external form of the identifier
func (id ID) String() string {
	return id.Scheme + ":" + id.Path
}

// Dir returns the directory part of the path ("" for top-level blobs)
func (id ID) Dir() string {
	if i := strings.LastIndexByte(id.Path, '/'); i >= 0 {
		return id.Path[:i]
	}
	return ""
}

// Name returns the final segment of the path
func (id ID) Name() string {
	return id.Path[strings.LastIndexByte(id.Path, '/')+1:]
}

// Codec maps identifiers of one scheme to paths under one root
type Codec struct {
	scheme string
	root   string
}

// NewCodec creates a codec for the given external scheme and internal root.
// An empty scheme means DefaultScheme; an empty root means "/".
func NewCodec(scheme, root string) *Codec {
	if scheme == "" {
		scheme = DefaultScheme
	}
	root = "/" + strings.Trim(root, "/")
	return &Codec{scheme: scheme, root: root}
}

// Scheme returns the external scheme handled by this codec
func (c *Codec) Scheme() string {
	return c.scheme
}

// Root returns the internal root path
func (c *Codec) Root() string {
	return c.root
}

// Parse validates an external identifier once at the boundary
func (c *Codec) Parse(external string) (ID, error) {
	colon := strings.IndexByte(external, ':')
	if colon < 0 {
		return ID{}, invalid(external, "missing scheme")
	}

	scheme, rest := external[:colon], external[colon+1:]
	if !ValidScheme(scheme) {
		return ID{}, invalid(external, "malformed scheme")
	}
	if scheme != c.scheme {
		return ID{}, invalid(external, fmt.Sprintf("scheme must be %q", c.scheme))
	}
	if rest == "" {
		return ID{}, invalid(external, "empty path")
	}
	if strings.HasPrefix(rest, "/") {
		return ID{}, invalid(external, "path must be relative")
	}

	for _, seg := range strings.Split(rest, "/") {
		switch seg {
		case "":
			return ID{}, invalid(external, "empty path segment")
		case ".", "..":
			return ID{}, invalid(external, "relative path segment")
		}
	}

	return ID{Scheme: scheme, Path: rest}, nil
}

// ToInternal maps an external identifier to its internal path
func (c *Codec) ToInternal(external string) (string, error) {
	id, err := c.Parse(external)
	if err != nil {
		return "", err
	}
	return c.PathOf(id), nil
}

// PathOf maps an already parsed identifier to its internal path
func (c *Codec) PathOf(id ID) string {
	name := EscapeName(id.Name())
	if dir := id.Dir(); dir != "" {
		return c.join(dir + "/" + name)
	}
	return c.join(name)
}

// ToExternal maps an internal path produced by ToInternal back to the
// external identifier
func (c *Codec) ToExternal(internal string) (string, error) {
	rel, ok := c.relative(internal)
	if !ok || rel == "" {
		return "", invalid(internal, "path is outside of store root "+c.root)
	}

	dir, escaped := "", rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		dir, escaped = rel[:i+1], rel[i+1:]
	}

	name, err := UnescapeName(escaped)
	if err != nil {
		return "", err
	}
	return c.scheme + ":" + dir + name, nil
}

// PrefixToInternal concatenates the root and an external prefix. It narrows a
// directory scan and is not reversible.
func (c *Codec) PrefixToInternal(prefix string) string {
	return c.join(prefix)
}

func (c *Codec) join(rel string) string {
	if c.root == "/" {
		return "/" + rel
	}
	return c.root + "/" + rel
}

func (c *Codec) relative(internal string) (string, bool) {
	if c.root == "/" {
		return strings.CutPrefix(internal, "/")
	}
	return strings.CutPrefix(internal, c.root+"/")
}

// ValidScheme reports whether s is an RFC 3986 scheme:
// ALPHA *( ALPHA / DIGIT / "+" / "-" / "." )
func ValidScheme(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z':
		case i > 0 && ('0' <= ch && ch <= '9' || ch == '+' || ch == '-' || ch == '.'):
		default:
			return false
		}
	}
	return true
}

func invalid(id, reason string) error {
	return fmt.Errorf("%w: %q: %s", domain.ErrInvalidIdentifier, id, reason)
}
