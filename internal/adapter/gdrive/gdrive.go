package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Ning0612/treeblob/internal/domain"
)

const (
	// MimeTypeFolder is the MIME type for Google Drive folders
	MimeTypeFolder = "application/vnd.google-apps.folder"
	// PageSize is the number of files to fetch per request
	PageSize = 100

	rootFolderID = "root"
)

// Adapter implements the adapter.Adapter interface for Google Drive.
// Paths are absolute slash separated paths below "My Drive"; the adapter only
// accepts paths inside its root folder.
type Adapter struct {
	service *drive.Service
	root    string   // root folder path in Drive, "" for My Drive itself
	cache   *idCache // path -> file ID
	closed  atomic.Bool
}

type entry struct {
	id     string
	folder bool
}

// idCacheSize bounds the number of remembered path lookups
const idCacheSize = 4096

// idCache caches path lookups; least recently used paths are evicted first
type idCache struct {
	paths *lru.Cache[string, entry]
}

func newIDCache() *idCache {
	paths, _ := lru.New[string, entry](idCacheSize) // error only for a non-positive size
	return &idCache{paths: paths}
}

func (c *idCache) get(p string) (entry, bool) {
	return c.paths.Get(p)
}

func (c *idCache) set(p string, e entry) {
	c.paths.Add(p, e)
}

// forget drops p and everything below it
func (c *idCache) forget(p string) {
	c.paths.Remove(p)
	for _, k := range c.paths.Keys() {
		if strings.HasPrefix(k, p+"/") {
			c.paths.Remove(k)
		}
	}
}

// forgetChain drops p, everything below it and every ancestor of p
func (c *idCache) forgetChain(p string) {
	c.forget(p)
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		c.paths.Remove(dir)
	}
}

// New creates a Drive adapter for root using the token managed by auth.
// The root folder is created when missing.
func New(ctx context.Context, auth *Authenticator, root string) (*Adapter, error) {
	token, err := auth.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	client := auth.Config().Client(ctx, token)
	service, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return NewWithService(ctx, service, root)
}

// NewWithService creates an adapter on an existing Drive service
func NewWithService(ctx context.Context, service *drive.Service, root string) (*Adapter, error) {
	a := &Adapter{
		service: service,
		root:    normalizeRoot(root),
		cache:   newIDCache(),
	}

	if _, err := a.getOrCreateFolderID(ctx, a.root); err != nil {
		return nil, fmt.Errorf("failed to resolve root folder: %w", err)
	}
	return a, nil
}

// normalizeRoot normalizes the root path
func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" || root == "/" {
		return ""
	}
	// Ensure leading slash, no trailing slash
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return strings.TrimSuffix(root, "/")
}

// Exists checks if a path exists
func (a *Adapter) Exists(ctx context.Context, p string) (bool, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return false, err
	}
	err = a.withEntry(ctx, full, func(e entry) error {
		if e.id == rootFolderID {
			return nil
		}
		file, err := a.service.Files.Get(e.id).Fields("id, trashed").Context(ctx).Do()
		if err != nil {
			return a.mapError(err)
		}
		if file.Trashed {
			return domain.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, p string) (domain.FileInfo, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return domain.FileInfo{}, err
	}
	var file *drive.File
	err = a.withEntry(ctx, full, func(e entry) error {
		var err error
		file, err = a.service.Files.Get(e.id).
			Fields("id, name, mimeType, size, modifiedTime, md5Checksum, trashed").
			Context(ctx).Do()
		if err != nil {
			return a.mapError(err)
		}
		if file.Trashed {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.FileInfo{}, err
	}

	return fileInfoFromDrive(full, file), nil
}

// Open downloads a file
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return nil, err
	}
	var body io.ReadCloser
	err = a.withEntry(ctx, full, func(e entry) error {
		if e.folder {
			return domain.ErrNotFile
		}
		resp, err := a.service.Files.Get(e.id).Context(ctx).Download()
		if err != nil {
			return a.mapError(err)
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Create returns a writer for p. Content is buffered and uploaded when the
// writer is closed; parent folders are created first.
func (a *Adapter) Create(ctx context.Context, p string, overwrite bool) (io.WriteCloser, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return nil, err
	}
	if full == a.root {
		return nil, domain.ErrNotFile
	}

	existing, err := a.lookup(ctx, full)
	switch {
	case err == nil && existing.folder:
		return nil, domain.ErrNotFile
	case err == nil && !overwrite:
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, p)
	case err == nil:
		return &uploadWriter{commit: func(r io.Reader) error {
			_, err := a.service.Files.Update(existing.id, &drive.File{}).Context(ctx).Media(r).Do()
			return a.mapError(err)
		}}, nil
	case !errors.Is(err, domain.ErrNotFound):
		// permission, network, etc. are not a reason to create
		return nil, err
	}

	parentID, err := a.getOrCreateFolderID(ctx, path.Dir(full))
	if err != nil {
		return nil, err
	}

	file := &drive.File{
		Name:    path.Base(full),
		Parents: []string{parentID},
	}
	return &uploadWriter{commit: func(r io.Reader) error {
		created, err := a.service.Files.Create(file).Fields("id").Context(ctx).Media(r).Do()
		if err != nil {
			return a.mapError(err)
		}
		a.cache.set(full, entry{id: created.Id})
		return nil
	}}, nil
}

// Delete removes a file or folder. A non-empty folder is only removed when
// recursive is set.
func (a *Adapter) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return false, err
	}
	e, err := a.lookup(ctx, full)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if e.folder && !recursive {
		children, err := a.service.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", e.id)).
			PageSize(1).
			Fields("files(id)").
			Context(ctx).Do()
		if err != nil {
			return false, a.mapError(err)
		}
		if len(children.Files) > 0 {
			return false, fmt.Errorf("%w: folder %s is not empty", domain.ErrNotFile, p)
		}
	}

	if err := a.service.Files.Delete(e.id).Context(ctx).Do(); err != nil {
		err = a.mapError(err)
		if errors.Is(err, domain.ErrNotFound) {
			a.cache.forget(full)
			return false, nil
		}
		return false, err
	}

	a.cache.forget(full)
	return true, nil
}

// Rename moves src to dst by re-parenting the Drive file. It refuses to
// replace dst or to create its parent folder.
func (a *Adapter) Rename(ctx context.Context, src, dst string) (bool, error) {
	fullSrc, err := a.resolvePath(ctx, src)
	if err != nil {
		return false, err
	}
	fullDst, err := a.resolvePath(ctx, dst)
	if err != nil {
		return false, err
	}

	from, err := a.lookup(ctx, fullSrc)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := a.lookup(ctx, fullDst); err == nil {
		return false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	parent, err := a.lookup(ctx, path.Dir(fullDst))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !parent.folder {
		return false, nil
	}

	current, err := a.service.Files.Get(from.id).Fields("parents").Context(ctx).Do()
	if err != nil {
		return false, a.mapError(err)
	}

	_, err = a.service.Files.Update(from.id, &drive.File{Name: path.Base(fullDst)}).
		AddParents(parent.id).
		RemoveParents(strings.Join(current.Parents, ",")).
		Fields("id").
		Context(ctx).Do()
	if err != nil {
		return false, a.mapError(err)
	}

	a.cache.forget(fullSrc)
	a.cache.set(fullDst, from)
	return true, nil
}

// Mkdirs creates a folder and any necessary parents
func (a *Adapter) Mkdirs(ctx context.Context, p string) (bool, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return false, err
	}

	e, err := a.lookup(ctx, full)
	if err == nil {
		if !e.folder {
			return false, fmt.Errorf("%w: %s", domain.ErrNotDirectory, p)
		}
		return true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	if _, err := a.getOrCreateFolderID(ctx, full); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the immediate children of a folder
func (a *Adapter) List(ctx context.Context, p string) ([]domain.FileInfo, error) {
	full, err := a.resolvePath(ctx, p)
	if err != nil {
		return nil, err
	}
	// lookup, not getOrCreateFolderID: listing must not create folders
	e, err := a.lookup(ctx, full)
	if err != nil {
		return nil, err
	}
	if !e.folder {
		return nil, domain.ErrNotDirectory
	}

	var result []domain.FileInfo
	pageToken := ""

	for {
		call := a.service.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", e.id)).
			PageSize(PageSize).
			Fields("nextPageToken, files(id, name, mimeType, size, modifiedTime, md5Checksum)")

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Context(ctx).Do()
		if err != nil {
			return nil, a.mapError(err)
		}

		for _, f := range fileList.Files {
			childPath := path.Join(displayPath(full), f.Name)
			a.cache.set(childPath, entry{id: f.Id, folder: f.MimeType == MimeTypeFolder})
			result = append(result, fileInfoFromDrive(childPath, f))
		}

		pageToken = fileList.NextPageToken
		if pageToken == "" {
			break
		}
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
	return displayPath(a.root)
}

// resolvePath validates an absolute path against the root folder. The
// result uses "" for My Drive itself.
func (a *Adapter) resolvePath(ctx context.Context, p string) (string, error) {
	if a.closed.Load() {
		return "", fmt.Errorf("%w: drive adapter for %s is closed", domain.ErrConnection, a.Root())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !path.IsAbs(p) {
		return "", fmt.Errorf("%w: %q is not absolute", domain.ErrPermissionDenied, p)
	}

	full := path.Clean(p)
	if full == "/" {
		full = ""
	}

	if a.root != "" && full != a.root && !strings.HasPrefix(full, a.root+"/") {
		return "", fmt.Errorf("%w: %q is outside of %s", domain.ErrPermissionDenied, p, a.root)
	}
	return full, nil
}

func displayPath(full string) string {
	if full == "" {
		return "/"
	}
	return full
}

// escapeQueryString escapes special characters in Drive query strings
func escapeQueryString(s string) string {
	// Escape backslash first, then single quote
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}

// lookup returns the Drive file at the given path
func (a *Adapter) lookup(ctx context.Context, full string) (entry, error) {
	e, _, err := a.resolve(ctx, full)
	return e, err
}

// resolve is lookup that also reports whether the entry came from the cache
func (a *Adapter) resolve(ctx context.Context, full string) (entry, bool, error) {
	if full == "" {
		return entry{id: rootFolderID, folder: true}, false, nil
	}
	if e, ok := a.cache.get(full); ok {
		return e, true, nil
	}

	// Walk the path from My Drive
	parts := strings.Split(strings.TrimPrefix(full, "/"), "/")
	current := entry{id: rootFolderID, folder: true}

	for i, part := range parts {
		partial := "/" + strings.Join(parts[:i+1], "/")
		if e, ok := a.cache.get(partial); ok {
			current = e
			continue
		}
		if !current.folder {
			return entry{}, false, domain.ErrNotFound
		}

		// Escape single quotes to prevent query injection
		query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQueryString(part), current.id)
		fileList, err := a.service.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(id, mimeType)").
			Context(ctx).Do()
		if err != nil {
			return entry{}, false, a.mapError(err)
		}
		if len(fileList.Files) == 0 {
			return entry{}, false, domain.ErrNotFound
		}

		f := fileList.Files[0]
		current = entry{id: f.Id, folder: f.MimeType == MimeTypeFolder}
		a.cache.set(partial, current)
	}

	return current, false, nil
}

// withEntry resolves full and runs fn on the result. A cached id may belong to
// a file another Drive client removed or replaced since; when fn reports a
// cached entry missing, the path and its ancestors are dropped from the cache
// and resolved once more. A folder replaced by another client is only noticed
// once its own entry is evicted or forgotten.
func (a *Adapter) withEntry(ctx context.Context, full string, fn func(entry) error) error {
	e, cached, err := a.resolve(ctx, full)
	if err == nil {
		err = fn(e)
	}
	if !cached || !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	a.cache.forgetChain(full)
	e, err = a.lookup(ctx, full)
	if err != nil {
		return err
	}
	return fn(e)
}

// getOrCreateFolderID returns the ID of a folder, creating it if necessary
func (a *Adapter) getOrCreateFolderID(ctx context.Context, full string) (string, error) {
	if full == "" || full == "/" {
		return rootFolderID, nil
	}
	if e, ok := a.cache.get(full); ok && e.folder {
		return e.id, nil
	}

	parts := strings.Split(strings.TrimPrefix(full, "/"), "/")
	currentID := rootFolderID

	for i, part := range parts {
		partial := "/" + strings.Join(parts[:i+1], "/")

		if e, ok := a.cache.get(partial); ok {
			if !e.folder {
				return "", fmt.Errorf("%w: %s", domain.ErrNotDirectory, partial)
			}
			currentID = e.id
			continue
		}

		query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
			escapeQueryString(part), currentID, MimeTypeFolder)
		fileList, err := a.service.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(id)").
			Context(ctx).Do()
		if err != nil {
			return "", a.mapError(err)
		}

		if len(fileList.Files) > 0 {
			currentID = fileList.Files[0].Id
		} else {
			folder := &drive.File{
				Name:     part,
				MimeType: MimeTypeFolder,
				Parents:  []string{currentID},
			}
			created, err := a.service.Files.Create(folder).
				Fields("id").
				Context(ctx).Do()
			if err != nil {
				return "", a.mapError(err)
			}
			currentID = created.Id
		}

		a.cache.set(partial, entry{id: currentID, folder: true})
	}

	return currentID, nil
}

// fileInfoFromDrive converts a Drive file to domain.FileInfo
func fileInfoFromDrive(full string, file *drive.File) domain.FileInfo {
	fileType := domain.FileTypeRegular
	if file.MimeType == MimeTypeFolder {
		fileType = domain.FileTypeDirectory
	}

	modTime := time.Time{}
	if file.ModifiedTime != "" {
		modTime, _ = time.Parse(time.RFC3339, file.ModifiedTime)
	}

	return domain.FileInfo{
		Path:     displayPath(full),
		Type:     fileType,
		Size:     file.Size,
		ModTime:  modTime,
		Checksum: file.Md5Checksum, // Drive provides MD5
	}
}

// mapError converts Google API errors to domain errors, keeping the cause
func (a *Adapter) mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 404:
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		case apiErr.Code == 403:
			return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
		case apiErr.Code == 409:
			return fmt.Errorf("%w: %w", domain.ErrAlreadyExists, err)
		case apiErr.Code == 429:
			return fmt.Errorf("%w: rate limit exceeded: %w", domain.ErrNetworkError, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %w", domain.ErrNetworkError, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrNetworkError, err)
	}

	// Fallback to string matching for non-googleapi errors
	if strings.Contains(err.Error(), "notFound") {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}

	return err
}

// uploadWriter buffers a file and hands it to commit on Close
type uploadWriter struct {
	buf    bytes.Buffer
	commit func(io.Reader) error
	done   bool
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errors.New("write after close")
	}
	return w.buf.Write(p)
}

func (w *uploadWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.commit(&w.buf)
}
