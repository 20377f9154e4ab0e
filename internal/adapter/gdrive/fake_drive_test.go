package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/Ning0612/treeblob/internal/domain"
)

// fakeDrive serves the subset of the Drive v3 REST API the adapter uses
type fakeDrive struct {
	mu     sync.Mutex
	files  map[string]*drive.File
	data   map[string][]byte
	nextID int
}

var (
	nameQuery     = regexp.MustCompile(`^name = '((?:[^'\\]|\\.)*)' and '([^']+)' in parents(?: and mimeType = '([^']+)')? and trashed = false$`)
	childrenQuery = regexp.MustCompile(`^'([^']+)' in parents and trashed = false$`)
)

func newFakeDrive(t *testing.T) (*fakeDrive, *drive.Service) {
	t.Helper()
	fd := &fakeDrive{files: map[string]*drive.File{}, data: map[string][]byte{}}
	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)

	service, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("failed to create Drive service: %v", err)
	}
	return fd, service
}

func (fd *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	p := strings.TrimPrefix(r.URL.Path, "/upload/drive/v3")
	p = strings.TrimPrefix(p, "/")
	id, hasID := strings.CutPrefix(p, "files/")

	switch {
	case p == "files" && r.Method == http.MethodGet:
		fd.list(w, r)
	case p == "files" && r.Method == http.MethodPost:
		fd.create(w, r)
	case hasID && r.Method == http.MethodGet:
		fd.get(w, r, id)
	case hasID && r.Method == http.MethodPatch:
		fd.update(w, r, id)
	case hasID && r.Method == http.MethodDelete:
		fd.delete(w, id)
	default:
		notFound(w)
	}
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, `{"error":{"code":404,"message":"File not found","errors":[{"reason":"notFound"}]}}`)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func unquote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hasParent(f *drive.File, parent string) bool {
	for _, p := range f.Parents {
		if p == parent {
			return true
		}
	}
	return false
}

func (fd *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	var match func(*drive.File) bool
	live := func(f *drive.File) bool { return !f.Trashed }
	if m := nameQuery.FindStringSubmatch(q); m != nil {
		name, parent, mimeType := unquote(m[1]), m[2], m[3]
		match = func(f *drive.File) bool {
			return f.Name == name && hasParent(f, parent) && (mimeType == "" || f.MimeType == mimeType)
		}
	} else if m := childrenQuery.FindStringSubmatch(q); m != nil {
		match = func(f *drive.File) bool { return hasParent(f, m[1]) }
	} else {
		http.Error(w, "unsupported query "+q, http.StatusBadRequest)
		return
	}

	result := &drive.FileList{Files: []*drive.File{}}
	for i := 1; i <= fd.nextID; i++ {
		f, ok := fd.files[fmt.Sprintf("id%d", i)]
		if !ok || !live(f) || !match(f) {
			continue
		}
		result.Files = append(result.Files, f)
		if limit > 0 && len(result.Files) == limit {
			break
		}
	}
	writeJSON(w, result)
}

func (fd *fakeDrive) get(w http.ResponseWriter, r *http.Request, id string) {
	f, ok := fd.files[id]
	if !ok {
		notFound(w)
		return
	}
	if r.URL.Query().Get("alt") == "media" {
		w.Write(fd.data[id])
		return
	}
	writeJSON(w, f)
}

// readBody returns the metadata and, for media uploads, the content
func readBody(r *http.Request) (*drive.File, []byte, bool, error) {
	meta := &drive.File{}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err != nil {
			return nil, nil, false, err
		}
		if err := json.NewDecoder(part).Decode(meta); err != nil {
			return nil, nil, false, err
		}
		part, err = mr.NextPart()
		if err != nil {
			return nil, nil, false, err
		}
		content, err := io.ReadAll(part)
		return meta, content, true, err
	}

	if err := json.NewDecoder(r.Body).Decode(meta); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, false, err
	}
	return meta, nil, false, nil
}

func (fd *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	meta, content, _, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fd.nextID++
	id := fmt.Sprintf("id%d", fd.nextID)
	parents := meta.Parents
	if len(parents) == 0 {
		parents = []string{"root"}
	}
	f := &drive.File{Id: id, Name: meta.Name, MimeType: meta.MimeType, Parents: parents, Size: int64(len(content))}
	if f.MimeType == "" {
		f.MimeType = "application/octet-stream"
	}
	fd.files[id] = f
	fd.data[id] = content
	writeJSON(w, f)
}

func (fd *fakeDrive) update(w http.ResponseWriter, r *http.Request, id string) {
	f, ok := fd.files[id]
	if !ok {
		notFound(w)
		return
	}
	meta, content, hasContent, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if meta.Name != "" {
		f.Name = meta.Name
	}
	if hasContent {
		fd.data[id] = content
		f.Size = int64(len(content))
	}
	if remove := r.URL.Query().Get("removeParents"); remove != "" {
		var kept []string
		for _, p := range f.Parents {
			if !strings.Contains(","+remove+",", ","+p+",") {
				kept = append(kept, p)
			}
		}
		f.Parents = kept
	}
	if add := r.URL.Query().Get("addParents"); add != "" {
		f.Parents = append(f.Parents, strings.Split(add, ",")...)
	}
	writeJSON(w, f)
}

func (fd *fakeDrive) delete(w http.ResponseWriter, id string) {
	if _, ok := fd.files[id]; !ok {
		notFound(w)
		return
	}
	fd.deleteTree(id)
	w.WriteHeader(http.StatusNoContent)
}

func (fd *fakeDrive) deleteTree(id string) {
	delete(fd.files, id)
	delete(fd.data, id)
	for childID, f := range fd.files {
		if hasParent(f, id) {
			fd.deleteTree(childID)
		}
	}
}

// byName returns the id of the file called name below parent. Tests use it
// to change Drive behind the adapter's back, as another client would.
func (fd *fakeDrive) byName(parent, name string) string {
	for id, f := range fd.files {
		if f.Name == name && hasParent(f, parent) && !f.Trashed {
			return id
		}
	}
	return ""
}

func (fd *fakeDrive) removeExternally(parent, name string) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.deleteTree(fd.byName(parent, name))
}

func (fd *fakeDrive) trashExternally(parent, name string) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.files[fd.byName(parent, name)].Trashed = true
}

// replaceExternally swaps the file for a new one with the same name and a
// new id
func (fd *fakeDrive) replaceExternally(parent, name, content string) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.deleteTree(fd.byName(parent, name))
	fd.nextID++
	id := fmt.Sprintf("id%d", fd.nextID)
	fd.files[id] = &drive.File{Id: id, Name: name, MimeType: "application/octet-stream", Parents: []string{parent}, Size: int64(len(content))}
	fd.data[id] = []byte(content)
}

func (fd *fakeDrive) folderID(name string) string {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	for id, f := range fd.files {
		if f.Name == name && f.MimeType == MimeTypeFolder {
			return id
		}
	}
	return ""
}

func (fd *fakeDrive) count() int {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return len(fd.files)
}

func put(t *testing.T, a *Adapter, p, content string, overwrite bool) error {
	t.Helper()
	w, err := a.Create(context.Background(), p, overwrite)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return w.Close()
}

func get(t *testing.T, a *Adapter, p string) string {
	t.Helper()
	r, err := a.Open(context.Background(), p)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", p, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

func newFakeAdapter(t *testing.T) (*fakeDrive, *Adapter) {
	t.Helper()
	fd, service := newFakeDrive(t)
	a, err := NewWithService(context.Background(), service, "/Blobs")
	if err != nil {
		t.Fatalf("NewWithService failed: %v", err)
	}
	return fd, a
}

func TestDrive_CreatesRootFolder(t *testing.T) {
	fd, a := newFakeAdapter(t)

	if fd.count() != 1 {
		t.Fatalf("expected the root folder to be created, have %d files", fd.count())
	}
	ok, err := a.Exists(context.Background(), "/Blobs")
	if err != nil || !ok {
		t.Errorf("Exists(/Blobs) = %v, %v", ok, err)
	}
}

func TestDrive_CreateReadStat(t *testing.T) {
	_, a := newFakeAdapter(t)
	ctx := context.Background()

	if err := put(t, a, "/Blobs/a/b", "hello", false); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if got := get(t, a, "/Blobs/a/b"); got != "hello" {
		t.Errorf("content = %q, want hello", got)
	}

	info, err := a.Stat(ctx, "/Blobs/a/b")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != 5 || !info.IsFile() || info.Path != "/Blobs/a/b" {
		t.Errorf("unexpected stat %+v", info)
	}

	err = put(t, a, "/Blobs/a/b", "again", false)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	if err := put(t, a, "/Blobs/a/b", "replaced", true); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if got := get(t, a, "/Blobs/a/b"); got != "replaced" {
		t.Errorf("content = %q, want replaced", got)
	}

	if _, err := a.Open(ctx, "/Blobs/a"); !errors.Is(err, domain.ErrNotFile) {
		t.Errorf("Open(folder) expected ErrNotFile, got %v", err)
	}
	if _, err := a.Stat(ctx, "/Blobs/missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Stat(missing) expected ErrNotFound, got %v", err)
	}
}

func TestDrive_List(t *testing.T) {
	_, a := newFakeAdapter(t)
	ctx := context.Background()

	put(t, a, "/Blobs/dir/one", "1", false)
	put(t, a, "/Blobs/dir/sub/two", "2", false)

	entries, err := a.List(ctx, "/Blobs/dir")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := map[string]bool{}
	for _, e := range entries {
		got[e.Path] = e.IsDir()
	}
	if len(got) != 2 || got["/Blobs/dir/one"] || !got["/Blobs/dir/sub"] {
		t.Errorf("unexpected listing %v", got)
	}

	if _, err := a.List(ctx, "/Blobs/dir/one"); !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("List(file) expected ErrNotDirectory, got %v", err)
	}
	if _, err := a.List(ctx, "/Blobs/nothing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("List(missing) expected ErrNotFound, got %v", err)
	}
}

func TestDrive_Rename(t *testing.T) {
	_, a := newFakeAdapter(t)
	ctx := context.Background()
	put(t, a, "/Blobs/a/src", "payload", false)
	put(t, a, "/Blobs/taken", "x", false)

	ok, err := a.Rename(ctx, "/Blobs/a/src", "/Blobs/c/dst")
	if err != nil || ok {
		t.Errorf("rename into missing folder = %v, %v; want false, nil", ok, err)
	}
	ok, err = a.Rename(ctx, "/Blobs/a/src", "/Blobs/taken")
	if err != nil || ok {
		t.Errorf("rename onto existing file = %v, %v; want false, nil", ok, err)
	}

	if _, err := a.Mkdirs(ctx, "/Blobs/c"); err != nil {
		t.Fatalf("Mkdirs failed: %v", err)
	}
	ok, err = a.Rename(ctx, "/Blobs/a/src", "/Blobs/c/dst")
	if err != nil || !ok {
		t.Fatalf("rename = %v, %v; want true, nil", ok, err)
	}

	if exists, _ := a.Exists(ctx, "/Blobs/a/src"); exists {
		t.Error("source still exists after rename")
	}
	if got := get(t, a, "/Blobs/c/dst"); got != "payload" {
		t.Errorf("content = %q, want payload", got)
	}

	ok, err = a.Rename(ctx, "/Blobs/a/src", "/Blobs/c/other")
	if err != nil || ok {
		t.Errorf("rename of missing source = %v, %v; want false, nil", ok, err)
	}
}

func TestDrive_DeleteAndMkdirs(t *testing.T) {
	_, a := newFakeAdapter(t)
	ctx := context.Background()
	put(t, a, "/Blobs/dir/file", "x", false)

	if _, err := a.Delete(ctx, "/Blobs/dir", false); err == nil {
		t.Error("non-recursive delete of a non-empty folder should fail")
	}
	deleted, err := a.Delete(ctx, "/Blobs/dir", true)
	if err != nil || !deleted {
		t.Fatalf("recursive delete = %v, %v", deleted, err)
	}
	if exists, _ := a.Exists(ctx, "/Blobs/dir/file"); exists {
		t.Error("child still exists after recursive delete")
	}

	deleted, err = a.Delete(ctx, "/Blobs/dir", false)
	if err != nil || deleted {
		t.Errorf("delete of missing path = %v, %v; want false, nil", deleted, err)
	}

	put(t, a, "/Blobs/plain", "x", false)
	if _, err := a.Mkdirs(ctx, "/Blobs/plain"); !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("Mkdirs over a file expected ErrNotDirectory, got %v", err)
	}
	ok, err := a.Mkdirs(ctx, "/Blobs/x/y")
	if err != nil || !ok {
		t.Errorf("Mkdirs = %v, %v", ok, err)
	}
	ok, err = a.Mkdirs(ctx, "/Blobs/x/y")
	if err != nil || !ok {
		t.Errorf("second Mkdirs = %v, %v", ok, err)
	}
}

func TestDrive_StaleCacheAfterExternalDelete(t *testing.T) {
	fd, a := newFakeAdapter(t)
	ctx := context.Background()
	put(t, a, "/Blobs/gone", "x", false)
	put(t, a, "/Blobs/trashed", "x", false)

	if ok, err := a.Exists(ctx, "/Blobs/gone"); err != nil || !ok {
		t.Fatalf("Exists before delete = %v, %v", ok, err)
	}

	root := fd.folderID("Blobs")
	fd.removeExternally(root, "gone")
	fd.trashExternally(root, "trashed")

	for _, p := range []string{"/Blobs/gone", "/Blobs/trashed"} {
		if ok, err := a.Exists(ctx, p); err != nil || ok {
			t.Errorf("Exists(%s) = %v, %v; want false, nil", p, ok, err)
		}
		if _, err := a.Stat(ctx, p); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Stat(%s) expected ErrNotFound, got %v", p, err)
		}
		if _, err := a.Open(ctx, p); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Open(%s) expected ErrNotFound, got %v", p, err)
		}
	}
}

func TestDrive_StaleCacheAfterExternalReplace(t *testing.T) {
	fd, a := newFakeAdapter(t)
	ctx := context.Background()
	put(t, a, "/Blobs/doc", "old content", false)
	if got := get(t, a, "/Blobs/doc"); got != "old content" {
		t.Fatalf("content = %q", got)
	}

	fd.replaceExternally(fd.folderID("Blobs"), "doc", "new")

	if got := get(t, a, "/Blobs/doc"); got != "new" {
		t.Errorf("content = %q, want new", got)
	}
	info, err := a.Stat(ctx, "/Blobs/doc")
	if err != nil || info.Size != 3 {
		t.Errorf("Stat = %+v, %v; want size 3", info, err)
	}
}
