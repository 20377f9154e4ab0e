package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/Ning0612/treeblob/internal/domain"
)

// TestNormalizeRoot tests path normalization
func TestNormalizeRoot(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},  // Empty/root becomes empty
		{"/", ""}, // Root becomes empty
		{"folder", "/folder"},
		{"/folder", "/folder"},
		{"/folder/", "/folder"},
		{" /Blobs ", "/Blobs"},
	}

	for _, tt := range tests {
		got := normalizeRoot(tt.input)
		if got != tt.expected {
			t.Errorf("normalizeRoot(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

// TestEscapeQueryString tests query string escaping for injection prevention
func TestEscapeQueryString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"normal", "normal"},
		{"file'name", "file\\'name"},
		{"file''name", "file\\'\\'name"},
		{"back\\slash", "back\\\\slash"},
		{"no'special\"chars", "no\\'special\"chars"}, // Only single quotes escaped
	}

	for _, tt := range tests {
		got := escapeQueryString(tt.input)
		if got != tt.expected {
			t.Errorf("escapeQueryString(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

// TestSecurity_QueryInjection tests protection against query injection
func TestSecurity_QueryInjection(t *testing.T) {
	maliciousNames := []string{
		"file' or '1'='1",
		"'; DROP TABLE files; --",
		"file' AND trashed=false AND '1'='1",
	}

	for _, name := range maliciousNames {
		escaped := escapeQueryString(name)

		// Verify no unescaped single quotes remain
		unescaped := strings.ReplaceAll(escaped, "\\'", "")
		if strings.Contains(unescaped, "'") {
			t.Errorf("Unescaped single quote found in %q", escaped)
		}
	}
}

// TestResolvePath tests path validation against the root folder
func TestResolvePath(t *testing.T) {
	adapter := &Adapter{root: "/test-root", cache: newIDCache()}
	ctx := context.Background()

	tests := []struct {
		path        string
		expectError bool
		expected    string
	}{
		{"/test-root/file.txt", false, "/test-root/file.txt"},
		{"/test-root/folder/file.txt", false, "/test-root/folder/file.txt"},
		{"/test-root", false, "/test-root"},
		{"/test-root/a/../b", false, "/test-root/b"},
		{"file.txt", true, ""}, // relative paths rejected
		{"/test-root/../escape", true, ""},
		{"/test-root-2/file", true, ""},
		{"/", true, ""},
	}

	for _, tt := range tests {
		got, err := adapter.resolvePath(ctx, tt.path)
		if tt.expectError {
			if !errors.Is(err, domain.ErrPermissionDenied) {
				t.Errorf("resolvePath(%q) expected ErrPermissionDenied, got %v", tt.path, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolvePath(%q) unexpected error: %v", tt.path, err)
		}
		if got != tt.expected {
			t.Errorf("resolvePath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

// TestResolvePath_MyDrive tests an adapter rooted at My Drive itself
func TestResolvePath_MyDrive(t *testing.T) {
	adapter := &Adapter{root: "", cache: newIDCache()}

	got, err := adapter.resolvePath(context.Background(), "/")
	if err != nil || got != "" {
		t.Errorf("resolvePath(/) = %q, %v; want \"\", nil", got, err)
	}
	if adapter.Root() != "/" {
		t.Errorf("Root() = %q, want /", adapter.Root())
	}
}

// TestClosedAdapter tests that a closed adapter reports a connection error
func TestClosedAdapter(t *testing.T) {
	adapter := &Adapter{root: "/r", cache: newIDCache()}
	if err := adapter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := adapter.Exists(context.Background(), "/r/x")
	if !errors.Is(err, domain.ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
	if !domain.IsTransient(err) {
		t.Error("closed adapter error should be transient")
	}
}

// TestIDCache tests cache storage and invalidation
func TestIDCache(t *testing.T) {
	cache := newIDCache()

	if _, ok := cache.get("/test"); ok {
		t.Error("expected cache miss for empty cache")
	}

	cache.set("/dir", entry{id: "d", folder: true})
	cache.set("/dir/a", entry{id: "a"})
	cache.set("/dir/sub/b", entry{id: "b"})
	cache.set("/dir2", entry{id: "d2", folder: true})

	e, ok := cache.get("/dir")
	if !ok || e.id != "d" || !e.folder {
		t.Errorf("unexpected entry %+v, ok=%v", e, ok)
	}

	cache.forget("/dir")
	for _, p := range []string{"/dir", "/dir/a", "/dir/sub/b"} {
		if _, ok := cache.get(p); ok {
			t.Errorf("expected %s to be forgotten", p)
		}
	}
	if _, ok := cache.get("/dir2"); !ok {
		t.Error("sibling with a shared name prefix must be kept")
	}
}

// TestIDCache_Eviction tests that the cache stays bounded
func TestIDCache_Eviction(t *testing.T) {
	cache := newIDCache()
	cache.set("/first", entry{id: "first"})
	for i := 0; i < idCacheSize; i++ {
		cache.set(fmt.Sprintf("/f%d", i), entry{id: "x"})
	}

	if _, ok := cache.get("/first"); ok {
		t.Error("least recently used path should be evicted")
	}
	if cache.paths.Len() != idCacheSize {
		t.Errorf("cache holds %d paths, want %d", cache.paths.Len(), idCacheSize)
	}
}

// TestSecurity_CacheConcurrency tests cache thread safety
func TestSecurity_CacheConcurrency(t *testing.T) {
	cache := newIDCache()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			path := "/" + strings.Repeat("x", idx%10)
			cache.set(path, entry{id: "id"})
			cache.get(path)
			if idx%2 == 0 {
				cache.forget(path)
			}
		}(i)
	}

	wg.Wait()
}

// TestUploadWriter tests buffering until Close
func TestUploadWriter(t *testing.T) {
	var got string
	calls := 0
	w := &uploadWriter{commit: func(r io.Reader) error {
		calls++
		data, err := io.ReadAll(r)
		got = string(data)
		return err
	}}

	io.WriteString(w, "hello ")
	io.WriteString(w, "drive")
	if calls != 0 {
		t.Fatal("upload must wait for Close")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if calls != 1 || got != "hello drive" {
		t.Errorf("commit calls=%d content=%q", calls, got)
	}

	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("expected error writing after Close")
	}
}

// Benchmark tests
func BenchmarkEscapeQueryString(b *testing.B) {
	testStr := "file'with'many'quotes'in'it"
	for i := 0; i < b.N; i++ {
		_ = escapeQueryString(testStr)
	}
}

func BenchmarkCacheGet(b *testing.B) {
	cache := newIDCache()
	cache.set("/test", entry{id: "id-123"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.get("/test")
	}
}
