package testutil

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/afero"
)

func TestCreateTestFile(t *testing.T) {
	path := CreateTestFile(t, t.TempDir(), "sub/a.txt", []byte("abc"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteReadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	WriteFile(t, fs, "/deep/dir/blob", []byte("payload"))

	if got := ReadFile(t, fs, "/deep/dir/blob"); string(got) != "payload" {
		t.Errorf("ReadFile = %q", got)
	}
	if ok, _ := afero.IsDir(fs, "/deep/dir"); !ok {
		t.Error("parent directory not created")
	}
}

func TestRandom(t *testing.T) {
	a, b := RandomBytes(1024), RandomBytes(1024)
	if len(a) != 1024 || bytes.Equal(a, b) {
		t.Error("RandomBytes should return distinct buffers of the requested size")
	}

	s := RandomString(16)
	if len(s) != 16 {
		t.Errorf("RandomString length = %d", len(s))
	}
}
