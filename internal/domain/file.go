package domain

import (
	"path"
	"time"
)

// FileType represents the type of a filesystem entry
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
)

// FileInfo represents metadata about a file or directory as reported by
// an adapter (the listStatus / stat record of the backing filesystem)
type FileInfo struct {
	// Path is the full internal path of the entry
	Path string

	// Type indicates if this is a file, directory, or symlink
	Type FileType

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time

	// Checksum is the backend-provided content hash, if any
	Checksum string
}

// IsDir returns true if this is a directory
func (f FileInfo) IsDir() bool {
	return f.Type == FileTypeDirectory
}

// IsFile returns true if this is a regular file
func (f FileInfo) IsFile() bool {
	return f.Type == FileTypeRegular
}

// Name returns the final path segment
func (f FileInfo) Name() string {
	return path.Base(f.Path)
}
