package domain

import "errors"

// Blob store errors - 儲存層對外錯誤
var (
	// ErrInvalidIdentifier indicates a malformed or unsupported blob id
	ErrInvalidIdentifier = errors.New("invalid blob identifier")

	// ErrBlobMissing indicates the operation requires an existing blob
	ErrBlobMissing = errors.New("blob does not exist")

	// ErrDuplicateBlob indicates the target blob already exists
	ErrDuplicateBlob = errors.New("blob already exists")

	// ErrSessionClosed indicates the session was closed by the caller
	ErrSessionClosed = errors.New("session is closed")

	// ErrConnection indicates the filesystem handle could not be established
	// or is no longer usable
	ErrConnection = errors.New("filesystem connection failed")

	// ErrIO indicates a read, write, rename or list failure
	ErrIO = errors.New("filesystem i/o failure")

	// ErrNotSupported indicates the operation is intentionally unimplemented
	ErrNotSupported = errors.New("operation not supported")
)

// Adapter errors - 儲存適配器層錯誤
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")

	// ErrNetworkError indicates a network-related failure
	ErrNetworkError = errors.New("network error")

	// ErrTimeout indicates operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// IsTransient reports whether err is worth one reconnect-and-retry
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrNetworkError) ||
		errors.Is(err, ErrTimeout)
}
