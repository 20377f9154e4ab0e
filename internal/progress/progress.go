package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Reporter receives progress of a single blob transfer
type Reporter interface {
	// Start begins tracking a transfer of totalBytes (-1 when unknown)
	Start(id string, totalBytes int64)
	// Update reports the number of bytes transferred so far
	Update(bytesTransferred int64)
	// Complete marks the transfer as complete
	Complete()
	// Error reports a failed transfer
	Error(err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	ID             string
	Bytes          int64
	Total          int64
	BytesPerSecond float64
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback  Callback
	mu        sync.Mutex
	id        string
	total     int64
	bytes     int64
	startTime time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
	}
}

// Start begins tracking a new transfer
func (r *CallbackReporter) Start(id string, totalBytes int64) {
	r.mu.Lock()
	r.id = id
	r.total = totalBytes
	r.bytes = 0
	r.startTime = time.Now()
	update := Update{Type: UpdateStart, ID: id, Total: totalBytes}
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	r.emit(update)
}

// Update reports progress on the current transfer
func (r *CallbackReporter) Update(bytesTransferred int64) {
	r.mu.Lock()
	r.bytes = bytesTransferred
	update := Update{
		Type:           UpdateProgress,
		ID:             r.id,
		Bytes:          bytesTransferred,
		Total:          r.total,
		BytesPerSecond: r.speedLocked(),
	}
	r.mu.Unlock()

	r.emit(update)
}

// Complete marks the current transfer as complete. An unknown total is
// replaced by the bytes actually seen.
func (r *CallbackReporter) Complete() {
	r.mu.Lock()
	if r.total < 0 {
		r.total = r.bytes
	}
	update := Update{
		Type:           UpdateComplete,
		ID:             r.id,
		Bytes:          r.bytes,
		Total:          r.total,
		BytesPerSecond: r.speedLocked(),
	}
	r.mu.Unlock()

	r.emit(update)
}

// Error reports an error on the current transfer
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	update := Update{
		Type:  UpdateError,
		ID:    r.id,
		Bytes: r.bytes,
		Total: r.total,
		Error: err,
	}
	r.mu.Unlock()

	r.emit(update)
}

func (r *CallbackReporter) speedLocked() float64 {
	elapsed := time.Since(r.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.bytes) / elapsed
}

func (r *CallbackReporter) emit(u Update) {
	if r.callback != nil {
		r.callback(u)
	}
}

// ProgressReader wraps an io.Reader to track read progress
type ProgressReader struct {
	reader      io.Reader
	reporter    Reporter
	transferred int64
}

// NewProgressReader creates a new progress-tracking reader
func NewProgressReader(r io.Reader, reporter Reporter) *ProgressReader {
	return &ProgressReader{
		reader:   r,
		reporter: reporter,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		if pr.reporter != nil {
			pr.reporter.Update(pr.transferred)
		}
	}
	return n, err
}

// Close closes the wrapped reader when it is an io.Closer
func (pr *ProgressReader) Close() error {
	if c, ok := pr.reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Transferred returns the bytes read so far
func (pr *ProgressReader) Transferred() int64 {
	return pr.transferred
}

// ProgressWriter wraps an io.Writer to track write progress
type ProgressWriter struct {
	writer      io.Writer
	reporter    Reporter
	transferred int64
}

// NewProgressWriter creates a new progress-tracking writer
func NewProgressWriter(w io.Writer, reporter Reporter) *ProgressWriter {
	return &ProgressWriter{
		writer:   w,
		reporter: reporter,
	}
}

// Write implements io.Writer
func (pw *ProgressWriter) Write(p []byte) (n int, err error) {
	n, err = pw.writer.Write(p)
	if n > 0 {
		pw.transferred += int64(n)
		if pw.reporter != nil {
			pw.reporter.Update(pw.transferred)
		}
	}
	return n, err
}

// Transferred returns the bytes written so far
func (pw *ProgressWriter) Transferred() int64 {
	return pw.transferred
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Start(id string, totalBytes int64) {}
func (NullReporter) Update(bytesTransferred int64)     {}
func (NullReporter) Complete()                         {}
func (NullReporter) Error(err error)                   {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}
