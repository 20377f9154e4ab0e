package main

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// lockedBuffer guards the bar output against the bar's refresh goroutine
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBarReporter(t *testing.T) {
	var out lockedBuffer
	reporter := newBarReporter(&out)

	reporter.Start("blob:a", 2048)
	reporter.Update(1024)
	reporter.Complete()
	assert.Contains(t, out.String(), "blob:a")

	reporter.Start("blob:b", -1)
	reporter.Update(10)
	reporter.Error(io.ErrUnexpectedEOF)
	assert.Contains(t, out.String(), "blob:b failed: unexpected EOF")

	// updates without a running bar are ignored
	reporter.Update(5)
	reporter.Complete()
}

func TestPutWithProgress(t *testing.T) {
	c := newCLI(t, memConfig)

	out, err := c.run("payload", "put", "-", "--id", "blob:p.bin", "--progress")
	assert.NoError(t, err)
	assert.Equal(t, "blob:p.bin\n", out)

	out, err = c.run("", "get", "blob:p.bin", "--progress")
	assert.NoError(t, err)
	assert.Equal(t, "payload", out)
}
