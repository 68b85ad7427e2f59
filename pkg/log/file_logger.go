package log

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// fileBufferSize holds a few hundred stream frame events between flushes.
const fileBufferSize = 64 << 10

// FileLogger appends events to a CBOR log file. Writes are buffered; Flush
// or Close pushes them to disk. It is safe for concurrent use.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	enc     *cbor.Encoder
	written uint64
	failed  uint64
	closed  bool
}

// NewFileLogger opens path for appending, creating it and its directory if
// needed.
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriterSize(f, fileBufferSize)
	return &FileLogger{file: f, buf: buf, enc: NewEncoder(buf)}, nil
}

// Log appends event. Encoding failures are counted, never reported to the
// caller.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.failed++
		return
	}
	l.written++
}

// Flush writes buffered events to the file.
func (l *FileLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	return l.buf.Flush()
}

// Stats returns the number of events written and the number that failed to
// encode or write.
func (l *FileLogger) Stats() (written, failed uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written, l.failed
}

// Close flushes and closes the file. Later calls and later Log calls are
// no-ops.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.buf.Flush(), l.file.Close())
}

var _ Logger = (*FileLogger)(nil)
