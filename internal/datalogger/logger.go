// Package datalogger writes recorder samples to append-only log files.
package datalogger

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrClosed is returned when writing to a closed logger.
var ErrClosed = errors.New("data logger is closed")

// Logger owns a single output file. It is safe for concurrent use, but a
// recorder funnels all writes through one goroutine to keep them ordered.
type Logger struct {
	identifier  string
	path        string
	contentType string

	mu          sync.Mutex
	file        *os.File
	sampleCount int
	closed      bool
}

// New creates the file at path with initial as its content and opens it
// for appending. An existing file is truncated.
func New(identifier, path string, initial []byte) (*Logger, error) {
	if err := os.WriteFile(path, initial, 0o644); err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &Logger{identifier: identifier, path: path, file: f}, nil
}

func (l *Logger) Identifier() string  { return l.identifier }
func (l *Logger) Path() string        { return l.path }
func (l *Logger) ContentType() string { return l.contentType }

// SampleCount is the number of samples written so far.
func (l *Logger) SampleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sampleCount
}

// Write appends data as one sample. A failed write leaves the file open.
func (l *Logger) Write(data []byte) error {
	return l.write(data, 1)
}

func (l *Logger) write(data []byte, samples int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to write to %s: %w", l.path, err)
	}
	l.sampleCount += samples
	return nil
}

// Close releases the file. Calling it again is a no-op.
func (l *Logger) Close() error {
	return l.closeWith(nil)
}

// closeWith appends trailer before closing, exactly once.
func (l *Logger) closeWith(trailer []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var writeErr error
	if len(trailer) > 0 {
		if _, err := l.file.Write(trailer); err != nil {
			writeErr = fmt.Errorf("failed to finalize %s: %w", l.path, err)
		}
	}
	if err := l.file.Sync(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("failed to sync %s: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("failed to close %s: %w", l.path, err)
	}
	return writeErr
}

// IsClosed reports whether Close has been called.
func (l *Logger) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
