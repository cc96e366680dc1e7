package log

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileLogger appends protocol events to a capture file in CBOR format.
// It is safe for concurrent use.
//
// Write failures never reach the code being captured. They are counted
// and the first one is returned by Close.
type FileLogger struct {
	path string
	file *os.File
	mu   sync.Mutex

	written  int
	dropped  int
	firstErr error
	closed   bool
}

// NewFileLogger opens (or creates with mode 0644) the capture file at path.
// Events are appended to existing content.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{path: path, file: f}, nil
}

// Log writes an event to the capture file. Each event is written with a
// single write so a concurrent reader never sees half of one.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	if err == nil {
		_, err = l.file.Write(data)
	}
	if err != nil {
		l.dropped++
		if l.firstErr == nil {
			l.firstErr = err
		}
		return
	}
	l.written++
}

// Path returns the capture file path.
func (l *FileLogger) Path() string {
	return l.path
}

// Written returns the number of events written so far.
func (l *FileLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Dropped returns the number of events that could not be written.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes and closes the capture file. Later Log calls are ignored.
// The error reports the first dropped event, if any.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.firstErr != nil {
		errs = append(errs, fmt.Errorf("%d capture events dropped: %w", l.dropped, l.firstErr))
	}
	if err := l.file.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ Logger = (*FileLogger)(nil)
