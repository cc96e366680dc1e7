package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yeectl/yeectl-go/pkg/log"
)

// Framing constants.
const (
	// DefaultMaxLineSize is the default maximum line size (64 KB).
	DefaultMaxLineSize = 65536

	// MaxLogFrameDataSize is the maximum line data included in log events
	// (4 KB).
	MaxLogFrameDataSize = 4096
)

// Line terminators.
var (
	crlf = []byte("\r\n")
)

// Framing errors.
var (
	// ErrLineTooLarge indicates the line exceeds the maximum size.
	ErrLineTooLarge = errors.New("line too large")

	// ErrLineEmpty indicates an empty line was written.
	ErrLineEmpty = errors.New("line is empty")

	// ErrEmbeddedNewline indicates a payload that would break framing.
	ErrEmbeddedNewline = errors.New("line contains a line break")
)

// LineWriter writes CRLF terminated lines.
type LineWriter struct {
	out         io.Writer
	w           *bufio.Writer
	maxLineSize int
	mu          sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewLineWriter creates a new line writer.
func NewLineWriter(w io.Writer) *LineWriter {
	return NewLineWriterWithMaxSize(w, DefaultMaxLineSize)
}

// NewLineWriterWithMaxSize creates a line writer with a custom max size.
func NewLineWriterWithMaxSize(w io.Writer, maxSize int) *LineWriter {
	return &LineWriter{
		out:         w,
		w:           bufio.NewWriter(w),
		maxLineSize: maxSize,
	}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (lw *LineWriter) SetLogger(logger log.Logger, connID string) {
	lw.logger = logger
	lw.connID = connID
}

// WriteLine writes payload followed by CRLF and flushes.
// Thread-safe: can be called from multiple goroutines.
func (lw *LineWriter) WriteLine(payload []byte) error {
	if len(payload) == 0 {
		return ErrLineEmpty
	}
	if bytes.ContainsAny(payload, "\r\n") {
		return ErrEmbeddedNewline
	}
	if len(payload)+len(crlf) > lw.maxLineSize {
		return fmt.Errorf("%w: %d > %d", ErrLineTooLarge, len(payload)+len(crlf), lw.maxLineSize)
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	if _, err := lw.w.Write(crlf); err != nil {
		return fmt.Errorf("failed to write line terminator: %w", err)
	}
	if err := lw.w.Flush(); err != nil {
		// Drop what was not sent so a retry starts from a clean buffer
		lw.w.Reset(lw.out)
		return fmt.Errorf("failed to flush line: %w", err)
	}

	if lw.logger != nil {
		line := append(append([]byte{}, payload...), crlf...)
		lw.logger.Log(makeFrameEvent(lw.connID, line, log.DirectionOut, false))
	}

	return nil
}

// LineReader reads LF terminated lines.
type LineReader struct {
	r           *bufio.Reader
	maxLineSize int

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewLineReader creates a new line reader.
func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderWithMaxSize(r, DefaultMaxLineSize)
}

// NewLineReaderWithMaxSize creates a line reader with a custom max size.
func NewLineReaderWithMaxSize(r io.Reader, maxSize int) *LineReader {
	return &LineReader{
		r:           bufio.NewReader(r),
		maxLineSize: maxSize,
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (lr *LineReader) SetLogger(logger log.Logger, connID string) {
	lr.logger = logger
	lr.connID = connID
}

// ReadLine reads up to and including the next LF.
//
// On error the bytes read so far are returned along with the error, so a
// caller that retries after a timeout can append the rest of the line.
func (lr *LineReader) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		line = append(line, chunk...)

		if len(line) > lr.maxLineSize {
			return line, fmt.Errorf("%w: more than %d bytes", ErrLineTooLarge, lr.maxLineSize)
		}

		switch {
		case err == nil:
			if lr.logger != nil {
				lr.logger.Log(makeFrameEvent(lr.connID, line, log.DirectionIn, false))
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			if len(line) > 0 && lr.logger != nil {
				lr.logger.Log(makeFrameEvent(lr.connID, line, log.DirectionIn, true))
			}
			return line, err
		}
	}
}

// LineFramer combines line reading and writing.
type LineFramer struct {
	*LineReader
	*LineWriter
}

// NewLineFramer creates a new framer for bidirectional communication.
func NewLineFramer(rw io.ReadWriter) *LineFramer {
	return &LineFramer{
		LineReader: NewLineReader(rw),
		LineWriter: NewLineWriter(rw),
	}
}

// NewLineFramerWithMaxSize creates a framer with a custom max line size.
func NewLineFramerWithMaxSize(rw io.ReadWriter, maxSize int) *LineFramer {
	return &LineFramer{
		LineReader: NewLineReaderWithMaxSize(rw, maxSize),
		LineWriter: NewLineWriterWithMaxSize(rw, maxSize),
	}
}

// SetLogger configures logging for both reader and writer.
func (f *LineFramer) SetLogger(logger log.Logger, connID string) {
	f.LineReader.SetLogger(logger, connID)
	f.LineWriter.SetLogger(logger, connID)
}

// makeFrameEvent creates a log event for a line.
func makeFrameEvent(connID string, data []byte, direction log.Direction, partial bool) log.Event {
	frameData := data
	truncated := false

	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      append([]byte(nil), frameData...),
			Truncated: truncated,
			Partial:   partial,
		},
	}
}
