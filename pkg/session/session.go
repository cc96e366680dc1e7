package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/yeectl/yeectl-go/pkg/log"
	"github.com/yeectl/yeectl-go/pkg/transport"
	"github.com/yeectl/yeectl-go/pkg/wire"
)

// Session errors.
var (
	ErrInvalidUTF8  = errors.New("response is not valid UTF-8")
	ErrIDsExhausted = errors.New("request ids exhausted")
	ErrIDMismatch   = errors.New("response id does not match request")
	ErrClosed       = errors.New("session closed")

	// ErrTooManyNotifications is returned in strict mode when the device
	// keeps sending notifications instead of a response.
	ErrTooManyNotifications = errors.New("too many notifications while waiting for response")
)

// MaxSkippedNotifications bounds the notifications skipped in strict mode
// while waiting for a single response.
const MaxSkippedNotifications = 16

// LineConn is a framed connection to the device. *transport.Conn
// satisfies it.
type LineConn interface {
	WriteLine(payload []byte) error
	ReadLine() ([]byte, error)
	Close() error
}

// Config configures a Session.
type Config struct {
	// StrictIDs rejects responses whose id differs from the request id.
	// Notification lines read while waiting are captured and skipped.
	StrictIDs bool

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events (optional).
	ProtocolLogger log.Logger

	// ConnectionID labels capture events (optional).
	ConnectionID string

	// IsTimeout classifies read errors (default: transport.IsTimeout).
	IsTimeout func(error) bool
}

// attemptState is the per-request resend state.
type attemptState uint8

const (
	stateFirstAttempt attemptState = iota
	stateResent
)

// Session sends commands over a single connection.
// A Session is not safe for concurrent use.
type Session struct {
	conn   LineConn
	nextID uint16
	// exhausted is set once id 65535 has been issued.
	exhausted bool
	closed    bool

	strictIDs bool
	logger    *slog.Logger
	plog      log.Logger
	connID    string
	isTimeout func(error) bool
}

// New creates a session over an established connection.
func New(conn LineConn, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IsTimeout == nil {
		cfg.IsTimeout = transport.IsTimeout
	}

	return &Session{
		conn:      conn,
		nextID:    1,
		strictIDs: cfg.StrictIDs,
		logger:    cfg.Logger,
		plog:      log.OrNoop(cfg.ProtocolLogger),
		connID:    cfg.ConnectionID,
		isTimeout: cfg.IsTimeout,
	}
}

// Connect dials the device on the protocol port and starts a session.
// Capture events of the connection and the session share an id.
func Connect(ctx context.Context, host string, dial transport.DialConfig, cfg Config) (*Session, error) {
	if dial.Logger == nil {
		dial.Logger = cfg.Logger
	}
	if dial.ProtocolLogger == nil {
		dial.ProtocolLogger = cfg.ProtocolLogger
	}

	conn, err := transport.Dial(ctx, host, wire.DefaultPort, dial)
	if err != nil {
		return nil, err
	}

	if cfg.ConnectionID == "" {
		cfg.ConnectionID = conn.ID()
	}
	return New(conn, cfg), nil
}

// NextID returns the id the next request will carry.
func (s *Session) NextID() uint16 {
	return s.nextID
}

// Send sends a command and returns the device's response line with
// trailing whitespace removed.
func (s *Session) Send(method string, params ...wire.Param) (string, error) {
	if s.closed {
		return "", ErrClosed
	}

	id, err := s.allocateID()
	if err != nil {
		return "", err
	}

	req := &wire.Request{ID: id, Method: method, Params: params}
	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", method, err)
	}

	s.logger.Debug("sending", "payload", string(payload))
	start := time.Now()

	raw, resent, err := s.roundTrip(req, payload)
	if err != nil {
		s.captureError(err, fmt.Sprintf("%s id=%d", method, id))
		return "", err
	}

	if !utf8.Valid(raw) {
		s.captureError(ErrInvalidUTF8, fmt.Sprintf("%s id=%d", method, id))
		return "", fmt.Errorf("%s: %w", method, ErrInvalidUTF8)
	}
	response := strings.TrimRightFunc(string(raw), unicode.IsSpace)

	elapsed := time.Since(start)
	s.logger.Debug("received", "elapsed", elapsed, "response", response)
	s.captureMessage(log.DirectionIn, log.MessageTypeResponse, req, response, resent, &elapsed)

	if err := s.checkID(req, response); err != nil {
		return "", err
	}

	return response, nil
}

// roundTrip writes the request and reads one response line, resending the
// identical bytes once if the first read times out. In strict mode
// notification lines are skipped and do not count as the response.
func (s *Session) roundTrip(req *wire.Request, payload []byte) ([]byte, bool, error) {
	state := stateFirstAttempt

	if err := s.conn.WriteLine(payload); err != nil {
		return nil, false, fmt.Errorf("send %s: %w", req.Method, err)
	}
	s.captureMessage(log.DirectionOut, log.MessageTypeRequest, req, string(payload), false, nil)

	var line []byte
	skipped := 0
	for {
		chunk, err := s.conn.ReadLine()
		line = append(line, chunk...)
		if err == nil {
			if !s.strictIDs || !isNotification(line) {
				return line, state == stateResent, nil
			}
			skipped++
			s.logger.Debug("skipping notification", "line", strings.TrimSpace(string(line)))
			s.captureMessage(log.DirectionIn, log.MessageTypeNotification, req, strings.TrimRightFunc(string(line), unicode.IsSpace), false, nil)
			if skipped > MaxSkippedNotifications {
				return nil, state == stateResent, fmt.Errorf("%s: %w", req.Method, ErrTooManyNotifications)
			}
			line = nil
			continue
		}

		if state == stateFirstAttempt && s.isTimeout(err) {
			state = stateResent
			s.logger.Debug("re-sending", "payload", string(payload))
			if err := s.conn.WriteLine(payload); err != nil {
				return nil, true, fmt.Errorf("resend %s: %w", req.Method, err)
			}
			s.captureMessage(log.DirectionOut, log.MessageTypeRequest, req, string(payload), true, nil)
			continue
		}

		return nil, state == stateResent, fmt.Errorf("read %s response: %w", req.Method, err)
	}
}

func isNotification(line []byte) bool {
	resp, err := wire.DecodeResponse(line)
	return err == nil && resp.IsNotification()
}

func (s *Session) allocateID() (uint16, error) {
	if s.exhausted {
		return 0, ErrIDsExhausted
	}
	id := s.nextID
	if id == math.MaxUint16 {
		s.exhausted = true
	} else {
		s.nextID++
	}
	return id, nil
}

// checkID compares the response id with the request id. Lines that do not
// decode or carry no id are accepted.
func (s *Session) checkID(req *wire.Request, response string) error {
	resp, err := wire.DecodeResponse([]byte(response))
	if err != nil || resp.ID == nil || *resp.ID == req.ID {
		return nil
	}

	s.logger.Debug("response id mismatch", "request_id", req.ID, "response_id", *resp.ID)
	mismatch := fmt.Errorf("%w: sent %d, got %d", ErrIDMismatch, req.ID, *resp.ID)
	s.captureError(mismatch, req.Method)

	if s.strictIDs {
		return mismatch
	}
	return nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *Session) captureMessage(dir log.Direction, typ log.MessageType, req *wire.Request, payload string, resend bool, rtt *time.Duration) {
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Direction:    dir,
		Layer:        log.LayerSession,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:      typ,
			RequestID: req.ID,
			Method:    req.Method,
			Payload:   payload,
			Resend:    resend,
			RoundTrip: rtt,
		},
	})
}

func (s *Session) captureError(err error, context string) {
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: err.Error(),
			Context: context,
		},
	})
}
