package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yeectl/yeectl-go/pkg/connection"
	"github.com/yeectl/yeectl-go/pkg/log"
)

// DefaultIOTimeout is the read and write timeout of an established
// connection.
const DefaultIOTimeout = 200 * time.Millisecond

// Transport errors.
var (
	ErrNoAddress        = errors.New("host resolved to no address")
	ErrConnectionClosed = errors.New("connection closed")
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DialFunc opens a network connection. (*net.Dialer).DialContext
// satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialConfig configures Dial.
type DialConfig struct {
	// Retry bounds the connection attempts.
	Retry connection.RetryConfig

	// IOTimeout applies to every read and write (default: 200ms).
	IOTimeout time.Duration

	// MaxLineSize is the maximum line size (default: 64KB).
	MaxLineSize int

	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver

	// DialFunc defaults to a net.Dialer.
	DialFunc DialFunc

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events (optional).
	ProtocolLogger log.Logger
}

// DefaultDialConfig returns the default dial configuration.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		Retry:     connection.DefaultRetryConfig(),
		IOTimeout: DefaultIOTimeout,
	}
}

func (c *DialConfig) applyDefaults() {
	if c.IOTimeout == 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.MaxLineSize == 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	if c.Resolver == nil {
		c.Resolver = net.DefaultResolver
	}
	if c.DialFunc == nil {
		c.DialFunc = (&net.Dialer{}).DialContext
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.ProtocolLogger = log.OrNoop(c.ProtocolLogger)
}

// Dial connects to host:port.
//
// The host is resolved once and only the first address is used. The
// connection is then attempted according to cfg.Retry; the error of the
// last attempt is returned when all attempts fail.
func Dial(ctx context.Context, host string, port int, cfg DialConfig) (*Conn, error) {
	cfg.applyDefaults()
	logger := cfg.Logger
	connID := uuid.New().String()

	ip, err := resolve(ctx, cfg.Resolver, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	address := net.JoinHostPort(ip, strconv.Itoa(port))

	logger.Debug("connecting", "address", address, "max_attempts", cfg.Retry.MaxAttempts)
	start := time.Now()

	retrier := connection.NewRetrier(cfg.Retry)
	retrier.OnStateChange(func(oldState, newState connection.State, attempt int) {
		cfg.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			RemoteAddr:   address,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				OldState: oldState.String(),
				NewState: newState.String(),
				Attempt:  attempt,
			},
		})
	})
	retrier.OnAttemptFailed(func(attempt int, err error) {
		logger.Debug("connect attempt failed", "address", address, "attempt", attempt, "error", err)
	})

	var nc net.Conn
	err = retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		c, err := cfg.DialFunc(ctx, "tcp", address)
		if err != nil {
			return err
		}
		nc = c
		return nil
	})
	if err != nil {
		cfg.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			RemoteAddr:   address,
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: err.Error(),
				Context: "dial",
			},
		})
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}

	logger.Debug("connected", "address", address, "elapsed", time.Since(start))

	return newConn(nc, connID, cfg.IOTimeout, cfg.MaxLineSize, cfg.ProtocolLogger), nil
}

// resolve returns the first address for host.
func resolve(ctx context.Context, r Resolver, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", ErrNoAddress
	}
	return addrs[0], nil
}

// Conn is an established device connection with line framing and fixed
// per-operation timeouts.
type Conn struct {
	conn      net.Conn
	framer    *LineFramer
	id        string
	ioTimeout time.Duration
	logger    log.Logger

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewConn wraps an already established connection.
func NewConn(nc net.Conn, ioTimeout time.Duration, protocolLogger log.Logger) *Conn {
	if ioTimeout == 0 {
		ioTimeout = DefaultIOTimeout
	}
	return newConn(nc, uuid.New().String(), ioTimeout, DefaultMaxLineSize, log.OrNoop(protocolLogger))
}

func newConn(nc net.Conn, id string, ioTimeout time.Duration, maxLineSize int, logger log.Logger) *Conn {
	framer := NewLineFramerWithMaxSize(nc, maxLineSize)
	framer.SetLogger(logger, id)

	return &Conn{
		conn:      nc,
		framer:    framer,
		id:        id,
		ioTimeout: ioTimeout,
		logger:    logger,
		closeCh:   make(chan struct{}),
	}
}

// ID returns the connection id used in protocol capture.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the device address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// IOTimeout returns the per-operation timeout.
func (c *Conn) IOTimeout() time.Duration {
	return c.ioTimeout
}

// ProtocolLogger returns the capture logger attached to the connection.
func (c *Conn) ProtocolLogger() log.Logger {
	return c.logger
}

// WriteLine writes payload terminated by CRLF within the IO timeout.
func (c *Conn) WriteLine(payload []byte) error {
	if c.closed() {
		return ErrConnectionClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.framer.WriteLine(payload)
}

// ReadLine reads one LF terminated line within the IO timeout. Partial
// data is returned together with the error.
func (c *Conn) ReadLine() ([]byte, error) {
	if c.closed() {
		return nil, ErrConnectionClosed
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	return c.framer.ReadLine()
}

// Close closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			RemoteAddr:   addrString(c.conn.RemoteAddr()),
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				OldState: connection.StateConnected.String(),
				NewState: connection.StateDisconnected.String(),
				Reason:   "closed by client",
			},
		})
	})
	return err
}

func (c *Conn) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err is a read or write timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
