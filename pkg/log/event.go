package log

import (
	"strings"
	"time"
)

// Event represents a protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the device address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Session layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates data received from the device.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection parses a direction name, case-insensitive.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(s) {
	case "IN":
		return DirectionIn, true
	case "OUT":
		return DirectionOut, true
	}
	return 0, false
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the line framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerSession is the request/response layer.
	LayerSession Layer = 1
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer parses a layer name, case-insensitive.
func ParseLayer(s string) (Layer, bool) {
	switch strings.ToUpper(s) {
	case "TRANSPORT":
		return LayerTransport, true
	case "SESSION":
		return LayerSession, true
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response or raw line.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name, case-insensitive.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToUpper(s) {
	case "MESSAGE":
		return CategoryMessage, true
	case "STATE":
		return CategoryState, true
	case "ERROR":
		return CategoryError, true
	}
	return 0, false
}

// FrameEvent captures a raw line at the transport layer.
type FrameEvent struct {
	// Size is the line size in bytes (including the terminator).
	Size int `cbor:"1,keyasint"`

	// Data is the raw line (may be truncated for long lines).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Partial marks bytes that arrived without a terminator before a
	// read timed out.
	Partial bool `cbor:"4,keyasint,omitempty"`
}

// MessageEvent captures a request, response or notification at the
// session layer.
type MessageEvent struct {
	// Type distinguishes requests from responses.
	Type MessageType `cbor:"1,keyasint"`

	// RequestID is the id of the request this event belongs to.
	RequestID uint16 `cbor:"2,keyasint"`

	// Method is the request method.
	Method string `cbor:"3,keyasint,omitempty"`

	// Payload is the JSON text of the request or the response line.
	Payload string `cbor:"4,keyasint,omitempty"`

	// Resend marks a request written a second time after a read timeout.
	Resend bool `cbor:"5,keyasint,omitempty"`

	// RoundTrip is the time from first write to response (response only).
	// Stored as nanoseconds.
	RoundTrip *time.Duration `cbor:"6,keyasint,omitempty"`

	// Truncated marks a Payload cut to MaxLogPayloadSize.
	Truncated bool `cbor:"7,keyasint,omitempty"`
}

// MessageType distinguishes requests from responses.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response.
	MessageTypeResponse MessageType = 1
	// MessageTypeNotification indicates an unsolicited device line read
	// while waiting for a response.
	MessageTypeNotification MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`

	// Attempt is the dial attempt number, starting at 1.
	Attempt int `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
