package log

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxLogPayloadSize is the maximum message payload stored in a capture
// (4 KB). Responses are bounded only by the line size limit.
const MaxLogPayloadSize = 4096

// ErrTruncatedCapture indicates a capture that ends inside an event, as
// left behind by a client killed while writing.
var ErrTruncatedCapture = errors.New("capture ends inside an event")

// logEncMode is the CBOR encoder mode for log events.
// Configured for nanosecond-precision timestamps and deterministic encoding.
var logEncMode cbor.EncMode

// logDecMode is the CBOR decoder mode for log events.
var logDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	logEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR encoder mode: %v", err))
	}

	// Lenient so older captures keep decoding when fields are added
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	logDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR bytes. Message payloads longer
// than MaxLogPayloadSize are cut and marked truncated.
func EncodeEvent(event Event) ([]byte, error) {
	return logEncMode.Marshal(boundPayload(event))
}

// DecodeEvent decodes CBOR bytes into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := logDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, decodeError(err)
	}
	return event, nil
}

// NewDecoder creates a CBOR decoder for log events that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return logDecMode.NewDecoder(r)
}

// decodeNext reads the next event from a capture stream. A clean end of
// the stream is io.EOF.
func decodeNext(dec *cbor.Decoder) (Event, error) {
	var event Event
	if err := dec.Decode(&event); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, decodeError(err)
	}
	return event, nil
}

func decodeError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncatedCapture
	}
	return fmt.Errorf("decode capture event: %w", err)
}

// boundPayload returns event with its message payload cut to
// MaxLogPayloadSize. The caller's MessageEvent is not modified.
func boundPayload(event Event) Event {
	msg := event.Message
	if msg == nil || len(msg.Payload) <= MaxLogPayloadSize {
		return event
	}

	bounded := *msg
	bounded.Payload = msg.Payload[:MaxLogPayloadSize]
	bounded.Truncated = true
	event.Message = &bounded
	return event
}
