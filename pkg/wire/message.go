package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultPort is the device's control port.
const DefaultPort = 55443

// Methods used by the client.
const (
	MethodSetPower    = "set_power"
	MethodSetBright   = "set_bright"
	MethodBgSetPower  = "bg_set_power"
	MethodBgSetHSV    = "bg_set_hsv"
	MethodBgSetBright = "bg_set_bright"
)

// Transition parameters shared by all setters.
const (
	EffectSmooth     = "smooth"
	TransitionMillis = 500
)

// Power states.
const (
	PowerOn  = "on"
	PowerOff = "off"
)

// Line terminators.
const (
	RequestTerminator  = "\r\n"
	ResponseTerminator = '\n'
)

// Request represents a command sent to the device.
//
// JSON encoding:
//
//	{"id":<uint16>,"method":<string>,"params":[...]}
type Request struct {
	ID     uint16  `json:"id"`
	Method string  `json:"method"`
	Params []Param `json:"params"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.ID == 0 {
		return errors.New("request id 0 is reserved")
	}
	if r.Method == "" {
		return errors.New("method is required")
	}
	return nil
}

// Response is the device's reply. All fields are optional because the
// client never relies on the payload.
type Response struct {
	ID     *uint16        `json:"id,omitempty"`
	Result []any          `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`

	// Notifications carry a method instead of an id.
	Method string         `json:"method,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// IsNotification returns true for unsolicited property notifications.
func (r *Response) IsNotification() bool {
	return r.ID == nil && r.Method != ""
}

// ResponseError is the error object returned by the device.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
}

// EncodeRequest encodes a request as a single line of JSON, without the
// line terminator.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Params == nil {
		// params must be an array, never null
		r := *req
		r.Params = []Param{}
		req = &r
	}
	return marshalNoEscape(req)
}

// DecodeRequest decodes a single request line.
func DecodeRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// DecodeResponse decodes a response line.
func DecodeResponse(line []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}
