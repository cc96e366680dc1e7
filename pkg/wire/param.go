package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ParamKind identifies the variant held by a Param.
type ParamKind uint8

const (
	KindUint8 ParamKind = iota
	KindUint16
	KindString
)

// String returns the kind name.
func (k ParamKind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Param is a single request parameter.
// The zero value is the uint8 0.
type Param struct {
	kind ParamKind
	num  uint16
	str  string
}

// Uint8 returns an 8-bit integer parameter.
func Uint8(v uint8) Param {
	return Param{kind: KindUint8, num: uint16(v)}
}

// Uint16 returns a 16-bit integer parameter.
func Uint16(v uint16) Param {
	return Param{kind: KindUint16, num: v}
}

// String returns a string parameter.
func String(s string) Param {
	return Param{kind: KindString, str: s}
}

// Kind returns the variant held by p.
func (p Param) Kind() ParamKind {
	return p.kind
}

// Uint returns the numeric value and whether p is numeric.
func (p Param) Uint() (uint16, bool) {
	return p.num, p.kind != KindString
}

// Str returns the string value and whether p is a string.
func (p Param) Str() (string, bool) {
	return p.str, p.kind == KindString
}

// String renders the parameter as it appears on the wire.
func (p Param) String() string {
	b, err := p.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%%!(%v)", err)
	}
	return string(b)
}

// MarshalJSON encodes the bare value without a type discriminant.
func (p Param) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case KindUint8, KindUint16:
		return strconv.AppendUint(nil, uint64(p.num), 10), nil
	case KindString:
		return marshalNoEscape(p.str)
	default:
		return nil, fmt.Errorf("unknown param kind %d", p.kind)
	}
}

// UnmarshalJSON decodes a bare number or string. Numbers take the smallest
// kind that holds them.
func (p *Param) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = String(s)
		return nil
	}

	v, err := strconv.ParseUint(string(data), 10, 16)
	if err != nil {
		return fmt.Errorf("param %s is neither a string nor a 16-bit unsigned integer", data)
	}
	if v <= 0xFF {
		*p = Uint8(uint8(v))
	} else {
		*p = Uint16(uint16(v))
	}
	return nil
}

// ParseParam converts a free-form token into a parameter: integers become
// uint8 or uint16 depending on size, everything else a string.
func ParseParam(token string) Param {
	v, err := strconv.ParseUint(token, 10, 16)
	if err != nil {
		return String(token)
	}
	if v <= 0xFF {
		return Uint8(uint8(v))
	}
	return Uint16(uint16(v))
}

// marshalNoEscape encodes v like json.Marshal but leaves <, > and & as is.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
