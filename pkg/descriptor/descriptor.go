package descriptor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse errors.
var (
	ErrInvalidFormat     = errors.New("invalid format")
	ErrInvalidNumber     = errors.New("invalid number")
	ErrInvalidValue      = errors.New("invalid value: should be between 0 and 100")
	ErrInvalidHue        = errors.New("invalid hue: should be between 0 and 359")
	ErrInvalidSaturation = errors.New("invalid saturation: should be between 0 and 100")
)

// Usage hints appended to ErrInvalidFormat.
const (
	MainUsage    = "X|off|moonlight:V|normal:V"
	AmbientUsage = "H,S,V|off"
)

// Domain limits.
const (
	MaxBrightness = 100
	MaxHue        = 359
	MaxSaturation = 100

	// normalOffset separates the moonlight (0..100) and normal (101..200)
	// ranges of the bare integer form.
	normalOffset = 100
	maxBare      = 200
)

// Mode is the main light mode, valued as the device's mode code.
type Mode uint8

const (
	// ModeNormal is the regular white light.
	ModeNormal Mode = 1

	// ModeMoonlight is the dim night light.
	ModeMoonlight Mode = 5
)

// String returns the mode name as used in descriptors.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeMoonlight:
		return "moonlight"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Main is a parsed main light descriptor.
type Main struct {
	Mode       Mode
	Brightness uint8
}

// Off reports whether the descriptor turns the main light off.
func (m Main) Off() bool {
	return m.Brightness == 0
}

// HSV is a parsed ambient light descriptor.
type HSV struct {
	Hue        uint16
	Saturation uint8
	Value      uint8
}

// Off reports whether the descriptor turns the ambient light off.
func (c HSV) Off() bool {
	return c.Value == 0
}

// ParseMain parses a main light descriptor.
func ParseMain(s string) (Main, error) {
	if s == "off" {
		return Main{Mode: ModeNormal}, nil
	}

	if v, err := parseUint8(s); err == nil {
		switch {
		case v <= MaxBrightness:
			return Main{Mode: ModeMoonlight, Brightness: v}, nil
		case v <= maxBare:
			return Main{Mode: ModeNormal, Brightness: v - normalOffset}, nil
		default:
			return Main{}, formatError(MainUsage)
		}
	}

	kind, value, ok := strings.Cut(s, ":")
	if !ok || strings.Contains(value, ":") {
		return Main{}, formatError(MainUsage)
	}

	v, err := parseUint8(value)
	if err != nil {
		return Main{}, numberError(err)
	}
	if v > MaxBrightness {
		return Main{}, ErrInvalidValue
	}

	switch kind {
	case "moonlight":
		return Main{Mode: ModeMoonlight, Brightness: v}, nil
	case "normal":
		return Main{Mode: ModeNormal, Brightness: v}, nil
	default:
		return Main{}, ErrInvalidValue
	}
}

// ParseAmbient parses an ambient light descriptor.
func ParseAmbient(s string) (HSV, error) {
	if s == "off" {
		return HSV{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return HSV{}, formatError(AmbientUsage)
	}

	h, err := parseUint(parts[0], 16)
	if err != nil {
		return HSV{}, numberError(err)
	}
	sat, err := parseUint8(parts[1])
	if err != nil {
		return HSV{}, numberError(err)
	}
	v, err := parseUint8(parts[2])
	if err != nil {
		return HSV{}, numberError(err)
	}

	if h > MaxHue {
		return HSV{}, ErrInvalidHue
	}
	if sat > MaxSaturation {
		return HSV{}, ErrInvalidSaturation
	}
	if v > MaxBrightness {
		return HSV{}, ErrInvalidValue
	}

	return HSV{Hue: uint16(h), Saturation: sat, Value: v}, nil
}

func parseUint8(s string) (uint8, error) {
	v, err := parseUint(s, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// parseUint parses a decimal number, allowing a single leading '+'.
func parseUint(s string, bitSize int) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, bitSize)
}

func formatError(usage string) error {
	return fmt.Errorf("%w: expected %s", ErrInvalidFormat, usage)
}

func numberError(err error) error {
	// strconv errors carry the input, the cause is enough here
	if ne, ok := err.(*strconv.NumError); ok {
		err = ne.Err
	}
	return fmt.Errorf("%w: %w", ErrInvalidNumber, err)
}
