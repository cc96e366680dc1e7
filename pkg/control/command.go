package control

import (
	"strings"

	"github.com/yeectl/yeectl-go/pkg/descriptor"
	"github.com/yeectl/yeectl-go/pkg/wire"
)

// Command is a single device method call.
type Command struct {
	Method string
	Params []wire.Param
}

// String renders the command as method([params...]).
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Method)
	b.WriteString("([")
	for i, p := range c.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteString("])")
	return b.String()
}

// Request returns the command as a wire request with the given id.
func (c Command) Request(id uint16) *wire.Request {
	return &wire.Request{ID: id, Method: c.Method, Params: c.Params}
}

// transition is the trailing parameter pair every setter carries.
func transition() []wire.Param {
	return []wire.Param{wire.String(wire.EffectSmooth), wire.Uint16(wire.TransitionMillis)}
}

func withTransition(params ...wire.Param) []wire.Param {
	return append(params, transition()...)
}

// MainCommands returns the commands that bring the main light to m.
func MainCommands(m descriptor.Main) []Command {
	if m.Off() {
		return []Command{
			{Method: wire.MethodSetPower, Params: withTransition(wire.String(wire.PowerOff))},
		}
	}

	return []Command{
		{
			Method: wire.MethodSetPower,
			Params: append(withTransition(wire.String(wire.PowerOn)), wire.Uint8(uint8(m.Mode))),
		},
		{Method: wire.MethodSetBright, Params: withTransition(wire.Uint8(m.Brightness))},
	}
}

// AmbientCommands returns the commands that bring the ambient light to c.
func AmbientCommands(c descriptor.HSV) []Command {
	if c.Off() {
		return []Command{
			{Method: wire.MethodBgSetPower, Params: withTransition(wire.String(wire.PowerOff))},
		}
	}

	return []Command{
		{Method: wire.MethodBgSetPower, Params: withTransition(wire.String(wire.PowerOn))},
		{Method: wire.MethodBgSetHSV, Params: withTransition(wire.Uint16(c.Hue), wire.Uint8(c.Saturation))},
		{Method: wire.MethodBgSetBright, Params: withTransition(wire.Uint8(c.Value))},
	}
}
