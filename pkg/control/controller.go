package control

import (
	"log/slog"
	"time"

	"github.com/yeectl/yeectl-go/pkg/descriptor"
	"github.com/yeectl/yeectl-go/pkg/wire"
)

// DefaultSettleDelay is the pause between connecting and the first command.
const DefaultSettleDelay = 5 * time.Millisecond

// Sender sends one command and returns the device's response.
// *session.Session satisfies it.
type Sender interface {
	Send(method string, params ...wire.Param) (string, error)
}

// Request holds the descriptors to apply. Nil fields are skipped.
type Request struct {
	Main    *string
	Ambient *string
}

// Empty reports whether the request carries no descriptor.
func (r Request) Empty() bool {
	return r.Main == nil && r.Ambient == nil
}

// Exchange is a command together with the device's response.
type Exchange struct {
	Command
	Response string
}

// Controller applies descriptors through a Sender.
type Controller struct {
	sender      Sender
	settleDelay time.Duration
	logger      *slog.Logger
	sleep       func(time.Duration)
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettleDelay overrides DefaultSettleDelay. Zero disables the pause.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settleDelay = d }
}

// WithLogger sets the operational logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller sending through s.
func NewController(s Sender, opts ...Option) *Controller {
	c := &Controller{
		sender:      s,
		settleDelay: DefaultSettleDelay,
		logger:      slog.Default(),
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply waits for the settle delay, then applies the main descriptor
// followed by the ambient descriptor.
//
// A descriptor that fails to parse aborts before any of its commands are
// sent. A failed send aborts the remaining commands. Commands already sent
// are not undone. The exchanges completed before a failure are returned
// along with the error.
func (c *Controller) Apply(req Request) ([]Exchange, error) {
	if c.settleDelay > 0 {
		c.sleep(c.settleDelay)
	}

	var done []Exchange

	if req.Main != nil {
		m, err := descriptor.ParseMain(*req.Main)
		if err != nil {
			return done, err
		}
		c.logger.Debug("applying main", "mode", m.Mode, "brightness", m.Brightness)
		if done, err = c.send(done, MainCommands(m)); err != nil {
			return done, err
		}
	}

	if req.Ambient != nil {
		hsv, err := descriptor.ParseAmbient(*req.Ambient)
		if err != nil {
			return done, err
		}
		c.logger.Debug("applying ambient", "hue", hsv.Hue, "saturation", hsv.Saturation, "value", hsv.Value)
		if done, err = c.send(done, AmbientCommands(hsv)); err != nil {
			return done, err
		}
	}

	return done, nil
}

// Run sends arbitrary commands in order, stopping at the first error.
func (c *Controller) Run(cmds ...Command) ([]Exchange, error) {
	return c.send(nil, cmds)
}

func (c *Controller) send(done []Exchange, cmds []Command) ([]Exchange, error) {
	for _, cmd := range cmds {
		resp, err := c.sender.Send(cmd.Method, cmd.Params...)
		if err != nil {
			return done, err
		}
		done = append(done, Exchange{Command: cmd, Response: resp})
	}
	return done, nil
}

// Plan parses both descriptors and returns the commands Apply would send,
// without sending anything.
func Plan(req Request) ([]Command, error) {
	var cmds []Command

	if req.Main != nil {
		m, err := descriptor.ParseMain(*req.Main)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, MainCommands(m)...)
	}

	if req.Ambient != nil {
		hsv, err := descriptor.ParseAmbient(*req.Ambient)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, AmbientCommands(hsv)...)
	}

	return cmds, nil
}
