// Package testdevice provides a fake light that speaks the line protocol
// over TCP on the loopback interface, for tests.
package testdevice

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/yeectl/yeectl-go/pkg/wire"
)

// Action tells the device how to handle one received request line.
type Action uint8

const (
	// ActionReply applies the request and answers {"id":N,"result":["ok"]}.
	ActionReply Action = iota

	// ActionStall applies nothing and sends nothing.
	ActionStall

	// ActionClose closes the connection without answering.
	ActionClose

	// ActionWrongID answers with an id that does not match the request.
	ActionWrongID

	// ActionInvalidUTF8 answers with bytes that are not valid UTF-8.
	ActionInvalidUTF8
)

// Handler decides the action for a request. copy is 1 for the first time
// a request id is received and 2 for a resend.
type Handler func(req *wire.Request, copy int) Action

// State is the light state as changed by received setters.
type State struct {
	Power      string
	Mode       uint16
	Brightness uint16

	BgPower      string
	BgHue        uint16
	BgSaturation uint16
	BgBrightness uint16
}

// Device is a fake light.
type Device struct {
	ln net.Listener

	mu          sync.Mutex
	handler     Handler
	lines       []string
	requests    []*wire.Request
	seen        map[uint16]int
	connections int
	conns       map[net.Conn]struct{}
	state       State

	wg sync.WaitGroup
}

// Start starts a device on 127.0.0.1 with a random port. It is closed when
// the test ends.
func Start(t testing.TB) *Device {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("testdevice: listen: %v", err)
	}

	d := &Device{
		ln:    ln,
		seen:  make(map[uint16]int),
		conns: make(map[net.Conn]struct{}),
		state: State{Power: "off", BgPower: "off"},
	}
	d.wg.Add(1)
	go d.acceptLoop()

	t.Cleanup(d.Close)
	return d
}

// Addr returns the listen address (host:port).
func (d *Device) Addr() string {
	return d.ln.Addr().String()
}

// Port returns the listen port.
func (d *Device) Port() int {
	return d.ln.Addr().(*net.TCPAddr).Port
}

// DialFunc returns a dial function that connects to d whatever address it
// is asked for. It fits transport.DialConfig.DialFunc.
func DialFunc(d *Device) func(ctx context.Context, network, address string) (net.Conn, error) {
	return func(ctx context.Context, network, _ string) (net.Conn, error) {
		var dialer net.Dialer
		return dialer.DialContext(ctx, network, d.Addr())
	}
}

// SetHandler replaces the request handler. Nil restores the default of
// answering every request.
func (d *Device) SetHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Lines returns all received lines without terminators.
func (d *Device) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Requests returns the decoded requests in arrival order, resends
// included.
func (d *Device) Requests() []*wire.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*wire.Request, len(d.requests))
	copy(out, d.requests)
	return out
}

// Methods returns the method of every received request.
func (d *Device) Methods() []string {
	reqs := d.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Method
	}
	return out
}

// Connections returns the number of accepted connections.
func (d *Device) Connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connections
}

// State returns the current light state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close stops the device, drops open connections and waits for its
// goroutines.
func (d *Device) Close() {
	d.ln.Close()

	d.mu.Lock()
	for c := range d.conns {
		c.Close()
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Device) acceptLoop() {
	defer d.wg.Done()
	for {
		c, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.connections++
		d.conns[c] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)
		go d.serve(c)
	}
}

func (d *Device) serve(c net.Conn) {
	defer d.wg.Done()
	defer d.untrack(c)

	r := bufio.NewReader(c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		reply, keepOpen := d.handle(line)
		if reply != nil {
			if _, err := c.Write(reply); err != nil {
				return
			}
		}
		if !keepOpen {
			return
		}
	}
}

func (d *Device) untrack(c net.Conn) {
	d.mu.Lock()
	delete(d.conns, c)
	d.mu.Unlock()
	c.Close()
}

func (d *Device) handle(line string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines = append(d.lines, line)

	req, err := wire.DecodeRequest([]byte(line))
	if err != nil {
		return []byte(`{"id":0,"error":{"code":-1,"message":"invalid command"}}` + "\r\n"), true
	}
	d.requests = append(d.requests, req)
	d.seen[req.ID]++

	action := ActionReply
	if d.handler != nil {
		action = d.handler(req, d.seen[req.ID])
	}

	switch action {
	case ActionStall:
		return nil, true
	case ActionClose:
		return nil, false
	case ActionWrongID:
		return []byte(fmt.Sprintf(`{"id":%d, "result":["ok"]}`+"\r\n", uint32(req.ID)+1000)), true
	case ActionInvalidUTF8:
		return []byte{0xff, 0xfe, '\r', '\n'}, true
	}

	d.apply(req)
	return []byte(fmt.Sprintf(`{"id":%d, "result":["ok"]}`+"\r\n", req.ID)), true
}

func (d *Device) apply(req *wire.Request) {
	num := func(i int) uint16 {
		if i < len(req.Params) {
			v, _ := req.Params[i].Uint()
			return v
		}
		return 0
	}
	str := func(i int) string {
		if i < len(req.Params) {
			s, _ := req.Params[i].Str()
			return s
		}
		return ""
	}

	switch req.Method {
	case wire.MethodSetPower:
		d.state.Power = str(0)
		if len(req.Params) > 3 {
			d.state.Mode = num(3)
		}
	case wire.MethodSetBright:
		d.state.Brightness = num(0)
	case wire.MethodBgSetPower:
		d.state.BgPower = str(0)
	case wire.MethodBgSetHSV:
		d.state.BgHue = num(0)
		d.state.BgSaturation = num(1)
	case wire.MethodBgSetBright:
		d.state.BgBrightness = num(0)
	}
}
