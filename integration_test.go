package yeectl_test

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yeectl/yeectl-go/internal/testdevice"
	"github.com/yeectl/yeectl-go/pkg/config"
	"github.com/yeectl/yeectl-go/pkg/control"
	"github.com/yeectl/yeectl-go/pkg/log"
	"github.com/yeectl/yeectl-go/pkg/session"
	"github.com/yeectl/yeectl-go/pkg/wire"
)

func readCapture(t *testing.T, path string) []log.Event {
	t.Helper()

	r, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("Failed to open capture: %v", err)
	}
	defer r.Close()

	var events []log.Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Failed to read capture: %v", err)
		}
		events = append(events, ev)
	}
}

// TestE2E_ApplyWithCapture drives the whole client stack against the fake
// device and checks the capture file it leaves behind.
func TestE2E_ApplyWithCapture(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dev := testdevice.Start(t)

	cfg, err := config.Parse([]byte("connect:\n  attempts: 3\nio_timeout: 1s\nsettle_delay: 1ms\n"))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	capturePath := filepath.Join(t.TempDir(), "e2e.ylog")
	fl, err := log.NewFileLogger(capturePath)
	if err != nil {
		t.Fatalf("Failed to create capture: %v", err)
	}

	dial := cfg.DialConfig(nil, fl)
	dial.DialFunc = testdevice.DialFunc(dev)

	sess, err := session.Connect(ctx, "127.0.0.1", dial, cfg.SessionConfig(nil, fl))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	main, ambient := "normal:80", "30,60,90"
	ctrl := control.NewController(sess, cfg.ControlOptions(nil)...)
	done, err := ctrl.Apply(control.Request{Main: &main, Ambient: &ambient})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(done) != 5 {
		t.Fatalf("Expected 5 exchanges, got %d", len(done))
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Errorf("Failed to close capture: %v", err)
	}

	state := dev.State()
	if state.Power != "on" || state.Mode != 1 || state.Brightness != 80 {
		t.Errorf("Unexpected main light state: %+v", state)
	}
	if state.BgPower != "on" || state.BgHue != 30 || state.BgSaturation != 60 || state.BgBrightness != 90 {
		t.Errorf("Unexpected ambient light state: %+v", state)
	}

	events := readCapture(t, capturePath)
	if len(events) == 0 {
		t.Fatal("Capture is empty")
	}

	connID := events[0].ConnectionID
	var requests, responses, frames int
	var states []string
	for _, ev := range events {
		if ev.ConnectionID != connID {
			t.Errorf("Event with foreign connection id %q", ev.ConnectionID)
		}
		switch {
		case ev.Message != nil && ev.Message.Type == log.MessageTypeRequest:
			requests++
		case ev.Message != nil && ev.Message.Type == log.MessageTypeResponse:
			responses++
		case ev.Frame != nil:
			frames++
		case ev.StateChange != nil:
			states = append(states, ev.StateChange.NewState)
		}
	}

	if requests != 5 || responses != 5 {
		t.Errorf("Expected 5 requests and 5 responses, got %d and %d", requests, responses)
	}
	if frames != 10 {
		t.Errorf("Expected 10 frames, got %d", frames)
	}
	if len(states) < 2 || states[0] != "CONNECTING" || states[1] != "CONNECTED" {
		t.Errorf("Unexpected state sequence: %v", states)
	}
	if states[len(states)-1] != "DISCONNECTED" {
		t.Errorf("Expected capture to end disconnected, got %v", states)
	}
}

// TestE2E_Reconnection checks that refused attempts are retried until the
// device accepts.
func TestE2E_Reconnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dev := testdevice.Start(t)
	plog := &log.MemoryLogger{}

	cfg := config.Default()
	cfg.Connect.Attempts = 5

	var mu sync.Mutex
	attempts := 0
	dial := cfg.DialConfig(nil, plog)
	dial.DialFunc = func(ctx context.Context, network, address string) (net.Conn, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return nil, errors.New("connection refused")
		}
		return testdevice.DialFunc(dev)(ctx, network, address)
	}

	sess, err := session.Connect(ctx, "127.0.0.1", dial, cfg.SessionConfig(nil, plog))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer sess.Close()

	if _, err := sess.Send(wire.MethodSetPower, wire.String(wire.PowerOff), wire.String(wire.EffectSmooth), wire.Uint16(wire.TransitionMillis)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var connected *log.StateChangeEvent
	for _, ev := range plog.Events() {
		if ev.StateChange != nil && ev.StateChange.NewState == "CONNECTED" {
			connected = ev.StateChange
		}
	}
	if connected == nil {
		t.Fatal("No CONNECTED state event")
	}
	if connected.Attempt != 3 {
		t.Errorf("Expected connection on attempt 3, got %d", connected.Attempt)
	}
}

// TestE2E_ResendRecovers checks that a single lost response is recovered
// by resending the identical request.
func TestE2E_ResendRecovers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dev := testdevice.Start(t)
	dev.SetHandler(func(req *wire.Request, copy int) testdevice.Action {
		if req.Method == wire.MethodSetBright && copy == 1 {
			return testdevice.ActionStall
		}
		return testdevice.ActionReply
	})

	cfg := config.Default()
	cfg.IOTimeout = 100 * time.Millisecond
	dial := cfg.DialConfig(nil, nil)
	dial.DialFunc = testdevice.DialFunc(dev)

	sess, err := session.Connect(ctx, "127.0.0.1", dial, cfg.SessionConfig(nil, nil))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer sess.Close()

	main := "20"
	if _, err := control.NewController(sess).Apply(control.Request{Main: &main}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	lines := dev.Lines()
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines (one resend), got %d: %v", len(lines), lines)
	}
	if lines[1] != lines[2] {
		t.Errorf("Resend differs from original:\n%s\n%s", lines[1], lines[2])
	}
	if dev.State().Brightness != 20 {
		t.Errorf("Expected brightness 20, got %d", dev.State().Brightness)
	}
}
