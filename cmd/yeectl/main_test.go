package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeectl/yeectl-go/internal/testdevice"
	"github.com/yeectl/yeectl-go/pkg/log"
	"github.com/yeectl/yeectl-go/pkg/wire"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runWith(t *testing.T, dev *testdevice.Device, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	e := env{stdout: &stdout, stderr: &stderr}
	if dev != nil {
		e.dial = testdevice.DialFunc(dev)
	}
	code := run(context.Background(), args, e)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yeectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		host    string
		main    *string
		ambient *string
		wantErr string
	}{
		{name: "host only", args: []string{"10.0.0.1"}, host: "10.0.0.1"},
		{name: "flags before host", args: []string{"-main", "50", "10.0.0.1"}, host: "10.0.0.1", main: ptr("50")},
		{name: "flags after host", args: []string{"10.0.0.1", "-ambient", "off"}, host: "10.0.0.1", ambient: ptr("off")},
		{name: "mixed", args: []string{"-main=off", "lamp", "--ambient", "1,2,3"}, host: "lamp", main: ptr("off"), ambient: ptr("1,2,3")},
		{name: "empty descriptor is kept", args: []string{"-main", "", "lamp"}, host: "lamp", main: ptr("")},
		{name: "missing host", args: []string{"-main", "50"}, wantErr: "missing host"},
		{name: "two hosts", args: []string{"a", "b"}, wantErr: `unexpected argument "b"`},
		{name: "unknown flag", args: []string{"-port", "1", "lamp"}, wantErr: "flag provided but not defined"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := parseArgs(tc.args, &bytes.Buffer{})
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.host, opts.Host)
			assert.Equal(t, tc.main, opts.Main)
			assert.Equal(t, tc.ambient, opts.Ambient)
		})
	}
}

func ptr(s string) *string { return &s }

func TestRunMainAndAmbient(t *testing.T) {
	dev := testdevice.Start(t)

	res := runWith(t, dev, "-main", "50", "-ambient", "off", "127.0.0.1")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Empty(t, res.stdout)
	assert.Empty(t, res.stderr)

	assert.Equal(t, []string{
		`{"id":1,"method":"set_power","params":["on","smooth",500,5]}`,
		`{"id":2,"method":"set_bright","params":[50,"smooth",500]}`,
		`{"id":3,"method":"bg_set_power","params":["off","smooth",500]}`,
	}, dev.Lines())
}

func TestRunMainOffAfterHost(t *testing.T) {
	dev := testdevice.Start(t)

	res := runWith(t, dev, "127.0.0.1", "-main", "off")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, []string{
		`{"id":1,"method":"set_power","params":["off","smooth",500]}`,
	}, dev.Lines())
}

func TestRunAmbientOn(t *testing.T) {
	dev := testdevice.Start(t)

	res := runWith(t, dev, "-ambient", "240,100,50", "127.0.0.1")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, []string{wire.MethodBgSetPower, wire.MethodBgSetHSV, wire.MethodBgSetBright}, dev.Methods())

	state := dev.State()
	assert.Equal(t, "on", state.BgPower)
	assert.Equal(t, uint16(240), state.BgHue)
	assert.Equal(t, uint16(100), state.BgSaturation)
	assert.Equal(t, uint16(50), state.BgBrightness)
}

func TestRunNoDescriptorsStillConnects(t *testing.T) {
	dev := testdevice.Start(t)

	res := runWith(t, dev, "127.0.0.1")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 1, dev.Connections())
	assert.Empty(t, dev.Lines())
}

func TestRunInvalidDescriptor(t *testing.T) {
	dev := testdevice.Start(t)

	res := runWith(t, dev, "-main", "300", "127.0.0.1")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Error: invalid format: expected X|off|moonlight:V|normal:V\n", res.stderr)
	assert.Empty(t, dev.Lines())
}

func TestRunInvalidAmbientAfterMain(t *testing.T) {
	dev := testdevice.Start(t)

	res := runWith(t, dev, "-main", "off", "-ambient", "360,0,0", "127.0.0.1")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Error: invalid hue: should be between 0 and 359\n", res.stderr)
	assert.Equal(t, []string{wire.MethodSetPower}, dev.Methods(), "main commands are not rolled back")
}

func TestRunUsageErrors(t *testing.T) {
	res := runWith(t, nil)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error: missing host")

	res = runWith(t, nil, "-bogus", "lamp")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Usage: yeectl [flags] <host>")

	res = runWith(t, nil, "-h")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stderr, "-ambient")

	res = runWith(t, nil, "-log-level", "loud", "lamp")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, `invalid log level "loud"`)
}

func TestRunDryRun(t *testing.T) {
	res := runWith(t, nil, "-dry-run", "-main", "150", "-ambient", "10,20,30", "lamp")
	assert.Equal(t, 0, res.code, res.stderr)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Equal(t, []string{
		`{"id":1,"method":"set_power","params":["on","smooth",500,1]}`,
		`{"id":2,"method":"set_bright","params":[50,"smooth",500]}`,
		`{"id":3,"method":"bg_set_power","params":["on","smooth",500]}`,
		`{"id":4,"method":"bg_set_hsv","params":[10,20,"smooth",500]}`,
		`{"id":5,"method":"bg_set_bright","params":[30,"smooth",500]}`,
	}, lines)
}

func TestRunDryRunInvalid(t *testing.T) {
	res := runWith(t, nil, "-dry-run", "-ambient", "1,2", "lamp")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Error: invalid format: expected H,S,V|off\n", res.stderr)
	assert.Empty(t, res.stdout)
}

func TestRunConfigAlias(t *testing.T) {
	dev := testdevice.Start(t)
	path := writeConfig(t, "devices:\n  desk: 127.0.0.1\nsettle_delay: 0s\n")

	var dialed string
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-main", "off", "desk"}, env{
		stdout: &bytes.Buffer{},
		stderr: &stderr,
		dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = address
			return testdevice.DialFunc(dev)(ctx, network, address)
		},
	})
	assert.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "127.0.0.1:55443", dialed)
	assert.Len(t, dev.Lines(), 1)
}

func TestRunConfigInvalid(t *testing.T) {
	path := writeConfig(t, "connect:\n  attempts: 0\n")

	res := runWith(t, nil, "-config", path, "lamp")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error: "+path)
	assert.Contains(t, res.stderr, "connect.attempts")
}

func TestRunConnectFailure(t *testing.T) {
	path := writeConfig(t, "connect:\n  attempts: 2\n  attempt_timeout: 50ms\n")
	refused := errors.New("connection refused")

	var attempts int
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-main", "off", "127.0.0.1"}, env{
		stdout: &bytes.Buffer{},
		stderr: &stderr,
		dial: func(context.Context, string, string) (net.Conn, error) {
			attempts++
			return nil, refused
		},
	})
	assert.Equal(t, 1, code)
	assert.Equal(t, 2, attempts)
	assert.True(t, strings.HasPrefix(stderr.String(), "Error: connect to 127.0.0.1:55443"), stderr.String())
	assert.Contains(t, stderr.String(), "connection refused")
}

func TestRunDeviceStalls(t *testing.T) {
	dev := testdevice.Start(t)
	dev.SetHandler(func(*wire.Request, int) testdevice.Action { return testdevice.ActionStall })
	path := writeConfig(t, "io_timeout: 50ms\n")

	res := runWith(t, dev, "-config", path, "-main", "off", "127.0.0.1")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error: read set_power response")
	assert.Len(t, dev.Lines(), 2, "one resend only")
}

func TestRunProtocolLog(t *testing.T) {
	dev := testdevice.Start(t)
	capture := filepath.Join(t.TempDir(), "lamp.ylog")

	res := runWith(t, dev, "-protocol-log", capture, "-main", "off", "127.0.0.1")
	require.Equal(t, 0, res.code, res.stderr)

	r, err := log.NewFilteredReader(capture, log.Filter{Method: wire.MethodSetPower})
	require.NoError(t, err)
	defer r.Close()

	var types []log.MessageType
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		types = append(types, ev.Message.Type)
	}
	assert.Equal(t, []log.MessageType{log.MessageTypeRequest, log.MessageTypeResponse}, types)
}

func TestRunDebugLogging(t *testing.T) {
	dev := testdevice.Start(t)

	res := runWith(t, dev, "-log-level", "debug", "-main", "off", "127.0.0.1")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "level=DEBUG")
	assert.Contains(t, res.stderr, "msg=sending")
	assert.Contains(t, res.stderr, "msg=received")
}

func TestLogOutputRedirect(t *testing.T) {
	var stderr, shell bytes.Buffer
	out := &logOutput{w: &stderr}
	logger, err := newLogger("info", out)
	require.NoError(t, err)

	logger.Info("before")
	prev := out.Set(&shell)
	logger.Info("inside")
	out.Set(prev)
	logger.Info("after")

	assert.Contains(t, stderr.String(), "msg=before")
	assert.Contains(t, stderr.String(), "msg=after")
	assert.NotContains(t, stderr.String(), "msg=inside")
	assert.Contains(t, shell.String(), "msg=inside")
}
