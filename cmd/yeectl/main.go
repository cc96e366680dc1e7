// Command yeectl sets the main and ambient light of a Yeelight-compatible
// lamp over the LAN control protocol.
//
// Usage:
//
//	yeectl [flags] <host>
//
// Flags may appear before or after the host.
//
// Flags:
//
//	-main string          Main light: X|off|moonlight:V|normal:V
//	                      (X in 0..200, V in 0..100)
//	-ambient string       Ambient light: H,S,V|off
//	-config string        Configuration file path
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a CBOR protocol capture to this file
//	-dry-run              Print the requests instead of sending them
//	-interactive          Start a shell after applying the flags
//
// Examples:
//
//	# Moonlight at 30%, ambient off
//	yeectl -main 30 -ambient off 192.168.1.42
//
//	# Normal mode at full brightness, ambient blue at half brightness
//	yeectl bedroom -main normal:100 -ambient 240,100,50 -config ~/.yeectl.yaml
//
//	# Capture the exchange for yeectl-log
//	yeectl -main off -protocol-log /tmp/lamp.ylog -log-level debug 192.168.1.42
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/yeectl/yeectl-go/cmd/yeectl/interactive"
	"github.com/yeectl/yeectl-go/pkg/config"
	"github.com/yeectl/yeectl-go/pkg/control"
	"github.com/yeectl/yeectl-go/pkg/log"
	"github.com/yeectl/yeectl-go/pkg/session"
	"github.com/yeectl/yeectl-go/pkg/transport"
	"github.com/yeectl/yeectl-go/pkg/wire"
)

// Options holds the parsed command line.
type Options struct {
	Host        string
	Main        *string
	Ambient     *string
	ConfigFile  string
	LogLevel    string
	ProtocolLog string
	DryRun      bool
	Interactive bool
}

// env carries the process surroundings so tests can replace them.
type env struct {
	stdout io.Writer
	stderr io.Writer

	// dial overrides the transport dialer when set.
	dial transport.DialFunc
}

// logOutput lets the shell take over log output while it owns the
// terminal.
type logOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

// Set redirects output to w and returns the previous writer.
func (o *logOutput) Set(w io.Writer) io.Writer {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.w
	o.w = w
	return prev
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], env{stdout: os.Stdout, stderr: os.Stderr})
	stop()
	os.Exit(code)
}

// run executes yeectl and returns the process exit code.
func run(ctx context.Context, args []string, e env) int {
	opts, err := parseArgs(args, e.stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}

	if err := execute(ctx, opts, e); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseArgs parses flags and the host. Go's flag package stops at the
// first positional argument, so parsing resumes after each one.
func parseArgs(args []string, output io.Writer) (*Options, error) {
	opts := &Options{}
	var mainDesc, ambientDesc string

	fs := flag.NewFlagSet("yeectl", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&mainDesc, "main", "", "Main light: X|off|moonlight:V|normal:V (X in 0..200, V in 0..100)")
	fs.StringVar(&ambientDesc, "ambient", "", "Ambient light: H,S,V|off")
	fs.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write a CBOR protocol capture to this file")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print the requests instead of sending them")
	fs.BoolVar(&opts.Interactive, "interactive", false, "Start a shell after applying the flags")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: yeectl [flags] <host>")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Flags:")
		fs.PrintDefaults()
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	switch len(positional) {
	case 0:
		return nil, errors.New("missing host (usage: yeectl [flags] <host>)")
	case 1:
		opts.Host = positional[0]
	default:
		return nil, fmt.Errorf("unexpected argument %q (usage: yeectl [flags] <host>)", positional[1])
	}

	// Only flags that were given count, an empty descriptor is still parsed.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "main":
			opts.Main = &mainDesc
		case "ambient":
			opts.Ambient = &ambientDesc
		}
	})

	return opts, nil
}

func execute(ctx context.Context, opts *Options, e env) error {
	out := &logOutput{w: e.stderr}
	logger, err := newLogger(opts.LogLevel, out)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if opts.ConfigFile != "" {
		if cfg, err = config.Load(opts.ConfigFile); err != nil {
			return err
		}
	}

	req := control.Request{Main: opts.Main, Ambient: opts.Ambient}

	if opts.DryRun {
		return printPlan(req, e.stdout)
	}

	protocolLog := cfg.ProtocolLog
	if opts.ProtocolLog != "" {
		protocolLog = opts.ProtocolLog
	}
	plog, closeLog, err := newProtocolLogger(protocolLog, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	host := cfg.ResolveHost(opts.Host)
	dial := cfg.DialConfig(logger, plog)
	if e.dial != nil {
		dial.DialFunc = e.dial
	}

	sess, err := session.Connect(ctx, host, dial, cfg.SessionConfig(logger, plog))
	if err != nil {
		return err
	}
	defer sess.Close()

	ctrl := control.NewController(sess, cfg.ControlOptions(logger)...)
	if _, err := ctrl.Apply(req); err != nil {
		return err
	}

	if opts.Interactive {
		shell, err := interactive.New(ctrl)
		if err != nil {
			return err
		}
		prev := out.Set(shell.Stderr())
		shell.Run(ctx)
		out.Set(prev)
	}
	return nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: expected debug, info, warn or error", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// newProtocolLogger opens the capture file, if any, and mirrors events to
// the operational log at debug level.
func newProtocolLogger(path string, logger *slog.Logger) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(logger)
	if path == "" {
		return adapter, func() {}, nil
	}

	fl, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	logger.Debug("protocol capture enabled", "path", path)

	closeLog := func() {
		if err := fl.Close(); err != nil {
			logger.Warn("closing protocol log", "path", fl.Path(), "error", err)
		}
		logger.Debug("protocol capture closed", "path", fl.Path(), "events", fl.Written(), "dropped", fl.Dropped())
	}
	return log.NewMultiLogger(fl, adapter), closeLog, nil
}

// printPlan writes the requests that would be sent, one JSON line each,
// numbered the way a fresh session numbers them.
func printPlan(req control.Request, w io.Writer) error {
	cmds, err := control.Plan(req)
	if err != nil {
		return err
	}
	for i, c := range cmds {
		line, err := wire.EncodeRequest(c.Request(uint16(i + 1)))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", line)
	}
	return nil
}
