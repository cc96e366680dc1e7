// Package interactive provides the interactive command-line interface
// for yeectl.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/yeectl/yeectl-go/pkg/control"
	"github.com/yeectl/yeectl-go/pkg/wire"
)

// Prompt is the shell prompt.
const Prompt = "yeectl> "

// Shell runs commands against one device session.
type Shell struct {
	ctrl *control.Controller
	out  io.Writer
	rl   *readline.Instance
}

// New creates a shell reading from the terminal.
func New(ctrl *control.Controller) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{ctrl: ctrl, out: rl.Stdout(), rl: rl}, nil
}

// newShell creates a shell without a terminal, for Execute only.
func newShell(ctrl *control.Controller, out io.Writer) *Shell {
	return &Shell{ctrl: ctrl, out: out}
}

// Stderr returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stderr() io.Writer {
	if s.rl == nil {
		return s.out
	}
	return s.rl.Stderr()
}

// Run reads and executes commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}

		if !s.Execute(line) {
			return
		}
	}
}

// Execute runs one input line and reports whether the shell should keep
// running.
func (s *Shell) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "main", "m":
		s.cmdMain(args)

	case "ambient", "a":
		s.cmdAmbient(args)

	case "send", "s":
		s.cmdSend(args)

	case "plan", "p":
		s.cmdPlan(args)

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
yeectl Commands:
  Lights:
    main <X|off|moonlight:V|normal:V>   - Set the main light
    ambient <H,S,V|off>                 - Set the ambient light
    plan <main|ambient> <descriptor>    - Show the requests without sending

  Raw:
    send <method> [params...]           - Send any method; integers are sent
                                          as numbers, anything else as strings

  General:
    help                                - Show this help
    quit                                - Exit`)
}

func (s *Shell) cmdMain(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: main <X|off|moonlight:V|normal:V>")
		return
	}
	s.apply(control.Request{Main: &args[0]})
}

func (s *Shell) cmdAmbient(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: ambient <H,S,V|off>")
		return
	}
	s.apply(control.Request{Ambient: &args[0]})
}

func (s *Shell) cmdSend(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: send <method> [params...]")
		return
	}

	cmd := control.Command{Method: args[0], Params: make([]wire.Param, 0, len(args)-1)}
	for _, tok := range args[1:] {
		cmd.Params = append(cmd.Params, wire.ParseParam(tok))
	}

	done, err := s.ctrl.Run(cmd)
	s.printExchanges(done)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) cmdPlan(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: plan <main|ambient> <descriptor>")
		return
	}

	var req control.Request
	switch strings.ToLower(args[0]) {
	case "main":
		req.Main = &args[1]
	case "ambient":
		req.Ambient = &args[1]
	default:
		fmt.Fprintf(s.out, "Unknown light: %s (expected main or ambient)\n", args[0])
		return
	}

	cmds, err := control.Plan(req)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	for _, c := range cmds {
		fmt.Fprintf(s.out, "  %s\n", c)
	}
}

func (s *Shell) apply(req control.Request) {
	done, err := s.ctrl.Apply(req)
	s.printExchanges(done)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) printExchanges(done []control.Exchange) {
	for _, ex := range done {
		fmt.Fprintf(s.out, "-> %s\n<- %s\n", ex.Command, ex.Response)
	}
}
