// Command yeectl-log is a tool for viewing and analyzing yeectl protocol
// capture files.
//
// Capture files are created by running yeectl with -protocol-log (or the
// protocol_log configuration key).
//
// Usage:
//
//	yeectl-log <command> [flags] <file.ylog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	stats    Show statistics about the capture file
//	export   Export capture file to JSONL or CSV format
//	filter   Filter capture file and write to new file
//
// Examples:
//
//	# View all events
//	yeectl-log view lamp.ylog
//
//	# View only session-layer requests and responses for set_bright
//	yeectl-log view -layer session -method set_bright lamp.ylog
//
//	# Show resend count and round-trip times
//	yeectl-log stats lamp.ylog
//
//	# Export to CSV
//	yeectl-log export -format csv -o lamp.csv lamp.ylog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/yeectl/yeectl-go/cmd/yeectl-log/commands"
	"github.com/yeectl/yeectl-go/pkg/log"
)

const usage = `yeectl-log - yeectl Protocol Capture Analyzer

Usage:
  yeectl-log <command> [flags] <file.ylog>

Commands:
  view     View capture file in human-readable format
  stats    Show statistics about the capture file
  export   Export capture file to JSONL or CSV format
  filter   Filter capture file and write to new file

Use "yeectl-log <command> -help" for more information about a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	cmd := args[0]
	args = args[1:]

	var err error
	switch cmd {
	case "view":
		err = runView(args, stdout, stderr)
	case "stats":
		err = runStats(args, stdout, stderr)
	case "export":
		err = runExport(args, stderr)
	case "filter":
		err = runFilter(args, stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(stderr, usage)
		return 1
	}

	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// newFlagSet creates a flag set for a command with the common filter flags.
func newFlagSet(name, summary string, stderr io.Writer) (*flag.FlagSet, *commands.FilterOptions) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, `yeectl-log %s - %s

Usage:
  yeectl-log %s [flags] <file.ylog>

Flags:
`, name, summary, name)
		fs.PrintDefaults()
	}

	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, session)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&opts.Method, "method", "", "Filter session messages by method")
	return fs, opts
}

// parse parses args and returns the capture path and filter.
func parse(fs *flag.FlagSet, opts *commands.FilterOptions, args []string) (string, log.Filter, error) {
	if err := fs.Parse(args); err != nil {
		return "", log.Filter{}, err
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return "", log.Filter{}, fmt.Errorf("log file path required")
	}

	filter, err := commands.BuildFilter(*opts)
	if err != nil {
		return "", log.Filter{}, err
	}
	return fs.Arg(0), filter, nil
}

func runView(args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("view", "View capture file in human-readable format", stderr)
	path, filter, err := parse(fs, opts, args)
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, stdout)
}

func runStats(args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("stats", "Show statistics about the capture file", stderr)
	path, filter, err := parse(fs, opts, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, filter, stdout)
}

func runExport(args []string, stderr io.Writer) error {
	fs, opts := newFlagSet("export", "Export capture file to JSONL or CSV format", stderr)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path, filter, err := parse(fs, opts, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output, filter)
}

func runFilter(args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("filter", "Filter capture file and write to new file", stderr)
	output := fs.String("o", "", "Output file (required)")

	path, filter, err := parse(fs, opts, args)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}

	count, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Filtered %d events to %s\n", count, *output)
	return nil
}
