// Command stabilizer-log views and analyzes protocol log files.
//
// Log files are written by stabilizer and stabilizer-broker when run with
// the -protocol-log flag.
//
// Usage:
//
//	stabilizer-log <command> [flags] <file>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only stream events
//	stabilizer-log view -layer stream device.log
//
//	# Export to JSONL
//	stabilizer-log export -format jsonl device.log
//
//	# Keep one client's events
//	stabilizer-log filter -client dual-iir-settings-04-91-62-d9-7e-5f -o settings.log device.log
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sinara-hw/stabilizer-go/cmd/stabilizer-log/commands"
	"github.com/sinara-hw/stabilizer-go/pkg/log"
)

const usage = `stabilizer-log - Stabilizer Protocol Log Analyzer

Usage:
  stabilizer-log <command> [flags] <file>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "stabilizer-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// parseArgs parses the subcommand flags and returns the log file path.
func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "stabilizer-log %s - %s\n\nUsage:\n  stabilizer-log %s [flags] <file>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

func runView(args []string) {
	fs := newFlagSet("view", "View log file in human-readable format")
	client := fs.String("client", "", "Filter by client id")
	topic := fs.String("topic", "", "Filter by topic (wildcards allowed)")
	layer := fs.String("layer", "", "Filter by layer (stack, pubsub, stream, network, broker)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	path := parseArgs(fs, args)

	filter := log.Filter{ClientID: *client, Topic: *topic}
	if *layer != "" {
		l, err := commands.ParseLayer(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirection(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategory(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export log file to JSON or CSV format")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseArgs(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter log file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	client := fs.String("client", "", "Filter by client id")
	topic := fs.String("topic", "", "Filter by topic (wildcards allowed)")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (stack, pubsub, stream, network, broker)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	path := parseArgs(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, commands.FilterOptions{
		Output:    *output,
		ClientID:  *client,
		Topic:     *topic,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Layer:     *layer,
		Direction: *direction,
		Category:  *category,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the log file")
	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
