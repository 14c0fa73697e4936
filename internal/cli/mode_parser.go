package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeTracker = "tracker-service"
	ModeGateway = "device-gateway"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeTracker, "tracker", "t":
		return ModeTracker, true
	case ModeGateway, "gateway", "g":
		return ModeGateway, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `tracker-service --prefetch=8`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := range args {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<service>")
	}

	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}
	return m, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./pet-tracker --mode=<service> [flags]

Services (modes):
  tracker-service      Pets, tracking sessions, location history and missing reports
  device-gateway       Accepts position fixes from tracker collars

Examples:
  ./pet-tracker --mode=tracker-service --prefetch=8 --max-concurrent=200
  ./pet-tracker --mode=device-gateway --max-concurrent=500 --config=./config/config.yaml`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./pet-tracker --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
