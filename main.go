package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	devicegateway "pet-tracker/cmd/device_gateway"
	trackerservice "pet-tracker/cmd/tracker_service"
	"pet-tracker/internal/cli"
)

func main() {
	// quick path for global help
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	// parse mode and collect the remaining args for that mode
	mode, svcArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// run the service specified by the mode flag
	switch mode {

	case cli.ModeTracker:
		fs := flag.NewFlagSet(cli.ModeTracker, flag.ContinueOnError)
		configPath := fs.String("config", "", "Path to config.yaml (default $PETTRACK_CONFIG or ./config/config.yaml)")
		prefetch := fs.Int("prefetch", 8, "RabbitMQ prefetch count for the device fix consumer")
		maxConc := fs.Int("max-concurrent", 200, "Maximum number of concurrent HTTP requests and streams")
		cli.AttachUsage(fs, cli.ModeTracker)

		parseOrExit(fs, svcArgs)
		if *prefetch <= 0 {
			fmt.Fprintln(os.Stderr, "Error: --prefetch must be > 0")
			fs.Usage()
			os.Exit(2)
		}
		if *maxConc < 1 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 1")
			fs.Usage()
			os.Exit(2)
		}
		if err := trackerservice.Run(ctx, *configPath, *prefetch, *maxConc); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeGateway:
		fs := flag.NewFlagSet(cli.ModeGateway, flag.ContinueOnError)
		configPath := fs.String("config", "", "Path to config.yaml (default $PETTRACK_CONFIG or ./config/config.yaml)")
		maxConc := fs.Int("max-concurrent", 500, "Maximum number of concurrent HTTP requests to process")
		cli.AttachUsage(fs, cli.ModeGateway)

		parseOrExit(fs, svcArgs)
		if *maxConc < 1 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 1")
			fs.Usage()
			os.Exit(2)
		}
		if err := devicegateway.Run(ctx, *configPath, *maxConc); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	default:
		// should not happen because ParseMode validates known modes
		fmt.Fprintln(os.Stderr, "Error: unknown mode")
		os.Exit(2)
	}
}

func parseOrExit(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
