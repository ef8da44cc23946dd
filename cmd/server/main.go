package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/goinit/server"
	serverconfig "github.com/nomis52/goinit/server/config"
	"github.com/nomis52/goinit/stages/demo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := parseArgs()
	if configPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	srvCfg, err := serverconfig.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	// The demo registry stands in for real stage executors; embedders build
	// their own registry and call server.New directly.
	srv, err := server.New(srvCfg, demo.Registry(nil))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func parseArgs() string {
	configPath := flag.String("config", "", "Path to server config file")
	configPathShort := flag.String("c", "", "Path to server config file (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nGoinit Server - Initialization Orchestrator REST API\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/goinit/server.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c server.yaml\n", os.Args[0])
	}

	flag.Parse()

	if *configPath != "" {
		return *configPath
	}
	return *configPathShort
}
