package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sms-gateway/internal/config"
	"sms-gateway/internal/service"
)

var version = "dev" // Default version, can be overridden during build

func main() {
	// Create config first to register all flags
	cfg := config.New()

	showVersion := flag.Bool("version", false, "Print version and exit")

	if err := cfg.Parse(); err != nil {
		fmt.Fprintf(os.Stderr, "sms-gateway: %v\n", err)
		os.Exit(1)
	}

	// Version goes out before validation so it works on a bare invocation.
	if *showVersion {
		fmt.Printf("sms-gateway %s\n", version)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "sms-gateway: %v\n", err)
		os.Exit(1)
	}

	// Create logger - skip timestamps if running under systemd/journald
	var logger *log.Logger
	if os.Getenv("JOURNAL_STREAM") != "" {
		logger = log.New(os.Stdout, "", 0)
	} else {
		logger = log.New(os.Stdout, "sms-gateway: ", log.LstdFlags|log.Lmsgprefix)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create service
	svc, err := service.New(cfg, logger, version)
	if err != nil {
		logger.Fatalf("Failed to create service: %v", err)
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	// Run service
	if err := svc.Run(ctx); err != nil {
		logger.Fatalf("Service failed: %v", err)
	}
}
