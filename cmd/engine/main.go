// Package main is the entry point for the conversation engine CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for API keys and the database DSN.
	_ = godotenv.Load()
}

func main() {
	cli, kctx := parseCLI()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch kctx.Command() {
	case "chat":
		err = cli.Chat.Run(ctx)
	case "send <message>":
		err = cli.Send.Run(ctx)
	case "workers":
		err = cli.Workers.Run()
	case "version":
		err = cli.Version.Run()
	default:
		err = fmt.Errorf("unknown command: %s", kctx.Command())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
