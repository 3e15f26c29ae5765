// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Chat    ChatCmd    `cmd:"" default:"withargs" help:"Start an interactive conversation"`
	Send    SendCmd    `cmd:"" help:"Send a single message and print the reply"`
	Workers WorkersCmd `cmd:"" help:"List available workers"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ChatCmd runs an interactive conversation loop on stdin.
type ChatCmd struct {
	Config     string `short:"c" default:"engine.toml" help:"Config file path"`
	Customer   int64  `required:"" help:"Customer (agency) ID the conversation belongs to"`
	Campaigner int64  `required:"" help:"Campaigner ID of the person asking"`
	Thread     string `help:"Resume an existing thread ID"`
}

// SendCmd handles exactly one message, useful for scripting and smoke
// tests.
type SendCmd struct {
	Config     string `short:"c" default:"engine.toml" help:"Config file path"`
	Customer   int64  `required:"" help:"Customer (agency) ID"`
	Campaigner int64  `required:"" help:"Campaigner ID"`
	Thread     string `help:"Resume an existing thread ID"`
	Message    string `arg:"" help:"The message to send"`
	JSON       bool   `help:"Print the full reply as JSON"`
}

// WorkersCmd lists the worker catalog.
type WorkersCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// parseCLI parses arguments into the CLI structure.
func parseCLI() (*CLI, *kong.Context) {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("engine"),
		kong.Description("Conversational task-routing engine for marketing analytics."),
		kong.UsageOnError(),
	)
	return cli, ctx
}
