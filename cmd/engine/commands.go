package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/campaigner-ai/engine/internal/worker"
)

// Run starts an interactive conversation loop.
func (c *ChatCmd) Run(ctx context.Context) error {
	rt, err := newRuntime(c.Config)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	fmt.Println("engine: interactive chat (ctrl-d or /quit to exit)")
	threadID := c.Thread

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if ctx.Err() != nil {
			break
		}

		reply, err := rt.engine.HandleMessage(ctx, threadID, c.Customer, c.Campaigner, line)
		if err != nil {
			return err
		}
		threadID = reply.ThreadID
		fmt.Println(reply.Text)
		rt.tracer.Flush(time.Second)
	}
	return scanner.Err()
}

// Run handles a single message and prints the reply.
func (c *SendCmd) Run(ctx context.Context) error {
	rt, err := newRuntime(c.Config)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	reply, err := rt.engine.HandleMessage(ctx, c.Thread, c.Customer, c.Campaigner, c.Message)
	if err != nil {
		return err
	}
	if c.JSON {
		data, err := json.MarshalIndent(reply, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(reply.Text)
	fmt.Fprintf(os.Stderr, "thread: %s\n", reply.ThreadID)
	return nil
}

// Run prints the worker catalog.
func (c *WorkersCmd) Run() error {
	for _, k := range worker.Kinds() {
		fmt.Println(k.String())
	}
	return nil
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("engine %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}
