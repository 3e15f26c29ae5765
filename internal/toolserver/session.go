// Package toolserver wraps a tool-server process behind a
// per-invocation session: open, list tools, call tools with trace
// capture, close. Sessions are never shared across turns or workers.
package toolserver

import (
	"context"
	"fmt"
	"time"

	"github.com/campaigner-ai/engine/internal/credentials"
	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/mcp"
)

// ServerSpec describes how to launch one tool server. EnvMapping maps
// credential bundle fields to the environment variable names the server
// reads.
type ServerSpec struct {
	Name        string
	Command     string
	Args        []string
	Platform    string
	EnvMapping  map[string]string
	DeniedTools []string
}

// Session is a single-use connection to one tool server. Open must be
// called once before Tools/Call; Close must be called exactly once
// after a successful Open, on every exit path.
type Session struct {
	spec     ServerSpec
	bundle   *credentials.Bundle
	threadID string
	level    int

	manager *mcp.Manager
	tracer  *trace.Tracer
	logger  *logging.Logger
	opened  bool
}

// NewSession prepares a session. The bundle may be nil; the server then
// starts without injected credentials and its tools fail on their own
// terms.
func NewSession(spec ServerSpec, bundle *credentials.Bundle, tracer *trace.Tracer, threadID string, level int) *Session {
	return &Session{
		spec:     spec,
		bundle:   bundle,
		threadID: threadID,
		level:    level,
		tracer:   tracer,
		logger:   logging.New().WithComponent("toolserver"),
	}
}

// Open launches the server process and connects. Calling Open on an
// already-open session is an error, not a reconnect.
func (s *Session) Open(ctx context.Context) error {
	if s.opened {
		return fmt.Errorf("session for %s already open", s.spec.Name)
	}

	env := BuildEnv(s.spec, s.bundle, s.logger)

	s.manager = mcp.NewManager()
	if err := s.manager.Connect(ctx, s.spec.Name, mcp.ServerConfig{
		Command: s.spec.Command,
		Args:    s.spec.Args,
		Env:     env,
	}); err != nil {
		s.manager = nil
		return fmt.Errorf("connecting to tool server %s: %w", s.spec.Name, err)
	}
	s.opened = true

	s.logger.Debug("tool server session opened", map[string]interface{}{
		"server":   s.spec.Name,
		"platform": s.spec.Platform,
	})
	return nil
}

// Tools returns the server's tool definitions, with denied tools
// filtered out.
func (s *Session) Tools() []llm.ToolDef {
	if !s.opened {
		return nil
	}
	denied := make(map[string]bool, len(s.spec.DeniedTools))
	for _, name := range s.spec.DeniedTools {
		denied[name] = true
	}

	var defs []llm.ToolDef
	for _, t := range s.manager.AllTools() {
		if denied[t.Tool.Name] {
			continue
		}
		defs = append(defs, llm.ToolDef{
			Name:        t.Tool.Name,
			Description: t.Tool.Description,
			Parameters:  t.Tool.InputSchema,
		})
	}
	return defs
}

// Call invokes a remote tool. The invocation is traced with sanitized
// arguments and timing; errors are recorded and then returned to the
// caller unchanged. The session never swallows tool errors.
func (s *Session) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if !s.opened {
		return "", fmt.Errorf("session for %s not open", s.spec.Name)
	}

	start := time.Now()
	result, err := s.manager.CallTool(ctx, s.spec.Name, name, args)
	duration := time.Since(start)

	if err != nil {
		s.tracer.ToolCall(s.threadID, s.level, name, Sanitize(args), duration, false,
			fmt.Sprintf("%T", err), err.Error())
		return "", err
	}

	var output string
	for _, c := range result.Content {
		if c.Type == "text" {
			output += c.Text
		}
	}

	s.tracer.Record(s.threadID, s.level, trace.Record{
		Kind:       trace.KindToolCall,
		Tool:       name,
		Args:       Sanitize(args),
		DurationMs: duration.Milliseconds(),
		Success:    true,
		Content:    Truncate(output, 500),
	})
	return output, nil
}

// Close tears down the server process. Safe to call on a session that
// never opened.
func (s *Session) Close() {
	if !s.opened {
		return
	}
	s.manager.Close()
	s.manager = nil
	s.opened = false
	s.logger.Debug("tool server session closed", map[string]interface{}{
		"server": s.spec.Name,
	})
}

// BuildEnv maps bundle fields to the server's environment variables.
// Unmapped or missing fields log a warning and are skipped; a later
// tool call may still fail, but opening never does.
func BuildEnv(spec ServerSpec, bundle *credentials.Bundle, logger *logging.Logger) map[string]string {
	env := make(map[string]string, len(spec.EnvMapping))
	for field, envName := range spec.EnvMapping {
		value := bundle.Field(field)
		if value == "" {
			if logger != nil {
				logger.Warn("missing credential field for tool server", map[string]interface{}{
					"server": spec.Name,
					"field":  field,
				})
			}
			continue
		}
		env[envName] = value
	}
	return env
}
