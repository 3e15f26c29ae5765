package router

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"
)

// defaultSystemPrompt drives routing when no prompt file is
// configured. {{date}} and {{workers}} are filled in per request, in
// file-loaded prompts too.
const defaultSystemPrompt = `You are the routing brain of a marketing analytics assistant for advertising agencies.
Today's date: {{date}}

Decide what to do with the user's latest message given the conversation so far.

Available workers:
{{workers}}

Respond with EXACTLY ONE JSON object and nothing else. Three forms are valid:

When the request is clear enough to act on:
{"ready": true, "agent": "<worker name>", "task": {"query": "<self-contained task description>", "platforms": ["facebook", "google"], "metrics": ["spend", "clicks"], "date_range": {"start": "last_30_days", "end": "today"}}}

When you need more information from the user:
{"ready": false, "complete": false, "message": "<your clarifying question, in the user's language>"}

When you can answer directly without a worker (greetings, thanks, questions about what you can do):
{"ready": false, "complete": true, "message": "<your answer, in the user's language>"}

Rules:
- "agent" must be one of the worker names listed above.
- "task.query" must stand alone: fold in any context from earlier messages.
- Omit "platforms", "metrics" or "date_range" when the user did not constrain them.
- Never invent campaign data and never answer data questions yourself; only greetings and capability questions may be answered directly.`

// PromptSource serves the routing system prompt, optionally hot-reloading
// it from a file so prompt iterations do not need a restart.
type PromptSource struct {
	mu      sync.RWMutex
	text    string
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *logging.Logger
}

// NewPromptSource returns a source serving the built-in prompt.
func NewPromptSource() *PromptSource {
	return &PromptSource{
		text:   defaultSystemPrompt,
		logger: logging.New().WithComponent("router-prompt"),
	}
}

// NewPromptSourceFromFile loads the prompt from path and reloads it on
// change. A missing or unreadable file at startup is an error; reload
// failures afterwards keep the previous prompt.
func NewPromptSourceFromFile(path string) (*PromptSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	ps := &PromptSource{
		text:    string(data),
		watcher: watcher,
		done:    make(chan struct{}),
		logger:  logging.New().WithComponent("router-prompt"),
	}
	go ps.watch(path)
	return ps, nil
}

func (ps *PromptSource) watch(path string) {
	for {
		select {
		case <-ps.done:
			return
		case event, ok := <-ps.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Editors often write in bursts; let them settle.
			time.Sleep(100 * time.Millisecond)
			data, err := os.ReadFile(path)
			if err != nil {
				ps.logger.Warn("prompt reload failed", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
				continue
			}
			ps.mu.Lock()
			ps.text = string(data)
			ps.mu.Unlock()
			ps.logger.Info("routing prompt reloaded", map[string]interface{}{
				"path":  path,
				"bytes": len(data),
			})
		case err, ok := <-ps.watcher.Errors:
			if !ok {
				return
			}
			ps.logger.Warn("prompt watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// Prompt returns the current prompt template.
func (ps *PromptSource) Prompt() string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.text
}

// Close stops the file watcher, if any.
func (ps *PromptSource) Close() {
	if ps.watcher != nil {
		close(ps.done)
		ps.watcher.Close()
	}
}
