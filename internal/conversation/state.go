// Package conversation owns the per-thread dialogue state and the
// engine that turns an incoming message into a routed, dispatched and
// answered turn.
package conversation

import (
	"context"
	"time"

	"github.com/campaigner-ai/engine/internal/worker"
)

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a thread's history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the mutable history of one conversation thread. Access is
// serialized by the owning thread's lock; the engine never shares a
// State across goroutines.
type State struct {
	ThreadID     string    `json:"thread_id"`
	CustomerID   int64     `json:"customer_id"`
	CampaignerID int64     `json:"campaigner_id"`
	Messages     []Message `json:"messages"`
}

// Append adds a message with the current timestamp.
func (s *State) Append(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: time.Now()})
}

// Trim drops the oldest messages beyond the cap.
func (s *State) Trim(max int) {
	if max > 0 && len(s.Messages) > max {
		s.Messages = append([]Message(nil), s.Messages[len(s.Messages)-max:]...)
	}
}

// LastUserMessage returns the most recent user message, or "".
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Decision is the router's verdict for a turn: a task ready for
// dispatch, or a message back to the user. A non-ready decision with
// Complete set is a direct answer that ends the conversation; without
// it, the message is a clarifying question awaiting the user.
type Decision struct {
	Ready    bool
	Worker   worker.Kind
	Task     worker.Task
	Message  string
	Complete bool
}

// Router produces a Decision from the thread state.
type Router interface {
	Route(ctx context.Context, state *State) (Decision, error)
}

// Dispatcher executes a routed task.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind worker.Kind, task worker.Task) (worker.Result, error)
}

// Reply is what one engine turn hands back to the caller.
type Reply struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
	// Complete is false when the engine is waiting for the user to
	// clarify before any work runs.
	Complete bool `json:"complete"`
}
