// Package worker defines the task executors the conversation engine
// dispatches to, the closed set of worker kinds, and the dispatcher
// that converts worker failures into user-safe results.
package worker

import (
	"context"

	"github.com/vinayprograms/agentkit/llm"
)

// Status of a worker result.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusPlaceholder Status = "placeholder"
)

// Context carries the tenant identity and language attached to a
// dispatched task. Values are display names resolved fresh at routing
// time, never cached object references.
type Context struct {
	Agency     string `json:"agency,omitempty"`
	Campaigner string `json:"campaigner,omitempty"`
	Language   string `json:"language"`
}

// DateRange bounds an analytics query. Values are either ISO dates or
// the relative forms the tool servers accept ("last_30_days", "today").
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Task is the immutable unit of work handed to a worker. It is passed
// by value; workers never mutate the caller's copy.
type Task struct {
	Query           string    `json:"query"`
	CustomerID      int64     `json:"customer_id"`
	CampaignerID    int64     `json:"campaigner_id"`
	Context         Context   `json:"context"`
	Platforms       []string  `json:"platforms,omitempty"`
	Metrics         []string  `json:"metrics,omitempty"`
	DateRange       DateRange `json:"date_range"`
	ThreadID        string    `json:"thread_id"`
	DelegationLevel int       `json:"delegation_level"`
}

// Result is what a worker execution produces.
type Result struct {
	Status    Status   `json:"status"`
	Result    string   `json:"result,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
	Err       string   `json:"error,omitempty"`
}

// Worker executes one task. Errors and panics are converted by the
// Dispatcher; a worker returning an error never reaches the user
// verbatim.
type Worker interface {
	Execute(ctx context.Context, task Task) (Result, error)
}

// Delegator hands a sub-question to a sibling worker. Failures come
// back as result strings, never as errors.
type Delegator interface {
	Delegate(ctx context.Context, from Task, workerName, message string) string
}

// ToolSession is the per-invocation tool-server session a worker
// drives. Implemented by toolserver.Session.
type ToolSession interface {
	Open(ctx context.Context) error
	Tools() []llm.ToolDef
	Call(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close()
}

// SessionFactory builds a tool-server session for a platform. A false
// return means the platform has no configured server or no usable
// credentials and should be skipped.
type SessionFactory func(ctx context.Context, platform string, task Task) (ToolSession, bool)

// DefaultMetrics used when the router does not specify any.
var DefaultMetrics = []string{"impressions", "clicks", "conversions", "spend"}

// DefaultDateRange used when the router does not specify one.
var DefaultDateRange = DateRange{Start: "last_30_days", End: "today"}
