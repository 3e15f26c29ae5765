// Package trace provides the append-only execution trace for
// conversation turns: task boundaries, worker reasoning steps, tool
// invocations, and terminal errors, keyed by thread and delegation
// level. Records are handed to a sink fire-and-forget; a sink failure
// never propagates into the primary flow.
package trace

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
)

// Record kinds.
const (
	KindTaskStart = "task_start"
	KindTaskEnd   = "task_end"
	KindStep      = "step"
	KindToolCall  = "tool_call"
	KindError     = "error"
)

// Record is a single trace entry. Records are never mutated after
// creation.
type Record struct {
	ID         string                 `json:"id"`
	Seq        uint64                 `json:"seq"`
	ThreadID   string                 `json:"thread_id"`
	Level      int                    `json:"level"`
	Kind       string                 `json:"kind"`
	Timestamp  time.Time              `json:"timestamp"`
	Worker     string                 `json:"worker,omitempty"`
	Content    string                 `json:"content,omitempty"`
	Tool       string                 `json:"tool,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"` // Sanitized before it reaches the tracer
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Success    bool                   `json:"success,omitempty"`
	ErrorType  string                 `json:"error_type,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Sink receives trace records. Implementations must tolerate concurrent
// calls from the tracer's writer goroutine only (single writer).
type Sink interface {
	Record(threadID string, level int, rec Record) error
}

// Tracer buffers records and forwards them to a sink off the critical
// path. A full buffer drops the record with a warning.
type Tracer struct {
	sink   Sink
	ch     chan Record
	done   chan struct{}
	logger *logging.Logger
	seq    uint64

	closeOnce sync.Once
}

// New creates a tracer writing to sink. A nil sink yields a tracer that
// discards everything, which keeps call sites unconditional.
func New(sink Sink, buffer int) *Tracer {
	if buffer <= 0 {
		buffer = 256
	}
	t := &Tracer{
		sink:   sink,
		ch:     make(chan Record, buffer),
		done:   make(chan struct{}),
		logger: logging.New().WithComponent("trace"),
	}
	go t.run()
	return t
}

// NewNoop creates a tracer that discards all records.
func NewNoop() *Tracer {
	return New(nil, 1)
}

func (t *Tracer) run() {
	defer close(t.done)
	for rec := range t.ch {
		if t.sink == nil {
			continue
		}
		if err := t.sink.Record(rec.ThreadID, rec.Level, rec); err != nil {
			t.logger.Warn("trace sink write failed", map[string]interface{}{
				"thread_id": rec.ThreadID,
				"kind":      rec.Kind,
				"error":     err.Error(),
			})
		}
	}
}

// Record enqueues a trace record without blocking. The tracer fills in
// ID, sequence, and timestamp.
func (t *Tracer) Record(threadID string, level int, rec Record) {
	rec.ID = uuid.New().String()
	rec.Seq = atomic.AddUint64(&t.seq, 1)
	rec.ThreadID = threadID
	rec.Level = level
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	select {
	case t.ch <- rec:
	default:
		t.logger.Warn("trace buffer full, dropping record", map[string]interface{}{
			"thread_id": threadID,
			"kind":      rec.Kind,
		})
	}
}

// TaskStart records the start of a worker task.
func (t *Tracer) TaskStart(threadID string, level int, workerName, query string) {
	t.Record(threadID, level, Record{
		Kind:    KindTaskStart,
		Worker:  workerName,
		Content: query,
	})
}

// TaskEnd records task completion with timing.
func (t *Tracer) TaskEnd(threadID string, level int, workerName string, duration time.Duration, success bool) {
	t.Record(threadID, level, Record{
		Kind:       KindTaskEnd,
		Worker:     workerName,
		DurationMs: duration.Milliseconds(),
		Success:    success,
	})
}

// Step records intermediate worker reasoning content.
func (t *Tracer) Step(threadID string, level int, workerName, content string) {
	t.Record(threadID, level, Record{
		Kind:    KindStep,
		Worker:  workerName,
		Content: content,
	})
}

// ToolCall records a tool invocation. Args must already be sanitized by
// the caller.
func (t *Tracer) ToolCall(threadID string, level int, tool string, args map[string]interface{}, duration time.Duration, success bool, errType, errMsg string) {
	t.Record(threadID, level, Record{
		Kind:       KindToolCall,
		Tool:       tool,
		Args:       args,
		DurationMs: duration.Milliseconds(),
		Success:    success,
		ErrorType:  errType,
		Error:      errMsg,
	})
}

// Error records a terminal error for a task.
func (t *Tracer) Error(threadID string, level int, workerName, errType, errMsg string) {
	t.Record(threadID, level, Record{
		Kind:      KindError,
		Worker:    workerName,
		ErrorType: errType,
		Error:     errMsg,
	})
}

// Flush waits until the buffer has drained or the timeout elapses.
// Best-effort: records sitting in a slow sink call may still be in
// flight when it returns.
func (t *Tracer) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for len(t.ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

// Close drains buffered records and stops the writer goroutine.
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		close(t.ch)
		<-t.done
	})
}
