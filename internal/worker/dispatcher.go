package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// userSafeError is the only failure text a worker error may surface to
// the user. The raw error goes to the trace.
const userSafeError = "I ran into a problem while working on that request."

// Dispatcher resolves a worker and runs it, converting every failure
// mode, including panics, into a Result with StatusError. The returned
// error is non-nil only for configuration problems (unknown kind),
// which callers must treat as unrecoverable rather than retryable.
type Dispatcher struct {
	registry *Registry
	tracer   *trace.Tracer
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *Registry, tracer *trace.Tracer) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tracer:   tracer,
		logger:   logging.New().WithComponent("dispatcher"),
	}
}

// Dispatch executes one task.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, task Task) (Result, error) {
	w, err := d.registry.Resolve(kind)
	if err != nil {
		d.logger.Error("dispatch to unregistered worker", map[string]interface{}{
			"worker":    kind.String(),
			"thread_id": task.ThreadID,
		})
		return Result{}, err
	}

	ctx, span := telemetry.GetTracer().StartSpan(ctx, "worker.dispatch")
	span.SetAttributes(
		attribute.String("worker.kind", kind.String()),
		attribute.String("thread.id", task.ThreadID),
		attribute.Int("delegation.level", task.DelegationLevel),
	)
	defer span.End()

	d.tracer.TaskStart(task.ThreadID, task.DelegationLevel, kind.String(), task.Query)
	start := time.Now()

	result := d.run(ctx, w, kind, task)

	d.tracer.TaskEnd(task.ThreadID, task.DelegationLevel, kind.String(),
		time.Since(start), result.Status != StatusError)
	span.SetAttributes(attribute.String("worker.status", string(result.Status)))
	return result, nil
}

// run executes the worker with panic containment.
func (d *Dispatcher) run(ctx context.Context, w Worker, kind Kind, task Task) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("worker panicked", map[string]interface{}{
				"worker":    kind.String(),
				"thread_id": task.ThreadID,
				"panic":     fmt.Sprintf("%v", r),
			})
			d.tracer.Error(task.ThreadID, task.DelegationLevel, kind.String(),
				"panic", fmt.Sprintf("%v", r))
			result = Result{Status: StatusError, Err: userSafeError}
		}
	}()

	result, err := w.Execute(ctx, task)
	if err != nil {
		d.logger.Warn("worker execution failed", map[string]interface{}{
			"worker":    kind.String(),
			"thread_id": task.ThreadID,
			"error":     err.Error(),
		})
		d.tracer.Error(task.ThreadID, task.DelegationLevel, kind.String(),
			fmt.Sprintf("%T", err), err.Error())
		return Result{Status: StatusError, Err: userSafeError}
	}

	// A worker may also report failure in-band.
	if result.Status == StatusError && result.Err == "" {
		result.Err = userSafeError
	}
	return result
}
