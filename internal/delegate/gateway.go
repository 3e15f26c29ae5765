// Package delegate gates worker-to-worker handoffs. Every delegation
// outcome, including failure, comes back as a JSON string the calling
// worker can feed to its model.
package delegate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/campaigner-ai/engine/internal/worker"
	"github.com/vinayprograms/agentkit/logging"
)

// Dispatcher is the slice of the worker dispatcher the gateway needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind worker.Kind, task worker.Task) (worker.Result, error)
}

// Gateway enforces the delegation policy: an allow-list of target
// workers and a depth ceiling. It implements worker.Delegator.
type Gateway struct {
	dispatcher Dispatcher
	allowed    map[string]bool
	maxDepth   int
	tracer     *trace.Tracer
	logger     *logging.Logger
}

func NewGateway(dispatcher Dispatcher, allowedWorkers []string, maxDepth int, tracer *trace.Tracer) *Gateway {
	allowed := make(map[string]bool, len(allowedWorkers))
	for _, name := range allowedWorkers {
		allowed[name] = true
	}
	return &Gateway{
		dispatcher: dispatcher,
		allowed:    allowed,
		maxDepth:   maxDepth,
		tracer:     tracer,
		logger:     logging.New().WithComponent("delegate"),
	}
}

// Delegate forwards a sub-question to the named worker. The allow-list
// is checked before anything else, so a disallowed target never
// reaches the dispatcher.
func (g *Gateway) Delegate(ctx context.Context, from worker.Task, workerName, message string) string {
	if !g.allowed[workerName] {
		g.logger.Warn("delegation to disallowed worker", map[string]interface{}{
			"worker":    workerName,
			"thread_id": from.ThreadID,
		})
		return errorJSON(fmt.Sprintf("delegation to %q is not allowed", workerName))
	}

	kind, err := worker.ParseKind(workerName)
	if err != nil {
		return errorJSON(err.Error())
	}

	if from.DelegationLevel+1 > g.maxDepth {
		g.logger.Warn("delegation depth exceeded", map[string]interface{}{
			"worker":    workerName,
			"thread_id": from.ThreadID,
			"level":     from.DelegationLevel,
		})
		return errorJSON(fmt.Sprintf("delegation depth limit (%d) reached", g.maxDepth))
	}

	sub := worker.Task{
		Query:           message,
		CustomerID:      from.CustomerID,
		CampaignerID:    from.CampaignerID,
		Context:         from.Context,
		Platforms:       from.Platforms,
		Metrics:         from.Metrics,
		DateRange:       from.DateRange,
		ThreadID:        from.ThreadID,
		DelegationLevel: from.DelegationLevel + 1,
	}

	result, err := g.dispatcher.Dispatch(ctx, kind, sub)
	if err != nil {
		// Unknown kind despite passing the allow-list: a config gap.
		g.logger.Error("delegated dispatch failed", map[string]interface{}{
			"worker": workerName,
			"error":  err.Error(),
		})
		return errorJSON(fmt.Sprintf("worker %q is not available", workerName))
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errorJSON("could not encode delegation result")
	}
	return string(data)
}

func errorJSON(msg string) string {
	data, _ := json.Marshal(map[string]string{
		"status": string(worker.StatusError),
		"error":  msg,
	})
	return string(data)
}
