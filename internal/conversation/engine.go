package conversation

import (
	"context"
	"fmt"

	"github.com/campaigner-ai/engine/internal/worker"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// apology is the terminal fallback answer when a turn cannot be
// completed. It carries no internal detail.
const apology = "I'm sorry, something went wrong while handling your request. Please try again."

// Engine runs one conversation turn: route the thread state to a
// decision, dispatch ready tasks, and allow exactly one re-route after
// a failed dispatch before giving up.
type Engine struct {
	router     Router
	dispatcher Dispatcher
	store      *ThreadStore
	historyCap int
	logger     *logging.Logger
}

func NewEngine(router Router, dispatcher Dispatcher, store *ThreadStore, historyCap int) *Engine {
	return &Engine{
		router:     router,
		dispatcher: dispatcher,
		store:      store,
		historyCap: historyCap,
		logger:     logging.New().WithComponent("engine"),
	}
}

// HandleMessage processes one user message on a thread. An empty
// threadID starts a new thread; the assigned ID comes back in the
// Reply.
func (e *Engine) HandleMessage(ctx context.Context, threadID string, customerID, campaignerID int64, text string) (Reply, error) {
	th := e.store.Acquire(threadID, customerID, campaignerID)
	defer e.store.Release(th)
	state := th.state

	ctx, span := telemetry.GetTracer().StartSpan(ctx, "conversation.turn")
	span.SetAttributes(
		attribute.String("thread.id", state.ThreadID),
		attribute.Int("history.len", len(state.Messages)),
	)
	defer span.End()

	state.Append(RoleUser, text)

	reply := e.runTurn(ctx, state)
	state.Append(RoleAssistant, reply.Text)
	state.Trim(e.historyCap)
	reply.ThreadID = state.ThreadID
	return reply, nil
}

func (e *Engine) runTurn(ctx context.Context, state *State) Reply {
	decision, err := e.router.Route(ctx, state)
	if err != nil {
		e.logger.Error("routing failed", map[string]interface{}{
			"thread_id": state.ThreadID,
			"error":     err.Error(),
		})
		return Reply{Text: apology, Complete: true}
	}

	if !decision.Ready {
		return Reply{Text: decision.Message, Complete: decision.Complete}
	}

	result, err := e.dispatcher.Dispatch(ctx, decision.Worker, decision.Task)
	if err != nil {
		// Unknown worker kind is a deployment gap, not something a
		// re-route can fix.
		e.logger.Error("dispatch failed", map[string]interface{}{
			"thread_id": state.ThreadID,
			"worker":    decision.Worker.String(),
			"error":     err.Error(),
		})
		return Reply{Text: apology, Complete: true}
	}

	if result.Status != worker.StatusError {
		return Reply{Text: result.Result, Complete: true}
	}

	// One recovery re-route: surface the failure to the router so it
	// can answer directly or ask the user to clarify. A turn never
	// dispatches twice.
	state.Append(RoleSystem, fmt.Sprintf(
		"The previous attempt with %s failed: %s Re-evaluate the request and either answer directly or ask the user to clarify.",
		decision.Worker, result.Err))

	second, err := e.router.Route(ctx, state)
	if err != nil {
		e.logger.Error("recovery routing failed", map[string]interface{}{
			"thread_id": state.ThreadID,
			"error":     err.Error(),
		})
		return Reply{Text: apology, Complete: true}
	}
	if !second.Ready {
		return Reply{Text: second.Message, Complete: second.Complete}
	}

	// The router asked for another dispatch; the turn is out of
	// attempts, so the worker's user-safe error stands.
	return Reply{Text: result.Err, Complete: true}
}
