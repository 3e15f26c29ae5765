// Package router turns a conversation thread into a routing decision
// by asking an LLM to classify the user's intent against the closed
// worker catalog.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campaigner-ai/engine/internal/conversation"
	"github.com/campaigner-ai/engine/internal/credentials"
	"github.com/campaigner-ai/engine/internal/worker"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// workerCatalog describes each kind to the routing model.
var workerCatalog = map[worker.Kind]string{
	worker.KindQuery:            "answers questions about the account itself: agency details, campaigners, which platforms are connected",
	worker.KindAnalyticsCrew:    "analyzes campaign performance across several advertising platforms and compares them",
	worker.KindSingleAnalytics:  "analyzes campaign performance on one specific platform",
	worker.KindCampaignPlanning: "plans new advertising campaigns (limited availability)",
}

// degradedClarification is sent when the model never produced valid
// JSON. The turn ends as a clarification, not an error.
const degradedClarification = "I had trouble understanding how to handle that request. Could you rephrase it, or tell me which platform and time period you're interested in?"

// Router implements conversation.Router on top of an LLM provider.
type Router struct {
	provider    llm.Provider
	tenants     credentials.TenantStore
	prompts     *PromptSource
	maxAttempts int
	logger      *logging.Logger

	now func() time.Time
}

func New(provider llm.Provider, tenants credentials.TenantStore, prompts *PromptSource, maxAttempts int) *Router {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Router{
		provider:    provider,
		tenants:     tenants,
		prompts:     prompts,
		maxAttempts: maxAttempts,
		logger:      logging.New().WithComponent("router"),
		now:         time.Now,
	}
}

// Route classifies the latest user message. Malformed model output is
// retried with a corrective message up to maxAttempts; exhaustion
// degrades to a clarification rather than failing the turn.
func (r *Router) Route(ctx context.Context, state *conversation.State) (conversation.Decision, error) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "router.route")
	span.SetAttributes(attribute.String("thread.id", state.ThreadID))
	defer span.End()

	tenant := r.tenantContext(ctx, state)
	messages := r.buildMessages(state, tenant)

	var lastRaw string
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.provider.Chat(ctx, llm.ChatRequest{Messages: messages})
		if err != nil {
			return conversation.Decision{}, fmt.Errorf("routing model: %w", err)
		}
		lastRaw = resp.Content

		decision, perr := parseDecision(resp.Content)
		if perr == nil {
			span.SetAttributes(
				attribute.Bool("decision.ready", decision.Ready),
				attribute.Int("decision.attempts", attempt),
			)
			return r.toDecision(state, decision, tenant), nil
		}

		r.logger.Warn("unparseable routing decision", map[string]interface{}{
			"thread_id": state.ThreadID,
			"attempt":   attempt,
			"error":     perr.Error(),
		})
		messages = append(messages,
			llm.Message{Role: "assistant", Content: resp.Content},
			llm.Message{Role: "system", Content: correctiveMessage(perr, resp.Content)},
		)
	}

	r.logger.Error("routing attempts exhausted", map[string]interface{}{
		"thread_id": state.ThreadID,
		"attempts":  r.maxAttempts,
		"last":      truncateForLog(lastRaw, 200),
	})
	span.SetAttributes(attribute.Bool("decision.degraded", true))
	// Surface the model's last words as the clarification when it at
	// least produced text; otherwise fall back to the canned question.
	message := strings.TrimSpace(lastRaw)
	if message == "" {
		message = degradedClarification
	}
	return conversation.Decision{Message: message}, nil
}

// correctiveMessage tells the model exactly what was wrong with its
// previous output before the retry.
func correctiveMessage(parseErr error, raw string) string {
	return fmt.Sprintf(`CRITICAL ERROR: Your previous response could not be parsed as valid JSON.

Parse error: %v

Your response was:
%s

Respond again with EXACTLY ONE valid JSON object matching the required format. No markdown fences, no commentary.`,
		parseErr, truncateForLog(raw, 500))
}

// tenantContext resolves display names for the prompt and the task.
// Failure leaves a partial context; routing never blocks on it.
func (r *Router) tenantContext(ctx context.Context, state *conversation.State) credentials.TenantContext {
	if r.tenants == nil {
		return credentials.TenantContext{}
	}
	tc, err := r.tenants.TenantContext(ctx, state.CustomerID, state.CampaignerID)
	if err != nil {
		r.logger.Warn("tenant context unavailable", map[string]interface{}{
			"thread_id": state.ThreadID,
			"error":     err.Error(),
		})
	}
	return tc
}

func (r *Router) buildMessages(state *conversation.State, tenant credentials.TenantContext) []llm.Message {
	prompt := r.prompts.Prompt()
	prompt = strings.ReplaceAll(prompt, "{{date}}", r.now().Format("2006-01-02"))
	prompt = strings.ReplaceAll(prompt, "{{workers}}", catalogText())
	if tenant.Agency != "" || tenant.Campaigner != "" {
		prompt += fmt.Sprintf("\n\nYou are talking to %s from the agency %s.",
			tenant.Campaigner, tenant.Agency)
	}

	messages := make([]llm.Message, 0, len(state.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: prompt})
	for _, m := range state.Messages {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return messages
}

func catalogText() string {
	var b strings.Builder
	for _, k := range worker.Kinds() {
		fmt.Fprintf(&b, "- %s: %s\n", k, workerCatalog[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// toDecision converts a parsed ready/clarify payload into the engine's
// Decision, attaching tenant context, language, and defaults.
func (r *Router) toDecision(state *conversation.State, d rawDecision, tenant credentials.TenantContext) conversation.Decision {
	if !d.Ready {
		return conversation.Decision{Message: d.Message, Complete: d.Complete}
	}

	// parseDecision already validated the agent name.
	kind, _ := worker.ParseKind(d.Agent)

	task := worker.Task{
		Query:        d.Task.Query,
		CustomerID:   state.CustomerID,
		CampaignerID: state.CampaignerID,
		ThreadID:     state.ThreadID,
		Platforms:    d.Task.Platforms,
		Metrics:      d.Task.Metrics,
	}
	if d.Task.DateRange != nil && d.Task.DateRange.Start != "" {
		task.DateRange = worker.DateRange{Start: d.Task.DateRange.Start, End: d.Task.DateRange.End}
	} else {
		task.DateRange = worker.DefaultDateRange
	}
	if len(task.Metrics) == 0 {
		task.Metrics = worker.DefaultMetrics
	}

	task.Context.Language = conversation.DetectLanguage(state.LastUserMessage())
	// Partial context is fine; workers tolerate empty names.
	task.Context.Agency = tenant.Agency
	task.Context.Campaigner = tenant.Campaigner

	return conversation.Decision{Ready: true, Worker: kind, Task: task}
}

func truncateForLog(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
