package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/vinayprograms/agentkit/llm"
)

// maxToolIterations caps a worker's reasoning loop. Hitting the cap
// returns the last assistant content rather than an error.
const maxToolIterations = 10

// RunToolLoop drives a provider against a tool-server session until the
// model answers without tool calls or the iteration cap is reached.
// Intermediate assistant content is traced as reasoning steps.
func RunToolLoop(ctx context.Context, provider llm.Provider, sess ToolSession, tracer *trace.Tracer, task Task, workerName, systemPrompt string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: task.Query},
	}
	toolDefs := sess.Tools()

	var lastContent string
	for i := 0; i < maxToolIterations; i++ {
		resp, err := provider.Chat(ctx, llm.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return "", fmt.Errorf("LLM error: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		if resp.Content != "" {
			lastContent = resp.Content
			tracer.Step(task.ThreadID, task.DelegationLevel, workerName, resp.Content)
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			output, err := sess.Call(ctx, tc.Name, tc.Args)
			if err != nil {
				output = fmt.Sprintf("Error: %v", err)
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    output,
			})
		}
	}

	if lastContent == "" {
		lastContent = "Analysis did not converge within the step limit."
	}
	return lastContent, nil
}

// analysisPrompt builds the system prompt for a single-platform
// analysis run.
func analysisPrompt(platform string, task Task) string {
	metrics := task.Metrics
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}
	dateRange := task.DateRange
	if dateRange.Start == "" {
		dateRange = DefaultDateRange
	}

	metricsJSON, _ := json.Marshal(metrics)
	return fmt.Sprintf(`You are a digital marketing analyst specialized in %s.
Use the available tools to pull the data you need, then report your findings.

Focus metrics: %s
Date range: %s to %s

Report concrete numbers, notable trends, and anomalies. Respond in %s.`,
		platform, metricsJSON, dateRange.Start, dateRange.End, responseLanguage(task))
}

// responseLanguage returns the language the user should be answered in.
func responseLanguage(task Task) string {
	if task.Context.Language == "" {
		return "hebrew"
	}
	return task.Context.Language
}
