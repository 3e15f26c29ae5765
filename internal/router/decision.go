package router

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/campaigner-ai/engine/internal/worker"
)

// rawDecision is the JSON contract the routing model must follow.
type rawDecision struct {
	Ready    bool     `json:"ready"`
	Agent    string   `json:"agent,omitempty"`
	Task     *rawTask `json:"task,omitempty"`
	Message  string   `json:"message,omitempty"`
	Complete bool     `json:"complete,omitempty"`
}

type rawTask struct {
	Query     string        `json:"query"`
	Platforms []string      `json:"platforms,omitempty"`
	Metrics   []string      `json:"metrics,omitempty"`
	DateRange *rawDateRange `json:"date_range,omitempty"`
}

type rawDateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// extractJSON pulls the decision payload out of a model response,
// tolerating markdown fences and trailing commas. Models fail these
// two ways constantly; anything else is a hard parse error that feeds
// the retry loop.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.TrimSpace(s)

	// Clamp to the outermost object in case the model added prose.
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return trailingComma.ReplaceAllString(s, "$1")
}

// parseDecision validates the tagged union: a ready decision names an
// agent and a task, a non-ready decision carries a message (a direct
// answer when "complete" is set, a clarifying question otherwise).
func parseDecision(raw string) (rawDecision, error) {
	var d rawDecision
	if err := json.Unmarshal([]byte(extractJSON(raw)), &d); err != nil {
		return rawDecision{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if d.Ready {
		if d.Agent == "" {
			return rawDecision{}, fmt.Errorf("ready decision is missing \"agent\"")
		}
		if _, err := worker.ParseKind(d.Agent); err != nil {
			return rawDecision{}, fmt.Errorf("ready decision names %w", err)
		}
		if d.Task == nil || strings.TrimSpace(d.Task.Query) == "" {
			return rawDecision{}, fmt.Errorf("ready decision is missing \"task.query\"")
		}
		return d, nil
	}

	if strings.TrimSpace(d.Message) == "" {
		return rawDecision{}, fmt.Errorf("clarification decision is missing \"message\"")
	}
	return d, nil
}
