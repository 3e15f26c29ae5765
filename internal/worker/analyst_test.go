package worker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/vinayprograms/agentkit/llm"
)

// scriptedProvider returns canned responses in order and records the
// requests it saw.
type scriptedProvider struct {
	responses []*llm.ChatResponse
	err       error
	requests  []llm.ChatRequest
}

func (p *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &llm.ChatResponse{Content: "done"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req llm.ChatRequest, fn func(string)) (*llm.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *scriptedProvider) Name() string { return "scripted" }

// fakeSession implements ToolSession in memory.
type fakeSession struct {
	tools    []llm.ToolDef
	results  map[string]string
	errs     map[string]error
	opened   bool
	closed   bool
	calls    []string
	openErr  error
	lastArgs map[string]interface{}
}

func (s *fakeSession) Open(ctx context.Context) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *fakeSession) Tools() []llm.ToolDef { return s.tools }

func (s *fakeSession) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	s.calls = append(s.calls, name)
	s.lastArgs = args
	if err, ok := s.errs[name]; ok {
		return "", err
	}
	return s.results[name], nil
}

func (s *fakeSession) Close() { s.closed = true }

func toolCallResponse(id, name string, args map[string]interface{}) *llm.ChatResponse {
	return &llm.ChatResponse{
		ToolCalls: []llm.ToolCallResponse{{ID: id, Name: name, Args: args}},
	}
}

func TestRunToolLoopExecutesToolsThenAnswers(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		toolCallResponse("c1", "get_campaign_stats", map[string]interface{}{"date_range": "last_30_days"}),
		{Content: "Spend was 12,400 over the last 30 days."},
	}}
	sess := &fakeSession{
		tools:   []llm.ToolDef{{Name: "get_campaign_stats"}},
		results: map[string]string{"get_campaign_stats": `{"spend": 12400}`},
	}
	tracer := trace.NewNoop()

	out, err := RunToolLoop(context.Background(), provider, sess, tracer,
		Task{Query: "how much did we spend?", ThreadID: "t1"}, "single_analytics_agent", "you are an analyst")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "12,400") {
		t.Errorf("unexpected answer: %q", out)
	}
	if len(sess.calls) != 1 || sess.calls[0] != "get_campaign_stats" {
		t.Errorf("tool calls = %v", sess.calls)
	}

	// The tool result must have been fed back to the model.
	last := provider.requests[len(provider.requests)-1]
	found := false
	for _, m := range last.Messages {
		if m.Role == "tool" && m.ToolCallID == "c1" && strings.Contains(m.Content, "12400") {
			found = true
		}
	}
	if !found {
		t.Error("tool result was not appended to the conversation")
	}
}

func TestRunToolLoopFeedsToolErrorsBack(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		toolCallResponse("c1", "get_campaign_stats", nil),
		{Content: "I could not pull the stats."},
	}}
	sess := &fakeSession{
		tools: []llm.ToolDef{{Name: "get_campaign_stats"}},
		errs:  map[string]error{"get_campaign_stats": fmt.Errorf("rate limited")},
	}

	out, err := RunToolLoop(context.Background(), provider, sess, trace.NewNoop(),
		Task{Query: "stats?"}, "single_analytics_agent", "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if out == "" {
		t.Fatal("expected an answer despite the tool failure")
	}

	last := provider.requests[len(provider.requests)-1]
	var toolMsg string
	for _, m := range last.Messages {
		if m.Role == "tool" {
			toolMsg = m.Content
		}
	}
	if !strings.Contains(toolMsg, "Error: rate limited") {
		t.Errorf("tool error not surfaced to the model: %q", toolMsg)
	}
}

func TestRunToolLoopStopsAtIterationCap(t *testing.T) {
	// Every response asks for another tool call; the loop must stop
	// anyway and return the last intermediate content.
	provider := &scriptedProvider{}
	for i := 0; i < maxToolIterations+5; i++ {
		resp := toolCallResponse(fmt.Sprintf("c%d", i), "get_campaign_stats", nil)
		resp.Content = fmt.Sprintf("thinking step %d", i)
		provider.responses = append(provider.responses, resp)
	}
	sess := &fakeSession{
		tools:   []llm.ToolDef{{Name: "get_campaign_stats"}},
		results: map[string]string{"get_campaign_stats": "{}"},
	}

	out, err := RunToolLoop(context.Background(), provider, sess, trace.NewNoop(),
		Task{Query: "loop"}, "single_analytics_agent", "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if len(provider.requests) != maxToolIterations {
		t.Errorf("provider called %d times, want %d", len(provider.requests), maxToolIterations)
	}
	if !strings.Contains(out, "thinking step") {
		t.Errorf("expected last intermediate content, got %q", out)
	}
}

func TestSingleAnalyticsSkipsUnavailablePlatforms(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		{Content: "Google results look healthy."},
	}}
	googleSess := &fakeSession{tools: []llm.ToolDef{{Name: "run_report"}}}
	factory := func(ctx context.Context, platform string, task Task) (ToolSession, bool) {
		if platform == "google" {
			return googleSess, true
		}
		return nil, false
	}

	w := NewSingleAnalytics(provider, factory, trace.NewNoop())
	res, err := w.Execute(context.Background(), Task{
		Query:     "how are we doing?",
		Platforms: []string{"facebook", "google"},
		ThreadID:  "t1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %q: %+v", res.Status, res)
	}
	if len(res.Platforms) != 1 || res.Platforms[0] != "google" {
		t.Errorf("platforms = %v, want [google]", res.Platforms)
	}
	if !googleSess.closed {
		t.Error("session was not closed")
	}
}

func TestSingleAnalyticsNoPlatformsAvailable(t *testing.T) {
	factory := func(ctx context.Context, platform string, task Task) (ToolSession, bool) {
		return nil, false
	}
	w := NewSingleAnalytics(&scriptedProvider{}, factory, trace.NewNoop())
	res, err := w.Execute(context.Background(), Task{Platforms: []string{"facebook"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusError || res.Err == "" {
		t.Fatalf("expected in-band error result, got %+v", res)
	}
}

func TestPlaceholderWorker(t *testing.T) {
	w := NewPlaceholder("campaign_planning_crew", "")
	res, err := w.Execute(context.Background(), Task{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusPlaceholder {
		t.Fatalf("status = %q", res.Status)
	}
	if !strings.Contains(res.Result, "coming soon") {
		t.Errorf("result = %q", res.Result)
	}
}
