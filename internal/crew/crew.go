// Package crew fans a marketing question out to one specialist per
// connected platform and synthesizes their findings into a single
// answer.
package crew

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/campaigner-ai/engine/internal/credentials"
	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/campaigner-ai/engine/internal/worker"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
)

// Analytics is the fan-out analytics worker. All requested platforms
// run concurrently; the synthesis call starts only after every
// specialist has returned.
type Analytics struct {
	provider llm.Provider
	resolver credentials.Resolver
	sessions worker.SessionFactory
	tracer   *trace.Tracer
	logger   *logging.Logger

	// runSpecialist is swappable for tests.
	runSpecialist func(ctx context.Context, platform string, task worker.Task) (string, error)
}

func NewAnalytics(provider llm.Provider, resolver credentials.Resolver, sessions worker.SessionFactory, tracer *trace.Tracer) *Analytics {
	a := &Analytics{
		provider: provider,
		resolver: resolver,
		sessions: sessions,
		tracer:   tracer,
		logger:   logging.New().WithComponent("analytics-crew"),
	}
	a.runSpecialist = a.specialist
	return a
}

type specialistResult struct {
	platform string
	output   string
	err      error
}

func (a *Analytics) Execute(ctx context.Context, task worker.Task) (worker.Result, error) {
	requested := task.Platforms
	if len(requested) == 0 {
		// Unconstrained request: analyze whatever the customer has
		// actually connected.
		if lister, ok := a.resolver.(credentials.PlatformLister); ok {
			if ps, err := lister.Platforms(ctx, task.CustomerID); err == nil {
				requested = ps
			}
		}
	}
	if len(requested) == 0 {
		requested = []string{"facebook", "google"}
	}
	platforms := credentials.ActivePlatforms(ctx, a.resolver, task.CustomerID, task.CampaignerID, requested)
	if len(platforms) == 0 {
		return worker.Result{
			Status: worker.StatusError,
			Err:    "No connected advertising platforms were available for this request.",
		}, nil
	}

	results := make(chan specialistResult, len(platforms))
	var wg sync.WaitGroup
	for _, platform := range platforms {
		wg.Add(1)
		go func(platform string) {
			defer wg.Done()
			out, err := a.runSpecialist(ctx, platform, task)
			results <- specialistResult{platform: platform, output: out, err: err}
		}(platform)
	}
	wg.Wait()
	close(results)

	collected := make([]specialistResult, 0, len(platforms))
	for r := range results {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].platform < collected[j].platform
	})

	succeeded := 0
	findings := make([]string, 0, len(collected))
	for _, r := range collected {
		if r.err != nil {
			a.logger.Warn("specialist failed", map[string]interface{}{
				"platform":  r.platform,
				"thread_id": task.ThreadID,
				"error":     r.err.Error(),
			})
			a.tracer.Error(task.ThreadID, task.DelegationLevel,
				worker.KindAnalyticsCrew.String(), fmt.Sprintf("%T", r.err), r.err.Error())
			findings = append(findings, fmt.Sprintf("## %s\nData collection failed for this platform.", r.platform))
			continue
		}
		succeeded++
		findings = append(findings, fmt.Sprintf("## %s\n%s", r.platform, r.output))
	}
	if succeeded == 0 {
		return worker.Result{
			Status: worker.StatusError,
			Err:    "I could not pull data from any of your connected platforms.",
		}, nil
	}

	answer, err := a.synthesize(ctx, task, findings)
	if err != nil {
		return worker.Result{}, fmt.Errorf("synthesis: %w", err)
	}
	return worker.Result{
		Status:    worker.StatusCompleted,
		Result:    answer,
		Platforms: platforms,
	}, nil
}

// specialist opens a tool-server session for the platform and runs the
// analysis loop against it.
func (a *Analytics) specialist(ctx context.Context, platform string, task worker.Task) (string, error) {
	sess, ok := a.sessions(ctx, platform, task)
	if !ok {
		return "", fmt.Errorf("no tool server for platform %s", platform)
	}
	if err := sess.Open(ctx); err != nil {
		sess.Close()
		return "", fmt.Errorf("connect %s tool server: %w", platform, err)
	}
	defer sess.Close()

	return worker.RunToolLoop(ctx, a.provider, sess, a.tracer, task,
		worker.KindAnalyticsCrew.String(), specialistPrompt(platform, task))
}

func specialistPrompt(platform string, task worker.Task) string {
	metrics := task.Metrics
	if len(metrics) == 0 {
		metrics = worker.DefaultMetrics
	}
	dateRange := task.DateRange
	if dateRange.Start == "" {
		dateRange = worker.DefaultDateRange
	}
	return fmt.Sprintf(`You are a %s analytics specialist on a marketing analysis crew.
Pull the data the question needs using your tools and report your findings as a concise brief.
Another analyst will merge your brief with reports from other platforms, so stick to %s data only.

Metrics of interest: %s
Date range: %s to %s`,
		platform, platform, strings.Join(metrics, ", "), dateRange.Start, dateRange.End)
}

func (a *Analytics) synthesize(ctx context.Context, task worker.Task, findings []string) (string, error) {
	prompt := fmt.Sprintf(`You are the lead analyst. Below are per-platform briefs collected for the question:

%q

Synthesize them into one coherent answer: compare platforms where the data allows it,
call out failures honestly, and end with the key takeaway. Respond in %s.

%s`, task.Query, language(task), strings.Join(findings, "\n\n"))

	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You synthesize marketing analytics briefs into clear answers."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	a.tracer.Step(task.ThreadID, task.DelegationLevel, worker.KindAnalyticsCrew.String(), "synthesis complete")
	return resp.Content, nil
}

func language(task worker.Task) string {
	if task.Context.Language == "" {
		return "hebrew"
	}
	return task.Context.Language
}
