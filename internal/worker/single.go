package worker

import (
	"context"
	"fmt"

	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
)

// SingleAnalytics runs an analysis against the first requested platform
// that has both a configured tool server and live credentials. It is
// the worker delegation targets by default.
type SingleAnalytics struct {
	provider llm.Provider
	sessions SessionFactory
	tracer   *trace.Tracer
	logger   *logging.Logger
}

func NewSingleAnalytics(provider llm.Provider, sessions SessionFactory, tracer *trace.Tracer) *SingleAnalytics {
	return &SingleAnalytics{
		provider: provider,
		sessions: sessions,
		tracer:   tracer,
		logger:   logging.New().WithComponent("single-analytics"),
	}
}

func (w *SingleAnalytics) Execute(ctx context.Context, task Task) (Result, error) {
	platforms := task.Platforms
	if len(platforms) == 0 {
		platforms = []string{"facebook", "google"}
	}

	for _, platform := range platforms {
		sess, ok := w.sessions(ctx, platform, task)
		if !ok {
			w.logger.Debug("skipping platform", map[string]interface{}{
				"platform": platform,
			})
			continue
		}
		if err := sess.Open(ctx); err != nil {
			sess.Close()
			w.logger.Warn("tool server unavailable", map[string]interface{}{
				"platform": platform,
				"error":    err.Error(),
			})
			continue
		}

		out, err := func() (string, error) {
			defer sess.Close()
			return RunToolLoop(ctx, w.provider, sess, w.tracer, task,
				KindSingleAnalytics.String(), analysisPrompt(platform, task))
		}()
		if err != nil {
			return Result{}, fmt.Errorf("analysis on %s: %w", platform, err)
		}
		return Result{Status: StatusCompleted, Result: out, Platforms: []string{platform}}, nil
	}

	return Result{
		Status: StatusError,
		Err:    "No connected advertising platforms were available for this request.",
	}, nil
}
