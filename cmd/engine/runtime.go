// Package main provides runtime wiring for the conversation engine.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/campaigner-ai/engine/internal/config"
	"github.com/campaigner-ai/engine/internal/conversation"
	"github.com/campaigner-ai/engine/internal/credentials"
	"github.com/campaigner-ai/engine/internal/crew"
	"github.com/campaigner-ai/engine/internal/delegate"
	"github.com/campaigner-ai/engine/internal/router"
	"github.com/campaigner-ai/engine/internal/toolserver"
	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/campaigner-ai/engine/internal/worker"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
)

// credentialKeyEnv holds the base64 AES key that unseals stored
// connection secrets.
const credentialKeyEnv = "CREDENTIALS_ENC_KEY"

// tenantStore is the read side of the tenant database the engine needs.
type tenantStore interface {
	credentials.Resolver
	credentials.TenantStore
	credentials.PlatformLister
}

// runtime assembles the engine from configuration.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger

	db       *sql.DB
	store    tenantStore
	tracer   *trace.Tracer
	telem    telemetry.Exporter
	prompts  *router.PromptSource
	registry *worker.Registry
	engine   *conversation.Engine
	threads  *conversation.ThreadStore

	// sweepCancel stops the thread sweeper on shutdown.
	sweepCancel context.CancelFunc

	closers []func()
}

// newRuntime loads config and wires every component. Infrastructure
// that is down degrades to an in-memory or no-op stand-in; only
// missing LLM configuration is fatal.
func newRuntime(configPath string) (*runtime, error) {
	rt := &runtime{logger: logging.New().WithComponent("runtime")}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	rt.cfg = cfg

	rt.setupTelemetry()
	rt.setupTracer()
	rt.setupStore()

	if err := rt.setupEngine(); err != nil {
		rt.shutdown()
		return nil, err
	}
	return rt, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Default config name but no file: run on built-in defaults.
		if path == "engine.toml" {
			return config.New(), nil
		}
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return config.LoadFile(path)
}

func (rt *runtime) setupTelemetry() {
	if !rt.cfg.Telemetry.Enabled {
		rt.telem = telemetry.NewNoopExporter()
		return
	}
	exporter, err := telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
	if err != nil {
		rt.logger.Warn("telemetry exporter unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		rt.telem = telemetry.NewNoopExporter()
		return
	}
	rt.telem = exporter
	rt.closers = append(rt.closers, func() { exporter.Close() })
}

func (rt *runtime) setupTracer() {
	if !rt.cfg.Trace.Enabled {
		rt.tracer = trace.NewNoop()
		return
	}
	sink, err := trace.NewNATSSink(rt.cfg.Trace.NATSURL, rt.cfg.Trace.SubjectPrefix)
	if err != nil {
		rt.logger.Warn("trace sink unavailable, tracing disabled", map[string]interface{}{
			"url":   rt.cfg.Trace.NATSURL,
			"error": err.Error(),
		})
		rt.tracer = trace.NewNoop()
		return
	}
	rt.tracer = trace.New(sink, rt.cfg.Trace.Buffer)
	// Reverse-order shutdown: drain the tracer before the sink goes.
	rt.closers = append(rt.closers, sink.Close, rt.tracer.Close)
}

// setupStore connects the tenant database. Without a DSN or on
// connection failure the engine runs with an empty in-memory store:
// conversations still work, platform data does not.
func (rt *runtime) setupStore() {
	dsn := rt.cfg.DatabaseURL()
	if dsn == "" {
		rt.logger.Warn("no database configured, using in-memory tenant store", nil)
		rt.store = credentials.NewMemoryStore()
		return
	}

	db, err := sql.Open("pgx", dsn)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
	}
	if err != nil {
		rt.logger.Warn("database unreachable, using in-memory tenant store", map[string]interface{}{
			"error": err.Error(),
		})
		rt.store = credentials.NewMemoryStore()
		return
	}

	cipher, cerr := credentials.NewCipherFromEnv(credentialKeyEnv)
	if cerr != nil {
		rt.logger.Warn("credential key missing, stored secrets cannot be decrypted", map[string]interface{}{
			"env":   credentialKeyEnv,
			"error": cerr.Error(),
		})
	}

	rt.db = db
	rt.store = credentials.NewStore(db, cipher)
	rt.closers = append(rt.closers, func() { _ = db.Close() })
}

func (rt *runtime) setupEngine() error {
	routerProvider, err := buildProvider(rt.cfg, "router")
	if err != nil {
		return err
	}
	specialistProvider, err := buildProvider(rt.cfg, "specialist")
	if err != nil {
		return err
	}
	synthesisProvider, err := buildProvider(rt.cfg, "synthesis")
	if err != nil {
		return err
	}

	sessions := rt.sessionFactory()

	rt.registry = worker.NewRegistry()
	dispatcher := worker.NewDispatcher(rt.registry, rt.tracer)
	gateway := delegate.NewGateway(dispatcher,
		rt.cfg.Delegation.AllowedWorkers, rt.cfg.Delegation.MaxDepth, rt.tracer)

	querier := rt.querier()
	rt.registry.Register(worker.KindQuery, func() worker.Worker {
		return worker.NewQueryWorker(specialistProvider, querier, gateway, rt.tracer)
	})
	rt.registry.Register(worker.KindSingleAnalytics, func() worker.Worker {
		return worker.NewSingleAnalytics(specialistProvider, sessions, rt.tracer)
	})
	rt.registry.Register(worker.KindAnalyticsCrew, func() worker.Worker {
		return crew.NewAnalytics(synthesisProvider, rt.store, sessions, rt.tracer)
	})
	rt.registry.Register(worker.KindCampaignPlanning, func() worker.Worker {
		return worker.NewPlaceholder(worker.KindCampaignPlanning.String(),
			"Campaign planning is coming soon.")
	})
	if err := rt.registry.Validate(worker.Kinds()...); err != nil {
		return err
	}

	rt.prompts, err = rt.promptSource()
	if err != nil {
		return err
	}
	rtr := router.New(routerProvider, rt.store, rt.prompts, rt.cfg.Router.MaxAttempts)

	ttl, err := rt.cfg.SessionTTL()
	if err != nil {
		return err
	}
	sweep, err := rt.cfg.SweepInterval()
	if err != nil {
		return err
	}
	rt.threads = conversation.NewThreadStore(ttl)
	sweepCtx, cancel := context.WithCancel(context.Background())
	rt.sweepCancel = cancel
	rt.threads.StartSweeper(sweepCtx, sweep)

	rt.engine = conversation.NewEngine(rtr, dispatcher, rt.threads, rt.cfg.Session.HistoryCap)
	return nil
}

// sessionFactory builds per-invocation tool-server sessions, skipping
// platforms without a configured server or live credentials.
func (rt *runtime) sessionFactory() worker.SessionFactory {
	return func(ctx context.Context, platform string, task worker.Task) (worker.ToolSession, bool) {
		canonical := credentials.CanonicalPlatform(platform)
		name, spec, ok := rt.cfg.ServerForPlatform(canonical)
		if !ok {
			return nil, false
		}
		bundle, err := rt.store.Resolve(ctx, task.CustomerID, task.CampaignerID, canonical)
		if err != nil || bundle == nil {
			return nil, false
		}
		sess := toolserver.NewSession(toolserver.ServerSpec{
			Name:        name,
			Command:     spec.Command,
			Args:        spec.Args,
			Platform:    canonical,
			EnvMapping:  spec.EnvMapping,
			DeniedTools: spec.DeniedTools,
		}, bundle, rt.tracer, task.ThreadID, task.DelegationLevel)
		return sess, true
	}
}

func (rt *runtime) promptSource() (*router.PromptSource, error) {
	if rt.cfg.Router.PromptFile == "" {
		return router.NewPromptSource(), nil
	}
	ps, err := router.NewPromptSourceFromFile(rt.cfg.Router.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("loading router prompt: %w", err)
	}
	rt.closers = append(rt.closers, ps.Close)
	return ps, nil
}

func (rt *runtime) querier() worker.Querier {
	if rt.db == nil {
		return unavailableQuerier{}
	}
	return &worker.SQLQuerier{DB: rt.db}
}

// unavailableQuerier stands in when no database is connected.
type unavailableQuerier struct{}

func (unavailableQuerier) Query(ctx context.Context, sql string) (string, error) {
	return "", fmt.Errorf("account database is not connected")
}

func (rt *runtime) shutdown() {
	if rt.sweepCancel != nil {
		rt.sweepCancel()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
