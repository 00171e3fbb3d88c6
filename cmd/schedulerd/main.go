// Package main is the scheduler daemon's entry point: it loads
// configuration, wires a concrete store/queue/event-bus combination
// into an engine.Engine, registers the built-in plugins, and runs
// until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/taskscheduler/engine"
	"github.com/kandev/taskscheduler/internal/common/config"
	"github.com/kandev/taskscheduler/internal/common/logger"
	eventbusmem "github.com/kandev/taskscheduler/internal/eventbus/memory"
	eventbusnats "github.com/kandev/taskscheduler/internal/eventbus/nats"
	"github.com/kandev/taskscheduler/internal/plugins/operations/dockerrun"
	"github.com/kandev/taskscheduler/internal/plugins/registry"
	queuechan "github.com/kandev/taskscheduler/internal/queue/channel"
	queuenats "github.com/kandev/taskscheduler/internal/queue/nats"
	storemem "github.com/kandev/taskscheduler/internal/store/memory"
	"github.com/kandev/taskscheduler/internal/store/postgres"
	"github.com/kandev/taskscheduler/internal/store/sqlite"
	"github.com/kandev/taskscheduler/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting taskscheduler daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, lock, closeStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal("failed to initialize store", zap.Error(err))
	}
	defer closeStore()

	queue, closeQueue, err := buildQueue(cfg.Queue)
	if err != nil {
		log.Fatal("failed to initialize queue", zap.Error(err))
	}
	defer closeQueue()

	events, closeEvents, err := buildEvents(cfg.Events)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer closeEvents()

	tracerProvider := tracing.New(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	defer tracerProvider.Shutdown(context.Background())
	tracer := tracerProvider.Tracer("taskscheduler/engine")

	ops := registry.NewOperations()
	conds := registry.NewConditions()
	strategies := registry.NewCleaningStrategies()
	registry.RegisterBuiltins(ops, conds, strategies)

	if cfg.Operations.DockerRun.Enabled {
		dockerOp, err := dockerrun.New(dockerrun.Config{
			Host:       cfg.Operations.DockerRun.Host,
			APIVersion: cfg.Operations.DockerRun.APIVersion,
		}, log)
		if err != nil {
			log.Fatal("failed to initialize docker.run operation", zap.Error(err))
		}
		defer dockerOp.Close()
		ops.Register("docker.run", func() engine.Operation { return dockerOp })
	}

	eng := engine.New(store, lock, queue, events, ops, conds, strategies, log, tracer)

	if err := eng.Start(ctx); err != nil {
		log.Fatal("failed to start engine", zap.Error(err))
	}
	log.Info("taskscheduler daemon started")

	if cfg.Reaper.Enabled {
		eng.StartPeriodicClean(ctx, engine.Specification{Type: cfg.Reaper.Strategy},
			tickerFunc(time.Duration(cfg.Reaper.Interval)*time.Second))
	}

	if cfg.Manifest.Path != "" {
		manifest, err := loadManifest(cfg.Manifest.Path)
		if err != nil {
			log.Fatal("failed to load task manifest", zap.Error(err))
		}
		if err := submitManifest(ctx, eng, manifest, log); err != nil {
			log.Fatal("failed to submit task manifest", zap.Error(err))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down taskscheduler daemon")
	cancel()
	if err := eng.Stop(); err != nil {
		log.Error("engine stop error", zap.Error(err))
	}
	log.Info("taskscheduler daemon stopped")
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (engine.Store[*engine.State], engine.Lock, func(), error) {
	switch cfg.Driver {
	case "postgres":
		st, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: int32(cfg.MaxConns), MinConns: int32(cfg.MinConns)})
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st.AdvisoryLock(1), st.Close, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, storemem.NewLock(), func() { _ = st.Close() }, nil
	default:
		return storemem.New(), storemem.NewLock(), func() {}, nil
	}
}

func buildQueue(cfg config.QueueConfig) (engine.Queue[engine.TaskID], func(), error) {
	switch cfg.Driver {
	case "nats":
		q, err := queuenats.Connect(queuenats.Config{URL: cfg.URL, ClientID: "taskscheduler", Subject: cfg.Subject, MaxReconnects: 10})
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	default:
		return queuechan.New(), func() {}, nil
	}
}

func buildEvents(cfg config.EventsConfig) (engine.EventFactory, func(), error) {
	switch cfg.Driver {
	case "nats":
		f, err := eventbusnats.Connect(eventbusnats.Config{URL: cfg.URL, ClientID: "taskscheduler", MaxReconnects: 10})
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	default:
		return eventbusmem.New(), func() {}, nil
	}
}

func tickerFunc(interval time.Duration) tickerAdapter {
	return tickerAdapter{interval: interval}
}

// tickerAdapter implements engine.Ticker over a time.Ticker.
type tickerAdapter struct {
	interval time.Duration
}

func (t tickerAdapter) Ticks(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
