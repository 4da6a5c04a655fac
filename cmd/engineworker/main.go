// Command engineworker runs the BPMN token-flow interpreter against a
// Postgres-backed repository: it applies schema migrations, wires the
// scheduler and its collaborators, and drives the timer-poll and outbox-
// publisher background loops until signaled to stop. It exposes no
// HTTP/REST surface — deploying definitions and driving process instances
// happens through engine/runtime.ProcessRuntime, embedded by a caller, not
// through routes this binary serves.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/r3e-network/flowlayer/engine/compensation"
	"github.com/r3e-network/flowlayer/engine/outbox"
	"github.com/r3e-network/flowlayer/engine/repository"
	"github.com/r3e-network/flowlayer/engine/scheduler"
	"github.com/r3e-network/flowlayer/engine/scope"
	"github.com/r3e-network/flowlayer/engine/scripting"
	"github.com/r3e-network/flowlayer/engine/subscription"
	workerpool "github.com/r3e-network/flowlayer/infrastructure/runtime"
	"github.com/r3e-network/flowlayer/infrastructure/postgres"
	"github.com/r3e-network/flowlayer/infrastructure/resilience"
	"github.com/r3e-network/flowlayer/pkg/config"
	"github.com/r3e-network/flowlayer/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	zlog := newZapLogger(cfg.Logging)
	defer zlog.Sync()
	rlog := newLogrusEntry(cfg.Logging)

	store, err := postgres.Open(cfg.Database)
	if err != nil {
		zlog.Fatal("connect to postgres", zap.Error(err))
	}
	defer store.Close()

	if cfg.Database.MigrateOnStart {
		if err := store.Migrate(); err != nil {
			zlog.Fatal("apply migrations", zap.Error(err))
		}
		zlog.Info("schema migrations applied")
	}

	scopes := scope.New(postgres.NewVarScopeStore(store))
	subs := subscription.New(postgres.NewSubscriptionStore(store))
	comp := compensation.New(postgres.NewTxScopeStore(store), rlog)
	script := scripting.New()

	sched := scheduler.New(
		scheduler.Repositories{
			Definitions: postgres.NewDefinitionStore(store),
			Instances:   postgres.NewInstanceStore(store),
			Executions:  postgres.NewExecutionStore(store),
			Tasks:       postgres.NewTaskStore(store),
		},
		scopes,
		subs,
		comp,
		script,
		postgres.NewOutboxStore(store),
		repository.SystemClock{},
		nil, // serviceTaskHandler: no external worker callback is wired at this layer; service tasks fail with a BpmnError until a caller supplies one.
		zlog,
		scheduler.Config{RetryConfig: resilience.RetryConfig{
			MaxAttempts:  cfg.Scheduler.MaxRetries,
			InitialDelay: cfg.Scheduler.RetryInitialDelay,
			MaxDelay:     cfg.Scheduler.RetryMaxDelay,
			Multiplier:   2.0,
			Jitter:       0.1,
		}},
		store, // TxRunner: store.WithTx gives each work unit's state mutations and its outbox append one database transaction (§4.F)
	)
	workers := workerpool.SizeWorkerPool(cfg.Scheduler.Workers, rlog)
	zlog.Info("scheduler worker pool sized", zap.Int("workers", workers))

	publisher := outbox.NewPublisher(postgres.NewOutboxStore(store), newLoggingBus(rlog), rlog, outbox.Config{
		BatchSize:         cfg.Outbox.BatchSize,
		MaxRetries:        cfg.Outbox.MaxRetries,
		PublishRatePerSec: cfg.Outbox.PublishRatePerSec,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.RunTimerPoll(ctx, cfg.Timer.PollInterval)
	go publisher.Run(ctx, cfg.Outbox.TickInterval, cfg.Outbox.RetryTickInterval, cfg.Outbox.JanitorInterval, cfg.Outbox.ProcessedRetention)
	go serveMetrics(ctx, rlog)

	zlog.Info("engineworker started")
	<-ctx.Done()
	zlog.Info("engineworker shutting down")
}

func serveMetrics(ctx context.Context, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("metrics server stopped")
	}
}

func newZapLogger(cfg config.LoggingConfig) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Level))

	zcfg := zap.NewProductionConfig()
	if strings.ToLower(cfg.Format) != "json" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newLogrusEntry(cfg config.LoggingConfig) *logrus.Entry {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
		l.SetLevel(lvl)
	}
	if strings.ToLower(cfg.Format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(l)
}

// loggingBus is the default outbox.Bus adapter when no broker client is
// configured: it logs the publish rather than dropping it, so at-least-once
// semantics are visible in development and in deployments that haven't
// wired a real transport yet. A production deployment supplies its own Bus
// (e.g. backed by a message broker client) in front of outbox.NewPublisher
// instead of this one — that adapter lives outside the engine core.
type loggingBus struct {
	log *logrus.Entry
}

func newLoggingBus(log *logrus.Entry) *loggingBus {
	return &loggingBus{log: log}
}

func (b *loggingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.log.WithFields(logrus.Fields{"topic": topic, "bytes": len(payload)}).Debug("published lifecycle event")
	return nil
}
