package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/livinlefevreloca/runsync/internal/cloud"
	"github.com/livinlefevreloca/runsync/internal/config"
	"github.com/livinlefevreloca/runsync/internal/db"
	"github.com/livinlefevreloca/runsync/internal/driver"
	"github.com/livinlefevreloca/runsync/internal/invoker"
	"github.com/livinlefevreloca/runsync/internal/objectstore"
	"github.com/livinlefevreloca/runsync/internal/orchestrator"
	"github.com/livinlefevreloca/runsync/internal/state"
	"github.com/livinlefevreloca/runsync/internal/stats"
	"github.com/livinlefevreloca/runsync/internal/syncer"
	"github.com/livinlefevreloca/runsync/internal/upstream"
	"github.com/livinlefevreloca/runsync/internal/worker"
)

// app holds the wired components shared by the commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	database *db.DB
	objects  objectstore.Store
	awsCfg   *aws.Config

	// events is set when tasks run in process; fire-and-forget
	// invocations must finish before the store is closed
	events *invoker.Local
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if id := cfg.Secrets.SecretID; id != "" {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.LoadSecrets(ctx, cloud.NewSecretsClient(awsCfg), id); err != nil {
			return nil, err
		}
		logger.Info("loaded secrets", "secret_id", id)
		// Region may have come from the secret
		a.awsCfg = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Database.Enabled() {
		logger.Info("connecting to database", "dsn", cfg.Database.DSN)
		database, err := db.OpenWithConfig(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.database = database
	}

	objects, err := a.store(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.objects = objectstore.WithPrefix(objects, cfg.Store.Prefix)

	return a, nil
}

func (a *app) Close() {
	a.waitEvents()
	if a.database != nil {
		a.database.Close()
	}
}

// waitEvents blocks until in-process event invocations have finished
func (a *app) waitEvents() {
	if a.events == nil {
		return
	}
	a.logger.Debug("waiting for event tasks")
	a.events.Wait()
}

func (a *app) aws(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	awsCfg, err := cloud.LoadAWSConfig(ctx, a.cfg.AWS)
	if err != nil {
		return aws.Config{}, err
	}
	a.awsCfg = &awsCfg
	return awsCfg, nil
}

func (a *app) store(ctx context.Context) (objectstore.Store, error) {
	switch a.cfg.Store.Backend {
	case "s3":
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		return objectstore.NewS3FromConfig(awsCfg, a.cfg.Store.Bucket, a.cfg.Store.PathStyle), nil
	case "sqlite":
		return objectstore.NewSQLite(a.database), nil
	case "memory":
		return objectstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", a.cfg.Store.Backend)
	}
}

// handler builds the worker that executes single units of work
func (a *app) handler() (*worker.Handler, error) {
	rest, err := upstream.NewClient(a.cfg.Upstream, a.logger)
	if err != nil {
		return nil, err
	}
	metadata, err := upstream.NewMetadataClient(a.cfg.Metadata, a.logger)
	if err != nil {
		return nil, err
	}

	var opts []syncer.Option
	if a.database != nil {
		opts = append(opts, syncer.WithStepRecorder(syncer.NewDBLedger(a.database)))
	}

	states := state.NewStore(a.objects, a.logger)
	engine, err := syncer.NewEngine(a.cfg.Syncer, rest, states, a.objects, a.logger, opts...)
	if err != nil {
		return nil, err
	}

	return worker.NewHandler(rest, engine, metadata, a.objects, a.logger), nil
}

// invoker dispatches worker tasks per the configured backend
func (a *app) invoker(ctx context.Context) (invoker.Invoker, error) {
	if a.cfg.Invoker.Debug {
		a.logger.Warn("debug mode, worker invocations are suppressed")
		return invoker.NewDebug(a.logger), nil
	}

	switch a.cfg.Invoker.Backend {
	case "lambda":
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		return invoker.NewLambdaFromConfig(awsCfg, a.cfg.Invoker.Timeout, a.logger), nil
	default:
		h, err := a.handler()
		if err != nil {
			return nil, err
		}
		a.events = invoker.NewLocal(h, a.logger)
		return a.events, nil
	}
}

// orchestrator wires the master side: invoker client, driver and fan-out
func (a *app) orchestrator(ctx context.Context, sink orchestrator.StatsSink) (*orchestrator.Orchestrator, error) {
	inv, err := a.invoker(ctx)
	if err != nil {
		return nil, err
	}
	client := invoker.NewClient(inv, a.cfg.Invoker.Function)

	drv, err := driver.New(a.cfg.Driver, client, a.logger)
	if err != nil {
		return nil, err
	}

	var opts []orchestrator.Option
	if sink != nil {
		opts = append(opts, orchestrator.WithStats(sink))
	}
	return orchestrator.New(a.cfg.Orchestrator, client, drv, a.logger, opts...)
}

// collector starts a stats collector when a database is configured.
// The returned stop function is always safe to call.
func (a *app) collector() (orchestrator.StatsSink, func(), error) {
	if a.database == nil {
		return nil, func() {}, nil
	}
	c, err := stats.NewCollector(a.cfg.Stats, stats.NewDBAdapter(a.database), a.logger)
	if err != nil {
		return nil, nil, err
	}
	c.Start()
	return c, func() {
		if err := c.Stop(); err != nil {
			a.logger.Error("failed to stop stats collector", "error", err)
		}
	}, nil
}
