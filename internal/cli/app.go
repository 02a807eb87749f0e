package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"lotledger/internal/config"
	"lotledger/internal/core"
	"lotledger/internal/infra/blob"
	blobfs "lotledger/internal/infra/blob/fs"
	blobmemory "lotledger/internal/infra/blob/memory"
	blobs3 "lotledger/internal/infra/blob/s3"
	"lotledger/internal/infra/logger"
	"lotledger/internal/infra/metrics"
	"lotledger/pkg/domain"
)

// app is the wiring shared by every command.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	store    domain.PersistentStore
	svc      *core.Service
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func newLogger(opts *RootOptions, cfg config.Config) *slog.Logger {
	env := cfg.App.Env
	if opts.Verbose {
		env = "dev"
	}
	return logger.NewWithWriter(env, opts.stderr())
}

func storageOptions(cfg config.Config) core.StorageOptions {
	return core.StorageOptions{
		Driver:         core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:     cfg.Storage.SQLitePath,
		PostgresDSN:    cfg.Storage.PostgresDSN,
		LockTimeout:    cfg.Storage.LockTimeout,
		SkipMigrations: cfg.Storage.SkipMigrations,
	}
}

func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid time zone", err)
	}
	log := newLogger(opts, cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	store, err := core.OpenPersistentStore(ctx, storageOptions(cfg), nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open %s store", cfg.Storage.Driver), err)
	}
	log.Debug("store opened", "driver", cfg.Storage.Driver)

	svcOpts := []core.ServiceOption{
		core.WithLogger(log),
		core.WithMetricsRecorder(recorder),
		core.WithLocation(loc),
	}
	if opts.Trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(opts.stderr())))
	}
	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		store:    store,
		svc:      core.NewService(store, svcOpts...),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", "err", err)
	}
}

// openBlobStore selects the report artifact store.
func openBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch blob.Driver(cfg.Blob.Driver) {
	case blob.DriverFilesystem:
		return blobfs.New(cfg.Blob.FSRoot)
	case blob.DriverMemory:
		return blobmemory.New(), nil
	case blob.DriverS3:
		s3cfg := cfg.Blob.S3
		return blobs3.New(ctx, blobs3.Config{
			Bucket:         s3cfg.Bucket,
			Region:         s3cfg.Region,
			Endpoint:       s3cfg.Endpoint,
			Prefix:         s3cfg.Prefix,
			AccessKey:      s3cfg.AccessKey,
			SecretKey:      s3cfg.SecretKey,
			ForcePathStyle: s3cfg.ForcePathStyle,
		})
	}
	return nil, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
}

// runOperation opens the app, runs fn and writes its result. Errors are
// written through the formatter and returned as ExitErrors.
func runOperation(cmd *cobra.Command, opts *RootOptions, message string, fn func(ctx context.Context, a *app) (any, textFunc, error)) error {
	out := opts.formatter(cmd)
	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		return reportError(out, err, message)
	}
	defer a.Close()

	data, text, err := fn(cmd.Context(), a)
	if err != nil {
		return reportError(out, err, message)
	}
	return out.Success(data, text)
}

// reportError writes err and marks it so Execute does not print it again.
func reportError(out *OutputFormatter, err error, message string) error {
	_ = out.Error(err)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = operationError(message, err)
	}
	exitErr.reported = true
	return exitErr
}
