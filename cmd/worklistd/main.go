// Command worklistd loads work lists, keeps their review state and serves
// them over HTTP.
//
//	worklistd -config worklistd.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/worklist"
	"github.com/hupe1980/worklist/config"
	"github.com/hupe1980/worklist/metric/prom"
	"github.com/hupe1980/worklist/refresh"
	"github.com/hupe1980/worklist/resource"
	"github.com/hupe1980/worklist/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, "worklistd:", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := newSnapshotLoader(ctx, cfg.Snapshots)
	if err != nil {
		return fmt.Errorf("snapshots: %w", err)
	}

	states, closeStates, err := newStateStore(ctx, cfg.State)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	defer closeStates()

	store, err := newGeometryStore(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	metrics := prom.New()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	opts := []worklist.Option{
		worklist.WithLogger(logger),
		worklist.WithMetricsCollector(metrics),
		worklist.WithResourceController(resource.NewController(resource.Config{
			MaxBackgroundRuns: cfg.Refresh.MaxBackground,
			StoreCallsPerSec:  cfg.Refresh.RateLimit,
		})),
		worklist.WithRefreshOptions(func(o *refresh.Options) {
			o.Workers = cfg.Refresh.Workers
			o.LockOSThread = cfg.Refresh.LockOSThread
		}),
		worklist.WithObserverErrorHandler(func(err error) {
			logger.Warn("observer failed", "error", err)
		}),
	}
	if states != nil {
		opts = append(opts, worklist.WithStateStore(states))
	}

	session := worklist.New(opts...)
	defer session.Close()

	var loadOpts []worklist.LoadOption
	if store != nil {
		loadOpts = append(loadOpts, worklist.AsLive())
	}

	cats, err := session.LoadAll(ctx, loader, cfg.Worklists, loadOpts...)
	if err != nil {
		logger.Error("some work lists failed to load", "error", err)
	}

	srvOpts := func(o *server.Options) { o.Logger = logger.Logger }
	if store != nil {
		srvOpts = func(o *server.Options) {
			o.Logger = logger.Logger
			o.Store = store
		}
		for _, c := range cats {
			if c == nil {
				continue
			}
			if _, err := session.Refresh(ctx, c.Name(), store); err != nil {
				logger.Warn("refresh not started", "worklist", c.Name(), "error", err)
			}
		}
	}

	srv := server.New(session, srvOpts)
	logger.Info("listening", "addr", cfg.Server.Addr, "worklists", session.Registry().Len())

	err = srv.ListenAndServe(ctx, cfg.Server.Addr)

	if states != nil {
		for _, name := range session.Registry().Names() {
			if cerr := session.Commit(context.WithoutCancel(ctx), name); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}
	return err
}
