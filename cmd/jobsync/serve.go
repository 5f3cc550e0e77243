package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jobmate/jobsync/internal/ops"
	"jobmate/jobsync/internal/scheduler"
	"jobmate/jobsync/internal/scraper"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cron schedule with the ops HTTP and gRPC health endpoints",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	// ── Schedule ─────────────────────────────────────────────────────────────
	runner := a.runner()
	dispatcher, err := a.dispatcher(false)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(cfg.ScheduleTZ, a.log,
		scheduler.Entry{Name: "full-sync", Spec: cfg.ScheduleFull, Task: syncTask(runner, a.catalog.Pipelines, true)},
		scheduler.Entry{Name: "incremental-sync", Spec: cfg.ScheduleIncremental, Task: syncTask(runner, incremental(a.catalog.Pipelines), false)},
		scheduler.Entry{Name: "digest", Spec: cfg.ScheduleDigest, Task: notifyTask(dispatcher)},
	)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ── Ops servers ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	ops.NewHandler(a.tracker, a.pool, sched, a.log).RegisterRoutes(mux)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.OpsPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.OpsGRPCPort))
	if err != nil {
		sched.Stop(context.Background())
		return errors.Wrapf(err, "listen on gRPC port %s", cfg.OpsGRPCPort)
	}
	grpcSrv := ops.NewGRPCServer(a.pool, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("ops HTTP listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "ops HTTP server")
		}
		return nil
	})
	g.Go(func() error { return grpcSrv.Serve(gctx, grpcLis) })
	g.Go(func() error {
		grpcSrv.Watch(gctx, healthInterval)
		return nil
	})

	// ── Graceful shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("ops HTTP shutdown error", "error", err)
		}
		sched.Stop(shutdownCtx)
		return nil
	})

	err = g.Wait()
	a.log.Info("stopped")
	return err
}

func incremental(specs []scraper.PipelineSpec) []scraper.PipelineSpec {
	var out []scraper.PipelineSpec
	for _, s := range specs {
		if s.Incremental {
			out = append(out, s)
		}
	}
	return out
}
