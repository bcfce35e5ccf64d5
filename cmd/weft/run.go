package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow, reusing cached node results",
		Long:  `Parses a YAML or JSON workflow, validates it and runs every node whose inputs changed since the last run.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkflow,
	}
	cmd.Flags().Bool("json", false, "Print the run report as JSON")
	cmd.Flags().StringSlice("force", nil, "Recompute these node ids and their descendants")
	cmd.Flags().Int("concurrency", 0, "Maximum parallel node invocations (overrides engine.concurrency)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running (overrides metrics.addr)")
	return cmd
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Engine.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = cmd.Flags().GetString("metrics-addr")
	}
	jsonMode, _ := cmd.Flags().GetBool("json")
	force, _ := cmd.Flags().GetStringSlice("force")

	wf, err := weft.LoadWorkflow(args[0])
	if err != nil {
		return err
	}

	var opts []weft.Option
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts = append(opts, weft.WithLifecycleHooks(metrics.Hooks()))

		logger, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		stop := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stop()
	}

	eng, closeTier, err := newEngine(cmd, cfg, opts...)
	if err != nil {
		return err
	}
	defer closeTier()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, runErr := eng.ExecuteWorkflow(ctx, wf, weft.WithForce(force...))
	if report == nil {
		return runErr
	}

	if jsonMode {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	} else {
		tui.NewPrinter(cmd.OutOrStdout()).Report(report)
	}

	if runErr != nil {
		return runErr
	}
	if !report.Succeeded() {
		return errors.New("workflow finished with failed nodes")
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
