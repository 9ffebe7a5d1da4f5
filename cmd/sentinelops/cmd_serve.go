package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/sentinelops/internal/anomaly"
	"github.com/user/sentinelops/internal/config"
	"github.com/user/sentinelops/internal/ingest"
	"github.com/user/sentinelops/internal/scheduler"
	"github.com/user/sentinelops/internal/stripe"
	"github.com/user/sentinelops/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server, rule scheduler and daily summary",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	for name, schedule := range map[string]string{"schedule.rules": cfg.Schedule.Rules, "schedule.daily_summary": cfg.Schedule.DailySummary} {
		if schedule == "" {
			continue
		}
		if err := scheduler.Validate(schedule); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pidFile, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	evaluator := a.evaluator()
	summary := a.dailySummary()

	sched := scheduler.New(slog.Default(),
		scheduler.Job{Name: "rules", Schedule: cfg.Schedule.Rules, Run: evaluator.EvaluateAll},
		scheduler.Job{Name: "daily_summary", Schedule: cfg.Schedule.DailySummary, Run: func(ctx context.Context, now time.Time) error {
			_, err := summary.Run(ctx, now)
			return err
		}},
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() { <-sched.Stop().Done() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.HTTP.Enabled {
		if cfg.Stripe.WebhookSecret == "" {
			slog.Warn("stripe webhook secret not set; every delivery will be recorded as invalid")
		}
		verifier := stripe.NewVerifier(cfg.Stripe.WebhookSecret, time.Duration(cfg.Stripe.ToleranceSec)*time.Second)
		srv := webhook.NewServer(
			verifier,
			ingest.NewService(a.events, slog.Default()),
			anomaly.NewService(a.anomalies, slog.Default()),
			a.db,
			slog.Default(),
		)
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	} else {
		slog.Warn("http server disabled")
	}

	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, slog.Default(), func(next *config.Config) {
			if next.Level() != logLevel.Level() {
				logLevel.Set(next.Level())
				slog.Info("log level changed", "log_level", next.LogLevel)
			}
			if next.Schedule != cfg.Schedule || next.HTTP != cfg.HTTP {
				slog.Warn("schedule or http changes take effect after restart")
			}
		})
		if err != nil {
			slog.Warn("config reload disabled", "error", err)
		}
		return nil
	})

	if a.telegram != nil {
		g.Go(func() error {
			a.telegram.Start(gctx)
			return nil
		})
		slog.Info("telegram adapter started")
	}

	slog.Info("sentinelops started",
		"db_path", cfg.DBPath(),
		"log_level", cfg.LogLevel,
		"rules_schedule", cfg.Schedule.Rules,
		"summary_schedule", cfg.Schedule.DailySummary,
		"ai_model", cfg.AI.Model,
		"pid_file", pidFile,
	)

	err = g.Wait()
	slog.Info("shutting down")
	return err
}
