package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/sentinelops/internal/config"
	"github.com/user/sentinelops/internal/delivery"
	"github.com/user/sentinelops/internal/insight"
	"github.com/user/sentinelops/internal/reporting"
	"github.com/user/sentinelops/internal/retry"
	"github.com/user/sentinelops/internal/rules"
	"github.com/user/sentinelops/internal/state"
	"github.com/user/sentinelops/internal/telegram"
	"github.com/user/sentinelops/internal/types"
	"github.com/user/sentinelops/pkg/llm"
	"github.com/user/sentinelops/pkg/llm/openai"
)

// anomalyNotifyTimeout bounds a single anomaly notice.
const anomalyNotifyTimeout = 3 * time.Second

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "sentinelops",
	Short:         "Billing webhook monitor with anomaly rules and daily summaries",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".sentinelops", "config.json"), "config file path (.json, .yaml or .yml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// logLevel is shared by the default handler so serve can change it live.
var logLevel = new(slog.LevelVar)

func setupLogging(cfg *config.Config) {
	logLevel.Set(cfg.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// app holds the components shared by every command.
type app struct {
	cfg        *config.Config
	db         *state.DB
	events     *state.EventStore
	anomalies  *state.AnomalyStore
	deliveries *state.DeliveryStore
	registry   *delivery.Registry
	telegram   *telegram.Adapter
	notifier   types.Notifier
}

// openApp opens the database and builds the delivery channels.
func openApp(cfg *config.Config) (*app, error) {
	dbPath := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := state.Open(dbPath, cfg.Database.BusyTimeoutMs)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		db:         db,
		events:     state.NewEventStore(db),
		anomalies:  state.NewAnomalyStore(db),
		deliveries: state.NewDeliveryStore(db),
		registry:   delivery.NewRegistry(),
	}

	if cfg.Slack.WebhookURL != "" {
		a.registry.Register("slack", delivery.NewSlack(cfg.Slack.WebhookURL, 10*time.Second).Handler())
	}
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.anomalies, telegram.Options{
			Endpoint: cfg.Telegram.APIEndpoint,
			Timeout:  cfg.TelegramTimeout(),
			Logger:   slog.Default(),
		})
		if err != nil {
			slog.Warn("telegram disabled", "error", err)
		} else {
			a.telegram = adapter
			a.registry.Register(telegram.TargetPrefix, adapter.Handler())
		}
	}

	if target := cfg.NotifyTarget(); target != "" {
		if !a.registry.Has(target) {
			slog.Warn("notify target has no configured channel", "target", target)
		}
		a.notifier = a.registry.Notifier(target)
		slog.Info("notifications enabled", "target", target)
	} else {
		slog.Warn("notifications disabled (no slack webhook or telegram chat)")
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) evaluator() *rules.Evaluator {
	opts := []rules.Option{
		rules.WithLogger(slog.Default()),
		rules.WithNotifyTimeout(anomalyNotifyTimeout),
	}
	if a.notifier != nil {
		opts = append(opts, rules.WithNotifier(a.notifier))
	}
	return rules.NewEvaluator(a.events, a.anomalies, opts...)
}

// insighter builds the AI generator. It reports ai_not_configured until both
// an API key and a model are set.
func (a *app) insighter() *insight.Generator {
	llmCfg := &llm.Config{
		BaseURL: a.cfg.AI.BaseURL,
		APIKey:  a.cfg.AI.APIKey,
		Model:   a.cfg.AI.Model,
		Timeout: a.cfg.AITimeout(),
	}
	var provider llm.Provider
	if llmCfg.Configured() {
		provider = openai.New(llmCfg)
	}

	opts := []insight.Option{
		insight.WithRetryPolicy(retry.DefaultPolicy()),
		insight.WithLogger(slog.Default()),
	}
	if a.cfg.AI.MaxPromptTokens > 0 && a.cfg.AI.Model != "" {
		counter, err := insight.NewTiktokenCounter(a.cfg.AI.Model)
		if err != nil {
			slog.Warn("prompt token budget disabled", "error", err)
		} else {
			opts = append(opts, insight.WithTokenBudget(counter, a.cfg.AI.MaxPromptTokens))
		}
	}
	return insight.NewGenerator(provider, a.cfg.AI.Model, opts...)
}

func (a *app) dailySummary() *reporting.DailySummary {
	return reporting.NewDailySummary(
		reporting.NewCollector(a.events, a.anomalies),
		a.insighter(),
		a.notifier,
		a.deliveries,
		reporting.Config{
			Kind:                  a.cfg.Summary.Kind,
			ForceResend:           a.cfg.Summary.ForceResend,
			ShowAIUnavailableNote: a.cfg.Summary.ShowAIUnavailableNote,
			StaleAfter:            a.cfg.StaleAfter(),
		},
		slog.Default(),
	)
}
