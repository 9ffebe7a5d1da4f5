package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/sentinelops/internal/rules"
	"github.com/user/sentinelops/internal/state"
)

func init() {
	rootCmd.AddCommand(rulesCmd, summaryCmd, seedDemoCmd, initDBCmd)
	rulesCmd.AddCommand(rulesRunCmd, rulesListCmd)
	summaryCmd.AddCommand(summaryRunCmd)
	summaryRunCmd.Flags().Bool("force", false, "resend even if today's summary was already sent")
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Anomaly rules",
}

var rulesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate every rule once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.evaluator().EvaluateAll(cmd.Context(), time.Now().UTC()); err != nil {
			return fmt.Errorf("evaluate rules: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Rules evaluated.")
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known rule definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, r := range rules.Catalog() {
			fmt.Fprintf(os.Stdout, "%-22s %-6s %s\n", r.Code, r.Severity, r.Title)
		}
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Daily operations summary",
}

var summaryRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and deliver the daily summary now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		summary := a.dailySummary()
		if force, _ := cmd.Flags().GetBool("force"); force {
			summary.SetForceResend(true)
		}
		res, err := summary.Run(cmd.Context(), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("daily summary: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Create one open demo anomaly per rule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := rules.SeedDemo(cmd.Context(), a.anomalies, time.Now())
		for _, r := range results {
			if r.Created {
				fmt.Fprintf(os.Stdout, "Demo anomaly created: %s (id=%d)\n", r.RuleCode, r.ID)
			} else {
				fmt.Fprintf(os.Stdout, "Open demo anomaly already exists: %s (id=%d)\n", r.RuleCode, r.ID)
			}
		}
		return err
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		dbPath := cfg.DBPath()
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		db, err := state.Open(dbPath, cfg.Database.BusyTimeoutMs)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Database ready at", db.Path())
		return nil
	},
}
