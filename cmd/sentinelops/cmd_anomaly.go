package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/sentinelops/internal/anomaly"
	"github.com/user/sentinelops/internal/state"
	"github.com/user/sentinelops/internal/types"
)

func init() {
	rootCmd.AddCommand(anomalyCmd)
	anomalyCmd.AddCommand(anomalyListCmd, anomalyShowCmd, anomalyAckCmd, anomalyResolveCmd, anomalyReopenCmd)

	anomalyListCmd.Flags().Bool("open", false, "only open anomalies, most severe first")
	anomalyListCmd.Flags().String("status", "", "filter by status (open, acknowledged, resolved)")
	anomalyListCmd.Flags().Bool("demo", false, "only demo anomalies")
	anomalyListCmd.Flags().Int("limit", anomaly.DefaultLimit, "maximum rows (1-200)")
}

// anomalyService opens the database for anomaly commands. The returned
// close func must be called when done.
func anomalyService() (*anomaly.Service, func() error, error) {
	cfg := loadConfig()
	setupLogging(cfg)
	db, err := state.Open(cfg.DBPath(), cfg.Database.BusyTimeoutMs)
	if err != nil {
		return nil, nil, err
	}
	return anomaly.NewService(state.NewAnomalyStore(db), slog.Default()), db.Close, nil
}

func parseAnomalyID(raw string) (types.AnomalyID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid anomaly id %q", raw)
	}
	return types.AnomalyID(n), nil
}

var anomalyCmd = &cobra.Command{
	Use:   "anomaly",
	Short: "Inspect and review anomalies",
}

var anomalyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List anomalies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := anomalyService()
		if err != nil {
			return err
		}
		defer closeDB()

		q := types.AnomalyQuery{Sort: types.SortRecent}
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.DemoOnly, _ = cmd.Flags().GetBool("demo")
		if open, _ := cmd.Flags().GetBool("open"); open {
			q.OnlyOpen = true
			q.Sort = types.SortSeverityDesc
		}
		if raw, _ := cmd.Flags().GetString("status"); raw != "" {
			st, err := anomaly.ParseStatus(raw)
			if err != nil {
				return err
			}
			q.Status = st
		}

		items, err := svc.List(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("list anomalies: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("No anomalies.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRULE\tSEVERITY\tSTATUS\tDETECTED\tTITLE")
		for _, a := range items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				a.ID,
				a.RuleCode,
				a.Severity,
				a.Status,
				a.DetectedAt.UTC().Format(time.RFC3339),
				a.Title,
			)
		}
		return w.Flush()
	},
}

var anomalyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one anomaly as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAnomalyID(args[0])
		if err != nil {
			return err
		}
		svc, closeDB, err := anomalyService()
		if err != nil {
			return err
		}
		defer closeDB()

		a, err := svc.Get(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get anomaly %d: %w", id, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	},
}

func transitionCmd(use, short string, to types.AnomalyStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAnomalyID(args[0])
			if err != nil {
				return err
			}
			svc, closeDB, err := anomalyService()
			if err != nil {
				return err
			}
			defer closeDB()

			a, err := svc.UpdateStatus(cmd.Context(), id, to)
			if err != nil {
				return fmt.Errorf("%s anomaly %d: %w", use, id, err)
			}
			fmt.Fprintf(os.Stdout, "Anomaly %d is now %s.\n", a.ID, a.Status)
			return nil
		},
	}
}

var (
	anomalyAckCmd     = transitionCmd("ack", "Acknowledge an anomaly", types.StatusAcknowledged)
	anomalyResolveCmd = transitionCmd("resolve", "Resolve an anomaly", types.StatusResolved)
	anomalyReopenCmd  = transitionCmd("reopen", "Reopen an anomaly", types.StatusOpen)
)
