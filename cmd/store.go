package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/dedup"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and manage the POI store",
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts of the store",
	RunE:  runStoreStats,
}

var storeRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent harvest runs",
	RunE:  runStoreRuns,
}

var storeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored POI and the external identifier index",
	RunE:  runStoreReset,
}

func init() {
	storeRunsCmd.Flags().Int("limit", 20, "max runs to show")
	storeResetCmd.Flags().Bool("yes", false, "confirm the reset")
	storeCmd.AddCommand(storeStatsCmd, storeRunsCmd, storeResetCmd)
	rootCmd.AddCommand(storeCmd)
}

func runStoreStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	stats, err := st.Stats(ctx)
	if err != nil {
		return eris.Wrap(err, "store stats")
	}
	formatStoreStats(os.Stdout, stats)
	return nil
}

func runStoreRuns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return eris.Wrap(err, "list runs")
	}
	if len(runs) == 0 {
		fmt.Println("No harvest runs found.")
		return nil
	}
	formatRuns(os.Stdout, runs)
	return nil
}

func runStoreReset(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return eris.New("store reset deletes every POI; pass --yes to confirm")
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Reset(ctx); err != nil {
		return eris.Wrap(err, "reset store")
	}

	idx, closeIdx, err := initIndex(ctx)
	if err != nil {
		return err
	}
	defer closeIdx()
	if ri, ok := idx.(*dedup.RedisIndex); ok {
		if err := ri.Reset(ctx); err != nil {
			return err
		}
	}

	zap.L().Info("store reset", zap.String("driver", cfg.Store.Driver), zap.String("index", cfg.Dedup.Index))
	fmt.Println("Store reset.")
	return nil
}

func formatStoreStats(out io.Writer, s *store.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "CATEGORIZED\t%d\n", s.Categorized)
	_, _ = fmt.Fprintf(w, "CLUSTERED\t%d\n", s.Clustered)
	_, _ = fmt.Fprintf(w, "NOISE\t%d\n", s.Noise)
	_, _ = fmt.Fprintf(w, "RUNS\t%d\n", s.Runs)
	last := "-"
	if s.LastCollected != nil {
		last = s.LastCollected.Format(time.RFC3339)
	}
	_, _ = fmt.Fprintf(w, "LAST COLLECTED\t%s\n", last)
	_ = w.Flush()
}

func formatRuns(out io.Writer, runs []model.HarvestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tMODE\tQUERIES\tSTORED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t-------\t------\t-------\t--------")
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Status,
			r.Mode,
			strings.Join(r.Queries, ","),
			r.Stats.Stored,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}
