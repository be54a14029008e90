package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/config"
	"github.com/sells-group/district-poi/internal/dedup"
	"github.com/sells-group/district-poi/internal/harvest"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/monitoring"
	"github.com/sells-group/district-poi/internal/store"
	"github.com/sells-group/district-poi/pkg/catalog"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest district POIs from the 2GIS catalog",
	Long: "Runs every configured query over the district (tiled rectangles or a region filter), " +
		"drops items outside the boundary and appends new identifiers to the store.",
	RunE: runHarvest,
}

func init() {
	harvestCmd.Flags().StringSlice("queries", nil, "query codes or classes to run (default all)")
	harvestCmd.Flags().String("mode", "", "tiled or region (default from config)")
	harvestCmd.Flags().String("flush", "", "per_query or end (default from config)")
	harvestCmd.Flags().Bool("per-query-files", false, "also write CSV and GeoJSON per query")
	harvestCmd.Flags().String("files-dir", "", "directory for per-query files (default <output.dir>/harvest)")
	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Harvest.Mode = mode
	}
	if flush, _ := cmd.Flags().GetString("flush"); flush != "" {
		cfg.Store.Flush = flush
	}
	if err := cfg.Validate("harvest"); err != nil {
		return err
	}

	queries, err := harvestQueries(cmd)
	if err != nil {
		return err
	}

	area, err := loadBoundary()
	if err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	idx, closeIdx, err := initIndex(ctx)
	if err != nil {
		return err
	}
	defer closeIdx()

	client := catalog.NewClient(cfg.Catalog.Key,
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithFields(cfg.Catalog.Fields),
		catalog.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Catalog.TimeoutSecs) * time.Second}),
	)

	metrics := monitoring.NewMetrics()
	opts := []harvest.Option{
		harvest.WithFlush(cfg.Store.Flush),
		harvest.WithMetrics(metrics),
	}
	if perQuery, _ := cmd.Flags().GetBool("per-query-files"); perQuery {
		dir, _ := cmd.Flags().GetString("files-dir")
		if dir == "" {
			dir = outputPath("harvest")
		}
		opts = append(opts, harvest.WithSink(harvest.FileSink{Dir: dir, Prefix: cfg.Harvest.FilePrefix}))
	}

	h := harvest.New(client, st, dedup.New(idx), area, cfg.Harvest, opts...)

	zap.L().Info("starting harvest",
		zap.String("mode", cfg.Harvest.Mode),
		zap.Int("queries", len(queries)),
		zap.String("flush", cfg.Store.Flush),
	)
	run, runErr := h.Run(ctx, queries)

	if run != nil {
		formatRun(os.Stdout, run)
	}
	if err := writeMetrics(context.WithoutCancel(ctx), st, metrics); err != nil {
		zap.L().Warn("metrics textfile not written", zap.Error(err))
	}
	return runErr
}

func harvestQueries(cmd *cobra.Command) ([]config.QuerySpec, error) {
	all := cfg.Harvest.Queries
	if len(all) == 0 {
		defaults, err := harvest.DefaultQueries()
		if err != nil {
			return nil, err
		}
		all = defaults
	}
	names, _ := cmd.Flags().GetStringSlice("queries")
	return harvest.SelectQueries(all, names)
}

// writeMetrics refreshes the store gauges and writes the textfile when one is
// configured.
func writeMetrics(ctx context.Context, st store.Store, m *monitoring.Metrics) error {
	if cfg.Metrics.Textfile == "" {
		return nil
	}
	snap, err := monitoring.NewCollector(st, 0).Collect(ctx)
	if err != nil {
		return err
	}
	m.RecordSnapshot(snap)
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		return eris.Wrap(err, "write metrics textfile")
	}
	zap.L().Info("metrics written", zap.String("path", cfg.Metrics.Textfile))
	return nil
}

func formatRun(out io.Writer, run *model.HarvestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "RUN\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "STATUS\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "REQUESTS\t%d\n", run.Stats.Requests)
	_, _ = fmt.Fprintf(w, "FETCHED\t%d\n", run.Stats.Fetched)
	_, _ = fmt.Fprintf(w, "OUTSIDE\t%d\n", run.Stats.Outside)
	_, _ = fmt.Fprintf(w, "DUPLICATES\t%d\n", run.Stats.Duplicates)
	_, _ = fmt.Fprintf(w, "STORED\t%d\n", run.Stats.Stored)

	outcomes := make([]string, 0, len(run.Stats.Outcomes))
	for o := range run.Stats.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "OUTCOME %s\t%d\n", o, run.Stats.Outcomes[o])
	}
	_ = w.Flush()
}
