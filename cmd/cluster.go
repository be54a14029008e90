package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/cluster"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/store"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Label POIs with DBSCAN clusters over standardized coordinates",
	RunE:  runCluster,
}

func init() {
	sourceFlags(clusterCmd)
	clusterCmd.Flags().String("out", "", "output CSV when --in is set (default: overwrite input)")
	clusterCmd.Flags().Float64("eps", 0, "neighborhood radius in standardized units (default cluster.eps)")
	clusterCmd.Flags().Int("min-samples", 0, "core point threshold (default cluster.min_samples)")
	rootCmd.AddCommand(clusterCmd)
}

func runCluster(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if eps, _ := cmd.Flags().GetFloat64("eps"); eps > 0 {
		cfg.Cluster.Eps = eps
	}
	if n, _ := cmd.Flags().GetInt("min-samples"); n > 0 {
		cfg.Cluster.MinSamples = n
	}
	if err := cfg.Validate("cluster"); err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	src := sourceFrom(cmd)

	pois, err := src.load(ctx)
	if err != nil {
		return err
	}

	summary, err := cluster.Assign(pois, cluster.Params{Eps: cfg.Cluster.Eps, MinSamples: cfg.Cluster.MinSamples})
	if err != nil {
		return err
	}
	dest, err := src.save(ctx, out, pois, func(ctx context.Context, st store.Store, pois []model.POI) error {
		return eris.Wrap(st.UpdateClusters(ctx, pois), "update clusters")
	})
	if err != nil {
		return err
	}

	zap.L().Info("clustered",
		zap.Int("pois", len(pois)),
		zap.Int("clusters", summary.Clusters),
		zap.Int("noise", summary.Noise),
		zap.String("dest", dest),
	)
	formatClusterSummary(os.Stdout, summary)
	return nil
}

func formatClusterSummary(out io.Writer, s cluster.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLUSTER\tPOIS")
	_, _ = fmt.Fprintln(w, "-------\t----")
	for _, l := range s.Labels() {
		name := fmt.Sprintf("%d", l)
		if l == cluster.Noise {
			name = "noise"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\n", name, s.Sizes[l])
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d clusters, %d noise points\n", s.Clusters, s.Noise)
}
