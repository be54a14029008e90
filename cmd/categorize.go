package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/store"
)

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Assign subcategory and category to every POI from its rubric ids",
	RunE:  runCategorize,
}

func init() {
	sourceFlags(categorizeCmd)
	categorizeCmd.Flags().String("out", "", "output CSV when --in is set (default: overwrite input)")
	rootCmd.AddCommand(categorizeCmd)
}

func runCategorize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out, _ := cmd.Flags().GetString("out")
	src := sourceFrom(cmd)

	mapping, err := loadMapping()
	if err != nil {
		return err
	}
	pois, err := src.load(ctx)
	if err != nil {
		return err
	}

	dist := mapping.Apply(pois)
	dest, err := src.save(ctx, out, pois, func(ctx context.Context, st store.Store, pois []model.POI) error {
		return eris.Wrap(st.UpdateCategories(ctx, pois), "update categories")
	})
	if err != nil {
		return err
	}

	zap.L().Info("categorized",
		zap.Int("pois", len(pois)),
		zap.Int("unknown", dist[model.Unknown]),
		zap.String("dest", dest),
	)
	formatDistribution(os.Stdout, "CATEGORY", dist)
	return nil
}

// formatDistribution prints counts by descending size, ties by name.
func formatDistribution(out io.Writer, label string, dist map[string]int) {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if dist[keys[i]] != dist[keys[j]] {
			return dist[keys[i]] > dist[keys[j]]
		}
		return keys[i] < keys[j]
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s\tCOUNT\n", label)
	_, _ = fmt.Fprintln(w, "--------\t-----")
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", k, dist[k])
	}
	_ = w.Flush()
}
