package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/district-poi/internal/grid"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Print the tile grid covering the district bounding box",
	RunE:  runTiles,
}

func init() {
	tilesCmd.Flags().Int("nx", 0, "columns (default harvest.nx)")
	tilesCmd.Flags().Int("ny", 0, "rows (default harvest.ny)")
	rootCmd.AddCommand(tilesCmd)
}

func runTiles(cmd *cobra.Command, _ []string) error {
	nx, _ := cmd.Flags().GetInt("nx")
	ny, _ := cmd.Flags().GetInt("ny")
	if nx == 0 {
		nx = cfg.Harvest.NX
	}
	if ny == 0 {
		ny = cfg.Harvest.NY
	}

	b, err := loadBoundary()
	if err != nil {
		return err
	}
	g, err := grid.Partition(b.Bound(), nx, ny)
	if err != nil {
		return err
	}

	formatTiles(os.Stdout, g)
	return nil
}

func formatTiles(out io.Writer, g *grid.Grid) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TILE\tROW\tCOL\tPOINT1\tPOINT2")
	_, _ = fmt.Fprintln(w, "----\t---\t---\t------\t------")
	for _, t := range g.Tiles {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", t.Index, t.Row, t.Col, t.Point1(), t.Point2())
	}
	_ = w.Flush()
}
