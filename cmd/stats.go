package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/district-poi/internal/report"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Describe the harvested POI table",
	RunE:  runStats,
}

func init() {
	sourceFlags(statsCmd)
	statsCmd.Flags().Int("top", 15, "number of top rubrics to show")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	top, _ := cmd.Flags().GetInt("top")

	pois, err := sourceFrom(cmd).load(cmd.Context())
	if err != nil {
		return err
	}

	formatOverview(os.Stdout, report.Describe(pois, top))
	return nil
}

func formatOverview(out io.Writer, o report.Overview) {
	if o.Total == 0 {
		_, _ = fmt.Fprintln(out, "No POIs found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", o.Total)
	_, _ = fmt.Fprintf(w, "WITH ADDRESS\t%d\n", o.WithAddress)
	_, _ = fmt.Fprintf(w, "WITH RUBRICS\t%d\n", o.WithRubrics)
	_, _ = fmt.Fprintf(w, "RUBRIC MENTIONS\t%d\n", o.RubricMentions)
	_, _ = fmt.Fprintf(w, "UNIQUE RUBRICS\t%d\n", o.UniqueRubrics)
	_, _ = fmt.Fprintf(w, "LON\t%.6f .. %.6f\n", o.Bound.Min.Lon(), o.Bound.Max.Lon())
	_, _ = fmt.Fprintf(w, "LAT\t%.6f .. %.6f\n", o.Bound.Min.Lat(), o.Bound.Max.Lat())
	_, _ = fmt.Fprintf(w, "CENTER\t%.6f,%.6f\n", o.Center.Lon(), o.Center.Lat())
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUBRIC\tCOUNT")
	_, _ = fmt.Fprintln(w, "------\t-----")
	for _, r := range o.TopRubrics {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", r.Rubric, r.Count)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tCOUNT")
	_, _ = fmt.Fprintln(w, "------\t-----")
	for _, s := range o.Sources {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s.Category, s.Count)
	}
	_ = w.Flush()
}
