package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/category"
	"github.com/sells-group/district-poi/internal/table"
	"github.com/sells-group/district-poi/pkg/catalog"
)

// rubricRow is one line of the exported rubric catalog.
type rubricRow struct {
	ID       string `csv:"id"`
	Name     string `csv:"name"`
	Alias    string `csv:"alias"`
	ParentID string `csv:"parent_id"`
	Type     string `csv:"type"`
}

var rubricsCmd = &cobra.Command{
	Use:   "rubrics",
	Short: "Export the regional rubric catalog to CSV",
	RunE:  runRubrics,
}

var parseRubricsCmd = &cobra.Command{
	Use:   "parse-rubrics",
	Short: "Add rubric_ids and first_rubric_id columns to a harvested CSV",
	RunE:  runParseRubrics,
}

func init() {
	rubricsCmd.Flags().String("region", "", "catalog region id (default harvest.region_id)")
	rubricsCmd.Flags().String("out", "", "output CSV (default <output.dir>/rubrics.csv)")
	rootCmd.AddCommand(rubricsCmd)

	parseRubricsCmd.Flags().String("in", "", "input CSV")
	parseRubricsCmd.Flags().String("out", "", "output CSV (default: overwrite input)")
	parseRubricsCmd.Flags().String("charset", "", "input charset (default utf-8)")
	_ = parseRubricsCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(parseRubricsCmd)
}

func runRubrics(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("rubrics"); err != nil {
		return err
	}

	region, _ := cmd.Flags().GetString("region")
	if region == "" {
		region = cfg.Harvest.RegionID
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = outputPath("rubrics.csv")
	}

	client := catalog.NewClient(cfg.Catalog.Key,
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Catalog.TimeoutSecs) * time.Second}),
	)
	entries, err := client.ListRubrics(ctx, region)
	if err != nil {
		return eris.Wrapf(err, "list rubrics for region %s", region)
	}

	rows := make([]rubricRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, rubricRow(e))
	}
	if err := table.WriteRowsFile(out, rows, true); err != nil {
		return err
	}

	zap.L().Info("rubrics exported", zap.String("region", region), zap.Int("rubrics", len(rows)))
	fmt.Printf("%d rubrics written to %s\n", len(rows), out)
	return nil
}

func runParseRubrics(cmd *cobra.Command, _ []string) error {
	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	charset, _ := cmd.Flags().GetString("charset")
	if out == "" {
		out = in
	}

	header, records, err := table.ReadRecordsFile(in, table.ReadOptions{Charset: charset})
	if err != nil {
		return err
	}
	header, records, parsed, err := category.AnnotateRubricIDs(header, records)
	if err != nil {
		return eris.Wrapf(err, "annotate %s", in)
	}
	if err := table.WriteRecordsFile(out, header, records, true); err != nil {
		return err
	}

	fmt.Printf("%d of %d rows have rubric ids, written to %s\n", parsed, len(records), out)
	return nil
}
