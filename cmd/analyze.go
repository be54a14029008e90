package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/render"
	"github.com/sells-group/district-poi/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Write category and cluster summary tables (CSV and XLSX)",
	RunE:  runAnalyze,
}

func init() {
	sourceFlags(analyzeCmd)
	analyzeCmd.Flags().Bool("no-xlsx", false, "skip the summary workbook")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	noXLSX, _ := cmd.Flags().GetBool("no-xlsx")

	pois, err := sourceFrom(cmd).load(cmd.Context())
	if err != nil {
		return err
	}

	s := report.Build(pois)
	if !s.Clustered {
		zap.L().Warn("no cluster labels, writing category tables only")
	}

	dir := outputPath(render.ReportsDir)
	files, err := report.WriteCSV(dir, s)
	if err != nil {
		return err
	}
	if !noXLSX {
		path := filepath.Join(dir, report.WorkbookFile)
		if err := report.WriteXLSX(path, s); err != nil {
			return err
		}
		files = append(files, path)
	}

	fmt.Printf("Summarized %d POIs across %d categories\n", s.Total, len(s.Categories))
	for _, f := range files {
		fmt.Println("  " + f)
	}
	return nil
}
