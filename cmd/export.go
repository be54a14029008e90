package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sells-group/district-poi/internal/render"
	"github.com/sells-group/district-poi/internal/table"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the POI table as CSV and GeoJSON",
	RunE:  runExport,
}

func init() {
	sourceFlags(exportCmd)
	exportCmd.Flags().String("name", "pois", "base file name")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")

	pois, err := sourceFrom(cmd).load(cmd.Context())
	if err != nil {
		return err
	}

	dir := outputPath(render.ExportsDir)
	csvPath := filepath.Join(dir, name+".csv")
	if err := table.WriteFile(csvPath, pois, true); err != nil {
		return err
	}
	gjPath := filepath.Join(dir, name+".geojson")
	if err := table.WriteGeoJSONFile(gjPath, pois); err != nil {
		return err
	}

	fmt.Printf("Exported %d POIs\n  %s\n  %s\n", len(pois), csvPath, gjPath)
	return nil
}
