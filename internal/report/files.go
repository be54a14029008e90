package report

import (
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/district-poi/internal/table"
)

// Report file names inside the reports directory.
const (
	ClusterCountsFile       = "cluster_counts.csv"
	CategoryCountsFile      = "category_counts.csv"
	ClusterCategoryFile     = "cluster_by_category.csv"
	ClusterCategoryWideFile = "cluster_by_category_wide.csv"
	ClusterSubcategoryFile  = "cluster_subcategory_top.csv"
	WorkbookFile            = "summary.xlsx"
)

// WriteCSV writes every table of s into dir as UTF-8 CSV with a byte order
// mark and returns the written paths. Cluster tables are skipped when s is
// not clustered.
func WriteCSV(dir string, s Summary) ([]string, error) {
	var written []string
	write := func(name string, fn func(path string) error) error {
		path := filepath.Join(dir, name)
		if err := fn(path); err != nil {
			return eris.Wrapf(err, "report: write %s", name)
		}
		written = append(written, path)
		return nil
	}

	if err := write(CategoryCountsFile, func(p string) error {
		return table.WriteRowsFile(p, s.Categories, true)
	}); err != nil {
		return written, err
	}
	if !s.Clustered {
		return written, nil
	}

	if err := write(ClusterCountsFile, func(p string) error {
		return table.WriteRowsFile(p, s.Clusters, true)
	}); err != nil {
		return written, err
	}
	if err := write(ClusterCategoryFile, func(p string) error {
		return table.WriteRowsFile(p, s.ClusterCategories, true)
	}); err != nil {
		return written, err
	}
	if err := write(ClusterCategoryWideFile, func(p string) error {
		header, records := s.Wide()
		return table.WriteRecordsFile(p, header, records, true)
	}); err != nil {
		return written, err
	}
	if err := write(ClusterSubcategoryFile, func(p string) error {
		return table.WriteRowsFile(p, s.Subcategories, true)
	}); err != nil {
		return written, err
	}
	return written, nil
}

// WriteXLSX saves the same tables as WriteCSV as sheets of one workbook.
func WriteXLSX(path string, s Summary) error {
	f := xlsx.NewFile()

	cats := make([][]any, 0, len(s.Categories))
	for _, c := range s.Categories {
		cats = append(cats, []any{c.Category, c.Count})
	}
	if err := addSheet(f, "categories", []string{"category", "count"}, cats); err != nil {
		return err
	}

	if s.Clustered {
		clusters := make([][]any, 0, len(s.Clusters))
		for _, c := range s.Clusters {
			clusters = append(clusters, []any{c.Cluster, c.Count})
		}
		if err := addSheet(f, "clusters", []string{"cluster", "count"}, clusters); err != nil {
			return err
		}

		header, records := s.Wide()
		wide := make([][]any, 0, len(records))
		for _, rec := range records {
			row := make([]any, len(rec))
			for i, v := range rec {
				n, _ := strconv.Atoi(v) //nolint:errcheck // Wide only emits integers
				row[i] = n
			}
			wide = append(wide, row)
		}
		if err := addSheet(f, "cluster_by_category", header, wide); err != nil {
			return err
		}

		subs := make([][]any, 0, len(s.Subcategories))
		for _, r := range s.Subcategories {
			subs = append(subs, []any{r.Cluster, r.Subcategory, r.Count})
		}
		if err := addSheet(f, "cluster_subcategories", []string{"cluster", "subcategory", "count"}, subs); err != nil {
			return err
		}
	}

	if err := table.EnsureDir(path); err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func addSheet(f *xlsx.File, name string, header []string, rows [][]any) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add sheet %s", name)
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			cell := row.AddCell()
			switch v := v.(type) {
			case int:
				cell.SetInt(v)
			case string:
				cell.SetString(v)
			}
		}
	}
	return nil
}
