package harvest

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/config"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/table"
)

// FileSink writes one CSV and one GeoJSON file per query into Dir.
type FileSink struct {
	Dir    string
	Prefix string
}

// BaseName returns the file name without extension for q:
// <prefix>_<class>_<code>, with spaces replaced by underscores.
func (s FileSink) BaseName(q config.QuerySpec) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Prefix, q.Class, sourceCategory(q)} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, strings.ReplaceAll(p, " ", "_"))
		}
	}
	return strings.Join(parts, "_")
}

// WriteQuery implements Sink.
func (s FileSink) WriteQuery(q config.QuerySpec, pois []model.POI) error {
	base := filepath.Join(s.Dir, s.BaseName(q))
	if err := table.WriteFile(base+".csv", pois, true); err != nil {
		return eris.Wrapf(err, "harvest: write %s.csv", base)
	}
	if err := table.WriteGeoJSONFile(base+".geojson", pois); err != nil {
		return eris.Wrapf(err, "harvest: write %s.geojson", base)
	}
	return nil
}
