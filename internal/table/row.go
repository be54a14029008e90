// Package table converts POIs to and from flat CSV and GeoJSON files.
package table

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/category"
	"github.com/sells-group/district-poi/internal/model"
)

// Row is the flat CSV form of a POI. Every column is optional on input
// except id, lon and lat.
type Row struct {
	ID             string `csv:"id"`
	Name           string `csv:"name"`
	Address        string `csv:"address"`
	Lon            string `csv:"lon"`
	Lat            string `csv:"lat"`
	Rubrics        string `csv:"rubrics"`
	RubricIDs      string `csv:"rubric_ids"`
	SourceCategory string `csv:"source_category"`
	SourceClass    string `csv:"source_class"`
	RegionID       string `csv:"region_id"`
	CollectedAt    string `csv:"collected_at"`
	Subcategory    string `csv:"subcategory"`
	Category       string `csv:"category"`
	Cluster        string `csv:"cluster"`
}

// FromPOI flattens p. Rubric names are written as a JSON list of strings,
// ids joined with ",".
func FromPOI(p model.POI) Row {
	r := Row{
		ID:             p.ID,
		Name:           p.Name,
		Address:        p.Address,
		Lon:            formatFloat(p.Lon),
		Lat:            formatFloat(p.Lat),
		Rubrics:        encodeNames(p.RubricNames()),
		RubricIDs:      strings.Join(p.RubricIDs(), ","),
		SourceCategory: p.SourceCategory,
		SourceClass:    p.SourceClass,
		RegionID:       p.RegionID,
		Subcategory:    p.Subcategory,
		Category:       p.Category,
	}
	if !p.CollectedAt.IsZero() {
		r.CollectedAt = p.CollectedAt.UTC().Format(time.RFC3339)
	}
	if p.Cluster != nil {
		r.Cluster = strconv.Itoa(*p.Cluster)
	}
	return r
}

// POI parses the row. Rubric ids come from rubric_ids when present and are
// otherwise extracted from a serialized rubrics column.
func (r Row) POI() (model.POI, error) {
	p := model.POI{
		ID:             strings.TrimSpace(r.ID),
		Name:           r.Name,
		Address:        r.Address,
		SourceCategory: r.SourceCategory,
		SourceClass:    r.SourceClass,
		RegionID:       r.RegionID,
		Subcategory:    r.Subcategory,
		Category:       r.Category,
	}
	if p.ID == "" {
		return p, eris.New("table: missing id")
	}

	var err error
	if p.Lon, err = strconv.ParseFloat(strings.TrimSpace(r.Lon), 64); err != nil {
		return p, eris.Wrapf(err, "table: invalid lon for %s", p.ID)
	}
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(r.Lat), 64); err != nil {
		return p, eris.Wrapf(err, "table: invalid lat for %s", p.ID)
	}

	if c := strings.TrimSpace(r.Cluster); c != "" {
		// Spreadsheet tools write integer columns as "3.0".
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return p, eris.Wrapf(err, "table: invalid cluster for %s", p.ID)
		}
		p.Cluster = model.IntPtr(int(f))
	}

	if ts := strings.TrimSpace(r.CollectedAt); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			p.CollectedAt = t
		}
	}

	p.Rubrics = r.rubrics()
	return p, nil
}

func (r Row) rubrics() []model.Rubric {
	names, listed := decodeNames(r.Rubrics)
	ids := category.ParseRubricIDs(r.RubricIDs)
	if len(ids) == 0 && !listed {
		ids = category.ParseRubricIDs(r.Rubrics)
	}

	if len(ids) == 0 {
		out := make([]model.Rubric, 0, len(names))
		for _, n := range names {
			out = append(out, model.Rubric{Name: n})
		}
		return out
	}

	out := make([]model.Rubric, 0, len(ids))
	for i, id := range ids {
		rb := model.Rubric{ID: id}
		if len(names) == len(ids) {
			rb.Name = names[i]
		}
		out = append(out, rb)
	}
	return out
}

func encodeNames(names []string) string {
	if len(names) == 0 {
		return ""
	}
	data, err := json.Marshal(names)
	if err != nil {
		return ""
	}
	return string(data)
}

// decodeNames reads rubric names from the rubrics column. listed reports a
// JSON list of strings; older files carry a comma-separated list instead.
// Serialized rubric objects and id lists yield no names.
func decodeNames(raw string) (names []string, listed bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, false
		}
		for _, n := range list {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		return names, true
	}
	if strings.ContainsAny(raw, "{[") {
		return nil, false
	}
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names, false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
