package harvest

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/district-poi/internal/config"
)

//go:embed queries.yaml
var defaultQueries []byte

// DefaultQueries returns the embedded query list.
func DefaultQueries() ([]config.QuerySpec, error) {
	var doc struct {
		Queries []config.QuerySpec `yaml:"queries"`
	}
	if err := yaml.Unmarshal(defaultQueries, &doc); err != nil {
		return nil, eris.Wrap(err, "harvest: parse default queries")
	}
	return doc.Queries, nil
}

// SelectQueries filters queries by code or class. An empty filter keeps
// every query. Unknown names are an error so typos do not silently skip work.
func SelectQueries(all []config.QuerySpec, names []string) ([]config.QuerySpec, error) {
	if len(names) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = false
	}

	var out []config.QuerySpec
	for _, q := range all {
		hit := false
		for _, key := range []string{q.Code, q.Class} {
			if _, ok := want[key]; ok && key != "" {
				want[key] = true
				hit = true
			}
		}
		if hit {
			out = append(out, q)
		}
	}

	for n, used := range want {
		if !used {
			return nil, eris.Errorf("harvest: unknown query or class %q", n)
		}
	}
	return out, nil
}

// validateQueries rejects queries that name neither text nor rubric.
func validateQueries(qs []config.QuerySpec) error {
	if len(qs) == 0 {
		return eris.New("harvest: no queries")
	}
	for i, q := range qs {
		if q.Text == "" && q.RubricID == "" {
			return eris.Errorf("harvest: query %d (%s) has neither text nor rubric_id", i, q.Code)
		}
		if q.Text != "" && q.RubricID != "" {
			return eris.Errorf("harvest: query %d (%s) has both text and rubric_id", i, q.Code)
		}
	}
	return nil
}

// sourceCategory is the value stored on every POI a query produces.
func sourceCategory(q config.QuerySpec) string {
	if q.Code != "" {
		return q.Code
	}
	if q.Text != "" {
		return strings.ReplaceAll(q.Text, " ", "_")
	}
	return "rubric_" + q.RubricID
}
