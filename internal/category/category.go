// Package category maps raw catalog rubric ids onto the two-level
// subcategory/category scheme used by the reports.
package category

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/district-poi/internal/model"
)

//go:embed categories.yaml
var defaultMapping []byte

// File is the on-disk layout of a mapping resource.
type File struct {
	Subcategories map[string][]int64  `yaml:"subcategories"`
	Categories    map[string][]string `yaml:"categories"`
}

// Mapping holds the validated lookup tables.
type Mapping struct {
	rubricToSub map[string]string
	subToCat    map[string]string
}

// ValidationError lists every problem found in a mapping resource.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("category: invalid mapping: %s", strings.Join(e.Problems, "; "))
}

// Default returns the mapping embedded in the binary.
func Default() (*Mapping, error) {
	return Parse(defaultMapping)
}

// Load reads a mapping from path. An empty path yields the embedded default.
func Load(path string) (*Mapping, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "category: read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "category: load %s", path)
	}
	return m, nil
}

// Parse decodes and validates a YAML mapping resource.
func Parse(data []byte) (*Mapping, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "category: decode yaml")
	}
	return Build(f)
}

// Build validates f and returns the lookup tables. A rubric listed under two
// subcategories, a subcategory listed under two categories, or a subcategory
// with no category is rejected.
func Build(f File) (*Mapping, error) {
	var problems []string
	m := &Mapping{
		rubricToSub: make(map[string]string),
		subToCat:    make(map[string]string),
	}

	for _, cat := range sortedKeys(f.Categories) {
		if strings.TrimSpace(cat) == "" {
			problems = append(problems, "empty category name")
			continue
		}
		for _, sub := range f.Categories[cat] {
			if prev, ok := m.subToCat[sub]; ok && prev != cat {
				problems = append(problems, fmt.Sprintf("subcategory %q listed under %q and %q", sub, prev, cat))
				continue
			}
			m.subToCat[sub] = cat
		}
	}

	for _, sub := range sortedKeys(f.Subcategories) {
		if strings.TrimSpace(sub) == "" {
			problems = append(problems, "empty subcategory name")
			continue
		}
		if _, ok := m.subToCat[sub]; !ok {
			problems = append(problems, fmt.Sprintf("subcategory %q has no category", sub))
		}
		for _, id := range f.Subcategories[sub] {
			key := strconv.FormatInt(id, 10)
			if prev, ok := m.rubricToSub[key]; ok && prev != sub {
				problems = append(problems, fmt.Sprintf("rubric %s listed under %q and %q", key, prev, sub))
				continue
			}
			m.rubricToSub[key] = sub
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return m, nil
}

// Result is the outcome of categorizing one record. Unmapped levels carry
// model.Unknown, never an empty string.
type Result struct {
	Subcategory string
	Category    string
}

// Mapped reports whether both levels resolved.
func (r Result) Mapped() bool {
	return r.Subcategory != model.Unknown && r.Category != model.Unknown
}

// Subcategory returns the subcategory of the first rubric id present in the
// mapping, scanning in order.
func (m *Mapping) Subcategory(rubricIDs []string) (string, bool) {
	for _, id := range rubricIDs {
		if sub, ok := m.rubricToSub[strings.TrimSpace(id)]; ok {
			return sub, true
		}
	}
	return "", false
}

// Category returns the category of a subcategory.
func (m *Mapping) Category(sub string) (string, bool) {
	cat, ok := m.subToCat[sub]
	return cat, ok
}

// Categorize resolves both levels for a list of rubric ids.
func (m *Mapping) Categorize(rubricIDs []string) Result {
	res := Result{Subcategory: model.Unknown, Category: model.Unknown}
	sub, ok := m.Subcategory(rubricIDs)
	if !ok {
		return res
	}
	res.Subcategory = sub
	if cat, ok := m.Category(sub); ok {
		res.Category = cat
	}
	return res
}

// Apply categorizes every POI in place and returns the count per category.
func (m *Mapping) Apply(pois []model.POI) map[string]int {
	dist := make(map[string]int)
	for i := range pois {
		res := m.Categorize(pois[i].RubricIDs())
		pois[i].Subcategory = res.Subcategory
		pois[i].Category = res.Category
		dist[res.Category]++
	}
	return dist
}

// Categories lists the known category names, sorted.
func (m *Mapping) Categories() []string {
	seen := make(map[string]struct{})
	for _, c := range m.subToCat {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of mapped rubric ids.
func (m *Mapping) Len() int {
	return len(m.rubricToSub)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
