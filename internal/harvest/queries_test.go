package harvest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/district-poi/internal/config"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/table"
)

func TestDefaultQueries(t *testing.T) {
	qs, err := DefaultQueries()
	require.NoError(t, err)
	require.Len(t, qs, 36)
	require.NoError(t, validateQueries(qs))

	assert.Equal(t, config.QuerySpec{Code: "cafe", Class: "food", Text: "кафе"}, qs[0])
	assert.Equal(t, "детский сад", qs[6].Text)
	assert.Equal(t, "42903", qs[15].RubricID)
	assert.Equal(t, "mfc", qs[35].Code)

	codes := make(map[string]bool)
	for _, q := range qs {
		assert.False(t, codes[q.Code], "duplicate code %s", q.Code)
		codes[q.Code] = true
	}
}

func TestSelectQueries(t *testing.T) {
	qs, err := DefaultQueries()
	require.NoError(t, err)

	all, err := SelectQueries(qs, nil)
	require.NoError(t, err)
	assert.Len(t, all, 36)

	health, err := SelectQueries(qs, []string{"health", "mfc"})
	require.NoError(t, err)
	require.Len(t, health, 3)
	assert.Equal(t, "pharmacy", health[0].Code)
	assert.Equal(t, "clinic", health[1].Code)
	assert.Equal(t, "mfc", health[2].Code)

	_, err = SelectQueries(qs, []string{"pharmacy", "zoo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"zoo"`)
}

func TestSourceCategory(t *testing.T) {
	assert.Equal(t, "pharmacy", sourceCategory(config.QuerySpec{Code: "pharmacy", Text: "аптека"}))
	assert.Equal(t, "детский_сад", sourceCategory(config.QuerySpec{Text: "детский сад"}))
	assert.Equal(t, "rubric_168", sourceCategory(config.QuerySpec{RubricID: "168"}))
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink := FileSink{Dir: dir, Prefix: "kirovsky"}

	q := config.QuerySpec{Class: "education", Text: "детский сад"}
	assert.Equal(t, "kirovsky_education_детский_сад", sink.BaseName(q))
	assert.Equal(t, "kirovsky_parks", sink.BaseName(config.QuerySpec{Code: "parks", RubricID: "168"}))

	pois := []model.POI{
		{ID: "1", Name: "Сад №1", Lon: 30.01, Lat: 59.85, SourceCategory: "детский_сад"},
		{ID: "2", Name: "Сад №2", Lon: 30.02, Lat: 59.86, SourceCategory: "детский_сад"},
	}
	require.NoError(t, sink.WriteQuery(q, pois))

	got, err := table.ReadFile(filepath.Join(dir, "kirovsky_education_детский_сад.csv"), table.ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, got, len(pois))

	data, err := os.ReadFile(filepath.Join(dir, "kirovsky_education_детский_сад.geojson"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
}
