package table

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/district-poi/internal/model"
)

// Features converts POIs to GeoJSON point features. Properties carry the same
// fields as the CSV row, minus the coordinates.
func Features(pois []model.POI) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(pois))
	for _, p := range pois {
		props := map[string]interface{}{
			"id":              p.ID,
			"name":            p.Name,
			"address":         p.Address,
			"rubrics":         p.RubricNames(),
			"rubric_ids":      p.RubricIDs(),
			"source_category": p.SourceCategory,
		}
		if p.SourceClass != "" {
			props["source_class"] = p.SourceClass
		}
		if p.Category != "" {
			props["subcategory"] = p.SubcategoryOrUnknown()
			props["category"] = p.Category
		}
		if p.Cluster != nil {
			props["cluster"] = *p.Cluster
		}
		out = append(out, &geojson.Feature{
			ID:         p.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}),
			Properties: props,
		})
	}
	return out
}

// WriteFeatures encodes a FeatureCollection.
func WriteFeatures(w io.Writer, features []*geojson.Feature) error {
	fc := geojson.FeatureCollection{Features: features}
	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "table: marshal geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "table: write geojson")
	}
	return nil
}

// WriteGeoJSON encodes POIs as a point FeatureCollection.
func WriteGeoJSON(w io.Writer, pois []model.POI) error {
	return WriteFeatures(w, Features(pois))
}

// WriteGeoJSONFile writes POIs to path, creating parent directories.
func WriteGeoJSONFile(path string, pois []model.POI) error {
	return writeFile(path, func(w io.Writer) error { return WriteGeoJSON(w, pois) })
}

// WriteFeaturesFile writes features to path, creating parent directories.
func WriteFeaturesFile(path string, features []*geojson.Feature) error {
	return writeFile(path, func(w io.Writer) error { return WriteFeatures(w, features) })
}
