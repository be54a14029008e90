package boundary

import (
	"encoding/json"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

func readGeoJSONFile(path string) (orb.MultiPolygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", path)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON extracts every Polygon and MultiPolygon from a GeoJSON
// FeatureCollection, Feature or bare geometry document.
func ParseGeoJSON(data []byte) (orb.MultiPolygon, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "boundary: decode geojson")
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, eris.Wrap(err, "boundary: decode feature collection")
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, eris.Wrap(err, "boundary: decode feature")
		}
		geoms = append(geoms, f.Geometry)
	case "":
		return nil, eris.New("boundary: geojson document has no type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, eris.Wrap(err, "boundary: decode geometry")
		}
		geoms = append(geoms, g.Geometry())
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		mp = appendPolygons(mp, g)
	}
	return mp, nil
}

func appendPolygons(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		return append(mp, v)
	case orb.MultiPolygon:
		return append(mp, v...)
	case orb.Collection:
		for _, sub := range v {
			mp = appendPolygons(mp, sub)
		}
	}
	return mp
}
