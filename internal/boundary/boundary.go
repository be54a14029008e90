// Package boundary loads a district boundary and answers point containment.
package boundary

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/grid"
)

// ErrNoGeometry is returned when a boundary file holds no polygon geometry.
var ErrNoGeometry = eris.New("boundary: no polygon geometry")

// Boundary is the union of every polygon found in a boundary file.
type Boundary struct {
	geom  orb.MultiPolygon
	bound orb.Bound
}

// Load reads a boundary from a GeoJSON or ESRI Shapefile path.
func Load(path string) (*Boundary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "boundary: stat %s", path)
	}

	var (
		mp  orb.MultiPolygon
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		mp, err = readShapefile(path)
	default:
		mp, err = readGeoJSONFile(path)
	}
	if err != nil {
		return nil, err
	}

	b, err := New(mp)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: load %s", path)
	}

	zap.L().Debug("boundary loaded",
		zap.String("path", path),
		zap.Int("polygons", len(b.geom)),
		zap.Any("bound", b.bound),
	)
	return b, nil
}

// New builds a Boundary from already parsed polygons.
func New(mp orb.MultiPolygon) (*Boundary, error) {
	polys := make(orb.MultiPolygon, 0, len(mp))
	for _, p := range mp {
		if len(p) > 0 && len(p[0]) >= 3 {
			polys = append(polys, p)
		}
	}
	if len(polys) == 0 {
		return nil, ErrNoGeometry
	}
	return &Boundary{geom: polys, bound: polys.Bound()}, nil
}

// Contains reports whether the point lies inside the unified geometry using
// planar containment. Points on the outer ring count as inside.
func (b *Boundary) Contains(lon, lat float64) bool {
	pt := orb.Point{lon, lat}
	if !b.bound.Contains(pt) {
		return false
	}
	return planar.MultiPolygonContains(b.geom, pt)
}

// Bound returns the bounding box of the geometry.
func (b *Boundary) Bound() grid.BBox {
	return grid.FromBound(b.bound)
}

// Centroid returns the area-weighted centroid, used to center maps.
func (b *Boundary) Centroid() orb.Point {
	c, _ := planar.CentroidArea(b.geom)
	return c
}

// Geometry returns the unified geometry.
func (b *Boundary) Geometry() orb.MultiPolygon {
	return b.geom
}

// GeoJSON renders the outline as a GeoJSON feature collection.
func (b *Boundary) GeoJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(b.geom))
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "boundary: marshal geojson")
	}
	return data, nil
}
