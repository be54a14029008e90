// Package grid partitions a bounding box into a uniform tile grid used to
// scope catalog queries below the API page cap.
package grid

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// BBox is an axis-aligned lon/lat rectangle.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// FromBound converts an orb bound to a BBox.
func FromBound(b orb.Bound) BBox {
	return BBox{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
}

// Bound converts the box back to an orb bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// Contains reports whether the point lies in the closed box.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Tile is one rectangular cell of a Grid.
type Tile struct {
	Index  int `json:"index"`
	Row    int `json:"row"`
	Col    int `json:"col"`
	BBox
}

// Point1 returns the top-left corner as the catalog expects it ("lon,lat").
func (t Tile) Point1() string {
	return formatCoord(t.MinLon) + "," + formatCoord(t.MaxLat)
}

// Point2 returns the bottom-right corner as the catalog expects it ("lon,lat").
func (t Tile) Point2() string {
	return formatCoord(t.MaxLon) + "," + formatCoord(t.MinLat)
}

func (t Tile) String() string {
	return fmt.Sprintf("tile %d [%s .. %s]", t.Index, t.Point1(), t.Point2())
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Grid is an nx by ny partition of a box, row-major with the top row first.
type Grid struct {
	Box   BBox
	NX    int
	NY    int
	Tiles []Tile
}

// Partition splits box into nx columns and ny rows of equal size. Adjacent
// tiles share the exact same float edge values.
func Partition(box BBox, nx, ny int) (*Grid, error) {
	if nx < 1 || ny < 1 {
		return nil, eris.Errorf("grid: invalid dimensions %dx%d", nx, ny)
	}
	if !(box.MaxLon > box.MinLon) || !(box.MaxLat > box.MinLat) {
		return nil, eris.Errorf("grid: degenerate box %+v", box)
	}

	g := &Grid{Box: box, NX: nx, NY: ny, Tiles: make([]Tile, 0, nx*ny)}
	for row := 0; row < ny; row++ {
		for col := 0; col < nx; col++ {
			g.Tiles = append(g.Tiles, Tile{
				Index: row*nx + col,
				Row:   row,
				Col:   col,
				BBox: BBox{
					MinLon: g.lonEdge(col),
					MaxLon: g.lonEdge(col + 1),
					MaxLat: g.latEdge(row),
					MinLat: g.latEdge(row + 1),
				},
			})
		}
	}
	return g, nil
}

// lonEdge returns the longitude of the i-th vertical edge, left to right.
func (g *Grid) lonEdge(i int) float64 {
	if i >= g.NX {
		return g.Box.MaxLon
	}
	return g.Box.MinLon + float64(i)*(g.Box.MaxLon-g.Box.MinLon)/float64(g.NX)
}

// latEdge returns the latitude of the j-th horizontal edge, top to bottom.
func (g *Grid) latEdge(j int) float64 {
	if j <= 0 {
		return g.Box.MaxLat
	}
	if j >= g.NY {
		return g.Box.MinLat
	}
	return g.Box.MaxLat - float64(j)*(g.Box.MaxLat-g.Box.MinLat)/float64(g.NY)
}

// Owns reports whether t is the single tile responsible for the point.
// Cells are half-open on their max edges except along the outer border, so
// every point of the box has exactly one owner.
func (g *Grid) Owns(t Tile, lon, lat float64) bool {
	if !t.Contains(lon, lat) {
		return false
	}
	if lon == t.MaxLon && t.Col < g.NX-1 {
		return false
	}
	if lat == t.MinLat && t.Row < g.NY-1 {
		return false
	}
	return true
}

// Locate returns the tile owning the point, or false if it lies outside the box.
func (g *Grid) Locate(lon, lat float64) (Tile, bool) {
	if !g.Box.Contains(lon, lat) {
		return Tile{}, false
	}
	for _, t := range g.Tiles {
		if g.Owns(t, lon, lat) {
			return t, true
		}
	}
	return Tile{}, false
}
