package density

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/quadtree"
	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/grid"
)

// Bins are the walking-distance class edges in meters.
var Bins = []float64{0, 200, 400, 600, 800, 1200, 2000}

// BinColors holds one color per class, green (close) to red (far).
var BinColors = []string{"#1a9850", "#66bd63", "#a6d96a", "#fee08b", "#fdae61", "#d73027"}

// ErrNoServices is returned when an accessibility grid has nothing to
// measure against.
var ErrNoServices = eris.New("density: no service points")

// Area is the district an accessibility grid covers.
type Area interface {
	Contains(lon, lat float64) bool
	Bound() grid.BBox
}

// Cell is one accessibility grid sample.
type Cell struct {
	Lat   float64 `csv:"lat" json:"lat"`
	Lon   float64 `csv:"lon" json:"lon"`
	DistM float64 `csv:"dist_m" json:"dist_m"`
}

// Class returns the distance class of the cell.
func (c Cell) Class() int {
	return ClassifyBin(c.DistM)
}

// Color returns the class color of the cell.
func (c Cell) Color() string {
	return BinColors[c.Class()]
}

// ClassifyBin returns the index of the class containing d. Distances past the
// last edge fall in the last class.
func ClassifyBin(d float64) int {
	for i := 0; i < len(Bins)-1; i++ {
		if d >= Bins[i] && d < Bins[i+1] {
			return i
		}
	}
	return len(BinColors) - 1
}

type servicePoint struct {
	merc orb.Point
	ll   orb.Point
}

func (s servicePoint) Point() orb.Point { return s.merc }

// Accessibility samples the area every step meters on a Mercator grid and
// records the great-circle distance from each sample inside the area to the
// nearest service point.
func Accessibility(area Area, services []orb.Point, step float64) ([]Cell, error) {
	if !(step > 0) {
		return nil, eris.Errorf("density: invalid grid step %v", step)
	}
	if len(services) == 0 {
		return nil, ErrNoServices
	}

	var sb orb.Bound
	pts := make([]servicePoint, len(services))
	for i, s := range services {
		pts[i] = servicePoint{merc: project.WGS84.ToMercator(s), ll: s}
		if i == 0 {
			sb = pts[i].merc.Bound()
		} else {
			sb = sb.Extend(pts[i].merc)
		}
	}
	qt := quadtree.New(sb.Pad(1))
	for _, p := range pts {
		if err := qt.Add(p); err != nil {
			return nil, eris.Wrap(err, "density: index service point")
		}
	}

	b := area.Bound()
	lo := project.WGS84.ToMercator(orb.Point{b.MinLon, b.MinLat})
	hi := project.WGS84.ToMercator(orb.Point{b.MaxLon, b.MaxLat})

	var cells []Cell
	for i := 0; ; i++ {
		x := lo[0] + float64(i)*step
		if x >= hi[0] {
			break
		}
		for j := 0; ; j++ {
			y := lo[1] + float64(j)*step
			if y >= hi[1] {
				break
			}
			ll := project.Mercator.ToWGS84(orb.Point{x, y})
			if !area.Contains(ll[0], ll[1]) {
				continue
			}
			nearest := qt.Find(orb.Point{x, y}).(servicePoint)
			cells = append(cells, Cell{Lat: ll[1], Lon: ll[0], DistM: geo.Distance(ll, nearest.ll)})
		}
	}
	return cells, nil
}

// Stats summarizes cell distances.
type Stats struct {
	Count  int
	Mean   float64
	Min    float64
	Median float64
	P75    float64
	Max    float64
}

// Describe computes distance statistics over cells.
func Describe(cells []Cell) Stats {
	if len(cells) == 0 {
		return Stats{}
	}
	d := make([]float64, len(cells))
	var sum float64
	for i, c := range cells {
		d[i] = c.DistM
		sum += c.DistM
	}
	sort.Float64s(d)
	return Stats{
		Count:  len(d),
		Mean:   sum / float64(len(d)),
		Min:    d[0],
		Median: quantile(d, 0.5),
		P75:    quantile(d, 0.75),
		Max:    d[len(d)-1],
	}
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
