package render

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/district-poi/internal/cluster"
	"github.com/sells-group/district-poi/internal/density"
	"github.com/sells-group/district-poi/internal/model"
)

// CategoryPalette colours category layers in alphabetical order.
var CategoryPalette = []string{
	"red", "blue", "green", "purple", "orange", "pink",
	"yellow", "black", "gray", "brown",
}

// ClusterColors colours the first cluster labels; other labels are black.
var ClusterColors = map[int]string{
	cluster.Noise: "gray",
	0:             "red",
	1:             "blue",
	2:             "green",
	3:             "purple",
	4:             "orange",
	5:             "pink",
}

// HullPalette colours hulls in cluster order.
var HullPalette = []string{
	"#e41a1c", "#377eb8", "#4daf4a", "#984ea3",
	"#ff7f00", "#ffff33", "#a65628", "#f781bf",
	"#999999",
}

// ErrNoHulls is returned when no cluster is large enough to outline.
var ErrNoHulls = eris.New("render: no cluster hulls")

// ErrEmpty is returned when a map would have no points.
var ErrEmpty = eris.New("render: no points")

// CategoriesMap draws one hidden layer per category with a layer switcher.
func CategoriesMap(pois []model.POI) (*Page, error) {
	if len(pois) == 0 {
		return nil, ErrEmpty
	}

	byCat := make(map[string][]model.POI)
	for _, p := range pois {
		if p.Category == "" {
			continue
		}
		byCat[p.Category] = append(byCat[p.Category], p)
	}
	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	page := &Page{Title: "Categories", Center: center(pois), Zoom: 12, LayerControl: true}
	for i, c := range cats {
		color := CategoryPalette[i%len(CategoryPalette)]
		layer := Layer{Name: c, Stroke: 3}
		for _, p := range byCat[c] {
			layer.Markers = append(layer.Markers, Marker{
				Lat: p.Lat, Lon: p.Lon, Color: color, Radius: 4,
				Popup: []string{fmt.Sprintf("%s (%s)", p.Name, p.SubcategoryOrUnknown())},
			})
		}
		page.Layers = append(page.Layers, layer)
	}
	return page, nil
}

// ClustersMap draws every POI coloured by cluster label, grouped with the
// marker cluster plugin.
func ClustersMap(pois []model.POI) (*Page, error) {
	if len(pois) == 0 {
		return nil, ErrEmpty
	}

	layer := Layer{Name: "clusters", Show: true, Cluster: true, Stroke: 3}
	for _, p := range pois {
		label := p.ClusterLabel()
		layer.Markers = append(layer.Markers, Marker{
			Lat: p.Lat, Lon: p.Lon, Color: clusterColor(label), Radius: 2,
			Popup: []string{
				p.Name,
				"Category: " + p.CategoryOrUnknown(),
				"Subcategory: " + p.SubcategoryOrUnknown(),
				"Cluster: " + strconv.Itoa(label),
			},
		})
	}
	return &Page{Title: "Clusters", Center: center(pois), Zoom: 12, Layers: []Layer{layer}}, nil
}

// HullsMap outlines each hull with its size and leading categories, and draws
// the clustered points underneath in the hull colour. Noise is not drawn.
func HullsMap(pois []model.POI, hulls []cluster.Hull) (*Page, error) {
	if len(hulls) == 0 {
		return nil, ErrNoHulls
	}

	colors := make(map[int]string, len(hulls))
	for i, h := range hulls {
		colors[h.Cluster] = HullPalette[i%len(HullPalette)]
	}

	fc := &geojson.FeatureCollection{}
	for i, f := range cluster.HullFeatures(hulls) {
		h := hulls[i]
		f.Properties["color"] = colors[h.Cluster]
		f.Properties["tooltip"] = fmt.Sprintf("Кластер %d", h.Cluster)
		f.Properties["popup"] = []string{
			fmt.Sprintf("Кластер %d", h.Cluster),
			fmt.Sprintf("Объектов: %d", h.Count),
			"Топ категорий: " + h.TopDescription(),
		}
		fc.Features = append(fc.Features, f)
	}
	shapes, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "render: encode hulls")
	}

	layer := Layer{Name: "points", Show: true, Stroke: 3}
	for _, p := range pois {
		c, ok := colors[p.ClusterLabel()]
		if !ok {
			if p.ClusterLabel() == cluster.Noise {
				continue
			}
			c = "#000000"
		}
		layer.Markers = append(layer.Markers, Marker{Lat: p.Lat, Lon: p.Lon, Color: c, Radius: 2})
	}

	return &Page{
		Title:  "Functional typology",
		Center: center(pois),
		Zoom:   12,
		Shapes: shapes,
		Layers: []Layer{layer},
	}, nil
}

// KDEMap draws a heatmap for one category with its points on top.
func KDEMap(category string, pois []model.POI, heat []density.HeatPoint) (*Page, error) {
	if len(pois) == 0 {
		return nil, ErrEmpty
	}

	h := &Heat{Radius: 18, Blur: 25, MinOpacity: 0.2, Points: make([][3]float64, 0, len(heat))}
	for _, hp := range heat {
		h.Points = append(h.Points, [3]float64{hp.Lat, hp.Lon, hp.Weight})
	}

	layer := Layer{Name: category, Show: true, Stroke: 3}
	for _, p := range pois {
		layer.Markers = append(layer.Markers, Marker{
			Lat: p.Lat, Lon: p.Lon, Color: "black", Radius: 2, Popup: []string{p.Name},
		})
	}

	return &Page{
		Title:  "KDE: " + category,
		Center: center(pois),
		Zoom:   13,
		Heat:   h,
		Layers: []Layer{layer},
	}, nil
}

// AccessibilityMap draws the distance grid over the boundary with a hidden
// service layer and a distance legend.
func AccessibilityMap(slug string, boundary json.RawMessage, services []model.POI, cells []density.Cell) (*Page, error) {
	if len(cells) == 0 {
		return nil, ErrEmpty
	}

	grid := Layer{Name: fmt.Sprintf("Доступность (%s): сетка", slug), Show: true}
	var sumLat, sumLon float64
	for _, c := range cells {
		grid.Markers = append(grid.Markers, Marker{
			Lat: c.Lat, Lon: c.Lon, Color: c.Color(), Radius: 7,
			Popup: []string{fmt.Sprintf("Расстояние: %d м", int(math.Round(c.DistM)))},
		})
		sumLat += c.Lat
		sumLon += c.Lon
	}

	points := Layer{Name: fmt.Sprintf("Точки (%s): объектов %d", slug, len(services)), Stroke: 1}
	for _, p := range services {
		points.Markers = append(points.Markers, Marker{
			Lat: p.Lat, Lon: p.Lon, Color: "#000000", Radius: 3, Popup: []string{p.Name},
		})
	}

	legend := &Legend{Caption: fmt.Sprintf("Доступность: расстояние до ближайшего объекта (%s), м", slug)}
	for i, color := range density.BinColors {
		label := fmt.Sprintf("%.0f–%.0f", density.Bins[i], density.Bins[i+1])
		if i == len(density.BinColors)-1 {
			label = fmt.Sprintf("≥ %.0f", density.Bins[i])
		}
		legend.Items = append(legend.Items, LegendItem{Color: color, Label: label})
	}

	n := float64(len(cells))
	return &Page{
		Title:        "Accessibility: " + slug,
		Center:       [2]float64{sumLat / n, sumLon / n},
		Zoom:         12,
		Boundary:     boundary,
		Layers:       []Layer{grid, points},
		Legend:       legend,
		LayerControl: true,
	}, nil
}

func clusterColor(label int) string {
	if c, ok := ClusterColors[label]; ok {
		return c
	}
	return "black"
}

// center is the mean position as [lat, lon].
func center(pois []model.POI) [2]float64 {
	var lat, lon float64
	for _, p := range pois {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(pois))
	return [2]float64{lat / n, lon / n}
}
