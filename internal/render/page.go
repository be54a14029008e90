// Package render turns POI tables and their derived layers into standalone
// Leaflet HTML maps.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/table"
)

//go:embed templates/map.html.tmpl
var templates embed.FS

var mapTemplate = template.Must(template.ParseFS(templates, "templates/map.html.tmpl"))

// Marker is one circle marker. Popup lines are rendered as text; the first
// line is bold.
type Marker struct {
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	Color  string   `json:"color"`
	Radius float64  `json:"radius"`
	Popup  []string `json:"popup,omitempty"`
}

// Layer is a toggleable group of markers.
type Layer struct {
	Name    string   `json:"name"`
	Show    bool     `json:"show"`
	Cluster bool     `json:"cluster"`
	Stroke  float64  `json:"stroke"`
	Markers []Marker `json:"markers"`
}

// Heat is a heatmap overlay of [lat, lon, weight] triples.
type Heat struct {
	Points     [][3]float64 `json:"points"`
	Radius     int          `json:"radius"`
	Blur       int          `json:"blur"`
	MinOpacity float64      `json:"min_opacity"`
}

// LegendItem is one swatch of a legend.
type LegendItem struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

// Legend is a colour key drawn in the map corner.
type Legend struct {
	Caption string       `json:"caption"`
	Items   []LegendItem `json:"items"`
}

// Page is everything one map document shows. Boundary and Shapes are GeoJSON;
// shape features style themselves through color, tooltip and popup properties.
type Page struct {
	Title        string          `json:"title"`
	Center       [2]float64      `json:"center"`
	Zoom         int             `json:"zoom"`
	Boundary     json.RawMessage `json:"boundary,omitempty"`
	Shapes       json.RawMessage `json:"shapes,omitempty"`
	Layers       []Layer         `json:"layers"`
	Heat         *Heat           `json:"heat,omitempty"`
	Legend       *Legend         `json:"legend,omitempty"`
	LayerControl bool            `json:"layer_control"`
}

// UsesMarkerCluster reports whether any layer groups its markers.
func (p *Page) UsesMarkerCluster() bool {
	for _, l := range p.Layers {
		if l.Cluster {
			return true
		}
	}
	return false
}

// Render writes p as an HTML document.
func (p *Page) Render(w io.Writer) error {
	return eris.Wrap(mapTemplate.Execute(w, p), "render: execute template")
}

// WriteFile renders p to path, creating parent directories.
func (p *Page) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		return err
	}
	if err := table.EnsureDir(path); err != nil {
		return err
	}
	return eris.Wrapf(os.WriteFile(path, buf.Bytes(), 0o644), "render: write %s", path)
}
