package render

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/district-poi/internal/cluster"
	"github.com/sells-group/district-poi/internal/density"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/table"
)

// Output subdirectories under the renderer root.
const (
	MapsDir          = "maps"
	KDEDir           = "maps_kde"
	AccessibilityDir = "maps_accessibility"
	ReportsDir       = "reports"
	ExportsDir       = "exports"
)

// District is the boundary accessibility maps sample and outline.
type District interface {
	density.Area
	GeoJSON() ([]byte, error)
}

// Options tunes the derived layers.
type Options struct {
	KDE           density.KDEParams
	KDECategories []string
	StepM         float64
	// Accessibility lists service sets; "a+b" measures against either category.
	Accessibility []string
	TopN          int
}

// Renderer writes maps into an output tree. Each method touches its own
// files only, so methods may run concurrently.
type Renderer struct {
	dir      string
	district District
	opts     Options
	log      *zap.Logger
}

// New creates a Renderer rooted at dir. district may be nil when no
// accessibility maps are rendered.
func New(dir string, district District, opts Options) *Renderer {
	if opts.TopN <= 0 {
		opts.TopN = 3
	}
	return &Renderer{
		dir:      dir,
		district: district,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "render")),
	}
}

// Categories writes maps/categories.html.
func (r *Renderer) Categories(pois []model.POI) (string, error) {
	page, err := CategoriesMap(pois)
	if err != nil {
		return "", err
	}
	return r.write(page, MapsDir, "categories.html")
}

// Clusters writes maps/clusters.html.
func (r *Renderer) Clusters(pois []model.POI) (string, error) {
	page, err := ClustersMap(pois)
	if err != nil {
		return "", err
	}
	return r.write(page, MapsDir, "clusters.html")
}

// Hulls writes maps/cluster_hulls.html and exports/cluster_hulls.geojson.
func (r *Renderer) Hulls(pois []model.POI) ([]string, error) {
	hulls := cluster.Hulls(pois, r.opts.TopN)
	page, err := HullsMap(pois, hulls)
	if err != nil {
		return nil, err
	}
	html, err := r.write(page, MapsDir, "cluster_hulls.html")
	if err != nil {
		return nil, err
	}

	gj := filepath.Join(r.dir, ExportsDir, "cluster_hulls.geojson")
	if err := table.WriteFeaturesFile(gj, cluster.HullFeatures(hulls)); err != nil {
		return []string{html}, eris.Wrap(err, "render: write hull geojson")
	}
	r.log.Info("hulls rendered", zap.Int("hulls", len(hulls)))
	return []string{html, gj}, nil
}

// KDE writes maps_kde/kde_<category>.html for each configured category.
// Categories with too few points are skipped.
func (r *Renderer) KDE(ctx context.Context, pois []model.POI) ([]string, error) {
	byCat := groupByCategory(pois)

	var written []string
	for _, cat := range r.opts.KDECategories {
		if err := ctx.Err(); err != nil {
			return written, eris.Wrap(err, "render: kde canceled")
		}

		sub := byCat[cat]
		heat, err := density.KDE(points(sub), r.opts.KDE)
		if errors.Is(err, density.ErrTooFewPoints) {
			r.log.Warn("kde skipped", zap.String("category", cat), zap.Int("points", len(sub)))
			continue
		}
		if err != nil {
			return written, eris.Wrapf(err, "render: kde %s", cat)
		}

		page, err := KDEMap(cat, sub, heat)
		if err != nil {
			return written, err
		}
		path, err := r.write(page, KDEDir, "kde_"+cat+".html")
		if err != nil {
			return written, err
		}
		r.log.Info("kde rendered", zap.String("category", cat), zap.Int("points", len(sub)), zap.Int("cells", len(heat)))
		written = append(written, path)
	}
	return written, nil
}

// Accessibility writes maps_accessibility/accessibility_<slug>.html and
// reports/accessibility_<slug>_grid.csv for each configured service set.
func (r *Renderer) Accessibility(ctx context.Context, pois []model.POI) ([]string, error) {
	if r.district == nil {
		return nil, eris.New("render: accessibility needs a district boundary")
	}
	outline, err := r.district.GeoJSON()
	if err != nil {
		return nil, err
	}

	var written []string
	for _, set := range r.opts.Accessibility {
		if err := ctx.Err(); err != nil {
			return written, eris.Wrap(err, "render: accessibility canceled")
		}

		cats := strings.Split(set, "+")
		slug := strings.Join(cats, "_")
		services := filterCategories(pois, cats)
		if len(services) == 0 {
			return written, eris.Wrapf(density.ErrNoServices, "render: no POIs in %s", set)
		}

		cells, err := density.Accessibility(r.district, points(services), r.opts.StepM)
		if err != nil {
			return written, eris.Wrapf(err, "render: accessibility %s", slug)
		}
		st := density.Describe(cells)
		r.log.Info("accessibility grid",
			zap.String("set", slug),
			zap.Int("services", len(services)),
			zap.Int("cells", st.Count),
			zap.Float64("mean_m", st.Mean),
			zap.Float64("median_m", st.Median),
			zap.Float64("p75_m", st.P75),
			zap.Float64("max_m", st.Max),
		)

		page, err := AccessibilityMap(slug, outline, services, cells)
		if err != nil {
			return written, err
		}
		path, err := r.write(page, AccessibilityDir, "accessibility_"+slug+".html")
		if err != nil {
			return written, err
		}
		written = append(written, path)

		csvPath := filepath.Join(r.dir, ReportsDir, "accessibility_"+slug+"_grid.csv")
		if err := writeGrid(csvPath, slug, cells); err != nil {
			return written, err
		}
		written = append(written, csvPath)
	}
	return written, nil
}

// All renders every map concurrently and returns the written paths. Hull and
// accessibility maps are skipped when their inputs are missing.
func (r *Renderer) All(ctx context.Context, pois []model.POI) ([]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([][]string, 5)

	g.Go(func() error {
		p, err := r.Categories(pois)
		results[0] = []string{p}
		return err
	})
	g.Go(func() error {
		p, err := r.Clusters(pois)
		results[1] = []string{p}
		return err
	})
	g.Go(func() error {
		paths, err := r.Hulls(pois)
		if errors.Is(err, ErrNoHulls) {
			r.log.Warn("hull map skipped: no clusters")
			return nil
		}
		results[2] = paths
		return err
	})
	g.Go(func() error {
		paths, err := r.KDE(ctx, pois)
		results[3] = paths
		return err
	})
	if r.district != nil {
		g.Go(func() error {
			paths, err := r.Accessibility(ctx, pois)
			results[4] = paths
			return err
		})
	}

	err := g.Wait()
	var written []string
	for _, rs := range results {
		for _, p := range rs {
			if p != "" {
				written = append(written, p)
			}
		}
	}
	return written, err
}

func (r *Renderer) write(page *Page, sub, name string) (string, error) {
	path := filepath.Join(r.dir, sub, name)
	if err := page.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}

func writeGrid(path, slug string, cells []density.Cell) error {
	records := make([][]string, 0, len(cells))
	for _, c := range cells {
		records = append(records, []string{
			fmt.Sprintf("%.6f", c.Lat),
			fmt.Sprintf("%.6f", c.Lon),
			fmt.Sprintf("%.1f", c.DistM),
		})
	}
	header := []string{"lat", "lon", "dist_to_" + slug + "_m"}
	return eris.Wrap(table.WriteRecordsFile(path, header, records, true), "render: write accessibility grid")
}

func groupByCategory(pois []model.POI) map[string][]model.POI {
	out := make(map[string][]model.POI)
	for _, p := range pois {
		c := p.CategoryOrUnknown()
		out[c] = append(out[c], p)
	}
	return out
}

func filterCategories(pois []model.POI, cats []string) []model.POI {
	want := make(map[string]bool, len(cats))
	for _, c := range cats {
		want[strings.TrimSpace(c)] = true
	}
	var out []model.POI
	for _, p := range pois {
		if want[p.CategoryOrUnknown()] {
			out = append(out, p)
		}
	}
	return out
}

func points(pois []model.POI) []orb.Point {
	out := make([]orb.Point, len(pois))
	for i, p := range pois {
		out[i] = orb.Point{p.Lon, p.Lat}
	}
	return out
}
