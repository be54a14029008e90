package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/district-poi/internal/density"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render interactive maps into the output directory",
}

// renderStep renders one family of maps.
type renderStep func(ctx context.Context, r *render.Renderer, pois []model.POI) ([]string, error)

func init() {
	steps := []struct {
		use, short string
		district   bool
		fn         renderStep
	}{
		{"categories", "Points colored by category, one toggleable layer each", false,
			func(_ context.Context, r *render.Renderer, pois []model.POI) ([]string, error) {
				f, err := r.Categories(pois)
				return []string{f}, err
			}},
		{"clusters", "Points colored by DBSCAN cluster", false,
			func(_ context.Context, r *render.Renderer, pois []model.POI) ([]string, error) {
				f, err := r.Clusters(pois)
				return []string{f}, err
			}},
		{"hulls", "Convex hull polygons per cluster with GeoJSON export", false,
			func(_ context.Context, r *render.Renderer, pois []model.POI) ([]string, error) {
				return r.Hulls(pois)
			}},
		{"kde", "Kernel density heat maps per category", false,
			func(ctx context.Context, r *render.Renderer, pois []model.POI) ([]string, error) {
				return r.KDE(ctx, pois)
			}},
		{"accessibility", "Distance-to-nearest-service grids over the district", true,
			func(ctx context.Context, r *render.Renderer, pois []model.POI) ([]string, error) {
				return r.Accessibility(ctx, pois)
			}},
		{"all", "Every map, rendered concurrently", true,
			func(ctx context.Context, r *render.Renderer, pois []model.POI) ([]string, error) {
				return r.All(ctx, pois)
			}},
	}

	for _, s := range steps {
		sub := &cobra.Command{
			Use:   s.use,
			Short: s.short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runRender(cmd, s.district, s.fn)
			},
		}
		sourceFlags(sub)
		renderCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, needsDistrict bool, step renderStep) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("render"); err != nil {
		return err
	}

	pois, err := sourceFrom(cmd).load(ctx)
	if err != nil {
		return err
	}

	var district render.District
	if needsDistrict {
		b, err := loadBoundary()
		if err != nil {
			return err
		}
		district = b
	}

	files, err := step(ctx, newRenderer(district), pois)
	if err != nil {
		return err
	}

	fmt.Printf("Rendered %d files into %s\n", len(files), cfg.Output.Dir)
	for _, f := range files {
		fmt.Println("  " + f)
	}
	return nil
}

func newRenderer(district render.District) *render.Renderer {
	return render.New(cfg.Output.Dir, district, render.Options{
		KDE: density.KDEParams{
			GridSize:  cfg.Density.GridSize,
			Bandwidth: cfg.Density.BandwidthM,
			Pad:       cfg.Density.PadM,
			MinPoints: cfg.Density.MinPoints,
			Threshold: cfg.Density.Threshold,
		},
		KDECategories: cfg.Density.KDECategories,
		StepM:         cfg.Density.StepM,
		Accessibility: cfg.Density.Accessibility,
		TopN:          cfg.Cluster.TopN,
	})
}
