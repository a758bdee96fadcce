// Package config defines the immutable run configuration for a datacube
// build. A Config value is resolved once at startup (YAML file plus
// command-line overrides) and passed into every component at construction;
// no component reads process-wide mutable state.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	defaults "github.com/icefield/velocube/config"
	"github.com/icefield/velocube/internal/errors"
)

// Config is the complete run configuration.
type Config struct {
	// Grid defines the cube footprint and target projection.
	Grid GridConfig `yaml:"grid"`

	// Runner configures batching and parallelism.
	Runner RunnerConfig `yaml:"runner"`

	// Search configures the granule discovery API.
	Search SearchConfig `yaml:"search"`

	// Store configures the output store.
	Store StoreConfig `yaml:"store"`
}

// GridConfig defines the cube footprint and target projection.
type GridConfig struct {
	// Projection is the target EPSG code, e.g. "32628". Granules in any
	// other projection are rejected.
	Projection string `yaml:"projection"`

	// CellSize is the grid cell size in meters.
	CellSize float64 `yaml:"cell_size"`

	// DimSize is the square side length in meters when the footprint is
	// defined by a centroid.
	DimSize float64 `yaml:"dim_size"`

	// Centroid is the [x, y] cube center in the target projection.
	// Mutually exclusive with Polygon.
	Centroid []float64 `yaml:"centroid,omitempty"`

	// Polygon is a closed ring of [x, y] vertices in the target
	// projection. Mutually exclusive with Centroid.
	Polygon [][]float64 `yaml:"polygon,omitempty"`
}

// RunnerConfig configures batching and parallelism.
type RunnerConfig struct {
	// BatchSize is the number of accepted granules per store append.
	BatchSize int `yaml:"batch_size"`

	// Workers is the normalization worker count for the parallel runner.
	Workers int `yaml:"workers"`

	// Parallel selects the parallel runner.
	Parallel bool `yaml:"parallel"`

	// MaxGranules caps the number of discovered granules to examine.
	// Zero means no cap.
	MaxGranules int `yaml:"max_granules"`

	// LocalPath, if set, reads granules from a local directory instead
	// of the search API.
	LocalPath string `yaml:"local_path"`
}

// SearchConfig configures the granule discovery API.
type SearchConfig struct {
	// URL is the search API endpoint.
	URL string `yaml:"url"`

	// Start is the inclusive acquisition date range start (YYYY-MM-DD).
	Start string `yaml:"start"`

	// End is the exclusive acquisition date range end (YYYY-MM-DD).
	End string `yaml:"end"`

	// PercentValid is the minimum valid-pixel percentage filter.
	PercentValid int `yaml:"percent_valid"`
}

// StoreConfig configures the output store.
type StoreConfig struct {
	// Output is the store directory (local path).
	Output string `yaml:"output"`

	// ArchiveBucket, if set, is the s3:// destination the finished store
	// is copied to.
	ArchiveBucket string `yaml:"archive_bucket"`

	// CompressionLevel is the zstd level for physical-quantity columns.
	CompressionLevel int `yaml:"compression_level"`
}

// DefaultConfig returns a Config with documented defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{
			CellSize: defaults.DefaultCellSize,
			DimSize:  defaults.DefaultDimSize,
		},
		Runner: RunnerConfig{
			BatchSize: defaults.DefaultBatchSize,
			Workers:   defaults.DefaultWorkers,
		},
		Search: SearchConfig{
			Start:        defaults.DefaultSearchStart,
			End:          defaults.DefaultSearchEnd,
			PercentValid: defaults.DefaultPercentValid,
		},
		Store: StoreConfig{
			Output:           defaults.DefaultOutputStore,
			CompressionLevel: defaults.DefaultCompressionLevel,
		},
	}
}

// Load reads a YAML config file and applies defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// PolygonRing resolves the cube footprint to a closed ring of (x, y)
// vertices in the target projection. A centroid definition expands to a
// square of side DimSize centered on the point.
func (c *Config) PolygonRing() ([][2]float64, error) {
	switch {
	case len(c.Grid.Centroid) == 2:
		cx, cy := c.Grid.Centroid[0], c.Grid.Centroid[1]
		off := c.Grid.DimSize / 2.0
		return [][2]float64{
			{cx - off, cy + off},
			{cx + off, cy + off},
			{cx + off, cy - off},
			{cx - off, cy - off},
			{cx - off, cy + off},
		}, nil

	case len(c.Grid.Polygon) > 0:
		ring := make([][2]float64, 0, len(c.Grid.Polygon))
		for _, pt := range c.Grid.Polygon {
			if len(pt) != 2 {
				return nil, errors.NewInvalidValue("grid.polygon", pt, "vertex must be [x, y]")
			}
			ring = append(ring, [2]float64{pt[0], pt[1]})
		}
		return ring, nil

	default:
		return nil, errors.NewMissingField("grid.centroid or grid.polygon")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.Grid.Projection == "" {
		v.AddMissing("grid.projection")
	}
	if c.Grid.CellSize <= 0 {
		v.AddField("grid.cell_size", "must be positive")
	}
	if len(c.Grid.Centroid) == 0 && len(c.Grid.Polygon) == 0 {
		v.AddMissing("grid.centroid or grid.polygon")
	}
	if len(c.Grid.Centroid) > 0 && len(c.Grid.Polygon) > 0 {
		v.AddField("grid", "centroid and polygon are mutually exclusive")
	}
	if len(c.Grid.Centroid) > 0 && len(c.Grid.Centroid) != 2 {
		v.AddField("grid.centroid", "must be [x, y]")
	}
	if len(c.Grid.Centroid) == 2 && c.Grid.DimSize <= 0 {
		v.AddField("grid.dim_size", "must be positive with a centroid definition")
	}
	if c.Runner.BatchSize <= 0 {
		v.AddField("runner.batch_size", "must be positive")
	}
	if c.Runner.Workers <= 0 {
		v.AddField("runner.workers", "must be positive")
	}
	if c.Runner.MaxGranules < 0 {
		v.AddField("runner.max_granules", "must not be negative")
	}
	if c.Runner.LocalPath == "" && c.Search.URL == "" {
		v.AddMissing("search.url or runner.local_path")
	}
	if c.Store.Output == "" {
		v.AddMissing("store.output")
	}

	return v.Err()
}
