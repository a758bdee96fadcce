// velocube builds image-pair velocity cubes from granule archives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"github.com/icefield/velocube/internal/config"
	"github.com/icefield/velocube/internal/cube"
	"github.com/icefield/velocube/internal/grid"
	"github.com/icefield/velocube/internal/logging"
	"github.com/icefield/velocube/internal/runner"
	"github.com/icefield/velocube/internal/search"
	"github.com/icefield/velocube/internal/source"
	"github.com/icefield/velocube/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "", "config file path")
	projection := flag.String("projection", "", "target EPSG code (overrides config)")
	centroid := flag.String("centroid", "", "JSON [x, y] cube centroid in target projection")
	polygon := flag.String("polygon", "", "JSON [[x, y], ...] cube footprint in target projection")
	dimSize := flag.Float64("dim", 0, "cube dimension in meters (with -centroid)")
	cellSize := flag.Float64("cell", 0, "grid cell size in meters")
	batchSize := flag.Int("batch", 0, "number of granules to write at a time")
	workers := flag.Int("workers", 0, "number of concurrent granule loads")
	parallel := flag.Bool("parallel", false, "enable parallel processing")
	maxGranules := flag.Int("max-granules", 0, "cap on granules to examine (0 = all)")
	localPath := flag.String("local", "", "local directory of granules, bypassing the search API")
	searchURL := flag.String("search-url", "", "granule search API endpoint")
	output := flag.String("out", "", "output store directory")
	archive := flag.String("archive", "", "S3 bucket to archive the finished store to")
	inspect := flag.Bool("inspect", false, "summarize an existing store instead of building")
	jsonLog := flag.Bool("json", false, "force JSON log output")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.Init(level, *jsonLog || !term.IsTerminal(int(os.Stderr.Fd())))

	logging.Info("velocube starting", "version", Version)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fatal("load config", err)
	}

	// CLI overrides
	if *projection != "" {
		cfg.Grid.Projection = *projection
	}
	if *centroid != "" {
		if err := json.Unmarshal([]byte(*centroid), &cfg.Grid.Centroid); err != nil {
			fatal("parse -centroid", err)
		}
		cfg.Grid.Polygon = nil
	}
	if *polygon != "" {
		if err := json.Unmarshal([]byte(*polygon), &cfg.Grid.Polygon); err != nil {
			fatal("parse -polygon", err)
		}
		cfg.Grid.Centroid = nil
	}
	if *dimSize > 0 {
		cfg.Grid.DimSize = *dimSize
	}
	if *cellSize > 0 {
		cfg.Grid.CellSize = *cellSize
	}
	if *batchSize > 0 {
		cfg.Runner.BatchSize = *batchSize
	}
	if *workers > 0 {
		cfg.Runner.Workers = *workers
	}
	if *parallel {
		cfg.Runner.Parallel = true
	}
	if *maxGranules > 0 {
		cfg.Runner.MaxGranules = *maxGranules
	}
	if *localPath != "" {
		cfg.Runner.LocalPath = *localPath
	}
	if *searchURL != "" {
		cfg.Search.URL = *searchURL
	}
	if *output != "" {
		cfg.Store.Output = *output
	}
	if *archive != "" {
		cfg.Store.ArchiveBucket = *archive
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *inspect {
		if err := inspectStore(ctx, cfg.Store.Output); err != nil {
			fatal("inspect store", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fatal("validate config", err)
	}

	if err := build(ctx, cfg); err != nil {
		fatal("build cube", err)
	}
}

// loadConfig reads the config file when one is given, falling back to
// defaults when the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// build runs the full pipeline: grid construction, granule discovery,
// normalization, assembly, and optional archival.
func build(ctx context.Context, cfg *config.Config) error {
	epsg, err := strconv.Atoi(cfg.Grid.Projection)
	if err != nil {
		return fmt.Errorf("parse projection %q: %w", cfg.Grid.Projection, err)
	}

	ring, err := cfg.PolygonRing()
	if err != nil {
		return err
	}

	g, err := grid.Build(ring, epsg, cfg.Grid.CellSize)
	if err != nil {
		return err
	}
	logging.Info("cube grid defined",
		"epsg", epsg, "x_cells", len(g.X), "y_cells", len(g.Y),
		"lon", g.Lon, "lat", g.Lat)

	src, err := newSource(ctx, cfg, ring, epsg)
	if err != nil {
		return err
	}

	asm := cube.NewAssembler(cfg.Store.Output, g, cfg.Store.CompressionLevel)

	r := runner.New(src, g, asm, runner.Options{
		BatchSize:   cfg.Runner.BatchSize,
		Workers:     cfg.Runner.Workers,
		Parallel:    cfg.Runner.Parallel,
		MaxGranules: cfg.Runner.MaxGranules,
	})
	if err := r.Run(ctx); err != nil {
		asm.Close()
		return err
	}
	if err := asm.Close(); err != nil {
		return err
	}

	if cfg.Store.ArchiveBucket != "" && asm.Store() != nil {
		arch, err := source.NewArchiver(ctx, cfg.Store.ArchiveBucket)
		if err != nil {
			return err
		}
		return arch.Upload(ctx, cfg.Store.Output)
	}
	return nil
}

// newSource selects local directory access or search-API discovery with S3
// downloads.
func newSource(ctx context.Context, cfg *config.Config, ring [][2]float64, epsg int) (source.Source, error) {
	if cfg.Runner.LocalPath != "" {
		return source.NewLocal(cfg.Runner.LocalPath), nil
	}

	lonlat, err := grid.LonLatRing(ring, epsg)
	if err != nil {
		return nil, err
	}

	return source.NewS3(ctx, search.NewClient(cfg.Search.URL), search.Params{
		Polygon:      lonlat,
		Start:        cfg.Search.Start,
		End:          cfg.Search.End,
		PercentValid: cfg.Search.PercentValid,
	})
}

// inspectStore prints the SQL summary of an existing store.
func inspectStore(ctx context.Context, dir string) error {
	s, err := store.Open(dir)
	if err != nil {
		return err
	}

	q, err := store.NewQuery(s)
	if err != nil {
		return err
	}
	defer q.Close()

	sum, err := q.Summarize(ctx)
	if err != nil {
		return err
	}

	logging.Info("store summary",
		"dir", dir,
		"records", sum.Records,
		"first_date_ms", sum.FirstDate,
		"last_date_ms", sum.LastDate,
		"valid_cells", sum.ValidCells,
		"min_v", sum.MinV,
		"max_v", sum.MaxV,
		"mean_v", sum.MeanV,
	)
	return nil
}

func fatal(msg string, err error) {
	logging.Error(msg, "error", err)
	os.Exit(1)
}
