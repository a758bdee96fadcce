// Package runner orchestrates a cube build: discovery, deduplication,
// normalization, and batched assembly into the store.
package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/icefield/velocube/internal/cube"
	"github.com/icefield/velocube/internal/granule"
	"github.com/icefield/velocube/internal/grid"
	"github.com/icefield/velocube/internal/logging"
	"github.com/icefield/velocube/internal/source"
)

var log = logging.Component("runner")

// Options control batching and parallelism.
type Options struct {
	// BatchSize is the number of accepted records flushed per segment.
	BatchSize int

	// Workers is the number of concurrent granule loads in parallel mode.
	Workers int

	// Parallel selects the batch-at-a-time concurrent pipeline.
	Parallel bool

	// MaxGranules caps the number of candidates examined; zero means all.
	MaxGranules int
}

// Runner drives granules from a source through normalization into the
// assembler.
type Runner struct {
	src  source.Source
	norm *granule.Normalizer
	asm  *cube.Assembler
	opts Options
}

// New returns a runner over the given source, writing through asm.
func New(src source.Source, g *grid.Grid, asm *cube.Assembler, opts Options) *Runner {
	return &Runner{
		src:  src,
		norm: granule.NewNormalizer(g),
		asm:  asm,
		opts: opts,
	}
}

// Run builds the cube: candidates are listed, deduplicated, normalized, and
// assembled in batches of BatchSize. Load or decode failures of a single
// granule abort the run; rejections recorded by normalization do not.
func (r *Runner) Run(ctx context.Context) error {
	urls, err := r.src.List(ctx)
	if err != nil {
		return err
	}

	urls, skipped, err := granule.Deduplicate(urls)
	if err != nil {
		return err
	}

	if r.opts.MaxGranules > 0 && len(urls) > r.opts.MaxGranules {
		log.Info("capping candidate granules",
			"found", len(urls), "cap", r.opts.MaxGranules)
		urls = urls[:r.opts.MaxGranules]
	}

	if len(urls) == 0 {
		log.Info("no granules found")
		return nil
	}

	acc := cube.NewAccumulator()
	acc.AddDuplicates(skipped)

	if r.opts.Parallel {
		err = r.runParallel(ctx, urls, acc)
	} else {
		err = r.runSequential(ctx, urls, acc)
	}
	if err != nil {
		return err
	}

	acc.LogStats()
	return nil
}

// runSequential processes one granule at a time, flushing whenever a full
// batch has accumulated and once more at the end.
func (r *Runner) runSequential(ctx context.Context, urls []string, acc *cube.Accumulator) error {
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := r.process(ctx, url)
		if err != nil {
			return err
		}
		acc.Add(res)

		if acc.Size() == r.opts.BatchSize {
			if err := r.asm.Flush(acc); err != nil {
				return err
			}
		}
	}

	if acc.Size() > 0 {
		return r.asm.Flush(acc)
	}
	return nil
}

// runParallel loads one batch's worth of granules concurrently, then flushes
// before starting the next batch. Results enter the accumulator in
// submission order regardless of completion order, so the record axis is
// identical to a sequential run. The flush between batches is the only
// writer barrier; the store itself is single-writer.
func (r *Runner) runParallel(ctx context.Context, urls []string, acc *cube.Accumulator) error {
	for start := 0; start < len(urls); start += r.opts.BatchSize {
		end := start + r.opts.BatchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		log.Info("processing batch",
			"granules", len(batch), "remaining", len(urls)-start)

		results := make([]*granule.Result, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Workers)

		for i, url := range batch {
			g.Go(func() error {
				res, err := r.process(gctx, url)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, res := range results {
			acc.Add(res)
		}

		if err := r.asm.Flush(acc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) process(ctx context.Context, url string) (*granule.Result, error) {
	log.Debug("reading granule", "url", url)

	ds, err := r.src.Load(ctx, url)
	if err != nil {
		return nil, err
	}
	return r.norm.Normalize(ds)
}
