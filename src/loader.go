package retina

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Batch is one mini-batch of augmented images
type Batch struct {
	Images *Tensor // [B, 3, H, W]
	Labels []int
	Names  []string
}

func (b *Batch) Len() int { return len(b.Labels) }

// LoaderConfig controls sample order. Rebalance takes precedence over Shuffle.
type LoaderConfig struct {
	Shuffle   bool
	Rebalance bool
	Seed      int64
}

// Loader decodes and augments a dataset in batches on a pool of workers
type Loader struct {
	dataset   *Dataset
	pipeline  *Pipeline
	batchSize int
	workers   int
	strategy  RebalanceStrategy
	config    LoaderConfig
}

// NewLoader takes batch size, worker count and rebalance strategy from data
func NewLoader(ds *Dataset, p *Pipeline, data DataConfig, cfg LoaderConfig) *Loader {
	return &Loader{
		dataset:   ds,
		pipeline:  p,
		batchSize: data.BatchSize,
		workers:   data.NumLoadingWorkers,
		strategy:  data.RebalanceStrategy,
		config:    cfg,
	}
}

// Indices returns the sample order of an epoch
func (l *Loader) Indices(epoch int) ([]int, error) {
	rng := rand.New(rand.NewSource(sampleSeed(l.config.Seed, epoch, -1)))
	switch {
	case l.config.Rebalance:
		return Rebalance(l.dataset.Labels(), l.strategy, rng)
	case l.config.Shuffle:
		idx := lo.Range(l.dataset.Len())
		shuffleInts(idx, rng)
		return idx, nil
	default:
		return lo.Range(l.dataset.Len()), nil
	}
}

// NumBatches returns the number of batches in an epoch
func (l *Loader) NumBatches(epoch int) (int, error) {
	idx, err := l.Indices(epoch)
	if err != nil {
		return 0, err
	}
	return (len(idx) + l.batchSize - 1) / l.batchSize, nil
}

// Epoch loads every batch of an epoch in order and hands it to fn.
// Loading stops at the first error from fn, a worker, or ctx.
func (l *Loader) Epoch(ctx context.Context, epoch int, fn func(i int, b *Batch) error) error {
	if l.batchSize <= 0 {
		return errorf("batch size must be > 0, got %d", l.batchSize)
	}
	idx, err := l.Indices(epoch)
	if err != nil {
		return err
	}

	for i, chunk := range lo.Chunk(idx, l.batchSize) {
		b, err := l.load(ctx, epoch, i*l.batchSize, chunk)
		if err != nil {
			return err
		}
		if err := fn(i, b); err != nil {
			return err
		}
	}
	return nil
}

// load builds one batch. Each sample gets an rng derived from its position
// in the epoch, so results do not depend on the worker count.
func (l *Loader) load(ctx context.Context, epoch, offset int, chunk []int) (*Batch, error) {
	images := make([]*Tensor, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.workers, 1))
	for k, si := range chunk {
		sample := l.dataset.Samples[si]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := decodeFile(sample.Path)
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(sampleSeed(l.config.Seed, epoch, offset+k)))
			t, err := l.pipeline.Run(img, rng)
			if err != nil {
				var pe *PipelineError
				if errors.As(err, &pe) {
					pe.Image = sample.Image
				}
				return err
			}
			images[k] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Batch{
		Images: stack(images),
		Labels: lo.Map(chunk, func(si int, _ int) int { return l.dataset.Samples[si].Label }),
		Names:  lo.Map(chunk, func(si int, _ int) string { return l.dataset.Samples[si].Image }),
	}, nil
}
