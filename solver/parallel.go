package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"goplan/domain/core"
	"goplan/domain/planning"
)

// DefaultWorkers is the worker count used when none is requested.
const DefaultWorkers = 4

// EngineFactory builds a fresh engine for one worker. Workers never share
// engine state, so each goroutine gets its own instance.
type EngineFactory[G any] func() (Engine[G], error)

// Parallel races N copies of an engine on the same problem and returns the
// first result carrying a trajectory. It is itself an Engine, so a Runner
// provides lifecycle and timeout handling above it.
//
// Ordering is wall-clock arrival: scheduling and per-worker seeds vary, so
// which worker wins is not deterministic across runs. That is the point;
// racing trades determinism for expected latency on multi-core hardware.
type Parallel[G any] struct {
	factory EngineFactory[G]
	workers int
	logger  *zap.Logger
	engines []Engine[G]
}

// NewParallel builds a racing meta-solver. A worker count of zero selects
// DefaultWorkers; a nil logger disables logging.
func NewParallel[G any](factory EngineFactory[G], workers int, logger *zap.Logger) (*Parallel[G], error) {
	if factory == nil {
		return nil, fmt.Errorf("parallel solver requires an engine factory")
	}
	if workers < 0 {
		return nil, fmt.Errorf("%w: got %d", core.ErrNoWorkers, workers)
	}
	if workers == 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parallel[G]{
		factory: factory,
		workers: workers,
		logger:  logger.Named("parallel"),
	}, nil
}

// Workers returns the configured worker count.
func (p *Parallel[G]) Workers() int { return p.workers }

// Prepare builds and prepares one engine per worker.
func (p *Parallel[G]) Prepare(prob *planning.Problem) error {
	engines := make([]Engine[G], p.workers)
	for i := range engines {
		eng, err := p.factory()
		if err != nil {
			return fmt.Errorf("worker %d engine construction failed: %w", i, err)
		}
		if err := eng.Prepare(prob); err != nil {
			return fmt.Errorf("worker %d engine preparation failed: %w", i, err)
		}
		engines[i] = eng
	}
	p.engines = engines
	return nil
}

// Run races all workers on the same guide. Each worker is reseeded before it
// starts so workers explore independently. The first trajectory wins; losing
// workers are cancelled and joined before Run returns. All workers failing
// yields the abnormal result.
func (p *Parallel[G]) Run(ctx context.Context, guide G) (*Result, error) {
	if p.engines == nil {
		return nil, fmt.Errorf("%w: Prepare must run before Run", core.ErrNotReady)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so losing workers can publish after the winner is taken.
	results := make(chan *Result, len(p.engines))
	var wg sync.WaitGroup
	seedBase := time.Now().UnixNano()

	for i, eng := range p.engines {
		if s, ok := eng.(Seedable); ok {
			s.Seed(seedBase + int64(i))
		}
		workerID := core.WorkerID(core.NewID())
		wg.Add(1)
		go func(eng Engine[G], id core.WorkerID) {
			defer wg.Done()
			res, err := eng.Run(runCtx, guide)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					p.logger.Debug("worker failed", zap.String("worker_id", id.String()), zap.Error(err))
				}
				results <- Abnormal()
				return
			}
			results <- res
		}(eng, workerID)
	}

	var winner *Result
	for i := 0; i < len(p.engines); i++ {
		res := <-results
		if !res.Failed() {
			winner = res
			break
		}
	}

	cancel()
	wg.Wait()

	if winner == nil {
		p.logger.Info("all workers failed", zap.Int("workers", len(p.engines)))
		return Abnormal(), nil
	}
	return winner, nil
}
