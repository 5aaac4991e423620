package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/circuitgo/internal/ctxlog"
)

// Sweep integrates f once per argument set on up to workers goroutines and
// returns the final states in argument set order. f must be safe for
// concurrent calls. opts.Observe is ignored. The first failing run cancels
// the others.
func Sweep(ctx context.Context, f Field, y0 []float64, argSets [][][]float64, opts Options, workers int) ([][]float64, error) {
	logger := ctxlog.FromContext(ctx)
	if workers < 1 {
		workers = 1
	}
	workers = min(workers, len(argSets))
	opts.Observe = nil

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		out      = make([][]float64, len(argSets))
		jobs     = make(chan int)
	)
	for id := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerLogger := logger.With("workerID", id)
			workerLogger.Debug("Worker started.")
			for i := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				y, err := Integrate(runCtx, f, y0, argSets[i], opts)
				if err != nil {
					once.Do(func() {
						firstErr = fmt.Errorf("run %d: %w", i, err)
						cancel()
					})
					continue
				}
				out[i] = y
			}
			workerLogger.Debug("Worker finished.")
		}()
	}

feed:
	for i := range argSets {
		select {
		case jobs <- i:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
