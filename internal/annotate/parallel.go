package annotate

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// WorkItem holds a normalized chunk ready for intersection.
type WorkItem struct {
	Seq      int
	Offset   int64 // row id of the first variant
	Variants []vcf.Variant
}

// WorkResult holds the rows produced for a single chunk.
type WorkResult struct {
	Seq       int
	Variants  int
	Intervals int64
	Results   []RankedResult
	Err       error
}

// ParallelProcess intersects chunks using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (p *Pipeline) ParallelProcess(items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for item := range items {
				rows, n, err := p.processChunk(item.Seq, item.Offset, item.Variants)
				results <- WorkResult{
					Seq:       item.Seq,
					Variants:  len(item.Variants),
					Intervals: n,
					Results:   rows,
					Err:       err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// runParallel reads and normalizes chunks on one goroutine, intersects them
// on a worker pool and folds the results in chunk order.
func (p *Pipeline) runParallel(ctx context.Context, src vcf.RecordSource, acc *accumulator, sum *Summary) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan WorkItem, p.opts.Workers)
	var readErr error

	go func() {
		defer close(items)
		var offset int64
		for seq := 0; ; seq++ {
			variants, done, err := p.readChunk(ctx, src, seq, sum)
			if err != nil {
				readErr = err
				return
			}
			if done {
				return
			}
			select {
			case items <- WorkItem{Seq: seq, Offset: offset, Variants: variants}:
			case <-ctx.Done():
				return
			}
			offset += int64(len(variants))
		}
	}()

	results := p.ParallelProcess(items, p.opts.Workers)

	if err := OrderedCollect(results, func(r WorkResult) error {
		if r.Err != nil {
			cancel()
			return r.Err
		}
		sum.Chunks++
		sum.Variants += int64(r.Variants)
		sum.Intervals += r.Intervals

		added := acc.add(r.Results)
		p.logger.Debug("chunk done", zap.Int("chunk", r.Seq), zap.Int("variants", r.Variants),
			zap.Int("rows", len(r.Results)), zap.Int("new", added))
		return nil
	}); err != nil {
		return err
	}

	return readErr
}
