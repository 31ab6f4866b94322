// Package batch runs a function over items in fixed-size concurrent batches.
package batch

import (
	"context"
	"sync"
)

// DefaultSize is the batch size for document and spreadsheet processing.
const DefaultSize = 5

// Progress is reported after each batch completes.
type Progress struct {
	Batch     int // batches completed so far
	Batches   int
	Completed int // items completed so far
	Total     int
}

// Percent is the share of batches completed, 0 to 100.
func (p Progress) Percent() int {
	if p.Batches == 0 {
		return 100
	}
	return p.Batch * 100 / p.Batches
}

// Run applies fn to every item. Items within a batch run concurrently and
// each batch finishes before the next one starts. Results keep the order of
// items. fn receives the item's index and must handle its own failures.
// Run stops between batches when ctx is done and returns the results
// gathered so far with ctx's error.
func Run[T, R any](ctx context.Context, items []T, size int, fn func(context.Context, int, T) R, onProgress func(Progress)) ([]R, error) {
	if size < 1 {
		size = DefaultSize
	}
	results := make([]R, len(items))
	batches := (len(items) + size - 1) / size

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return results[:b*size], err
		}

		start := b * size
		end := min(start+size, len(items))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = fn(ctx, i, items[i])
			}(i)
		}
		wg.Wait()

		if onProgress != nil {
			onProgress(Progress{Batch: b + 1, Batches: batches, Completed: end, Total: len(items)})
		}
	}
	return results, nil
}
