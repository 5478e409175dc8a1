package source

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theirongolddev/tokenwise/internal/model"
)

// LoadOptions configure Load.
type LoadOptions struct {
	ExpandOptions
	MaxFileBytes int64
	Now          time.Time
}

// LoadResult holds the output of expanding and reading a set of specs.
type LoadResult struct {
	Files      []File
	Excluded   []string
	Warnings   []model.Warning
	TotalFiles int
	Bytes      int64
}

// ProgressFunc is called during loading to report progress.
// current is the number of files read so far, total is the total count.
type ProgressFunc func(current, total int)

// Load expands specs under root and reads every match with a bounded worker
// pool. Unreadable files are excluded with a warning. Files keep the sorted
// order Expand produced.
func Load(ctx context.Context, root string, specs []string, opts LoadOptions, progressFn ProgressFunc) (*LoadResult, error) {
	paths, warns, err := Expand(root, specs, opts.ExpandOptions)
	if err != nil {
		return nil, fmt.Errorf("expanding context specs: %w", err)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	result := &LoadResult{TotalFiles: len(paths), Warnings: warns}
	if len(paths) == 0 {
		return result, nil
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(paths) {
		numWorkers = len(paths)
	}

	type readResult struct {
		file File
		err  error
	}
	work := make(chan int, len(paths))
	results := make([]readResult, len(paths))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range paths {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				if err := ctx.Err(); err != nil {
					results[idx].err = err
					continue
				}
				f, err := ReadFile(root, paths[idx], opts.MaxFileBytes, now)
				results[idx] = readResult{file: f, err: err}
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n), len(paths))
				}
			}
		}()
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, r := range results {
		if r.err != nil {
			result.Excluded = append(result.Excluded, paths[i])
			result.Warnings = append(result.Warnings, Warning(r.err))
			continue
		}
		result.Files = append(result.Files, r.file)
		result.Bytes += r.file.Fingerprint.Size
	}
	return result, nil
}
