package analysis

import (
	"context"
	"runtime"
	"sync"

	"github.com/ehr/cdastats/internal/platform/ccda"
)

// sequentialThreshold is the batch size below which no workers are started.
const sequentialThreshold = 2

// ProgressFunc is called once per finished file. It may be called from
// several goroutines at once.
type ProgressFunc func()

type parseResult struct {
	doc *ccda.Document
	err error
}

type indexedFile struct {
	index int
	file  FileInput
}

// batchParser parses files independently on a bounded set of workers.
type batchParser struct {
	parser   *ccda.Parser
	workers  int
	progress ProgressFunc
}

func newBatchParser(parser *ccda.Parser, workers int, progress ProgressFunc) *batchParser {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &batchParser{parser: parser, workers: workers, progress: progress}
}

// parseAll returns one result per file, in input order. The context is
// checked between files; once it is done the partial results are
// discarded and ctx.Err() is returned.
func (b *batchParser) parseAll(ctx context.Context, files []FileInput) ([]parseResult, error) {
	results := make([]parseResult, len(files))
	if len(files) <= sequentialThreshold || b.workers == 1 {
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = b.parseOne(f)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return results, nil
	}

	numWorkers := b.workers
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	jobs := make(chan indexedFile)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				// each index is written by exactly one worker
				results[job.index] = b.parseOne(job.file)
			}
		}()
	}

submit:
	for i, f := range files {
		select {
		case <-ctx.Done():
			break submit
		case jobs <- indexedFile{index: i, file: f}:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *batchParser) parseOne(f FileInput) parseResult {
	doc, err := b.parser.ParseString(f.Name, f.Content)
	if b.progress != nil {
		b.progress()
	}
	return parseResult{doc: doc, err: err}
}
