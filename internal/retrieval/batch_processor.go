package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Querier answers a single question. *Engine implements it.
type Querier interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

// BatchResult is the outcome of one question in a batch.
type BatchResult struct {
	Index    int            `json:"index"`
	Request  QueryRequest   `json:"request"`
	Response *QueryResponse `json:"response,omitempty"`
	Err      error          `json:"-"`
	Duration time.Duration  `json:"duration"`
}

// BatchProcessor runs several questions concurrently with a bounded pool.
type BatchProcessor struct {
	querier    Querier
	maxWorkers int
	timeout    time.Duration
}

// NewBatchProcessor creates a new batch processor. timeout bounds each
// question, not the batch.
func NewBatchProcessor(querier Querier, maxWorkers int, timeout time.Duration) *BatchProcessor {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &BatchProcessor{
		querier:    querier,
		maxWorkers: maxWorkers,
		timeout:    timeout,
	}
}

// Process answers reqs and returns results in input order. progress, when
// non-nil, is called after each question completes, possibly from several
// goroutines at once. If ctx ends first the unfinished entries carry ctx's
// error.
func (bp *BatchProcessor) Process(ctx context.Context, reqs []QueryRequest, progress func(done, total int)) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return []BatchResult{}, nil
	}

	workChan := make(chan int, len(reqs))
	for i := range reqs {
		workChan <- i
	}
	close(workChan)

	results := make([]BatchResult, len(reqs))
	for i, r := range reqs {
		results[i] = BatchResult{Index: i, Request: r}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for w := 0; w < bp.maxWorkers && w < len(reqs); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				if ctx.Err() != nil {
					mu.Lock()
					results[i].Err = ctx.Err()
					mu.Unlock()
					continue
				}

				res := bp.processOne(ctx, reqs[i])

				mu.Lock()
				results[i].Response = res.Response
				results[i].Err = res.Err
				results[i].Duration = res.Duration
				done++
				n := done
				mu.Unlock()

				if progress != nil {
					progress(n, len(reqs))
				}
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch interrupted: %w", err)
	}
	return results, nil
}

func (bp *BatchProcessor) processOne(ctx context.Context, req QueryRequest) BatchResult {
	qctx, cancel := context.WithTimeout(ctx, bp.timeout)
	defer cancel()

	start := time.Now()
	resp, err := bp.querier.Query(qctx, req)
	return BatchResult{Response: resp, Err: err, Duration: time.Since(start)}
}
