package pipeline

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

// BatchResult is the outcome of one job in a batch.
type BatchResult struct {
	Job    Job
	Result *Result
	Err    error
	Took   time.Duration
}

// RunBatch runs independent jobs concurrently with at most workers in flight (<= 0 means
// GOMAXPROCS). Results keep the order of jobs; a failing job does not stop the others.
func RunBatch(ctx context.Context, jobs []Job, workers int, log *zap.Logger) []BatchResult {
	if log == nil {
		log = zap.NewNop()
	}
	mapper := iter.Mapper[Job, BatchResult]{MaxGoroutines: workers}
	return mapper.Map(jobs, func(job *Job) BatchResult {
		t0 := time.Now()
		jl := log.With(zap.String("job", job.Label()))
		res, err := RunJob(ctx, *job, jl)
		if err != nil {
			jl.Error("job failed", zap.Error(err))
		}
		return BatchResult{Job: *job, Result: res, Err: err, Took: time.Since(t0)}
	})
}

// Failed counts batch results with an error.
func Failed(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
