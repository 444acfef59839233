package sipfit

import (
	"context"
	"sync"
)

// Residual flavours for batch jobs.
const (
	COLE = "cole"
	BODE = "bode"
)

// Job is one independent fit.
type Job struct {
	Name     string
	Model    Model
	Spectrum Spectrum
	Initial  Params
	Options  FitOptions
	// Residual is COLE (default) or BODE.
	Residual string
}

// JobResult pairs a Job with its outcome. Index is the position of the job
// in the input slice.
type JobResult struct {
	Index  int
	Name   string
	Result FitResult
	Err    error
}

// FitBatch runs independent fits on a pool of workers and returns the
// results in job order. Each fit is itself single-threaded.
func FitBatch(ctx context.Context, jobs []Job, workers int) []JobResult {
	if workers <= 0 {
		workers = 1
	}
	type indexed struct {
		index int
		job   Job
	}
	queue := make(chan indexed, len(jobs))
	results := make(chan JobResult, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				var (
					res FitResult
					err error
				)
				if j.job.Residual == BODE {
					res, err = FitBode(ctx, j.job.Model, j.job.Spectrum, j.job.Initial, j.job.Options)
				} else {
					res, err = FitCole(ctx, j.job.Model, j.job.Spectrum, j.job.Initial, j.job.Options)
				}
				results <- JobResult{Index: j.index, Name: j.job.Name, Result: res, Err: err}
			}
		}()
	}

	for i, job := range jobs {
		queue <- indexed{index: i, job: job}
	}
	close(queue)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]JobResult, len(jobs))
	for r := range results {
		out[r.Index] = r
	}
	return out
}
