package queue

import (
	"context"

	"git.home.luguber.info/inful/repobuilder/internal/build"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// Result pairs a candidate with its outcome.
type Result struct {
	Ref    repository.RepositoryRef
	Report *build.BuildReport
	Err    error
	JobID  string
}

// BuildAll builds refs on workers and returns one result per ref in input
// order. configure, when non-nil, is applied to the queue before it starts.
// Candidates not started when ctx ends are reported with the context error.
func BuildAll(ctx context.Context, builder Builder, refs []repository.RepositoryRef, workers int, typ JobType, configure func(*BuildQueue)) []Result {
	results := make([]Result, len(refs))
	if len(refs) == 0 {
		return results
	}
	if workers > len(refs) {
		workers = len(refs)
	}
	bq := New(len(refs), workers, builder)
	if configure != nil {
		configure(bq)
	}

	jobs := make([]*Job, len(refs))
	for i, ref := range refs {
		jobs[i] = NewJob(ref, typ)
		if err := bq.Enqueue(jobs[i]); err != nil {
			results[i] = Result{Ref: ref, Err: err, JobID: jobs[i].ID}
			jobs[i] = nil
		}
	}

	bq.Start(ctx)
	for i, job := range jobs {
		if job == nil {
			continue
		}
		select {
		case <-job.Done():
		case <-ctx.Done():
			bq.Stop(ctx)
			<-job.Done()
		}
		results[i] = Result{Ref: refs[i], Report: job.Report, Err: job.Err(), JobID: job.ID}
	}
	bq.Stop(ctx)
	return results
}
