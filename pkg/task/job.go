package task

import (
	"context"
	"sync"
	"sync/atomic"
)

// Job runs a long peripheral operation off the update loop. A job is suspended until
// started, runs to completion on its own goroutine, then reports back by enabling its
// completion task; it never touches module state directly.
type Job struct {
	name    string
	work    func(ctx context.Context) bool
	done    *Task
	running atomic.Bool
	result  atomic.Bool
	wg      sync.WaitGroup
}

func NewJob(name string, work func(ctx context.Context) bool, done *Task) *Job {
	return &Job{name: name, work: work, done: done}
}

func (j *Job) Name() string {
	return j.name
}

// Start resumes the job; it returns false when a previous run is still in flight.
func (j *Job) Start(ctx context.Context) bool {
	if !j.running.CompareAndSwap(false, true) {
		return false
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ok := j.work(ctx)
		j.result.Store(ok)
		j.running.Store(false)
		if j.done != nil {
			j.done.Enable()
		}
	}()
	return true
}

func (j *Job) Running() bool {
	return j.running.Load()
}

// Result is the outcome of the last completed run.
func (j *Job) Result() bool {
	return j.result.Load()
}

// Wait blocks until the current run finishes or ctx expires. It reports whether the job
// is idle on return.
func (j *Job) Wait(ctx context.Context) bool {
	finished := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-ctx.Done():
		return false
	}
}
