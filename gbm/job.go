package gbm

import (
	"context"
	"sync"
	"time"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/pkg/errors"
)

// JobStatus is the lifecycle state of a training job.
type JobStatus string

const (
	JobCreated   JobStatus = "CREATED"
	JobRunning   JobStatus = "RUNNING"
	JobDone      JobStatus = "DONE"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Job tracks one asynchronous model build.
type Job struct {
	key      cluster.Key
	modelKey cluster.Key
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.RWMutex
	status   JobStatus
	progress float64
	started  time.Time
	ended    time.Time
	model    *Model
	err      error
}

func newJob(modelKey cluster.Key, cancel context.CancelFunc) *Job {
	return &Job{
		key:      cluster.RandomKey("job"),
		modelKey: modelKey,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   JobCreated,
	}
}

// Key is the store key of the job itself.
func (j *Job) Key() cluster.Key { return j.key }

// ModelKey is the key the model is stored under once the job is done.
func (j *Job) ModelKey() cluster.Key { return j.modelKey }

// Status returns the current state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Progress returns the fraction of trees built, in [0, 1].
func (j *Job) Progress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Cancel stops the build at the next iteration boundary.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Get blocks until the model is built or ctx is done. A failed or cancelled
// build returns its error.
func (j *Job) Get(ctx context.Context) (*Model, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.model, j.err
}

func (j *Job) start() {
	j.mu.Lock()
	j.status = JobRunning
	j.started = time.Now()
	j.mu.Unlock()
}

func (j *Job) setProgress(p float64) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

func (j *Job) finish(m *Model, err error) {
	j.mu.Lock()
	j.ended = time.Now()
	j.model, j.err = m, err
	switch {
	case err == nil:
		j.status = JobDone
		j.progress = 1
	case errors.Is(err, context.Canceled):
		j.status = JobCancelled
	default:
		j.status = JobFailed
	}
	j.mu.Unlock()
	close(j.done)
}

// Describe implements cluster.Describer.
func (j *Job) Describe() cluster.Description {
	j.mu.RLock()
	defer j.mu.RUnlock()
	summary := map[string]interface{}{
		"status":   string(j.status),
		"progress": j.progress,
		"dest":     j.modelKey,
	}
	if !j.started.IsZero() {
		end := j.ended
		if end.IsZero() {
			end = time.Now()
		}
		summary["msec"] = end.Sub(j.started).Milliseconds()
	}
	if j.err != nil {
		summary["exception"] = j.err.Error()
	}
	return cluster.Description{Key: j.key, Kind: "job", Summary: summary}
}
