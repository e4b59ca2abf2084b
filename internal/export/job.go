package export

import (
	"context"
	"sync"
	"time"

	"github.com/eleven-am/montage/internal/domain"
)

const progressBuffer = 64

// Job is one running export. Its progress channel is closed once the job
// reaches a terminal state.
type Job struct {
	id      string
	started time.Time
	cancel  context.CancelFunc

	progress chan domain.Progress
	done     chan struct{}

	mu      sync.RWMutex
	state   domain.JobState
	loaded  int
	total   int
	percent float64
	result  domain.Result
	err     error
}

func newJob(id string, cancel context.CancelFunc) *Job {
	return &Job{
		id:       id,
		started:  time.Now(),
		cancel:   cancel,
		progress: make(chan domain.Progress, progressBuffer),
		done:     make(chan struct{}),
		state:    domain.JobPreparing,
	}
}

func (j *Job) ID() string { return j.id }

func (j *Job) State() domain.JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Progress streams state changes and encode progress. Updates are dropped
// when the reader falls behind.
func (j *Job) Progress() <-chan domain.Progress {
	return j.progress
}

// Done is closed when the job has finished and cleaned up.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (domain.Result, error) {
	select {
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	case <-j.done:
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result, j.err
}

// Cancel stops the job. Wait reports errs.ErrCancelled afterwards.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) snapshot() domain.Progress {
	return domain.Progress{
		JobID:   j.id,
		State:   j.state,
		Loaded:  j.loaded,
		Total:   j.total,
		Percent: j.percent,
	}
}

func (j *Job) setState(s domain.JobState) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.state = s
	p := j.snapshot()
	j.mu.Unlock()
	j.publish(p)
}

func (j *Job) setLoaded(loaded, total int) {
	j.mu.Lock()
	j.loaded, j.total = loaded, total
	p := j.snapshot()
	j.mu.Unlock()
	j.publish(p)
}

func (j *Job) setPercent(v float64) {
	j.mu.Lock()
	if v < j.percent {
		j.mu.Unlock()
		return
	}
	j.percent = v
	p := j.snapshot()
	j.mu.Unlock()
	j.publish(p)
}

func (j *Job) publish(p domain.Progress) {
	select {
	case j.progress <- p:
	default:
	}
}

// finish records the outcome, emits the terminal state and releases waiters.
func (j *Job) finish(state domain.JobState, result domain.Result, err error) {
	j.mu.Lock()
	j.state = state
	j.result = result
	j.err = err
	if state == domain.JobSucceeded {
		j.percent = 100
	}
	p := j.snapshot()
	j.mu.Unlock()

	// The terminal update must not be lost to a full buffer.
	select {
	case j.progress <- p:
	default:
		select {
		case <-j.progress:
		default:
		}
		j.progress <- p
	}
	close(j.progress)
	close(j.done)
}
