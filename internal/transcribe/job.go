package transcribe

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/workerpool"
)

var log = logging.L("transcribe")

var (
	// ErrAlreadyRunning is returned by Start unless the job is idle.
	ErrAlreadyRunning = errors.New("transcription already running")
	// ErrBusy is returned when the worker pool cannot take another job.
	ErrBusy = errors.New("transcription queue full")
)

// State is a job's lifecycle position.
type State int

const (
	Idle State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is delivered once per started job.
type Outcome struct {
	JobID      string
	AudioPath  string
	Transcript Transcript
	// Err wraps ErrTranscriptionFailed and the provider error.
	Err     error
	Elapsed time.Duration
}

// Job runs one transcription at a time against a Transcriber.
// Completion is reported to the callback passed to Start; the job is idle
// again once the callback returns.
type Job struct {
	transcriber Transcriber
	pool        *workerpool.Pool

	mu    sync.Mutex
	state State
	id    string
}

// NewJob creates an idle job. A nil pool runs work on a fresh goroutine.
func NewJob(t Transcriber, pool *workerpool.Pool) *Job {
	return &Job{transcriber: t, pool: pool}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// ID returns the id of the current or last run.
func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

// Start schedules a transcription of audioPath and returns immediately.
// The transcriber is called exactly once; there are no retries.
func (j *Job) Start(ctx context.Context, audioPath string, onDone func(Outcome)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != Idle {
		return ErrAlreadyRunning
	}
	id := uuid.NewString()
	j.state = Running
	j.id = id

	task := func() { j.run(ctx, id, audioPath, onDone) }
	if j.pool == nil {
		go task()
		return nil
	}
	if !j.pool.Submit(task) {
		j.state = Idle
		return ErrBusy
	}
	return nil
}

func (j *Job) run(ctx context.Context, id, audioPath string, onDone func(Outcome)) {
	started := time.Now()
	tr, err := j.transcribe(ctx, audioPath)
	out := Outcome{JobID: id, AudioPath: audioPath, Transcript: tr, Elapsed: time.Since(started)}

	j.mu.Lock()
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
		j.state = Failed
		log.Warn("transcription failed", logging.KeyJob, id, "audio", audioPath, logging.KeyError, err)
	} else {
		j.state = Succeeded
		log.Info("transcription finished", logging.KeyJob, id, "audio", audioPath, "elapsed", out.Elapsed)
	}
	j.mu.Unlock()

	if onDone != nil {
		onDone(out)
	}

	j.mu.Lock()
	j.state = Idle
	j.mu.Unlock()
}

// transcribe calls the provider, turning a panic into an error so the job
// still reaches Failed and reports its outcome.
func (j *Job) transcribe(ctx context.Context, audioPath string) (tr Transcript, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("transcriber panicked", "audio", audioPath, "panic", r, "stack", string(debug.Stack()))
			tr, err = Transcript{}, fmt.Errorf("transcriber panic: %v", r)
		}
	}()
	return j.transcriber.Transcribe(ctx, audioPath)
}
