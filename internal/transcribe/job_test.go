package transcribe

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jwulff/rehearse/internal/workerpool"
)

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func waitIdle(t *testing.T, j *Job) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for j.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s", j.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJobSuccess(t *testing.T) {
	var calls atomic.Int32
	tr := TranscriberFunc(func(ctx context.Context, path string) (Transcript, error) {
		calls.Add(1)
		return Transcript{Text: "hello " + path, Meta: map[string]any{"text": "hello " + path}}, nil
	})
	j := NewJob(tr, workerpool.New(1, 1))

	done := make(chan Outcome, 1)
	var stateInCallback State
	err := j.Start(context.Background(), "take.wav", func(out Outcome) {
		stateInCallback = j.State()
		done <- out
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	out := waitOutcome(t, done)
	if out.Err != nil {
		t.Fatalf("Err = %v", out.Err)
	}
	if out.Transcript.Text != "hello take.wav" {
		t.Errorf("Text = %q", out.Transcript.Text)
	}
	if out.JobID == "" || out.JobID != j.ID() {
		t.Errorf("JobID = %q, ID() = %q", out.JobID, j.ID())
	}
	if stateInCallback != Succeeded {
		t.Errorf("state during callback = %s, want succeeded", stateInCallback)
	}
	waitIdle(t, j)
	if calls.Load() != 1 {
		t.Errorf("transcriber called %d times, want 1", calls.Load())
	}
}

func TestJobFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	providerErr := errors.New("audio file not found")
	tr := TranscriberFunc(func(ctx context.Context, path string) (Transcript, error) {
		calls.Add(1)
		return Transcript{}, providerErr
	})
	j := NewJob(tr, nil)

	done := make(chan Outcome, 1)
	var stateInCallback State
	if err := j.Start(context.Background(), "missing.wav", func(out Outcome) {
		stateInCallback = j.State()
		done <- out
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out := waitOutcome(t, done)
	if !errors.Is(out.Err, ErrTranscriptionFailed) {
		t.Errorf("Err = %v, want ErrTranscriptionFailed", out.Err)
	}
	if !errors.Is(out.Err, providerErr) {
		t.Errorf("Err = %v, should carry provider error", out.Err)
	}
	if stateInCallback != Failed {
		t.Errorf("state during callback = %s, want failed", stateInCallback)
	}
	waitIdle(t, j)
	if calls.Load() != 1 {
		t.Errorf("transcriber called %d times, want 1", calls.Load())
	}
}

func TestJobPanicReportsFailure(t *testing.T) {
	var calls atomic.Int32
	tr := TranscriberFunc(func(ctx context.Context, path string) (Transcript, error) {
		if calls.Add(1) == 1 {
			panic("decoder blew up")
		}
		return Transcript{Text: "second try"}, nil
	})
	j := NewJob(tr, workerpool.New(1, 1))

	done := make(chan Outcome, 1)
	if err := j.Start(context.Background(), "take.wav", func(o Outcome) { done <- o }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	out := waitOutcome(t, done)
	if !errors.Is(out.Err, ErrTranscriptionFailed) {
		t.Fatalf("Err = %v, want ErrTranscriptionFailed", out.Err)
	}
	waitIdle(t, j)

	if err := j.Start(context.Background(), "take.wav", func(o Outcome) { done <- o }); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	if out := waitOutcome(t, done); out.Err != nil || out.Transcript.Text != "second try" {
		t.Errorf("retry outcome = %+v", out)
	}
}

func TestJobStartWhileRunning(t *testing.T) {
	release := make(chan struct{})
	tr := TranscriberFunc(func(ctx context.Context, path string) (Transcript, error) {
		<-release
		return Transcript{Text: "ok"}, nil
	})
	j := NewJob(tr, nil)

	done := make(chan Outcome, 2)
	if err := j.Start(context.Background(), "a.wav", func(o Outcome) { done <- o }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if j.State() != Running {
		t.Errorf("state = %s, want running", j.State())
	}
	if err := j.Start(context.Background(), "b.wav", func(o Outcome) { done <- o }); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	out := waitOutcome(t, done)
	if out.AudioPath != "a.wav" {
		t.Errorf("AudioPath = %q, want a.wav", out.AudioPath)
	}
	waitIdle(t, j)

	// idle again, so a retry is accepted
	if err := j.Start(context.Background(), "b.wav", func(o Outcome) { done <- o }); err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	waitOutcome(t, done)
}

func TestJobStartReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	tr := TranscriberFunc(func(ctx context.Context, path string) (Transcript, error) {
		<-release
		return Transcript{}, nil
	})
	j := NewJob(tr, workerpool.New(1, 1))

	returned := make(chan error, 1)
	go func() { returned <- j.Start(context.Background(), "slow.wav", nil) }()

	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start blocked on the transcriber")
	}
}

func TestJobPoolBusy(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocking := TranscriberFunc(func(ctx context.Context, path string) (Transcript, error) {
		<-release
		return Transcript{}, nil
	})
	pool := workerpool.New(1, 1)

	first := NewJob(blocking, pool)
	second := NewJob(blocking, pool)
	third := NewJob(blocking, pool)
	if err := first.Start(context.Background(), "1.wav", nil); err != nil {
		t.Fatalf("first: %v", err)
	}
	// wait until the worker picked up the first task so the queue has room
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := second.Start(context.Background(), "2.wav", nil); err == nil {
			break
		} else if !errors.Is(err, ErrBusy) || time.Now().After(deadline) {
			t.Fatalf("second: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if err := third.Start(context.Background(), "3.wav", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("third err = %v, want ErrBusy", err)
	}
	if third.State() != Idle {
		t.Errorf("rejected job state = %s, want idle", third.State())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Running: "running", Succeeded: "succeeded", Failed: "failed"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
