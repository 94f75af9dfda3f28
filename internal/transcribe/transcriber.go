// Package transcribe turns recorded takes into text through a speech-to-text
// provider, one background job per take.
package transcribe

import (
	"context"
	"errors"
)

// ErrTranscriptionFailed wraps any provider error reported by a job.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Transcript is the provider's answer for one audio file.
type Transcript struct {
	Text string
	// Meta is the provider's full response.
	Meta map[string]any
}

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, audioPath string) (Transcript, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	return f(ctx, audioPath)
}
