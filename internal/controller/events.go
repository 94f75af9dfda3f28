package controller

import "github.com/jwulff/rehearse/internal/analysis"

// Event kinds emitted by the controller.
const (
	EventSession              = "session"
	EventRecordingStarted     = "recording_started"
	EventRecordingStopped     = "recording_stopped"
	EventTranscriptionStarted = "transcription_started"
	EventTranscriptionDone    = "transcription_done"
	EventTranscriptionFailed  = "transcription_failed"
	EventAnalysis             = "analysis"
)

// Event notifies front-ends of state changes made by the controller or its
// background jobs. The session itself is read back with Snapshot.
type Event struct {
	Kind      string           `json:"event"`
	SessionID string           `json:"sessionId,omitempty"`
	SlideID   int              `json:"slideId,omitempty"`
	TakeID    int              `json:"takeId,omitempty"`
	Text      string           `json:"text,omitempty"`
	Message   string           `json:"message,omitempty"`
	Analysis  *analysis.Result `json:"analysis,omitempty"`
}

// eventBuffer bounds undelivered events. A listener that falls behind loses events.
const eventBuffer = 64

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Debug("event dropped, no listener", "event", ev.Kind)
	}
}
