package app

import (
	"github.com/jwulff/rehearse/internal/analysis"
	"github.com/jwulff/rehearse/internal/controller"
	"github.com/jwulff/rehearse/internal/session"
)

// SessionOpenedMsg is sent when a session is opened or created.
type SessionOpenedMsg struct {
	Session *session.Session
	Err     error
}

// SessionsListedMsg carries stored sessions for the picker.
type SessionsListedMsg struct {
	Sessions []session.Summary
	Err      error
}

// ControllerEventMsg wraps an event from the controller.
type ControllerEventMsg struct {
	Event controller.Event
}

// ActionResultMsg reports the outcome of an intent that changes the session.
type ActionResultMsg struct {
	Action string
	Notice string
	Err    error
}

// AnalysisMsg carries feedback for one take, or for the whole session
// when Session is set.
type AnalysisMsg struct {
	SlideID int
	TakeID  int
	Session bool
	Result  analysis.Result
	Err     error
}

// LevelTickMsg refreshes the input level meter while recording.
type LevelTickMsg struct{}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
