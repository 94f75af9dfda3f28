// Package history keeps past analysis results in SQLite so progress on a
// slide can be compared across takes.
package history

import "time"

// Entry is one recorded analysis of a take.
type Entry struct {
	ID              string
	SessionID       string
	SlideID         int
	TakeID          int
	TimingLabel     string
	MissingKeywords []string
	Summary         string
	DurationSec     float64
	CreatedAt       time.Time
}
