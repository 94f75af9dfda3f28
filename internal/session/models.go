// Package session holds the rehearsal data model and its file-backed store.
package session

import (
	"fmt"
	"slices"
	"time"
)

// Titles used when the caller does not supply one.
const (
	DefaultSessionTitle = "My Presentation"
	NewSlideTitle       = "New slide"
)

// DefaultSlideTitles seeds a new session when no slide titles are given.
var DefaultSlideTitles = []string{"Intro", "Problem", "Solution", "Close"}

// Slide is one unit of content with newline-delimited keyword notes.
type Slide struct {
	ID    int
	Title string
	Notes string
}

// Take is one recorded attempt at delivering a slide.
type Take struct {
	ID             int
	SlideID        int
	AudioPath      string
	DurationSec    float64
	TranscriptText string
	TranscriptMeta map[string]any
	CreatedAt      time.Time
}

// Transcribed reports whether the take already carries a transcript.
func (t Take) Transcribed() bool {
	return t.TranscriptText != ""
}

// Session is one rehearsal project: slides plus their takes keyed by slide id.
type Session struct {
	ID           string
	Title        string
	Slides       []Slide
	TakesBySlide map[int][]Take
}

// Slide returns the slide with the given id.
func (s *Session) Slide(id int) (*Slide, bool) {
	for i := range s.Slides {
		if s.Slides[i].ID == id {
			return &s.Slides[i], true
		}
	}
	return nil, false
}

// Takes returns the slide's takes in recording order.
func (s *Session) Takes(slideID int) []Take {
	return s.TakesBySlide[slideID]
}

// Take returns a pointer into the slide's take bucket.
func (s *Session) Take(slideID, takeID int) (*Take, bool) {
	takes := s.TakesBySlide[slideID]
	for i := range takes {
		if takes[i].ID == takeID {
			return &takes[i], true
		}
	}
	return nil, false
}

// LatestTake returns the most recently recorded take for a slide.
func (s *Session) LatestTake(slideID int) (*Take, bool) {
	takes := s.TakesBySlide[slideID]
	if len(takes) == 0 {
		return nil, false
	}
	return &takes[len(takes)-1], true
}

// NextSlideID returns max(slide id)+1, or 1 for an empty session.
func (s *Session) NextSlideID() int {
	next := 1
	for _, sl := range s.Slides {
		if sl.ID >= next {
			next = sl.ID + 1
		}
	}
	return next
}

// NextTakeID returns max(take id)+1 within the slide, or 1.
func (s *Session) NextTakeID(slideID int) int {
	next := 1
	for _, t := range s.TakesBySlide[slideID] {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next
}

// AddSlide appends a slide with the next id.
func (s *Session) AddSlide(title, notes string) Slide {
	sl := Slide{ID: s.NextSlideID(), Title: title, Notes: notes}
	s.Slides = append(s.Slides, sl)
	return sl
}

// AddTake appends a take to its slide's bucket.
func (s *Session) AddTake(t Take) {
	if s.TakesBySlide == nil {
		s.TakesBySlide = make(map[int][]Take)
	}
	s.TakesBySlide[t.SlideID] = append(s.TakesBySlide[t.SlideID], t)
}

// RemoveSlide drops a slide and its take bucket.
func (s *Session) RemoveSlide(id int) {
	s.Slides = slices.DeleteFunc(s.Slides, func(sl Slide) bool { return sl.ID == id })
	delete(s.TakesBySlide, id)
}

// TakeCount returns the number of takes across all slides.
func (s *Session) TakeCount() int {
	n := 0
	for _, takes := range s.TakesBySlide {
		n += len(takes)
	}
	return n
}

// Validate checks identity invariants: unique slide ids, no orphaned take
// buckets, and takes filed under their own slide.
func (s *Session) Validate() error {
	seen := make(map[int]bool, len(s.Slides))
	for _, sl := range s.Slides {
		if seen[sl.ID] {
			return fmt.Errorf("duplicate slide id %d", sl.ID)
		}
		seen[sl.ID] = true
	}
	for slideID, takes := range s.TakesBySlide {
		if !seen[slideID] {
			return fmt.Errorf("takes for unknown slide %d", slideID)
		}
		ids := make(map[int]bool, len(takes))
		for _, t := range takes {
			if t.SlideID != slideID {
				return fmt.Errorf("take %d filed under slide %d has slide_id %d", t.ID, slideID, t.SlideID)
			}
			if ids[t.ID] {
				return fmt.Errorf("duplicate take id %d for slide %d", t.ID, slideID)
			}
			ids[t.ID] = true
		}
	}
	return nil
}

// Summary is a lightweight listing entry for a stored session.
type Summary struct {
	ID      string
	Title   string
	Slides  int
	Takes   int
	ModTime time.Time
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	out := &Session{
		ID:           s.ID,
		Title:        s.Title,
		Slides:       append([]Slide(nil), s.Slides...),
		TakesBySlide: make(map[int][]Take, len(s.TakesBySlide)),
	}
	for id, takes := range s.TakesBySlide {
		cp := make([]Take, len(takes))
		for i, t := range takes {
			cp[i] = t
			if t.TranscriptMeta != nil {
				meta := make(map[string]any, len(t.TranscriptMeta))
				for k, v := range t.TranscriptMeta {
					meta[k] = v
				}
				cp[i].TranscriptMeta = meta
			}
		}
		out.TakesBySlide[id] = cp
	}
	return out
}
