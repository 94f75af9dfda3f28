package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// CreatedAtLayout is the on-disk timestamp format for takes.
const CreatedAtLayout = "2006-01-02T15:04:05"

type sessionDoc struct {
	ID           string               `json:"id"`
	Title        *string              `json:"title,omitempty"`
	Slides       []slideDoc           `json:"slides"`
	TakesBySlide map[string][]takeDoc `json:"takes_by_slide"`
}

type slideDoc struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Notes string `json:"notes"`
}

type takeDoc struct {
	ID             int            `json:"id"`
	SlideID        int            `json:"slide_id"`
	AudioPath      string         `json:"audio_path"`
	DurationSec    float64        `json:"duration_sec"`
	TranscriptText string         `json:"transcript_text"`
	TranscriptMeta map[string]any `json:"transcript_meta"`
	CreatedAt      string         `json:"created_at"`
}

// Encode renders a session document with string slide-id keys.
func Encode(s *Session) ([]byte, error) {
	title := s.Title
	doc := sessionDoc{
		ID:           s.ID,
		Title:        &title,
		Slides:       make([]slideDoc, 0, len(s.Slides)),
		TakesBySlide: make(map[string][]takeDoc, len(s.TakesBySlide)),
	}
	for _, sl := range s.Slides {
		doc.Slides = append(doc.Slides, slideDoc{ID: sl.ID, Title: sl.Title, Notes: sl.Notes})
	}
	for slideID, takes := range s.TakesBySlide {
		docs := make([]takeDoc, 0, len(takes))
		for _, t := range takes {
			docs = append(docs, encodeTake(t))
		}
		doc.TakesBySlide[strconv.Itoa(slideID)] = docs
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a session document. Any structural problem wraps ErrCorruptData.
func Decode(data []byte) (*Session, error) {
	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrCorruptData)
	}

	s := &Session{
		ID:           doc.ID,
		Title:        doc.ID,
		Slides:       make([]Slide, 0, len(doc.Slides)),
		TakesBySlide: make(map[int][]Take, len(doc.TakesBySlide)),
	}
	if doc.Title != nil {
		s.Title = *doc.Title
	}
	for _, sd := range doc.Slides {
		s.Slides = append(s.Slides, Slide{ID: sd.ID, Title: sd.Title, Notes: sd.Notes})
	}

	keys := make([]string, 0, len(doc.TakesBySlide))
	for k := range doc.TakesBySlide {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		slideID, err := strconv.Atoi(key)
		if err != nil || strconv.Itoa(slideID) != key {
			return nil, fmt.Errorf("%w: slide key %q is not a canonical integer", ErrCorruptData, key)
		}
		takes := make([]Take, 0, len(doc.TakesBySlide[key]))
		for _, td := range doc.TakesBySlide[key] {
			t, err := decodeTake(td)
			if err != nil {
				return nil, err
			}
			takes = append(takes, t)
		}
		s.TakesBySlide[slideID] = takes
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return s, nil
}

// EncodeTake renders the side-car document for one take.
func EncodeTake(t Take) ([]byte, error) {
	return json.MarshalIndent(encodeTake(t), "", "  ")
}

// DecodeTake parses a side-car document.
func DecodeTake(data []byte) (Take, error) {
	var td takeDoc
	if err := json.Unmarshal(data, &td); err != nil {
		return Take{}, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return decodeTake(td)
}

func encodeTake(t Take) takeDoc {
	meta := t.TranscriptMeta
	if meta == nil {
		meta = map[string]any{}
	}
	return takeDoc{
		ID:             t.ID,
		SlideID:        t.SlideID,
		AudioPath:      t.AudioPath,
		DurationSec:    t.DurationSec,
		TranscriptText: t.TranscriptText,
		TranscriptMeta: meta,
		CreatedAt:      t.CreatedAt.Local().Format(CreatedAtLayout),
	}
}

func decodeTake(td takeDoc) (Take, error) {
	t := Take{
		ID:             td.ID,
		SlideID:        td.SlideID,
		AudioPath:      td.AudioPath,
		DurationSec:    td.DurationSec,
		TranscriptText: td.TranscriptText,
		TranscriptMeta: td.TranscriptMeta,
	}
	if t.TranscriptMeta == nil {
		t.TranscriptMeta = map[string]any{}
	}
	if td.CreatedAt != "" {
		ts, err := time.ParseInLocation(CreatedAtLayout, td.CreatedAt, time.Local)
		if err != nil {
			return Take{}, fmt.Errorf("%w: take %d created_at: %v", ErrCorruptData, td.ID, err)
		}
		t.CreatedAt = ts
	}
	return t, nil
}
