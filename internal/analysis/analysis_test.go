package analysis

import (
	"testing"

	"github.com/jwulff/rehearse/internal/session"
)

func TestAnalyzeMissingKeywords(t *testing.T) {
	slide := session.Slide{ID: 1, Title: "Intro", Notes: "intro\nproblem"}
	take := session.Take{ID: 1, SlideID: 1, DurationSec: 45.0, TranscriptText: "Today I'll cover the INTRO and close"}

	r := Analyze(slide, take)

	if len(r.MissingKeywords) != 1 || r.MissingKeywords[0] != "problem" {
		t.Errorf("MissingKeywords = %v, want [problem]", r.MissingKeywords)
	}
	if r.TimingLabel != TimingGood {
		t.Errorf("TimingLabel = %q, want %q", r.TimingLabel, TimingGood)
	}
	want := "Slide: Intro\nDuration: 45.0s (good)\nMissing keywords: problem"
	if r.Summary != want {
		t.Errorf("Summary = %q, want %q", r.Summary, want)
	}
}

func TestAnalyzeAllCovered(t *testing.T) {
	slide := session.Slide{Title: "Close", Notes: "  Thanks \n\n\nQuestions"}
	take := session.Take{DurationSec: 20, TranscriptText: "thanks everyone, any questions?"}

	r := Analyze(slide, take)

	if len(r.MissingKeywords) != 0 {
		t.Errorf("MissingKeywords = %v, want none", r.MissingKeywords)
	}
	want := "Slide: Close\nDuration: 20.0s (good)\nAll noted keywords covered."
	if r.Summary != want {
		t.Errorf("Summary = %q, want %q", r.Summary, want)
	}
}

func TestAnalyzePreservesOrderAndDuplicates(t *testing.T) {
	slide := session.Slide{Notes: "zeta\nalpha\nzeta"}
	r := Analyze(slide, session.Take{DurationSec: 30})

	want := []string{"zeta", "alpha", "zeta"}
	if len(r.MissingKeywords) != len(want) {
		t.Fatalf("MissingKeywords = %v, want %v", r.MissingKeywords, want)
	}
	for i := range want {
		if r.MissingKeywords[i] != want[i] {
			t.Errorf("MissingKeywords[%d] = %q, want %q", i, r.MissingKeywords[i], want[i])
		}
	}
}

func TestTiming(t *testing.T) {
	tests := []struct {
		dur  float64
		want string
	}{
		{95.0, TimingLong},
		{90.0, TimingGood},
		{20.0, TimingGood},
		{19.99, TimingShort},
		{10.0, TimingShort},
		{45.0, TimingGood},
	}
	for _, tt := range tests {
		if got := Timing(tt.dur); got != tt.want {
			t.Errorf("Timing(%v) = %q, want %q", tt.dur, got, tt.want)
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	slide := session.Slide{Title: "X", Notes: "a\nb"}
	take := session.Take{DurationSec: 33.3, TranscriptText: "A"}

	first := Analyze(slide, take)
	second := Analyze(slide, take)
	if first.Summary != second.Summary || first.TimingLabel != second.TimingLabel {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
}

func TestAnalyzeRange(t *testing.T) {
	items := []Item{
		{Slide: session.Slide{Title: "A", Notes: "one"}, Take: session.Take{DurationSec: 30, TranscriptText: "one"}},
		{Slide: session.Slide{Title: "B", Notes: "two"}, Take: session.Take{DurationSec: 95}},
		{Slide: session.Slide{Title: "C", Notes: "three"}, Take: session.Take{DurationSec: 5}},
	}

	r := AnalyzeRange(items)

	if r.TimingLabel != TimingLong {
		t.Errorf("TimingLabel = %q, want %q", r.TimingLabel, TimingLong)
	}
	if len(r.MissingKeywords) != 2 || r.MissingKeywords[0] != "two" || r.MissingKeywords[1] != "three" {
		t.Errorf("MissingKeywords = %v", r.MissingKeywords)
	}
	want := Analyze(items[0].Slide, items[0].Take).Summary + "\n\n" +
		Analyze(items[1].Slide, items[1].Take).Summary + "\n\n" +
		Analyze(items[2].Slide, items[2].Take).Summary
	if r.Summary != want {
		t.Errorf("Summary = %q, want %q", r.Summary, want)
	}
}

func TestAggregateTiming(t *testing.T) {
	tests := []struct {
		labels []string
		want   string
	}{
		{[]string{"good", "long", "short"}, TimingLong},
		{[]string{"good", "short"}, TimingShort},
		{[]string{"good", "good"}, TimingGood},
		{nil, TimingUnknown},
	}
	for _, tt := range tests {
		if got := AggregateTiming(tt.labels); got != tt.want {
			t.Errorf("AggregateTiming(%v) = %q, want %q", tt.labels, got, tt.want)
		}
	}
	if got := AnalyzeRange(nil).TimingLabel; got != TimingUnknown {
		t.Errorf("AnalyzeRange(nil) = %q, want %q", got, TimingUnknown)
	}
}
