// Package analysis compares a take's transcript with its slide's keyword notes.
package analysis

import (
	"fmt"
	"strings"

	"github.com/jwulff/rehearse/internal/session"
)

// Timing labels.
const (
	TimingGood    = "good"
	TimingLong    = "long"
	TimingShort   = "short"
	TimingUnknown = "unknown"
)

// Duration thresholds in seconds.
const (
	LongAfterSec  = 90.0
	ShortUnderSec = 20.0
)

// Result is the feedback for one take or a range of takes.
type Result struct {
	Summary         string
	MissingKeywords []string
	TimingLabel     string
}

// Item pairs a slide with the take being judged against it.
type Item struct {
	Slide session.Slide
	Take  session.Take
}

// Keywords splits notes into lower-cased, trimmed, non-blank lines.
func Keywords(notes string) []string {
	var out []string
	for _, line := range strings.Split(notes, "\n") {
		kw := strings.ToLower(strings.TrimSpace(line))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// Timing labels a duration.
func Timing(durationSec float64) string {
	switch {
	case durationSec > LongAfterSec:
		return TimingLong
	case durationSec < ShortUnderSec:
		return TimingShort
	default:
		return TimingGood
	}
}

// Analyze judges one take against its slide.
func Analyze(slide session.Slide, take session.Take) Result {
	transcript := strings.ToLower(take.TranscriptText)

	missing := []string{}
	for _, kw := range Keywords(slide.Notes) {
		if !strings.Contains(transcript, kw) {
			missing = append(missing, kw)
		}
	}
	label := Timing(take.DurationSec)

	lines := []string{
		"Slide: " + slide.Title,
		fmt.Sprintf("Duration: %.1fs (%s)", take.DurationSec, label),
	}
	if len(missing) > 0 {
		lines = append(lines, "Missing keywords: "+strings.Join(missing, ", "))
	} else {
		lines = append(lines, "All noted keywords covered.")
	}

	return Result{
		Summary:         strings.Join(lines, "\n"),
		MissingKeywords: missing,
		TimingLabel:     label,
	}
}

// AnalyzeRange folds several takes into one result. Timing aggregates with
// long > short > good, and unknown for no items.
func AnalyzeRange(items []Item) Result {
	summaries := make([]string, 0, len(items))
	missing := []string{}
	labels := make([]string, 0, len(items))
	for _, it := range items {
		r := Analyze(it.Slide, it.Take)
		summaries = append(summaries, r.Summary)
		missing = append(missing, r.MissingKeywords...)
		labels = append(labels, r.TimingLabel)
	}
	return Result{
		Summary:         strings.Join(summaries, "\n\n"),
		MissingKeywords: missing,
		TimingLabel:     AggregateTiming(labels),
	}
}

// AggregateTiming reduces labels by precedence.
func AggregateTiming(labels []string) string {
	if len(labels) == 0 {
		return TimingUnknown
	}
	agg := TimingGood
	for _, l := range labels {
		switch l {
		case TimingLong:
			return TimingLong
		case TimingShort:
			agg = TimingShort
		}
	}
	return agg
}
