// Package metrics exposes Prometheus instruments for the rehearsal engine.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for rehearse.
type Metrics struct {
	// Recording
	RecordingsStarted  prometheus.Counter
	RecordingsFinished prometheus.Counter
	RecordingFailures  *prometheus.CounterVec
	TakeDuration       prometheus.Histogram

	// Transcription
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionsInFlight prometheus.Gauge

	// Analysis
	Analyses *prometheus.CounterVec

	// Persistence
	SessionSaves      prometheus.Counter
	SessionSaveErrors prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "rehearse_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsFinished: f.NewCounter(prometheus.CounterOpts{
			Name: "rehearse_recordings_finished_total",
			Help: "Total number of recordings saved as takes",
		}),
		RecordingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehearse_recording_failures_total",
			Help: "Total number of failed recording attempts by reason",
		}, []string{"reason"}),
		TakeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rehearse_take_duration_seconds",
			Help:    "Duration of recorded takes",
			Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
		}),
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "rehearse_transcription_requests_total",
			Help: "Total number of transcription jobs started",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "rehearse_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rehearse_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rehearse_transcription_duration_seconds",
			Help:    "Time spent waiting on the speech-to-text provider",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
		}),
		TranscriptionsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "rehearse_transcriptions_in_flight",
			Help: "Current number of running transcription jobs",
		}),
		Analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehearse_analyses_total",
			Help: "Total number of analyses by timing label",
		}, []string{"timing"}),
		SessionSaves: f.NewCounter(prometheus.CounterOpts{
			Name: "rehearse_session_saves_total",
			Help: "Total number of session document writes",
		}),
		SessionSaveErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "rehearse_session_save_errors_total",
			Help: "Total number of failed session document writes",
		}),
	}
}

// RecordTake records a finished recording.
func (m *Metrics) RecordTake(durationSec float64) {
	m.RecordingsFinished.Inc()
	m.TakeDuration.Observe(durationSec)
}

// RecordRecordingFailure counts a failed recording attempt.
func (m *Metrics) RecordRecordingFailure(reason string) {
	m.RecordingFailures.WithLabelValues(reason).Inc()
}

// RecordTranscription records a completed transcription job.
func (m *Metrics) RecordTranscription(success bool, elapsed time.Duration) {
	if success {
		m.TranscriptionSuccesses.Inc()
	} else {
		m.TranscriptionFailures.Inc()
	}
	m.TranscriptionDuration.Observe(elapsed.Seconds())
}

// RecordSave records a session write.
func (m *Metrics) RecordSave(err error) {
	m.SessionSaves.Inc()
	if err != nil {
		m.SessionSaveErrors.Inc()
	}
}

// Serve exposes the default registry on addr until the server fails.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
