// Package controller owns the open rehearsal session and turns user intents
// into capture, persistence, transcription and analysis calls.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jwulff/rehearse/internal/analysis"
	"github.com/jwulff/rehearse/internal/audio"
	"github.com/jwulff/rehearse/internal/history"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/metrics"
	"github.com/jwulff/rehearse/internal/session"
	"github.com/jwulff/rehearse/internal/transcribe"
	"github.com/jwulff/rehearse/internal/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

var log = logging.L("controller")

var (
	// ErrNoSession is returned by intents issued before a session is open.
	ErrNoSession = errors.New("no session open")
	// ErrRecordingActive rejects intents that conflict with a running capture.
	ErrRecordingActive = errors.New("recording in progress")
)

// Options wires a Controller to its collaborators.
type Options struct {
	Store       *session.Store
	Recorder    *audio.Recorder
	Transcriber transcribe.Transcriber
	// Pool runs transcription jobs. Nil means one worker.
	Pool *workerpool.Pool
	// History is optional.
	History *history.Store
	// Metrics is optional; nil registers on a private registry.
	Metrics *metrics.Metrics
	// AutoAnalyze runs analysis when a transcription lands.
	AutoAnalyze bool
	Now         func() time.Time
}

type takeKey struct {
	sessionID string
	slideID   int
	takeID    int
}

type inflight struct {
	job  *transcribe.Job
	done chan struct{}
	err  error
}

type pendingTake struct {
	slideID int
	takeID  int
	path    string
}

// Controller holds the single mutable Session. All intents serialize on mu,
// including results delivered by background transcription jobs.
type Controller struct {
	store       *session.Store
	recorder    *audio.Recorder
	transcriber transcribe.Transcriber
	pool        *workerpool.Pool
	history     *history.Store
	metrics     *metrics.Metrics
	autoAnalyze bool
	now         func() time.Time
	events      chan Event

	mu        sync.Mutex
	sess      *session.Session
	selected  int
	recording *pendingTake
	inflight  map[takeKey]*inflight
}

// New creates a controller with no session open.
func New(opts Options) *Controller {
	c := &Controller{
		store:       opts.Store,
		recorder:    opts.Recorder,
		transcriber: opts.Transcriber,
		pool:        opts.Pool,
		history:     opts.History,
		metrics:     opts.Metrics,
		autoAnalyze: opts.AutoAnalyze,
		now:         opts.Now,
		events:      make(chan Event, eventBuffer),
		inflight:    make(map[takeKey]*inflight),
	}
	if c.pool == nil {
		c.pool = workerpool.New(1, 1)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(prometheus.NewRegistry())
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Events streams notifications for front-ends.
func (c *Controller) Events() <-chan Event { return c.events }

// Close abandons any running capture and waits for transcription jobs, bounded by ctx.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.recording != nil {
		c.recorder.Discard()
		c.recording = nil
	}
	c.mu.Unlock()
	return c.pool.Drain(ctx)
}

// Snapshot returns a copy of the open session, or nil.
func (c *Controller) Snapshot() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.Clone()
}

// SelectedSlide returns the selected slide id, 0 when none.
func (c *Controller) SelectedSlide() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Recording reports the slide and take being captured.
func (c *Controller) Recording() (slideID, takeID int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording == nil {
		return 0, 0, false
	}
	return c.recording.slideID, c.recording.takeID, true
}

// Level returns the current input level while recording.
func (c *Controller) Level() float32 {
	return c.recorder.Level()
}

// Transcribing reports whether a job is in flight for the take.
func (c *Controller) Transcribing(slideID, takeID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return false
	}
	_, ok := c.inflight[takeKey{c.sess.ID, slideID, takeID}]
	return ok
}

// ListSessions returns stored sessions in id order.
func (c *Controller) ListSessions() ([]session.Summary, error) {
	return c.store.ListSessions()
}

// CreateSession creates and opens a new session.
func (c *Controller) CreateSession(title string, slideTitles []string) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording != nil {
		return nil, ErrRecordingActive
	}
	if strings.TrimSpace(title) == "" {
		title = session.DefaultSessionTitle
	}
	sess, err := c.store.CreateSession(title, slideTitles)
	c.metrics.RecordSave(err)
	if err != nil {
		return nil, err
	}
	c.open(sess)
	log.Info("session created", logging.KeySession, sess.ID)
	return sess.Clone(), nil
}

// OpenSession loads and opens a stored session.
func (c *Controller) OpenSession(id string) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording != nil {
		return nil, ErrRecordingActive
	}
	sess, err := c.store.LoadSession(id)
	if err != nil {
		return nil, err
	}
	c.open(sess)
	log.Info("session opened", logging.KeySession, sess.ID)
	return sess.Clone(), nil
}

// OpenMostRecentOrCreate opens the latest session, creating the default one when none exist.
func (c *Controller) OpenMostRecentOrCreate() (*session.Session, error) {
	c.mu.Lock()
	recent, err := c.store.LoadMostRecentSession()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if recent != nil {
		defer c.mu.Unlock()
		if c.recording != nil {
			return nil, ErrRecordingActive
		}
		c.open(recent)
		return recent.Clone(), nil
	}
	c.mu.Unlock()
	return c.CreateSession(session.DefaultSessionTitle, nil)
}

func (c *Controller) open(sess *session.Session) {
	c.sess = sess
	c.selected = 0
	if len(sess.Slides) > 0 {
		c.selected = sess.Slides[0].ID
	}
	c.emit(Event{Kind: EventSession, SessionID: sess.ID})
}

// SelectSlide marks a slide as current.
func (c *Controller) SelectSlide(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.slide(id); err != nil {
		return err
	}
	c.selected = id
	return nil
}

// EditSlideTitle renames a slide and persists.
func (c *Controller) EditSlideTitle(id int, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sl, err := c.slide(id)
	if err != nil {
		return err
	}
	old := sl.Title
	sl.Title = strings.TrimSpace(title)
	if err := c.save(); err != nil {
		sl.Title = old
		return err
	}
	return nil
}

// EditSlideNotes replaces a slide's keyword notes and persists.
func (c *Controller) EditSlideNotes(id int, notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sl, err := c.slide(id)
	if err != nil {
		return err
	}
	old := sl.Notes
	sl.Notes = notes
	if err := c.save(); err != nil {
		sl.Notes = old
		return err
	}
	return nil
}

// AddSlide appends a slide with the next id and persists.
func (c *Controller) AddSlide(title string) (session.Slide, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return session.Slide{}, ErrNoSession
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = session.NewSlideTitle
	}
	sl := c.sess.AddSlide(title, "")
	if err := c.save(); err != nil {
		c.sess.RemoveSlide(sl.ID)
		return session.Slide{}, err
	}
	c.selected = sl.ID
	return sl, nil
}

// DeleteSlide removes a slide's artifacts, the slide itself, and persists.
func (c *Controller) DeleteSlide(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.slide(id); err != nil {
		return err
	}
	if c.recording != nil && c.recording.slideID == id {
		return ErrRecordingActive
	}
	if err := c.store.RemoveSlideArtifacts(c.sess, id); err != nil {
		return err
	}
	// ids are reused after a delete; results of jobs for the old takes are dropped
	for key := range c.inflight {
		if key.sessionID == c.sess.ID && key.slideID == id {
			delete(c.inflight, key)
		}
	}
	c.sess.RemoveSlide(id)
	if err := c.save(); err != nil {
		return err
	}
	if c.history != nil {
		if err := c.history.DeleteSlide(c.sess.ID, id); err != nil {
			log.Warn("drop slide history", logging.KeySlide, id, logging.KeyError, err)
		}
	}
	if c.selected == id {
		c.selected = 0
		if len(c.sess.Slides) > 0 {
			c.selected = c.sess.Slides[0].ID
		}
	}
	log.Info("slide deleted", logging.KeySession, c.sess.ID, logging.KeySlide, id)
	return nil
}

// BeginRecording starts capturing the next take of a slide and returns its take id.
func (c *Controller) BeginRecording(slideID int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.slide(slideID); err != nil {
		return 0, err
	}
	takeID := c.sess.NextTakeID(slideID)
	path := c.store.TakeAudioPath(c.sess.ID, slideID, takeID)
	if err := c.recorder.Start(path); err != nil {
		c.metrics.RecordRecordingFailure(failureReason(err))
		return 0, err
	}
	c.recording = &pendingTake{slideID: slideID, takeID: takeID, path: path}
	c.selected = slideID
	c.metrics.RecordingsStarted.Inc()
	c.emit(Event{Kind: EventRecordingStarted, SessionID: c.sess.ID, SlideID: slideID, TakeID: takeID})
	log.Info("recording started", logging.KeySession, c.sess.ID, logging.KeySlide, slideID, logging.KeyTake, takeID)
	return takeID, nil
}

// EndRecording stops the capture, appends the take and persists it.
func (c *Controller) EndRecording() (session.Take, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording == nil {
		return session.Take{}, audio.ErrNotRunning
	}
	pending := c.recording
	c.recording = nil

	dur, err := c.recorder.Stop()
	if err != nil {
		c.metrics.RecordRecordingFailure(failureReason(err))
		c.emit(Event{Kind: EventRecordingStopped, SessionID: c.sess.ID, SlideID: pending.slideID, Message: err.Error()})
		return session.Take{}, err
	}

	take := session.Take{
		ID:             pending.takeID,
		SlideID:        pending.slideID,
		AudioPath:      pending.path,
		DurationSec:    dur,
		TranscriptMeta: map[string]any{},
		CreatedAt:      c.now().Truncate(time.Second),
	}
	if err := c.appendTake(take); err != nil {
		return session.Take{}, err
	}
	c.metrics.RecordTake(dur)
	c.emit(Event{Kind: EventRecordingStopped, SessionID: c.sess.ID, SlideID: take.SlideID, TakeID: take.ID})
	log.Info("take saved", logging.KeySession, c.sess.ID, logging.KeySlide, take.SlideID, logging.KeyTake, take.ID, "duration_sec", dur)
	return take, nil
}

// DiscardRecording abandons the running capture without creating a take.
func (c *Controller) DiscardRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording == nil {
		return
	}
	c.recorder.Discard()
	c.recording = nil
}

// ImportTake copies an existing WAV file in as the slide's next take. A
// non-positive durationSec is replaced by the duration in the WAV header.
func (c *Controller) ImportTake(slideID int, srcPath string, durationSec float64) (session.Take, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.slide(slideID); err != nil {
		return session.Take{}, err
	}
	takeID := c.sess.NextTakeID(slideID)
	dest := c.store.TakeAudioPath(c.sess.ID, slideID, takeID)
	if c.recording != nil && c.recording.path == dest {
		return session.Take{}, ErrRecordingActive
	}

	fsys := c.store.Fs()
	if err := copyFile(fsys, srcPath, dest); err != nil {
		return session.Take{}, err
	}
	if durationSec <= 0 {
		d, err := audio.ProbeDuration(fsys, dest)
		if err != nil {
			fsys.Remove(dest)
			return session.Take{}, fmt.Errorf("import %s: %w", srcPath, err)
		}
		durationSec = d
	}
	if durationSec <= 0 {
		fsys.Remove(dest)
		return session.Take{}, fmt.Errorf("import %s: %w", srcPath, audio.ErrNoAudioCaptured)
	}

	take := session.Take{
		ID:             takeID,
		SlideID:        slideID,
		AudioPath:      dest,
		DurationSec:    durationSec,
		TranscriptMeta: map[string]any{},
		CreatedAt:      c.now().Truncate(time.Second),
	}
	if err := c.appendTake(take); err != nil {
		return session.Take{}, err
	}
	c.metrics.RecordTake(durationSec)
	return take, nil
}

// appendTake persists a take whose audio already exists. Caller holds mu.
func (c *Controller) appendTake(take session.Take) error {
	c.sess.AddTake(take)
	if err := c.save(); err != nil {
		takes := c.sess.TakesBySlide[take.SlideID]
		c.sess.TakesBySlide[take.SlideID] = takes[:len(takes)-1]
		if len(takes) == 1 {
			delete(c.sess.TakesBySlide, take.SlideID)
		}
		return err
	}
	if err := c.store.SaveTakeMetadata(c.sess, take); err != nil {
		log.Warn("take side-car not written", logging.KeySession, c.sess.ID,
			logging.KeySlide, take.SlideID, logging.KeyTake, take.ID, logging.KeyError, err)
	}
	return nil
}

// RequestTranscription starts a background transcription of a take. It
// returns false without error when the take already has a transcript.
func (c *Controller) RequestTranscription(ctx context.Context, slideID, takeID int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	take, err := c.take(slideID, takeID)
	if err != nil {
		return false, err
	}
	if take.Transcribed() {
		return false, nil
	}
	sessionID := c.sess.ID
	key := takeKey{sessionID, slideID, takeID}
	if _, busy := c.inflight[key]; busy {
		return false, transcribe.ErrAlreadyRunning
	}

	inf := &inflight{job: transcribe.NewJob(c.transcriber, c.pool), done: make(chan struct{})}
	err = inf.job.Start(ctx, take.AudioPath, func(out transcribe.Outcome) {
		c.finishTranscription(key, inf, out)
	})
	if err != nil {
		return false, err
	}
	c.inflight[key] = inf
	c.metrics.TranscriptionRequests.Inc()
	c.metrics.TranscriptionsInFlight.Inc()
	c.emit(Event{Kind: EventTranscriptionStarted, SessionID: sessionID, SlideID: slideID, TakeID: takeID})
	return true, nil
}

func (c *Controller) finishTranscription(key takeKey, inf *inflight, out transcribe.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(inf.done)

	sessionID := key.sessionID
	c.metrics.TranscriptionsInFlight.Dec()
	c.metrics.RecordTranscription(out.Err == nil, out.Elapsed)

	if c.inflight[key] != inf {
		inf.err = fmt.Errorf("slide %d take %d: %w", key.slideID, key.takeID, session.ErrNotFound)
		log.Info("transcription discarded, take was deleted", logging.KeySession, sessionID,
			logging.KeySlide, key.slideID, logging.KeyTake, key.takeID)
		return
	}
	delete(c.inflight, key)

	fail := func(err error) {
		inf.err = err
		c.emit(Event{Kind: EventTranscriptionFailed, SessionID: sessionID, SlideID: key.slideID, TakeID: key.takeID, Message: err.Error()})
	}
	if out.Err != nil {
		fail(out.Err)
		return
	}

	// the session may have been switched while the job ran
	target := c.sess
	if target == nil || target.ID != sessionID {
		loaded, err := c.store.LoadSession(sessionID)
		if err != nil {
			fail(err)
			return
		}
		target = loaded
	}
	take, ok := target.Take(key.slideID, key.takeID)
	if !ok {
		fail(fmt.Errorf("slide %d take %d: %w", key.slideID, key.takeID, session.ErrNotFound))
		return
	}

	oldText, oldMeta := take.TranscriptText, take.TranscriptMeta
	take.TranscriptText = out.Transcript.Text
	take.TranscriptMeta = out.Transcript.Meta
	if take.TranscriptMeta == nil {
		take.TranscriptMeta = map[string]any{}
	}
	err := c.store.SaveSession(target)
	c.metrics.RecordSave(err)
	if err != nil {
		take.TranscriptText, take.TranscriptMeta = oldText, oldMeta
		fail(err)
		return
	}
	if err := c.store.SaveTakeMetadata(target, *take); err != nil {
		log.Warn("take side-car not written", logging.KeySession, sessionID,
			logging.KeySlide, key.slideID, logging.KeyTake, key.takeID, logging.KeyError, err)
	}
	c.emit(Event{Kind: EventTranscriptionDone, SessionID: sessionID, SlideID: key.slideID, TakeID: key.takeID, Text: take.TranscriptText})

	if c.autoAnalyze && target == c.sess {
		if sl, ok := target.Slide(key.slideID); ok {
			c.analyze(*sl, *take)
		}
	}
}

// WaitTranscription blocks until the take's in-flight job in the open session
// is applied. It returns nil at once when nothing is in flight.
func (c *Controller) WaitTranscription(ctx context.Context, slideID, takeID int) error {
	c.mu.Lock()
	var inf *inflight
	if c.sess != nil {
		inf = c.inflight[takeKey{c.sess.ID, slideID, takeID}]
	}
	c.mu.Unlock()
	if inf == nil {
		return nil
	}
	select {
	case <-inf.done:
		return inf.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transcribe requests a transcription and waits for it, returning the updated take.
func (c *Controller) Transcribe(ctx context.Context, slideID, takeID int) (session.Take, error) {
	if _, err := c.RequestTranscription(ctx, slideID, takeID); err != nil && !errors.Is(err, transcribe.ErrAlreadyRunning) {
		return session.Take{}, err
	}
	if err := c.WaitTranscription(ctx, slideID, takeID); err != nil {
		return session.Take{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	take, err := c.take(slideID, takeID)
	if err != nil {
		return session.Take{}, err
	}
	return *take, nil
}

// RequestAnalysis judges a take against its slide.
func (c *Controller) RequestAnalysis(slideID, takeID int) (analysis.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sl, err := c.slide(slideID)
	if err != nil {
		return analysis.Result{}, err
	}
	take, err := c.take(slideID, takeID)
	if err != nil {
		return analysis.Result{}, err
	}
	return c.analyze(*sl, *take), nil
}

// analyze runs and records one analysis. Caller holds mu.
func (c *Controller) analyze(sl session.Slide, take session.Take) analysis.Result {
	res := analysis.Analyze(sl, take)
	c.metrics.Analyses.WithLabelValues(res.TimingLabel).Inc()
	if c.history != nil {
		_, err := c.history.Record(history.Entry{
			SessionID:       c.sess.ID,
			SlideID:         sl.ID,
			TakeID:          take.ID,
			TimingLabel:     res.TimingLabel,
			MissingKeywords: res.MissingKeywords,
			Summary:         res.Summary,
			DurationSec:     take.DurationSec,
		})
		if err != nil {
			log.Warn("analysis history not recorded", logging.KeyError, err)
		}
	}
	r := res
	c.emit(Event{Kind: EventAnalysis, SessionID: c.sess.ID, SlideID: sl.ID, TakeID: take.ID, Analysis: &r})
	return res
}

// AnalyzeSession folds the latest take of every slide that has one.
func (c *Controller) AnalyzeSession() (analysis.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return analysis.Result{}, ErrNoSession
	}
	var items []analysis.Item
	for _, sl := range c.sess.Slides {
		if take, ok := c.sess.LatestTake(sl.ID); ok {
			items = append(items, analysis.Item{Slide: sl, Take: *take})
		}
	}
	res := analysis.AnalyzeRange(items)
	c.metrics.Analyses.WithLabelValues(res.TimingLabel).Inc()
	return res, nil
}

// AnalysisHistory returns past analyses of a take, newest first.
func (c *Controller) AnalysisHistory(slideID, takeID int) ([]history.Entry, error) {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	sessionID := c.sess.ID
	c.mu.Unlock()

	if c.history == nil {
		return nil, nil
	}
	if takeID == 0 {
		return c.history.ForSlide(sessionID, slideID)
	}
	return c.history.ForTake(sessionID, slideID, takeID)
}

// slide looks up a slide in the open session. Caller holds mu.
func (c *Controller) slide(id int) (*session.Slide, error) {
	if c.sess == nil {
		return nil, ErrNoSession
	}
	sl, ok := c.sess.Slide(id)
	if !ok {
		return nil, fmt.Errorf("slide %d: %w", id, session.ErrNotFound)
	}
	return sl, nil
}

// take looks up a take in the open session. Caller holds mu.
func (c *Controller) take(slideID, takeID int) (*session.Take, error) {
	if _, err := c.slide(slideID); err != nil {
		return nil, err
	}
	t, ok := c.sess.Take(slideID, takeID)
	if !ok {
		return nil, fmt.Errorf("slide %d take %d: %w", slideID, takeID, session.ErrNotFound)
	}
	return t, nil
}

// save persists the open session. Caller holds mu.
func (c *Controller) save() error {
	err := c.store.SaveSession(c.sess)
	c.metrics.RecordSave(err)
	return err
}

func failureReason(err error) string {
	var devErr *audio.DeviceError
	switch {
	case errors.As(err, &devErr):
		return "device"
	case errors.Is(err, audio.ErrNoAudioCaptured):
		return "no_audio"
	case errors.Is(err, audio.ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, audio.ErrNotRunning):
		return "not_running"
	default:
		return "io"
	}
}

func copyFile(fsys afero.Fs, src, dest string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	dir := filepath.Dir(dest)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}
	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp audio file: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		fsys.Remove(tmp.Name())
		return fmt.Errorf("copy audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fsys.Remove(tmp.Name())
		return fmt.Errorf("close audio: %w", err)
	}
	if err := fsys.Rename(tmp.Name(), dest); err != nil {
		fsys.Remove(tmp.Name())
		return fmt.Errorf("rename audio: %w", err)
	}
	return nil
}
