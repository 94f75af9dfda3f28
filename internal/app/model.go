package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/jwulff/rehearse/internal/analysis"
	"github.com/jwulff/rehearse/internal/controller"
	"github.com/jwulff/rehearse/internal/session"
	"github.com/jwulff/rehearse/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusSlides PanelFocus = iota
	FocusTakes
)

// Mode is the current input mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeEditTitle
	ModeEditNotes
	ModeConfirmDelete
	ModePicker
	ModeNewSession
)

// Actions reported through ActionResultMsg.
const (
	actionRecord      = "record"
	actionStop        = "stop"
	actionTranscribe  = "transcribe"
	actionEditTitle   = "edit_title"
	actionEditNotes   = "edit_notes"
	actionAddSlide    = "add_slide"
	actionDeleteSlide = "delete_slide"
)

type takeRef struct {
	slideID int
	takeID  int
}

// Model is the root bubbletea model for the rehearse TUI.
type Model struct {
	ctrl *controller.Controller

	// Session state, copied from the controller
	sess          *session.Session
	selectedSlide int // index into sess.Slides
	selectedTake  int // index into the selected slide's takes

	// Recording state
	recording  bool
	recSlideID int
	recTakeID  int
	level      float32

	// Transcription and feedback
	transcribing    map[takeRef]bool
	feedback        map[takeRef]analysis.Result
	sessionFeedback *analysis.Result

	// Input modes
	mode        Mode
	input       []rune
	sessions    []session.Summary
	pickerIndex int

	// UI state
	focusedPanel PanelFocus
	width        int
	height       int

	// Errors
	errorMessage   string
	errorTransient bool

	// Status
	statusText string
}

// New creates a new Model driving ctrl.
func New(ctrl *controller.Controller) Model {
	return Model{
		ctrl:         ctrl,
		transcribing: make(map[takeRef]bool),
		feedback:     make(map[takeRef]analysis.Result),
		focusedPanel: FocusSlides,
		statusText:   "Loading session...",
	}
}

// Init opens a session and starts listening for controller events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitEventCmd(m.ctrl.Events()),
		loadSessionCmd(m.ctrl),
	)
}

// waitEventCmd blocks for the next controller event.
func waitEventCmd(events <-chan controller.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return ControllerEventMsg{Event: ev}
	}
}

// loadSessionCmd reuses an already open session, or opens the most recent one.
func loadSessionCmd(c *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		if snap := c.Snapshot(); snap != nil {
			return SessionOpenedMsg{Session: snap}
		}
		sess, err := c.OpenMostRecentOrCreate()
		return SessionOpenedMsg{Session: sess, Err: err}
	}
}

func listSessionsCmd(c *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		sessions, err := c.ListSessions()
		return SessionsListedMsg{Sessions: sessions, Err: err}
	}
}

func openSessionCmd(c *controller.Controller, id string) tea.Cmd {
	return func() tea.Msg {
		sess, err := c.OpenSession(id)
		return SessionOpenedMsg{Session: sess, Err: err}
	}
}

func createSessionCmd(c *controller.Controller, title string) tea.Cmd {
	return func() tea.Msg {
		sess, err := c.CreateSession(title, nil)
		return SessionOpenedMsg{Session: sess, Err: err}
	}
}

func startRecordingCmd(c *controller.Controller, slideID int) tea.Cmd {
	return func() tea.Msg {
		_, err := c.BeginRecording(slideID)
		return ActionResultMsg{Action: actionRecord, Err: err}
	}
}

func stopRecordingCmd(c *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		take, err := c.EndRecording()
		if err != nil {
			return ActionResultMsg{Action: actionStop, Err: err}
		}
		return ActionResultMsg{
			Action: actionStop,
			Notice: fmt.Sprintf("Saved take %d (%.1fs)", take.ID, take.DurationSec),
		}
	}
}

func transcribeCmd(c *controller.Controller, slideID, takeID int) tea.Cmd {
	return func() tea.Msg {
		started, err := c.RequestTranscription(context.Background(), slideID, takeID)
		if err == nil && !started {
			return ActionResultMsg{Action: actionTranscribe, Notice: "Take already transcribed"}
		}
		return ActionResultMsg{Action: actionTranscribe, Err: err}
	}
}

func analyzeCmd(c *controller.Controller, slideID, takeID int) tea.Cmd {
	return func() tea.Msg {
		res, err := c.RequestAnalysis(slideID, takeID)
		return AnalysisMsg{SlideID: slideID, TakeID: takeID, Result: res, Err: err}
	}
}

func analyzeSessionCmd(c *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		res, err := c.AnalyzeSession()
		return AnalysisMsg{Session: true, Result: res, Err: err}
	}
}

func editTitleCmd(c *controller.Controller, slideID int, title string) tea.Cmd {
	return func() tea.Msg {
		return ActionResultMsg{Action: actionEditTitle, Err: c.EditSlideTitle(slideID, title)}
	}
}

func editNotesCmd(c *controller.Controller, slideID int, notes string) tea.Cmd {
	return func() tea.Msg {
		return ActionResultMsg{Action: actionEditNotes, Err: c.EditSlideNotes(slideID, notes)}
	}
}

func addSlideCmd(c *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		sl, err := c.AddSlide("")
		if err != nil {
			return ActionResultMsg{Action: actionAddSlide, Err: err}
		}
		return ActionResultMsg{Action: actionAddSlide, Notice: fmt.Sprintf("Added slide %d", sl.ID)}
	}
}

func deleteSlideCmd(c *controller.Controller, slideID int) tea.Cmd {
	return func() tea.Msg {
		err := c.DeleteSlide(slideID)
		if err != nil {
			return ActionResultMsg{Action: actionDeleteSlide, Err: err}
		}
		return ActionResultMsg{Action: actionDeleteSlide, Notice: fmt.Sprintf("Deleted slide %d", slideID)}
	}
}

// levelTickCmd samples the input level while recording.
func levelTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return LevelTickMsg{}
	})
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SessionOpenedMsg:
		if msg.Err != nil {
			return m, m.transientError(msg.Err)
		}
		m.resetSession()
		m.refresh()
		m.statusText = "Session " + msg.Session.Title
		return m, nil

	case SessionsListedMsg:
		if msg.Err != nil {
			return m, m.transientError(msg.Err)
		}
		m.sessions = msg.Sessions
		m.pickerIndex = 0
		for i, s := range m.sessions {
			if m.sess != nil && s.ID == m.sess.ID {
				m.pickerIndex = i
			}
		}
		m.mode = ModePicker
		return m, nil

	case ControllerEventMsg:
		cmd := m.handleEvent(msg.Event)
		return m, tea.Batch(cmd, waitEventCmd(m.ctrl.Events()))

	case ActionResultMsg:
		m.refresh()
		if msg.Err != nil {
			return m, m.transientError(msg.Err)
		}
		if msg.Notice != "" {
			m.statusText = msg.Notice
		}
		if msg.Action == actionStop {
			m.selectLatestTake()
		}
		return m, nil

	case AnalysisMsg:
		if msg.Err != nil {
			return m, m.transientError(msg.Err)
		}
		r := msg.Result
		if msg.Session {
			m.sessionFeedback = &r
			m.statusText = "Session analyzed: " + r.TimingLabel
		} else {
			m.feedback[takeRef{msg.SlideID, msg.TakeID}] = r
			m.sessionFeedback = nil
			m.statusText = fmt.Sprintf("Analyzed take %d: %s", msg.TakeID, r.TimingLabel)
		}
		return m, nil

	case LevelTickMsg:
		if !m.recording {
			m.level = 0
			return m, nil
		}
		m.level = m.ctrl.Level()
		return m, levelTickCmd()

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleEvent processes a controller event and returns any resulting command.
func (m *Model) handleEvent(ev controller.Event) tea.Cmd {
	current := m.sess != nil && ev.SessionID == m.sess.ID
	ref := takeRef{ev.SlideID, ev.TakeID}

	switch ev.Kind {
	case controller.EventSession:
		m.resetSession()
		m.refresh()

	case controller.EventRecordingStarted:
		m.refresh()
		m.statusText = fmt.Sprintf("Recording slide %d take %d", ev.SlideID, ev.TakeID)
		return levelTickCmd()

	case controller.EventRecordingStopped:
		m.level = 0
		m.refresh()
		if ev.Message != "" {
			return m.transientError(errors.New(ev.Message))
		}
		m.selectLatestTake()

	case controller.EventTranscriptionStarted:
		if current {
			m.transcribing[ref] = true
			m.statusText = fmt.Sprintf("Transcribing slide %d take %d", ev.SlideID, ev.TakeID)
		}

	case controller.EventTranscriptionDone:
		if current {
			delete(m.transcribing, ref)
			m.refresh()
			m.statusText = fmt.Sprintf("Transcribed slide %d take %d", ev.SlideID, ev.TakeID)
		}

	case controller.EventTranscriptionFailed:
		if current {
			delete(m.transcribing, ref)
			m.refresh()
		}
		return m.transientError(fmt.Errorf("transcription of slide %d take %d: %s", ev.SlideID, ev.TakeID, ev.Message))

	case controller.EventAnalysis:
		if current && ev.Analysis != nil {
			m.feedback[ref] = *ev.Analysis
		}
	}

	return nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		return m, tea.Quit
	}

	switch m.mode {
	case ModeEditTitle, ModeEditNotes, ModeNewSession:
		return m.handleInputKey(msg)
	case ModeConfirmDelete:
		return m.handleConfirmKey(msg)
	case ModePicker:
		return m.handlePickerKey(msg)
	}

	switch msg.String() {
	case KeyQuit:
		return m, tea.Quit

	case KeyTab:
		if m.focusedPanel == FocusSlides {
			m.focusedPanel = FocusTakes
		} else {
			m.focusedPanel = FocusSlides
		}
		return m, nil

	case KeyJ, KeyDown:
		m.moveSelection(1)
		return m, nil

	case KeyK, KeyUp:
		m.moveSelection(-1)
		return m, nil

	case KeySpace:
		if m.recording {
			return m, stopRecordingCmd(m.ctrl)
		}
		if sl, ok := m.currentSlide(); ok {
			return m, startRecordingCmd(m.ctrl, sl.ID)
		}
		return m, nil

	case KeyTranscribe:
		if t, ok := m.currentTake(); ok {
			return m, transcribeCmd(m.ctrl, t.SlideID, t.ID)
		}
		return m, nil

	case KeyEnter:
		if t, ok := m.currentTake(); ok {
			return m, analyzeCmd(m.ctrl, t.SlideID, t.ID)
		}
		return m, nil

	case KeyAnalyzeSession:
		if m.sess == nil {
			return m, nil
		}
		return m, analyzeSessionCmd(m.ctrl)

	case KeyEditTitle:
		if sl, ok := m.currentSlide(); ok {
			m.mode = ModeEditTitle
			m.input = []rune(sl.Title)
		}
		return m, nil

	case KeyEditNotes:
		if sl, ok := m.currentSlide(); ok {
			m.mode = ModeEditNotes
			m.input = []rune(sl.Notes)
		}
		return m, nil

	case KeyAddSlide:
		if m.sess == nil {
			return m, nil
		}
		return m, addSlideCmd(m.ctrl)

	case KeyDeleteSlide:
		if _, ok := m.currentSlide(); ok {
			m.mode = ModeConfirmDelete
		}
		return m, nil

	case KeySessions:
		if m.recording {
			return m, nil
		}
		return m, listSessionsCmd(m.ctrl)

	case KeyNewSession:
		if m.recording {
			return m, nil
		}
		m.mode = ModeNewSession
		m.input = nil
		return m, nil
	}

	return m, nil
}

// handleInputKey edits the text buffer of the title, notes and new session prompts.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.mode = ModeNormal
		m.input = nil
		return m, nil

	case KeySave:
		return m.commitInput()

	case KeyEnter:
		if m.mode == ModeEditNotes {
			m.input = append(m.input, '\n')
			return m, nil
		}
		return m.commitInput()

	case KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeySpace:
		m.input = append(m.input, ' ')
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return m, nil
}

func (m Model) commitInput() (tea.Model, tea.Cmd) {
	text := string(m.input)
	mode := m.mode
	m.mode = ModeNormal
	m.input = nil

	if mode == ModeNewSession {
		return m, createSessionCmd(m.ctrl, text)
	}
	sl, ok := m.currentSlide()
	if !ok {
		return m, nil
	}
	if mode == ModeEditTitle {
		return m, editTitleCmd(m.ctrl, sl.ID, text)
	}
	return m, editNotesCmd(m.ctrl, sl.ID, text)
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = ModeNormal
	sl, ok := m.currentSlide()
	if msg.String() != KeyConfirm || !ok {
		m.statusText = "Delete cancelled"
		return m, nil
	}
	return m, deleteSlideCmd(m.ctrl, sl.ID)
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc, KeyQuit:
		m.mode = ModeNormal
	case KeyJ, KeyDown:
		if m.pickerIndex < len(m.sessions)-1 {
			m.pickerIndex++
		}
	case KeyK, KeyUp:
		if m.pickerIndex > 0 {
			m.pickerIndex--
		}
	case KeyNewSession:
		m.mode = ModeNewSession
		m.input = nil
	case KeyEnter:
		m.mode = ModeNormal
		if m.pickerIndex < len(m.sessions) {
			return m, openSessionCmd(m.ctrl, m.sessions[m.pickerIndex].ID)
		}
	}
	return m, nil
}

func (m *Model) moveSelection(delta int) {
	if m.sess == nil {
		return
	}
	if m.focusedPanel == FocusTakes {
		n := len(m.currentTakes())
		next := m.selectedTake + delta
		if next >= 0 && next < n {
			m.selectedTake = next
		}
		return
	}
	next := m.selectedSlide + delta
	if next < 0 || next >= len(m.sess.Slides) {
		return
	}
	m.selectedSlide = next
	m.sessionFeedback = nil
	m.selectLatestTake()
	if err := m.ctrl.SelectSlide(m.sess.Slides[next].ID); err != nil {
		m.errorMessage = err.Error()
	}
}

// refresh copies session and recording state from the controller and clamps selections.
func (m *Model) refresh() {
	var selectedID int
	if sl, ok := m.currentSlide(); ok {
		selectedID = sl.ID
	}

	m.sess = m.ctrl.Snapshot()
	m.recSlideID, m.recTakeID, m.recording = m.ctrl.Recording()
	if m.sess == nil {
		m.selectedSlide, m.selectedTake = 0, 0
		return
	}

	if selectedID == 0 {
		selectedID = m.ctrl.SelectedSlide()
	}
	m.selectedSlide = 0
	for i, sl := range m.sess.Slides {
		if sl.ID == selectedID {
			m.selectedSlide = i
		}
	}
	if n := len(m.currentTakes()); m.selectedTake >= n || m.selectedTake < 0 {
		m.selectedTake = max(0, n-1)
	}
}

func (m *Model) resetSession() {
	m.sess = nil
	m.selectedSlide = 0
	m.selectedTake = 0
	m.transcribing = make(map[takeRef]bool)
	m.feedback = make(map[takeRef]analysis.Result)
	m.sessionFeedback = nil
	m.mode = ModeNormal
	m.input = nil
}

func (m *Model) selectLatestTake() {
	m.selectedTake = max(0, len(m.currentTakes())-1)
}

func (m *Model) transientError(err error) tea.Cmd {
	m.errorMessage = err.Error()
	m.errorTransient = true
	return clearTransientErrorCmd()
}

func (m Model) currentSlide() (session.Slide, bool) {
	if m.sess == nil || m.selectedSlide >= len(m.sess.Slides) {
		return session.Slide{}, false
	}
	return m.sess.Slides[m.selectedSlide], true
}

func (m Model) currentTakes() []session.Take {
	sl, ok := m.currentSlide()
	if !ok {
		return nil
	}
	return m.sess.Takes(sl.ID)
}

func (m Model) currentTake() (session.Take, bool) {
	takes := m.currentTakes()
	if m.selectedTake >= len(takes) {
		return session.Take{}, false
	}
	return takes[m.selectedTake], true
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// header, status, two dividers, input, error, footer
	reserved := 8
	return max(5, m.height-reserved)
}

func (m Model) slidePanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*30/100)
}

func (m Model) takePanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.slidePanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.mode == ModePicker {
		sections = append(sections, m.renderPicker())
	} else {
		sections = append(sections, m.renderMainContent())
	}

	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if bar := m.renderInputBar(); bar != "" {
		sections = append(sections, bar)
	}
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("REHEARSE")
	if m.sess == nil {
		return title
	}
	return title + ui.DimStyle.Render(" · "+m.sess.Title+" ("+m.sess.ID+")")
}

func (m Model) renderStatusBar() string {
	var dot string
	if m.recording {
		dot = ui.RecordingDotStyle.Render("● REC") +
			ui.DimStyle.Render(fmt.Sprintf(" slide %d take %d", m.recSlideID, m.recTakeID)) +
			"  " + renderLevelMeter("MIC", m.level)
	} else {
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}

	var busy string
	if n := len(m.transcribing); n > 0 {
		busy = "  " + ui.SpinnerStyle.Render(fmt.Sprintf("⟳ STT %d", n))
	}

	var status string
	if m.statusText != "" {
		status = "  " + ui.StatusStyle.Render(m.statusText)
	}
	return dot + busy + status
}

func renderLevelMeter(label string, level float32) string {
	const barLen = 8
	filled := int(level * barLen)
	if filled > barLen {
		filled = barLen
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			pct := float32(i) / float32(barLen)
			if pct > 0.6 {
				bar += ui.LevelYellowStyle.Render("█")
			} else {
				bar += ui.LevelGreenStyle.Render("█")
			}
		} else {
			bar += ui.LevelGrayStyle.Render("░")
		}
	}
	return ui.MicLabelStyle.Render(label) + " " + bar
}

func (m Model) renderMainContent() string {
	slideW := m.slidePanelWidth()
	takeW := m.takePanelWidth()
	contentH := m.contentHeight()

	slideLines := strings.Split(m.renderSlidePanel(slideW, contentH), "\n")
	takeLines := strings.Split(m.renderTakePanel(takeW, contentH), "\n")
	divider := ui.DividerStyle.Render("│")

	rows := make([]string, 0, contentH)
	for i := 0; i < contentH; i++ {
		sl := strings.Repeat(" ", slideW)
		if i < len(slideLines) {
			sl = slideLines[i]
		}
		tl := ""
		if i < len(takeLines) {
			tl = takeLines[i]
		}
		rows = append(rows, sl+divider+tl)
	}
	return strings.Join(rows, "\n")
}

func panelHeader(text string, active bool) string {
	if active {
		return ui.PanelTitleActiveStyle.Render(text)
	}
	return ui.PanelTitleStyle.Render(text)
}

func (m Model) renderSlidePanel(width, height int) string {
	var lines []string
	count := 0
	if m.sess != nil {
		count = len(m.sess.Slides)
	}
	lines = append(lines, padRight(panelHeader(fmt.Sprintf("SLIDES (%d)", count), m.focusedPanel == FocusSlides), width))

	if count == 0 {
		lines = append(lines, ui.DimStyle.Render("  No slides"))
		lines = append(lines, ui.DimStyle.Render("  Press + to add one"))
	} else {
		for i, sl := range m.sess.Slides {
			label := fmt.Sprintf("%d. %s", sl.ID, sl.Title)
			takes := len(m.sess.Takes(sl.ID))
			suffix := ""
			if takes > 0 {
				suffix = fmt.Sprintf(" [%d]", takes)
			}
			var line string
			if i == m.selectedSlide {
				line = ui.SelectedStyle.Render("> " + label)
			} else {
				line = "  " + label
			}
			line = truncateToWidth(line, width-lipgloss.Width(suffix)) + ui.DimStyle.Render(suffix)
			lines = append(lines, line)
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTakePanel(width, height int) string {
	var lines []string
	sl, ok := m.currentSlide()
	if !ok {
		lines = append(lines, panelHeader("TAKES", m.focusedPanel == FocusTakes))
		lines = append(lines, "", ui.DimStyle.Render("  No slide selected"))
		return strings.Join(lines, "\n")
	}

	takes := m.currentTakes()
	lines = append(lines, panelHeader(fmt.Sprintf("TAKES · %s (%d)", sl.Title, len(takes)), m.focusedPanel == FocusTakes))

	textWidth := max(10, width-4)
	if kws := analysis.Keywords(sl.Notes); len(kws) > 0 {
		for _, wl := range wrapText("Notes: "+strings.Join(kws, ", "), textWidth) {
			lines = append(lines, ui.DimStyle.Render("  "+wl))
		}
	} else {
		lines = append(lines, ui.DimStyle.Render("  No notes. Press n to add keywords"))
	}
	lines = append(lines, "")

	if len(takes) == 0 {
		lines = append(lines, ui.DimStyle.Render("  Press Space to record a take"))
	}
	for i, t := range takes {
		state := ui.DimStyle.Render("untranscribed")
		switch {
		case m.transcribing[takeRef{t.SlideID, t.ID}]:
			state = ui.SpinnerStyle.Render("transcribing…")
		case t.Transcribed():
			state = ui.LevelGreenStyle.Render("transcribed")
		}
		ts := ui.TimestampStyle.Render(t.CreatedAt.Format("[15:04:05]"))
		label := fmt.Sprintf("#%d %6.1fs ", t.ID, t.DurationSec)
		if i == m.selectedTake {
			lines = append(lines, ui.SelectedStyle.Render("> "+label)+ts+" "+state)
		} else {
			lines = append(lines, "  "+label+ts+" "+state)
		}
	}

	if m.sessionFeedback != nil {
		lines = append(lines, "", panelHeader("SESSION FEEDBACK", false)+" "+
			ui.TimingStyle(m.sessionFeedback.TimingLabel).Render(m.sessionFeedback.TimingLabel))
		for _, wl := range wrapText(m.sessionFeedback.Summary, textWidth) {
			lines = append(lines, "  "+wl)
		}
	} else if t, ok := m.currentTake(); ok {
		if t.Transcribed() {
			lines = append(lines, "", panelHeader("TRANSCRIPT", false))
			for _, wl := range wrapText(t.TranscriptText, textWidth) {
				lines = append(lines, "  "+wl)
			}
		}
		if fb, ok := m.feedback[takeRef{t.SlideID, t.ID}]; ok {
			lines = append(lines, "", panelHeader("FEEDBACK", false)+" "+ui.TimingStyle(fb.TimingLabel).Render(fb.TimingLabel))
			for _, wl := range wrapText(fb.Summary, textWidth) {
				lines = append(lines, "  "+wl)
			}
		}
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = truncateToWidth(l, width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPicker() string {
	contentH := m.contentHeight()
	lines := []string{panelHeader(fmt.Sprintf("SESSIONS (%d)", len(m.sessions)), true)}
	if len(m.sessions) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No sessions. Press N to create one"))
	}
	for i, s := range m.sessions {
		detail := ui.DimStyle.Render(fmt.Sprintf("  %d slides, %d takes  %s", s.Slides, s.Takes, s.ID))
		if i == m.pickerIndex {
			lines = append(lines, ui.SelectedStyle.Render("> "+s.Title)+detail)
		} else {
			lines = append(lines, "  "+s.Title+detail)
		}
	}
	for len(lines) < contentH {
		lines = append(lines, "")
	}
	if len(lines) > contentH {
		lines = lines[:contentH]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderInputBar() string {
	var label string
	switch m.mode {
	case ModeEditTitle:
		label = "Title: "
	case ModeEditNotes:
		label = "Notes: "
	case ModeNewSession:
		label = "New session: "
	case ModeConfirmDelete:
		sl, _ := m.currentSlide()
		return ui.ErrorStyle.Render(fmt.Sprintf("Delete slide %q and its takes? ", sl.Title)) +
			ui.FooterKeyStyle.Render("y") + ui.FooterDescStyle.Render(" confirm, any other key cancels")
	default:
		return ""
	}
	text := strings.ReplaceAll(string(m.input), "\n", " ⏎ ")
	return ui.FooterKeyStyle.Render(label) + ui.InputStyle.Render(text+"▌")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func footerKey(key, desc string) string {
	return ui.FooterKeyStyle.Render(key) + ui.FooterDescStyle.Render(" "+desc)
}

func (m Model) renderFooter() string {
	var parts []string

	switch m.mode {
	case ModeEditTitle, ModeNewSession:
		parts = append(parts, footerKey("Enter", "Save"), footerKey("Esc", "Cancel"))
	case ModeEditNotes:
		parts = append(parts, footerKey("Enter", "Newline"), footerKey("Ctrl+S", "Save"), footerKey("Esc", "Cancel"))
	case ModeConfirmDelete:
		parts = append(parts, footerKey("y", "Delete"))
	case ModePicker:
		parts = append(parts, footerKey("j/k", "Nav"), footerKey("Enter", "Open"), footerKey("N", "New"), footerKey("Esc", "Back"))
	default:
		if m.recording {
			parts = append(parts, footerKey("Space", "Stop"))
		} else {
			parts = append(parts, footerKey("Space", "Record"))
		}
		parts = append(parts,
			footerKey("t", "Transcribe"),
			footerKey("Enter", "Analyze"),
			footerKey("A", "Session"),
			footerKey("e/n", "Title/Notes"),
			footerKey("+/d", "Add/Del"),
			footerKey("Tab", "Focus"),
			footerKey("s/N", "Sessions"),
			footerKey("q", "Quit"),
		)
	}

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
