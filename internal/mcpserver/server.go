// Package mcpserver exposes rehearsal intents as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jwulff/rehearse/internal/analysis"
	"github.com/jwulff/rehearse/internal/controller"
	"github.com/jwulff/rehearse/internal/history"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var log = logging.L("mcp")

// ServerName is the MCP implementation name.
const ServerName = "rehearse"

// Server binds MCP tools to a controller.
type Server struct {
	ctrl *controller.Controller
	mcp  *server.MCPServer
}

// New registers every tool on a fresh MCP server.
func New(ctrl *controller.Controller, version string) *Server {
	s := &Server{
		ctrl: ctrl,
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List stored rehearsal sessions"),
	), s.listSessions)

	s.mcp.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create and open a new rehearsal session"),
		mcp.WithString("title", mcp.Description("Session title")),
		mcp.WithString("slides", mcp.Description("Slide titles, one per line. Defaults to Intro, Problem, Solution, Close")),
	), s.createSession)

	s.mcp.AddTool(mcp.NewTool("open_session",
		mcp.WithDescription("Open a stored session by id"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.openSession)

	s.mcp.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Return the open session document with slides and takes"),
	), s.getSession)

	s.mcp.AddTool(mcp.NewTool("add_slide",
		mcp.WithDescription("Append a slide to the open session"),
		mcp.WithString("title", mcp.Description("Slide title")),
	), s.addSlide)

	s.mcp.AddTool(mcp.NewTool("update_slide",
		mcp.WithDescription("Change a slide's title or keyword notes"),
		mcp.WithNumber("slide_id", mcp.Required(), mcp.Description("Slide id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("notes", mcp.Description("Keyword notes, one keyword per line")),
	), s.updateSlide)

	s.mcp.AddTool(mcp.NewTool("delete_slide",
		mcp.WithDescription("Delete a slide together with its takes and audio"),
		mcp.WithNumber("slide_id", mcp.Required(), mcp.Description("Slide id")),
	), s.deleteSlide)

	s.mcp.AddTool(mcp.NewTool("start_recording",
		mcp.WithDescription("Start recording the next take of a slide from the default microphone"),
		mcp.WithNumber("slide_id", mcp.Required(), mcp.Description("Slide id")),
	), s.startRecording)

	s.mcp.AddTool(mcp.NewTool("stop_recording",
		mcp.WithDescription("Stop the running recording and save the take"),
	), s.stopRecording)

	s.mcp.AddTool(mcp.NewTool("import_take",
		mcp.WithDescription("Add an existing WAV file as the next take of a slide"),
		mcp.WithNumber("slide_id", mcp.Required(), mcp.Description("Slide id")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to a mono 16-bit WAV file")),
		mcp.WithNumber("duration_sec", mcp.Description("Duration in seconds. Read from the WAV header when omitted")),
	), s.importTake)

	s.mcp.AddTool(mcp.NewTool("transcribe_take",
		mcp.WithDescription("Transcribe a take and wait for the transcript"),
		mcp.WithNumber("slide_id", mcp.Required(), mcp.Description("Slide id")),
		mcp.WithNumber("take_id", mcp.Required(), mcp.Description("Take id")),
	), s.transcribeTake)

	s.mcp.AddTool(mcp.NewTool("analyze_take",
		mcp.WithDescription("Compare a take's transcript with the slide's keywords and judge its timing"),
		mcp.WithNumber("slide_id", mcp.Required(), mcp.Description("Slide id")),
		mcp.WithNumber("take_id", mcp.Required(), mcp.Description("Take id")),
	), s.analyzeTake)

	s.mcp.AddTool(mcp.NewTool("analyze_session",
		mcp.WithDescription("Analyze the latest take of every slide"),
	), s.analyzeSession)

	s.mcp.AddTool(mcp.NewTool("analysis_history",
		mcp.WithDescription("Past analyses of a slide, or of one take when take_id is given"),
		mcp.WithNumber("slide_id", mcp.Required(), mcp.Description("Slide id")),
		mcp.WithNumber("take_id", mcp.Description("Take id")),
	), s.analysisHistory)
}

type sessionSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Slides  int    `json:"slides"`
	Takes   int    `json:"takes"`
	ModTime string `json:"mod_time"`
}

type analysisResult struct {
	SlideID         int      `json:"slide_id,omitempty"`
	TakeID          int      `json:"take_id,omitempty"`
	Summary         string   `json:"summary"`
	MissingKeywords []string `json:"missing_keywords"`
	TimingLabel     string   `json:"timing_label"`
}

type historyEntry struct {
	ID              string   `json:"id"`
	TakeID          int      `json:"take_id"`
	TimingLabel     string   `json:"timing_label"`
	MissingKeywords []string `json:"missing_keywords"`
	DurationSec     float64  `json:"duration_sec"`
	CreatedAt       string   `json:"created_at"`
}

func (s *Server) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.ctrl.ListSessions()
	if err != nil {
		return toolError("list sessions", err), nil
	}
	out := make([]sessionSummary, 0, len(sessions))
	for _, sm := range sessions {
		out = append(out, sessionSummary{
			ID:      sm.ID,
			Title:   sm.Title,
			Slides:  sm.Slides,
			Takes:   sm.Takes,
			ModTime: sm.ModTime.Format(time.RFC3339),
		})
	}
	return jsonResult(out)
}

func (s *Server) createSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	var slides []string
	for _, line := range strings.Split(req.GetString("slides", ""), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			slides = append(slides, t)
		}
	}
	sess, err := s.ctrl.CreateSession(title, slides)
	if err != nil {
		return toolError("create session", err), nil
	}
	return sessionResult(sess)
}

func (s *Server) openSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.ctrl.OpenSession(id)
	if err != nil {
		return toolError("open session", err), nil
	}
	return sessionResult(sess)
}

func (s *Server) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := s.ctrl.Snapshot()
	if sess == nil {
		return toolError("get session", controller.ErrNoSession), nil
	}
	return sessionResult(sess)
}

func (s *Server) addSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sl, err := s.ctrl.AddSlide(req.GetString("title", ""))
	if err != nil {
		return toolError("add slide", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added slide %d: %s", sl.ID, sl.Title)), nil
}

func (s *Server) updateSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := req.RequireInt("slide_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	_, hasTitle := args["title"]
	_, hasNotes := args["notes"]
	if !hasTitle && !hasNotes {
		return mcp.NewToolResultError("nothing to update: pass title or notes"), nil
	}
	if hasTitle {
		if err := s.ctrl.EditSlideTitle(slideID, req.GetString("title", "")); err != nil {
			return toolError("update slide", err), nil
		}
	}
	if hasNotes {
		if err := s.ctrl.EditSlideNotes(slideID, req.GetString("notes", "")); err != nil {
			return toolError("update slide", err), nil
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("Updated slide %d", slideID)), nil
}

func (s *Server) deleteSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := req.RequireInt("slide_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ctrl.DeleteSlide(slideID); err != nil {
		return toolError("delete slide", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted slide %d", slideID)), nil
}

func (s *Server) startRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := req.RequireInt("slide_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	takeID, err := s.ctrl.BeginRecording(slideID)
	if err != nil {
		return toolError("start recording", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recording slide %d take %d. Call stop_recording when done.", slideID, takeID)), nil
}

func (s *Server) stopRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	take, err := s.ctrl.EndRecording()
	if err != nil {
		return toolError("stop recording", err), nil
	}
	return takeResult(take)
}

func (s *Server) importTake(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := req.RequireInt("slide_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	take, err := s.ctrl.ImportTake(slideID, path, req.GetFloat("duration_sec", 0))
	if err != nil {
		return toolError("import take", err), nil
	}
	return takeResult(take)
}

func (s *Server) transcribeTake(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, takeID, errResult := requireTake(req)
	if errResult != nil {
		return errResult, nil
	}
	take, err := s.ctrl.Transcribe(ctx, slideID, takeID)
	if err != nil {
		return toolError("transcribe take", err), nil
	}
	return mcp.NewToolResultText(take.TranscriptText), nil
}

func (s *Server) analyzeTake(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, takeID, errResult := requireTake(req)
	if errResult != nil {
		return errResult, nil
	}
	res, err := s.ctrl.RequestAnalysis(slideID, takeID)
	if err != nil {
		return toolError("analyze take", err), nil
	}
	return jsonResult(toAnalysisResult(slideID, takeID, res))
}

func (s *Server) analyzeSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.ctrl.AnalyzeSession()
	if err != nil {
		return toolError("analyze session", err), nil
	}
	return jsonResult(toAnalysisResult(0, 0, res))
}

func (s *Server) analysisHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := req.RequireInt("slide_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.ctrl.AnalysisHistory(slideID, req.GetInt("take_id", 0))
	if err != nil {
		return toolError("analysis history", err), nil
	}
	return jsonResult(toHistory(entries))
}

func requireTake(req mcp.CallToolRequest) (int, int, *mcp.CallToolResult) {
	slideID, err := req.RequireInt("slide_id")
	if err != nil {
		return 0, 0, mcp.NewToolResultError(err.Error())
	}
	takeID, err := req.RequireInt("take_id")
	if err != nil {
		return 0, 0, mcp.NewToolResultError(err.Error())
	}
	return slideID, takeID, nil
}

func toAnalysisResult(slideID, takeID int, r analysis.Result) analysisResult {
	missing := r.MissingKeywords
	if missing == nil {
		missing = []string{}
	}
	return analysisResult{
		SlideID:         slideID,
		TakeID:          takeID,
		Summary:         r.Summary,
		MissingKeywords: missing,
		TimingLabel:     r.TimingLabel,
	}
}

func toHistory(entries []history.Entry) []historyEntry {
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			ID:              e.ID,
			TakeID:          e.TakeID,
			TimingLabel:     e.TimingLabel,
			MissingKeywords: e.MissingKeywords,
			DurationSec:     e.DurationSec,
			CreatedAt:       e.CreatedAt.Format(session.CreatedAtLayout),
		})
	}
	return out
}

func sessionResult(sess *session.Session) (*mcp.CallToolResult, error) {
	data, err := session.Encode(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func takeResult(take session.Take) (*mcp.CallToolResult, error) {
	data, err := session.EncodeTake(take)
	if err != nil {
		return nil, fmt.Errorf("encode take: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports a failed intent to the client without failing the call.
func toolError(op string, err error) *mcp.CallToolResult {
	log.Warn("tool failed", "op", op, logging.KeyError, err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}
