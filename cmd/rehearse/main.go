package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jwulff/rehearse/internal/app"
	"github.com/jwulff/rehearse/internal/config"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/mcpserver"
	"github.com/jwulff/rehearse/internal/session"
	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	version   = "0.1.0"
	cfgFile   string
	sessionID string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Rehearse a presentation slide by slide",
	Long: `rehearse records takes of you presenting each slide, transcribes them,
and compares what you said with the slide's keyword notes and its timing.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve rehearsal tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage rehearsal sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions()
	},
}

var slideTitles string

var sessionsCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := ""
		if len(args) == 1 {
			title = args[0]
		}
		return createSession(title, slideTitles)
	},
}

var importDuration float64

var importCmd = &cobra.Command{
	Use:   "import <slide-id> <file.wav>",
	Short: "Add an existing WAV recording as the next take of a slide",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		slideID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("slide id %q: %w", args[0], err)
		}
		return importTake(slideID, args[1], importDuration)
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <slide-id> <take-id>",
	Short: "Transcribe a take and print the transcript",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return transcribeTake(cmd.Context(), ids[0], ids[1])
	},
}

var analyzeTranscribe bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze [slide-id [take-id]]",
	Short: "Analyze a take, the latest take of a slide, or the whole session",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return analyze(cmd.Context(), ids, analyzeTranscribe)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or write configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = filepath.Join(config.Dir(), "rehearse.yaml")
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.SaveTo(config.Default(), path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rehearse v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.rehearse/rehearse.yaml)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id to open (default is the most recent)")

	sessionsCreateCmd.Flags().StringVar(&slideTitles, "slides", "", "comma-separated slide titles")
	importCmd.Flags().Float64Var(&importDuration, "duration", 0, "duration in seconds (default reads the WAV header)")
	analyzeCmd.Flags().BoolVar(&analyzeTranscribe, "transcribe", false, "transcribe untranscribed takes first")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTUI() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// the terminal belongs to the TUI
	logFile, err := openLogFile(cfg.LogFile())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logging.Init(cfg.Log.Format, cfg.Log.Level, logFile)

	rt, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if sessionID != "" {
		if _, err := rt.ctrl.OpenSession(sessionID); err != nil {
			return err
		}
	}

	log.Info("starting tui", "version", version, "sessions_dir", cfg.SessionsDir)
	p := tea.NewProgram(app.New(rt.ctrl), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol
	logging.Init(cfg.Log.Format, cfg.Log.Level, os.Stderr)

	rt, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.openSession(sessionID); err != nil {
		return err
	}
	log.Info("serving mcp on stdio", "version", version)
	return mcpserver.New(rt.ctrl, version).ServeStdio()
}

func listSessions() error {
	rt, err := newCLIEngine()
	if err != nil {
		return err
	}
	defer rt.Close()

	sessions, err := rt.ctrl.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Create one with: rehearse sessions create <title>")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSLIDES\tTAKES\tMODIFIED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", s.ID, s.Title, s.Slides, s.Takes, s.ModTime.Format(session.CreatedAtLayout))
	}
	return w.Flush()
}

func createSession(title, slides string) error {
	rt, err := newCLIEngine()
	if err != nil {
		return err
	}
	defer rt.Close()

	var titles []string
	for _, t := range strings.Split(slides, ",") {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	sess, err := rt.ctrl.CreateSession(title, titles)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s with %d slides\n", sess.ID, len(sess.Slides))
	return nil
}

func importTake(slideID int, path string, duration float64) error {
	rt, err := newCLIEngine()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.openSession(sessionID); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	take, err := rt.ctrl.ImportTake(slideID, abs, duration)
	if err != nil {
		return err
	}
	fmt.Printf("Imported slide %d take %d (%.1fs) to %s\n", take.SlideID, take.ID, take.DurationSec, take.AudioPath)
	return nil
}

func transcribeTake(ctx context.Context, slideID, takeID int) error {
	rt, err := newCLIEngine()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.openSession(sessionID); err != nil {
		return err
	}
	take, err := rt.ctrl.Transcribe(ctx, slideID, takeID)
	if err != nil {
		return err
	}
	fmt.Println(take.TranscriptText)
	return nil
}

func analyze(ctx context.Context, ids []int, transcribeFirst bool) error {
	rt, err := newCLIEngine()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.openSession(sessionID); err != nil {
		return err
	}
	sess := rt.ctrl.Snapshot()

	if len(ids) == 0 {
		if transcribeFirst {
			for _, sl := range sess.Slides {
				if t, ok := sess.LatestTake(sl.ID); ok && !t.Transcribed() {
					if _, err := rt.ctrl.Transcribe(ctx, sl.ID, t.ID); err != nil {
						return err
					}
				}
			}
		}
		res, err := rt.ctrl.AnalyzeSession()
		if err != nil {
			return err
		}
		fmt.Println(res.Summary)
		fmt.Printf("\nOverall timing: %s\n", res.TimingLabel)
		return nil
	}

	slideID := ids[0]
	var takeID int
	if len(ids) == 2 {
		takeID = ids[1]
	} else {
		t, ok := sess.LatestTake(slideID)
		if !ok {
			return fmt.Errorf("slide %d has no takes", slideID)
		}
		takeID = t.ID
	}
	if transcribeFirst {
		if _, err := rt.ctrl.Transcribe(ctx, slideID, takeID); err != nil {
			return err
		}
	}
	res, err := rt.ctrl.RequestAnalysis(slideID, takeID)
	if err != nil {
		return err
	}
	fmt.Println(res.Summary)
	return nil
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
