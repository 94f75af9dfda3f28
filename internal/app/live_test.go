package app

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jwulff/rehearse/internal/audio"
	"github.com/jwulff/rehearse/internal/controller"
	"github.com/jwulff/rehearse/internal/session"
	"github.com/spf13/afero"

	tea "github.com/charmbracelet/bubbletea"
)

// TestLiveRecordingFlow drives the TUI model against the real default microphone.
// Skipped unless REHEARSE_LIVE_AUDIO is set.
func TestLiveRecordingFlow(t *testing.T) {
	if os.Getenv("REHEARSE_LIVE_AUDIO") == "" {
		t.Skip("REHEARSE_LIVE_AUDIO not set")
	}

	dir := t.TempDir()
	fs := afero.NewOsFs()
	store, err := session.NewStore(fs, dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	device := audio.NewPortAudioDevice()
	defer device.Close()

	ctrl := controller.New(controller.Options{
		Store:    store,
		Recorder: audio.NewRecorder(device, fs),
	})
	sess, err := ctrl.CreateSession("Live Check", []string{"Mic test"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	m := New(ctrl)
	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = applyUpdate(m, SessionOpenedMsg{Session: sess})
	fmt.Println("=== Initial View ===")
	fmt.Println(m.View())

	m = press(t, m, " ")
	if !m.recording {
		t.Fatalf("recording did not start: %s", m.errorMessage)
	}
	fmt.Printf("\nRecording on %s for 2 seconds\n", device.InputName())

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-ticker.C:
			m, _ = applyUpdate(m, LevelTickMsg{})
			fmt.Printf("  level: %.3f\n", m.level)
		}
	}

	fmt.Println("\n=== Recording View ===")
	fmt.Println(m.View())

	m = press(t, m, " ")
	if m.errorMessage != "" {
		t.Fatalf("stop: %s", m.errorMessage)
	}
	take, ok := m.currentTake()
	if !ok {
		t.Fatal("expected a take after stopping")
	}
	if take.DurationSec < 1 {
		t.Errorf("DurationSec = %.2f, want about 2", take.DurationSec)
	}
	info, err := audio.Probe(fs, take.AudioPath)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	fmt.Printf("\nSaved %s: %d Hz, %d ch, %.2fs\n", take.AudioPath, info.SampleRate, info.Channels, info.DurationSec)

	fmt.Println("\n=== Final View ===")
	fmt.Println(m.View())
}

func applyUpdate(m Model, msg tea.Msg) (Model, tea.Cmd) {
	newModel, cmd := m.Update(msg)
	return newModel.(Model), cmd
}
