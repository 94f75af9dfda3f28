package audio

import (
	"math"
	"testing"

	"github.com/spf13/afero"
)

func TestWriteWAVCreatesParents(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := make([]int16, 22050)

	if err := WriteWAV(fs, "/deep/nested/dir/take.wav", samples, DefaultFormat); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	entries, err := afero.ReadDir(fs, "/deep/nested/dir")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "take.wav" {
		t.Errorf("directory should hold only take.wav, got %d entries", len(entries))
	}
}

func TestProbe(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := make([]int16, 44100*3/2)
	if err := WriteWAV(fs, "/p.wav", samples, DefaultFormat); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	info, err := Probe(fs, "/p.wav")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.SampleRate != 44100 || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("info = %+v", info)
	}
	if math.Abs(info.DurationSec-1.5) > 1e-3 {
		t.Errorf("DurationSec = %v, want 1.5", info.DurationSec)
	}

	dur, err := ProbeDuration(fs, "/p.wav")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if math.Abs(dur-1.5) > 1e-3 {
		t.Errorf("ProbeDuration = %v, want 1.5", dur)
	}
}

func TestProbeRejectsNonWAV(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/notes.txt", []byte("definitely not a riff header"), 0o644)

	if _, err := Probe(fs, "/notes.txt"); err == nil {
		t.Fatal("expected error for non-wav input")
	}
	if _, err := Probe(fs, "/missing.wav"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
