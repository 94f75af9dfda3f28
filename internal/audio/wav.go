package audio

import (
	"fmt"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// WriteWAV encodes samples as a PCM wave file at dest. The file is written
// to a temporary name in the same directory and renamed into place.
func WriteWAV(fsys afero.Fs, dest string, samples []int16, f Format) error {
	dir := filepath.Dir(dest)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp audio file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		fsys.Remove(tmpName)
		return err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: f.BitDepth,
	}

	enc := wav.NewEncoder(tmp, f.SampleRate, f.BitDepth, f.Channels, 1)
	if err := enc.Write(buf); err != nil {
		return fail(fmt.Errorf("encode wav: %w", err))
	}
	if err := enc.Close(); err != nil {
		return fail(fmt.Errorf("finalize wav: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync wav: %w", err))
	}
	if err := tmp.Close(); err != nil {
		fsys.Remove(tmpName)
		return fmt.Errorf("close wav: %w", err)
	}
	if err := fsys.Rename(tmpName, dest); err != nil {
		fsys.Remove(tmpName)
		return fmt.Errorf("rename wav: %w", err)
	}
	return nil
}

// Info is the header summary of a wave file.
type Info struct {
	SampleRate  int
	Channels    int
	BitDepth    int
	DurationSec float64
}

// ProbeDuration reads the WAV header at path and returns its duration in seconds.
func ProbeDuration(fsys afero.Fs, path string) (float64, error) {
	info, err := Probe(fsys, path)
	if err != nil {
		return 0, err
	}
	return info.DurationSec, nil
}

// Probe reads the WAV header at path.
func Probe(fsys afero.Fs, path string) (Info, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Info{}, fmt.Errorf("%s is not a valid wav file", path)
	}
	dur, err := d.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("read wav duration: %w", err)
	}
	return Info{
		SampleRate:  int(d.SampleRate),
		Channels:    int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		DurationSec: dur.Seconds(),
	}, nil
}
