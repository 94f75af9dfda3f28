// Package audio captures microphone input into WAV takes.
package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jwulff/rehearse/internal/logging"
	"github.com/spf13/afero"
)

var log = logging.L("audio")

// Format describes the fixed capture format.
type Format struct {
	Channels   int
	BitDepth   int
	SampleRate int
	BlockSize  int
}

// DefaultFormat is mono 16-bit PCM at 44.1 kHz in 1024-frame blocks.
var DefaultFormat = Format{Channels: 1, BitDepth: 16, SampleRate: 44100, BlockSize: 1024}

var (
	// ErrAlreadyRunning is returned by Start while a capture is in progress.
	ErrAlreadyRunning = errors.New("capture already running")
	// ErrNotRunning is returned by Stop when nothing is being captured.
	ErrNotRunning = errors.New("capture not running")
	// ErrNoAudioCaptured is returned by Stop when no samples arrived.
	ErrNoAudioCaptured = errors.New("no audio captured")
)

// DeviceError reports an input device that could not be opened or driven.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Stream is an open input stream. After Stop returns no further blocks are delivered.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Device opens input streams that push sample blocks to onBlock.
// onBlock may reuse its slice after returning.
type Device interface {
	OpenInput(f Format, onBlock func(in []int16)) (Stream, error)
}

// blockQueueSize bounds the hand-off between the device callback and the collector.
const blockQueueSize = 256

// Recorder turns one input stream into one WAV file per capture.
type Recorder struct {
	device Device
	fs     afero.Fs
	format Format

	mu      sync.Mutex
	running bool
	dest    string
	stream  Stream
	blocks  chan []int16
	done    chan struct{}
	buf     *captureBuffer

	level atomic.Uint32
}

// captureBuffer is owned by the collector goroutine until done is closed.
type captureBuffer struct {
	blocks  [][]int16
	samples int
}

// NewRecorder creates a recorder writing through fsys.
func NewRecorder(device Device, fsys afero.Fs) *Recorder {
	return &Recorder{device: device, fs: fsys, format: DefaultFormat}
}

// Format returns the capture format.
func (r *Recorder) Format() Format { return r.format }

// Running reports whether a capture is in progress.
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Destination returns the path the running capture will be written to.
func (r *Recorder) Destination() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dest
}

// Level returns the peak amplitude of the most recent block, 0..1.
func (r *Recorder) Level() float32 {
	return math.Float32frombits(r.level.Load())
}

// Start begins capturing for dest.
func (r *Recorder) Start(dest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}
	if r.device == nil {
		return &DeviceError{Op: "open", Err: errors.New("no input device")}
	}

	blocks := make(chan []int16, blockQueueSize)
	done := make(chan struct{})
	buf := &captureBuffer{}

	stream, err := r.device.OpenInput(r.format, func(in []int16) {
		cp := make([]int16, len(in))
		copy(cp, in)
		r.level.Store(math.Float32bits(peak(cp)))
		// Blocks are never dropped. A full queue makes the device thread wait
		// for the collector, whose loop only appends to a slice.
		blocks <- cp
	})
	if err != nil {
		return &DeviceError{Op: "open", Err: err}
	}

	go collect(blocks, done, buf)

	if err := stream.Start(); err != nil {
		stream.Close()
		close(blocks)
		<-done
		return &DeviceError{Op: "start", Err: err}
	}

	r.running = true
	r.dest = dest
	r.stream = stream
	r.blocks = blocks
	r.done = done
	r.buf = buf
	r.level.Store(0)
	log.Debug("capture started", "dest", dest)
	return nil
}

// Stop halts capture, writes the WAV file and returns its duration in seconds.
// Any error means no usable file was produced.
func (r *Recorder) Stop() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return 0, ErrNotRunning
	}
	dest := r.dest
	buf, stopErr := r.halt()

	if stopErr != nil {
		return 0, &DeviceError{Op: "stop", Err: stopErr}
	}
	if len(buf.blocks) == 0 || buf.samples == 0 {
		return 0, ErrNoAudioCaptured
	}

	samples := make([]int16, 0, buf.samples)
	for _, b := range buf.blocks {
		samples = append(samples, b...)
	}
	duration := float64(len(samples)) / float64(r.format.SampleRate)

	if err := WriteWAV(r.fs, dest, samples, r.format); err != nil {
		return 0, err
	}
	log.Debug("capture stopped", "dest", dest, "blocks", len(buf.blocks), "duration_sec", duration)
	return duration, nil
}

// Discard abandons a running capture without writing anything.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	if _, err := r.halt(); err != nil {
		log.Warn("discard capture", logging.KeyError, err)
	}
}

// halt stops the stream and drains the collector. Caller holds mu.
func (r *Recorder) halt() (*captureBuffer, error) {
	stopErr := r.stream.Stop()
	if err := r.stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	close(r.blocks)
	<-r.done

	buf := r.buf
	r.running = false
	r.dest = ""
	r.stream = nil
	r.blocks = nil
	r.done = nil
	r.buf = nil
	r.level.Store(0)
	return buf, stopErr
}

func collect(blocks <-chan []int16, done chan<- struct{}, buf *captureBuffer) {
	defer close(done)
	for b := range blocks {
		buf.blocks = append(buf.blocks, b)
		buf.samples += len(b)
	}
}

func peak(samples []int16) float32 {
	var m int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return float32(m) / 32768
}
