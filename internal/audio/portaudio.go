package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice opens the system default input through PortAudio.
// The library is initialized on first use.
type PortAudioDevice struct {
	once        sync.Once
	initErr     error
	initialized bool
}

// NewPortAudioDevice returns a device backed by the default input.
func NewPortAudioDevice() *PortAudioDevice {
	return &PortAudioDevice{}
}

func (d *PortAudioDevice) init() error {
	d.once.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			d.initErr = fmt.Errorf("initialize portaudio: %w", err)
			return
		}
		d.initialized = true
	})
	return d.initErr
}

// OpenInput opens the default input stream with a per-block callback.
func (d *PortAudioDevice) OpenInput(f Format, onBlock func(in []int16)) (Stream, error) {
	if err := d.init(); err != nil {
		return nil, err
	}
	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), f.BlockSize, onBlock)
	if err != nil {
		return nil, fmt.Errorf("open default stream: %w", err)
	}
	return stream, nil
}

// InputName returns the default input device name, or "" when unavailable.
func (d *PortAudioDevice) InputName() string {
	if err := d.init(); err != nil {
		return ""
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		return ""
	}
	return dev.Name
}

// Close releases PortAudio if it was initialized.
func (d *PortAudioDevice) Close() error {
	d.once.Do(func() {})
	if !d.initialized {
		return nil
	}
	return portaudio.Terminate()
}
