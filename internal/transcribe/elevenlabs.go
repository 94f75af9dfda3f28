package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Defaults for the ElevenLabs speech-to-text API.
const (
	DefaultEndpoint     = "https://api.elevenlabs.io/v1/speech-to-text"
	DefaultModelID      = "scribe_v1"
	DefaultLanguageCode = "kor"
	DefaultTimeout      = 2 * time.Minute
)

// ErrMissingAPIKey is returned when no API key was configured.
var ErrMissingAPIKey = errors.New("ELEVENLABS_API_KEY is not set")

// ElevenLabsConfig configures the ElevenLabs client.
type ElevenLabsConfig struct {
	Endpoint     string
	APIKey       string
	ModelID      string
	LanguageCode string
	Timeout      time.Duration
}

// ElevenLabs transcribes audio files with the ElevenLabs Scribe model.
type ElevenLabs struct {
	cfg  ElevenLabsConfig
	fs   afero.Fs
	http *http.Client
}

// NewElevenLabs creates a client, filling unset fields with defaults.
func NewElevenLabs(cfg ElevenLabsConfig, fsys afero.Fs) *ElevenLabs {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ElevenLabs{cfg: cfg, fs: fsys, http: &http.Client{Timeout: cfg.Timeout}}
}

// Transcribe uploads the audio file and returns the text plus the raw response.
func (c *ElevenLabs) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	if c.cfg.APIKey == "" {
		return Transcript{}, ErrMissingAPIKey
	}

	audio, err := afero.ReadFile(c.fs, audioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("read audio: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return Transcript{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcript{}, fmt.Errorf("write form file: %w", err)
	}
	fields := map[string]string{
		"model_id":         c.cfg.ModelID,
		"language_code":    c.cfg.LanguageCode,
		"tag_audio_events": "false",
		"diarize":          "false",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return Transcript{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return Transcript{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Transcript{}, fmt.Errorf("elevenlabs http %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var meta map[string]any
	if err := json.Unmarshal(respBody, &meta); err != nil {
		return Transcript{}, fmt.Errorf("decode response: %w", err)
	}
	text, _ := meta["text"].(string)
	return Transcript{Text: text, Meta: meta}, nil
}
