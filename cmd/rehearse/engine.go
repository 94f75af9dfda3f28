package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jwulff/rehearse/internal/audio"
	"github.com/jwulff/rehearse/internal/config"
	"github.com/jwulff/rehearse/internal/controller"
	"github.com/jwulff/rehearse/internal/history"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/metrics"
	"github.com/jwulff/rehearse/internal/session"
	"github.com/jwulff/rehearse/internal/transcribe"
	"github.com/jwulff/rehearse/internal/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// shutdownTimeout bounds how long Close waits for in-flight transcriptions.
const shutdownTimeout = 30 * time.Second

// engine is the wired engine shared by every front-end.
type engine struct {
	cfg     *config.Config
	ctrl    *controller.Controller
	device  *audio.PortAudioDevice
	history *history.Store
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	for _, problem := range cfg.Validate() {
		log.Warn("config", logging.KeyError, problem)
	}
	return cfg, nil
}

// newCLIEngine loads config and logs to stderr for one-shot subcommands.
func newCLIEngine() (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	return newEngine(cfg)
}

func newEngine(cfg *config.Config) (*engine, error) {
	fs := afero.NewOsFs()
	store, err := session.NewStore(fs, cfg.SessionsDir)
	if err != nil {
		return nil, err
	}

	rt := &engine{cfg: cfg, device: audio.NewPortAudioDevice()}

	if cfg.History.Enabled {
		rt.history, err = openHistory(cfg.HistoryPath())
		if err != nil {
			// feedback still works without history
			log.Warn("analysis history disabled", logging.KeyError, err)
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Addr != "" {
		go func() {
			log.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				log.Error("metrics listener failed", logging.KeyError, err)
			}
		}()
	}

	workers := cfg.Transcription.MaxConcurrent
	rt.ctrl = controller.New(controller.Options{
		Store:    store,
		Recorder: audio.NewRecorder(rt.device, fs),
		Transcriber: transcribe.NewElevenLabs(transcribe.ElevenLabsConfig{
			Endpoint:     cfg.Transcription.Endpoint,
			APIKey:       cfg.Transcription.APIKey,
			ModelID:      cfg.Transcription.ModelID,
			LanguageCode: cfg.Transcription.LanguageCode,
			Timeout:      cfg.Transcription.Timeout,
		}, fs),
		Pool:        workerpool.New(workers, workers*4),
		History:     rt.history,
		Metrics:     m,
		AutoAnalyze: cfg.Analysis.Auto,
	})
	return rt, nil
}

// openSession opens id, or the most recent session when id is empty.
func (rt *engine) openSession(id string) error {
	if id != "" {
		_, err := rt.ctrl.OpenSession(id)
		return err
	}
	_, err := rt.ctrl.OpenMostRecentOrCreate()
	return err
}

func (rt *engine) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.ctrl.Close(ctx); err != nil {
		log.Warn("transcriptions still running at exit", logging.KeyError, err)
	}
	if rt.history != nil {
		rt.history.Close()
	}
	if err := rt.device.Close(); err != nil {
		log.Warn("close audio device", logging.KeyError, err)
	}
}

func openHistory(path string) (*history.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return history.Open(path)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
