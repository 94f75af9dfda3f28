// Package config loads rehearse settings from YAML, environment and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jwulff/rehearse/internal/transcribe"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	SessionsDir   string              `mapstructure:"sessions_dir" yaml:"sessions_dir"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Transcription TranscriptionConfig `mapstructure:"transcription" yaml:"transcription"`
	Analysis      AnalysisConfig      `mapstructure:"analysis" yaml:"analysis"`
	History       HistoryConfig       `mapstructure:"history" yaml:"history"`
	Metrics       MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File receives logs while the TUI owns the terminal. Empty means <config dir>/rehearse.log.
	File string `mapstructure:"file" yaml:"file"`
}

// TranscriptionConfig configures the speech-to-text provider.
type TranscriptionConfig struct {
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey        string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	ModelID       string        `mapstructure:"model_id" yaml:"model_id"`
	LanguageCode  string        `mapstructure:"language_code" yaml:"language_code"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// AnalysisConfig controls automatic analysis.
type AnalysisConfig struct {
	// Auto runs analysis as soon as a transcription lands.
	Auto bool `mapstructure:"auto" yaml:"auto"`
}

// HistoryConfig locates the analysis history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Dir returns the default configuration directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rehearse")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SessionsDir: filepath.Join(Dir(), "sessions"),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Transcription: TranscriptionConfig{
			Endpoint:      transcribe.DefaultEndpoint,
			ModelID:       transcribe.DefaultModelID,
			LanguageCode:  transcribe.DefaultLanguageCode,
			Timeout:       transcribe.DefaultTimeout,
			MaxConcurrent: 1,
		},
		Analysis: AnalysisConfig{Auto: true},
		History:  HistoryConfig{Enabled: true},
	}
}

// Load reads cfgFile (or rehearse.yaml from the config dir and cwd), then
// REHEARSE_* environment variables. A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("rehearse")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REHEARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("transcription.api_key", "REHEARSE_TRANSCRIPTION_API_KEY", "ELEVENLABS_API_KEY")
	v.BindEnv("transcription.language_code", "REHEARSE_TRANSCRIPTION_LANGUAGE_CODE", "DEFAULT_LANGUAGE_CODE")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SessionsDir = expandHome(cfg.SessionsDir)
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("sessions_dir", d.SessionsDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("transcription.endpoint", d.Transcription.Endpoint)
	v.SetDefault("transcription.api_key", d.Transcription.APIKey)
	v.SetDefault("transcription.model_id", d.Transcription.ModelID)
	v.SetDefault("transcription.language_code", d.Transcription.LanguageCode)
	v.SetDefault("transcription.timeout", d.Transcription.Timeout)
	v.SetDefault("transcription.max_concurrent", d.Transcription.MaxConcurrent)
	v.SetDefault("analysis.auto", d.Analysis.Auto)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// SaveTo writes cfg as YAML, creating the parent directory. The API key is
// never written; it belongs in the environment.
func SaveTo(cfg *Config, path string) error {
	out := *cfg
	out.Transcription.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LogFile returns the log destination used while the TUI is active.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(filepath.Dir(c.SessionsDir), "rehearse.log")
}

// HistoryPath returns the history database location.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(filepath.Dir(c.SessionsDir), "history.sqlite")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
