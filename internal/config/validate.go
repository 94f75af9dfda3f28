package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate returns every problem found. Values that would break the engine
// are clamped to safe defaults; the rest are reported for the caller to log.
func (c *Config) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.SessionsDir) == "" {
		errs = append(errs, fmt.Errorf("sessions_dir must not be empty"))
		c.SessionsDir = Default().SessionsDir
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
		c.Log.Level = "info"
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
		c.Log.Format = "text"
	}

	if c.Transcription.Endpoint != "" {
		u, err := url.Parse(c.Transcription.Endpoint)
		if err != nil {
			errs = append(errs, fmt.Errorf("transcription.endpoint %q is not a valid URL: %w", c.Transcription.Endpoint, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("transcription.endpoint scheme must be http or https, got %q", u.Scheme))
		}
	}
	if c.Transcription.ModelID == "" {
		errs = append(errs, fmt.Errorf("transcription.model_id must not be empty"))
		c.Transcription.ModelID = Default().Transcription.ModelID
	}
	if c.Transcription.Timeout < time.Second {
		errs = append(errs, fmt.Errorf("transcription.timeout %s is below 1s, clamping", c.Transcription.Timeout))
		c.Transcription.Timeout = Default().Transcription.Timeout
	}
	if c.Transcription.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("transcription.max_concurrent %d is below 1, clamping", c.Transcription.MaxConcurrent))
		c.Transcription.MaxConcurrent = 1
	} else if c.Transcription.MaxConcurrent > 8 {
		errs = append(errs, fmt.Errorf("transcription.max_concurrent %d is above 8, clamping", c.Transcription.MaxConcurrent))
		c.Transcription.MaxConcurrent = 8
	}

	return errs
}
