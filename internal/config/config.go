// Package config loads camstream.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ─── Sections ───────────────────────────────────────────────────────────

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	MDNS            bool          `yaml:"mdns"`
	TUI             bool          `yaml:"tui"`
	MaxStreams      int           `yaml:"max_streams"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type CameraConfig struct {
	// Backend is "v4l2", "opencv" or "synthetic".
	Backend string `yaml:"backend"`
	Device  string `yaml:"device"`
	Index   int    `yaml:"index"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
	// Format is "auto", "mjpeg" or "yuyv" (v4l2 only).
	Format  string `yaml:"format"`
	Buffers int    `yaml:"buffers"`
	// Timeout bounds a single acquisition, in whole seconds.
	Timeout int `yaml:"timeout"`

	// Synthetic pattern tuning.
	Hold      int `yaml:"hold"`
	FailEvery int `yaml:"fail_every"`
}

type StreamConfig struct {
	JPEGQuality   int `yaml:"jpeg_quality"`
	AverageWindow int `yaml:"average_window"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type DriveConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the top-level structure of camstream.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Stream StreamConfig `yaml:"stream"`
	Log    LogConfig    `yaml:"log"`
	Drive  DriveConfig  `yaml:"drive"`
}

// ─── Loaders ────────────────────────────────────────────────────────────

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			MDNS:            true,
			TUI:             false,
			MaxStreams:      4,
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Backend: "v4l2",
			Device:  "/dev/video0",
			Width:   640,
			Height:  480,
			FPS:     30,
			Format:  "auto",
			Timeout: 1,
			Hold:    3,
		},
		Stream: StreamConfig{
			JPEGQuality:   80,
			AverageWindow: 20,
		},
		Log: LogConfig{
			Level: "info",
			File:  "camstream.log",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values and fills derived defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxStreams <= 0 {
		errs = append(errs, fmt.Errorf("server.max_streams must be positive, got %d", c.Server.MaxStreams))
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}

	switch c.Camera.Backend {
	case "v4l2", "opencv", "synthetic":
	default:
		errs = append(errs, fmt.Errorf("camera.backend %q is not one of v4l2, opencv, synthetic", c.Camera.Backend))
	}
	switch strings.ToLower(c.Camera.Format) {
	case "", "auto", "mjpeg", "yuyv":
	default:
		errs = append(errs, fmt.Errorf("camera.format %q is not one of auto, mjpeg, yuyv", c.Camera.Format))
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		errs = append(errs, errors.New("camera.width and camera.height must not be negative"))
	}
	// Every open stream pins one driver buffer as its comparison baseline.
	if c.Camera.Buffers == 0 {
		c.Camera.Buffers = c.Server.MaxStreams + 2
	}

	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("stream.jpeg_quality %d not in 1..100", c.Stream.JPEGQuality))
	}
	if c.Stream.AverageWindow <= 0 {
		errs = append(errs, fmt.Errorf("stream.average_window must be positive, got %d", c.Stream.AverageWindow))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}
