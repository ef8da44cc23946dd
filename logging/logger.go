// Package logging provides structured logging for goinit, built on slog.
// Beyond the usual level/format/output knobs it supports per-stage log
// capture, so the HTTP surface can serve the log tail of any stage from a
// past or in-flight run.
//
// Example usage:
//
//	logger, err := logging.New(logging.Config{
//		Level:  "info",
//		Format: "json",
//	})
//	logger.Info("stage completed", "stage", "auth", "duration", d)
//	logger.Error("stage failed", "stage", "profile", "error", err)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds the logger configuration, usually decoded from the logging
// block of the YAML config file.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn or error.
	Level string `yaml:"level"`
	// Format selects json or text output.
	Format string `yaml:"format"`
	// Output is stdout, stderr, or a file path opened in append mode.
	Output string `yaml:"output"`
	// AddSource includes the source position in each record.
	AddSource bool `yaml:"add_source"`
}

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
	config Config
}

// New builds a logger from cfg. Empty fields fall back to info level and
// JSON on stdout.
func New(cfg Config) (*Logger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	cfg.setDefaults()

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	writer, err := openWriter(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to get output writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}, nil
}

func (cfg *Config) validate() error {
	switch cfg.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of: debug, info, warn, error")
	}

	switch cfg.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("format must be one of: json, text")
	}

	return nil
}

func (cfg *Config) setDefaults() {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", level)
	}
}

func openWriter(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", output, err)
		}
		return file, nil
	}
}
