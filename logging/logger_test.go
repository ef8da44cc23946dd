package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json to stdout", config: Config{Level: "info", Format: "json", Output: "stdout"}},
		{name: "text to stderr", config: Config{Level: "debug", Format: "text", Output: "stderr"}},
		{name: "file output", config: Config{Level: "info", Format: "json", Output: t.TempDir() + "/init.log"}},
		{name: "empty config uses defaults", config: Config{}},
		{name: "bad level", config: Config{Level: "loud", Format: "json"}, wantErr: true},
		{name: "bad format", config: Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).validate())
	assert.NoError(t, (&Config{Level: "warn", Format: "text"}).validate())
	assert.Error(t, (&Config{Level: "trace"}).validate())
	assert.Error(t, (&Config{Format: "logfmt"}).validate())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"ERROR", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}
