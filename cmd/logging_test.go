package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{name: "default info", raw: "", want: slog.LevelInfo},
		{name: "debug", raw: "debug", want: slog.LevelDebug},
		{name: "warning alias", raw: "WARNING", want: slog.LevelWarn},
		{name: "error", raw: " error ", want: slog.LevelError},
		{name: "numeric", raw: "-4", want: slog.LevelDebug},
		{name: "invalid", raw: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLogLevel(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectedLogLevel(t *testing.T) {
	raw, source := selectedLogLevel("debug", "warn")
	assert.Equal(t, "debug", raw)
	assert.Equal(t, "flag", source)

	raw, source = selectedLogLevel(" ", "warn")
	assert.Equal(t, "warn", raw)
	assert.Equal(t, "config", source)

	_, source = selectedLogLevel("", "")
	assert.Equal(t, "default", source)
}

func TestConfigureLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err := configureLogger("loud", "info")
	assert.Error(t, err)

	warning, err := configureLogger("", "loud")
	require.NoError(t, err)
	assert.Contains(t, warning, "LOG_LEVEL")
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
}
