package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const baseEnv = `DATABASE_HOST=localhost
DATABASE_PORT=5432
DATABASE_USER=profile
DATABASE_PASSWORD=secret
DATABASE_NAME=profiledrive
`

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(writeEnvFile(t, baseEnv))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "2525", cfg.Server.Port)
	assert.Equal(t, "50051", cfg.Server.GRPCPort)
	assert.Equal(t, 15*24*time.Hour, cfg.Policy.Window)
	assert.Equal(t, 300*time.Second, cfg.Policy.UploadTTL)
	assert.Equal(t, time.Hour, cfg.Policy.DownloadTTL)
	assert.Equal(t, time.Minute, cfg.Policy.LockGrace)
	assert.Equal(t, time.Minute, cfg.Policy.SweepInterval)
	assert.Equal(t, []string{"10th", "12th"}, cfg.Policy.SubTypes)
	assert.Equal(t, NotifyNone, cfg.Notify.Driver)
	assert.Empty(t, cfg.Redis.URL)
}

func TestNewConfigFileValues(t *testing.T) {
	path := writeEnvFile(t, baseEnv+`POLICY_WINDOW=48h
POLICY_SUB_TYPES=10th,12th,diploma
NOTIFY_DRIVER=NATS
NOTIFY_TOPIC=markscards.changed
REDIS_URL=redis://cache:6379/1
`)

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Policy.Window)
	assert.Equal(t, []string{"10th", "12th", "diploma"}, cfg.Policy.SubTypes)
	assert.Equal(t, NotifyNATS, cfg.Notify.Driver)
	assert.Equal(t, "markscards.changed", cfg.Notify.Topic)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := NewConfig(writeEnvFile(t, baseEnv))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		wantErr string
	}{
		{name: "missing database", env: "DATABASE_HOST=localhost\n", wantErr: "database configuration is incomplete"},
		{name: "unknown driver", env: baseEnv + "NOTIFY_DRIVER=kafka\n", wantErr: "unknown notify driver"},
		{name: "sns without topic", env: baseEnv + "NOTIFY_DRIVER=sns\n", wantErr: "notify topic is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(writeEnvFile(t, tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
