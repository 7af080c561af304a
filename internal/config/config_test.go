package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, StorageMongo, cfg.Storage)
	assert.Equal(t, "workforce", cfg.MongoDB)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
	assert.False(t, cfg.NotifierEnabled())
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("STORAGE", "Memory")
	t.Setenv("TIMEZONE", "Asia/Ho_Chi_Minh")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOCK_TTL", "250ms")
	t.Setenv("MATTERMOST_URL", "http://mm.local/")
	t.Setenv("MATTERMOST_TOKEN", "tok")
	t.Setenv("MATTERMOST_CHANNEL_ID", "chan")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Location.String())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTTL)
	assert.Equal(t, "http://mm.local", cfg.MattermostURL)
	assert.True(t, cfg.NotifierEnabled())
}

func TestConfigFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_ISSUER=from-dotenv\n"), 0o600))
	file := filepath.Join(dir, "workforce.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: \"9000\"\nlocale: vi\n"), 0o600))
	t.Setenv("LOCALE", "en")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, "from-dotenv", cfg.JWTIssuer)
	t.Cleanup(func() { os.Unsetenv("JWT_ISSUER") })
}

func TestInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	for key, value := range map[string]string{
		"STORAGE":           "postgres",
		"TIMEZONE":          "Mars/Olympus",
		"LOG_LEVEL":         "loud",
		"SUBSCRIBER_BUFFER": "0",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
