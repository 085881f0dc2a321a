package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("CREWSYNC_API_KEY", "secret")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "local", env.Env)
	assert.Equal(t, "3200", env.HTTPPort)
	assert.Equal(t, ".crewsync/board.yaml", env.BoardPath)
	assert.Equal(t, time.Minute, env.SyncEnv.Interval)
	assert.Equal(t, 5*time.Minute, env.CheckInterval)
	assert.Equal(t, 24*time.Hour, env.StaleThreshold)
}

func TestLoadEnv_RequiresAPIKey(t *testing.T) {
	// t.Setenv registers the restore; the variable must be absent, not empty.
	t.Setenv("CREWSYNC_API_KEY", "x")
	require.NoError(t, os.Unsetenv("CREWSYNC_API_KEY"))

	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("CREWSYNC_API_KEY", "secret")
	t.Setenv("CREWSYNC_SYNC_INTERVAL", "30s")
	t.Setenv("CREWSYNC_BOARD_PATH", "/srv/crew/board.yaml")
	t.Setenv("CREWSYNC_STORAGE_TYPE", "s3")
	t.Setenv("CREWSYNC_S3_BUCKET", "crew-state")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, env.SyncEnv.Interval)
	assert.Equal(t, "/srv/crew/board.yaml", env.BoardPath)
	assert.Equal(t, "s3", env.Type)
	assert.NoError(t, env.Validate())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelDebug},
	}
	for _, tt := range tests {
		e := &BaseEnv{LogLevel: tt.in}
		assert.Equal(t, tt.want, e.SlogLevel(), "level %q", tt.in)
	}
	var nilEnv *BaseEnv
	assert.Equal(t, slog.LevelDebug, nilEnv.SlogLevel())
}

func TestValidate(t *testing.T) {
	valid := &Env{
		BaseEnv:  BaseEnv{APIKey: "k"},
		BoardEnv: BoardEnv{BoardPath: "board.yaml"},
		SyncEnv:  SyncEnv{Interval: time.Minute},
	}
	assert.NoError(t, valid.Validate())

	noKey := *valid
	noKey.APIKey = ""
	assert.Error(t, noKey.Validate())

	s3NoBucket := *valid
	s3NoBucket.Type = "s3"
	assert.Error(t, s3NoBucket.Validate())

	badInterval := *valid
	badInterval.SyncEnv.Interval = 0
	assert.Error(t, badInterval.Validate())
}
