package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type BoardEnv struct {
	BoardPath   string        `envconfig:"BOARD_PATH" default:".crewsync/board.yaml"`
	JournalPath string        `envconfig:"JOURNAL_PATH" default:".crewsync/journal.md"`
	Debounce    time.Duration `envconfig:"BOARD_DEBOUNCE" default:"100ms"`
}

type SyncEnv struct {
	Interval      time.Duration `envconfig:"SYNC_INTERVAL" default:"1m"`
	CanonicalDir  string        `envconfig:"SYNC_CANONICAL_DIR" default:".crewsync/canonical"`
	CommitMessage string        `envconfig:"SYNC_COMMIT_MESSAGE" default:"sync: update coordination files"`
	// Worktree provisioning: the shared repository agent workspaces are
	// carved out of, and where the worktrees live.
	RepoPath      string `envconfig:"WORKSPACE_REPO" default:"."`
	WorkspacesDir string `envconfig:"WORKSPACES_DIR" default:""`
}

type AuditEnv struct {
	CheckInterval   time.Duration `envconfig:"AUDIT_INTERVAL" default:"5m"`
	SummaryInterval time.Duration `envconfig:"AUDIT_SUMMARY_INTERVAL" default:"24h"`
	StaleThreshold  time.Duration `envconfig:"AUDIT_STALE_THRESHOLD" default:"24h"`
	BoardFreshness  time.Duration `envconfig:"AUDIT_BOARD_FRESHNESS" default:"6h"`
	MaxUncommitted  int           `envconfig:"AUDIT_MAX_UNCOMMITTED" default:"20"`
	MaxCommitAge    time.Duration `envconfig:"AUDIT_MAX_COMMIT_AGE" default:"48h"`
	ServerPIDFile   string        `envconfig:"AUDIT_SERVER_PID_FILE" default:".crewsync/server.pid"`
	ProbeCommand    string        `envconfig:"AUDIT_PROBE_COMMAND" default:""`
	GitTimeout      time.Duration `envconfig:"GIT_TIMEOUT" default:"30s"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".crewsync/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"crewsync/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@crewbase.dev"`
}

type Env struct {
	BaseEnv
	BoardEnv
	SyncEnv
	AuditEnv
	StorageEnv
	VAPIDEnv
}

const namespace = "CREWSYNC"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

// Validate reports the first configuration problem, for the config health
// check.
func (e *Env) Validate() error {
	if e.APIKey == "" {
		return fmt.Errorf("API key is not set")
	}
	if e.BoardPath == "" {
		return fmt.Errorf("board path is not set")
	}
	if e.Type == "s3" && e.S3Bucket == "" {
		return fmt.Errorf("storage type is s3 but no bucket is set")
	}
	if e.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	return nil
}
