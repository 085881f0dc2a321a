package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppender_AppendSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "journal.md")
	a := NewAppender(path)
	a.now = func() time.Time { return time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC) }

	require.NoError(t, a.AppendSection("Audit summary", "Overall: healthy\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Audit summary (2026-08-23 09:30)")
	assert.Contains(t, string(data), "Overall: healthy")
}

func TestAppender_AppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.md")
	require.NoError(t, os.WriteFile(path, []byte("# Existing narrative\n\nhand-written intro\n"), 0o644))

	a := NewAppender(path)
	require.NoError(t, a.AppendSection("First", "one"))
	require.NoError(t, a.AppendSection("Second", "two"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	// Prior content is untouched and precedes the appended sections.
	assert.True(t, strings.HasPrefix(content, "# Existing narrative"))
	first := strings.Index(content, "## First")
	second := strings.Index(content, "## Second")
	require.Greater(t, first, 0)
	assert.Greater(t, second, first)
	assert.Contains(t, content, "hand-written intro")
}
