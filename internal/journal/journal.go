package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Appender writes dated summary sections to the canonical narrative log.
// The log is append-only: prior content is never rewritten.
type Appender struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewAppender(path string) *Appender {
	return &Appender{path: path, now: time.Now}
}

// AppendSection appends one "## <title> (<date>)" section with the given
// body to the end of the log, creating the file if needed.
func (a *Appender) AppendSection(title, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	section := fmt.Sprintf("\n## %s (%s)\n\n%s\n", title, a.now().Format("2006-01-02 15:04"), body)
	if _, err := f.WriteString(section); err != nil {
		return fmt.Errorf("failed to append journal section: %w", err)
	}
	return nil
}
