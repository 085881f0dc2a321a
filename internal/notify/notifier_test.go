package notify

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewsync/internal/event"
)

type stubSink struct {
	calls int
	err   error
}

func (s *stubSink) Notify(context.Context, string, string, event.Severity) error {
	s.calls++
	return s.err
}

func TestMulti_FansOutToAllSinks(t *testing.T) {
	a := &stubSink{}
	b := &stubSink{}
	m := NewMulti(a, b)

	err := m.Notify(context.Background(), "title", "message", event.SeverityWarning)
	require.NoError(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestMulti_FailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &stubSink{err: fmt.Errorf("endpoint gone")}
	healthy := &stubSink{}
	m := NewMulti(failing, healthy)

	// Delivery errors are swallowed; the caller's pipeline never fails
	// because a notification could not be sent.
	err := m.Notify(context.Background(), "title", "message", event.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 1, healthy.calls)
}

func TestSlogNotifier(t *testing.T) {
	n := SlogNotifier{}
	assert.NoError(t, n.Notify(context.Background(), "t", "m", event.SeverityInfo))
	assert.NoError(t, n.Notify(context.Background(), "t", "m", event.SeverityCritical))
}
