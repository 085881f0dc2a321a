package shellformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "normalizes spacing",
			in:   "pgrep   -f    crewsync-server",
			want: "pgrep -f crewsync-server",
		},
		{
			name: "pipeline stays on one line when short",
			in:   "ps aux | grep crewsync",
			want: "ps aux | grep crewsync",
		},
		{
			name: "unparseable input returned unchanged",
			in:   "if then fi ((",
			want: "if then fi ((",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.in))
		})
	}
}
