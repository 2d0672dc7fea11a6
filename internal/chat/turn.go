package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/arin/llmchat/internal/think"
)

// turn accumulates the state of one request/response cycle.
type turn struct {
	id       string
	started  time.Time
	splitter think.Splitter

	raw      strings.Builder
	visible  strings.Builder
	thinking strings.Builder

	finish      string
	err         string
	blockReason string
	interrupted bool
	toolCalls   []string

	firstByte   bool
	firstByteAt time.Time
}

func newTurn() *turn {
	return &turn{id: uuid.NewString(), started: time.Now()}
}

// fail records a transport failure. A cancelled context means the user
// interrupted the turn rather than the network failing.
func (t *turn) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		t.interrupted = true
		return
	}
	t.err = "Connection error: " + truncate(err.Error(), 150)
}

func (t *turn) markFirstByte(r Renderer) {
	if t.firstByte {
		return
	}
	t.firstByte = true
	t.firstByteAt = time.Now()
	r.Render(Event{Kind: EventFirstByte})
}

func (t *turn) firstByteLatency() time.Duration {
	if !t.firstByte {
		return 0
	}
	return t.firstByteAt.Sub(t.started)
}

// truncate shortens s to n characters, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return cutRunes(s, n) + "..."
}

// cutRunes returns the first n characters of s without splitting a rune.
func cutRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
