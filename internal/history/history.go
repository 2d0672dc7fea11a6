// Package history holds the conversation log of a chat session.
// The session owns the log; the stream controller only reads snapshots.
package history

import (
	"errors"
	"fmt"
	"slices"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects the history shape required by the wire format.
type Mode int

const (
	// ModeStructural keeps the system prompt as message 0 (OpenAI-compatible APIs).
	ModeStructural Mode = iota
	// ModeAlternating has no system message and requires strict
	// user/assistant alternation (Gemini-style APIs).
	ModeAlternating
)

// ErrInvalidSession is returned when a message list breaks the history invariants.
var ErrInvalidSession = errors.New("invalid session")

// Image is an already-encoded attachment carried by a user message.
type Image struct {
	Path string `json:"path,omitempty"`
	MIME string `json:"mime"`
	Data string `json:"data"` // base64
}

// Message is a single conversation entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Image   *Image `json:"image,omitempty"`
}

// History is an append-only conversation log with bounded-window truncation.
type History struct {
	mode     Mode
	messages []Message
}

// New creates a history. In ModeStructural a non-empty system prompt is
// pinned at index 0.
func New(systemPrompt string, mode Mode) *History {
	h := &History{mode: mode}
	if systemPrompt != "" && mode == ModeStructural {
		h.messages = append(h.messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return h
}

// Mode reports the history mode.
func (h *History) Mode() Mode { return h.mode }

// Len returns the number of stored messages, system message included.
func (h *History) Len() int { return len(h.messages) }

// Messages returns a copy of the log that callers may read freely.
func (h *History) Messages() []Message {
	return slices.Clone(h.messages)
}

// Last returns the tail message.
func (h *History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Append pushes m to the tail.
func (h *History) Append(m Message) {
	h.messages = append(h.messages, m)
}

// SystemOffset is 1 when a structural system message occupies index 0.
func (h *History) SystemOffset() int {
	if h.mode == ModeStructural && len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		return 1
	}
	return 0
}

// Truncate drops the oldest conversational messages so that at most max of
// them remain after the pinned system message. In ModeAlternating the number
// removed is rounded up to an even count to keep user/assistant pairs intact.
// It returns the number of messages removed.
func (h *History) Truncate(max int) int {
	if max < 0 {
		return 0
	}
	offset := h.SystemOffset()
	if len(h.messages) <= max+offset {
		return 0
	}

	excess := len(h.messages) - (max + offset)
	if h.mode == ModeAlternating && excess%2 == 1 {
		excess++
	}
	if excess > len(h.messages)-offset {
		excess = len(h.messages) - offset
	}

	h.messages = slices.Delete(h.messages, offset, offset+excess)
	return excess
}

// RollbackLastIfUser pops the tail message only if it was written by the user.
func (h *History) RollbackLastIfUser() bool {
	last, ok := h.Last()
	if !ok || last.Role != RoleUser {
		return false
	}
	h.messages = h.messages[:len(h.messages)-1]
	return true
}

// Replace swaps the whole log for msgs after validating it.
func (h *History) Replace(msgs []Message) error {
	if err := Validate(msgs); err != nil {
		return err
	}
	if h.mode == ModeAlternating {
		if err := validateAlternation(msgs); err != nil {
			return err
		}
	}
	h.messages = slices.Clone(msgs)
	return nil
}

// validateAlternation requires user/assistant pairs starting with the user,
// so the next user message keeps the sequence intact.
func validateAlternation(msgs []Message) error {
	for i, m := range msgs {
		if m.Role == RoleSystem {
			return fmt.Errorf("%w: system message not allowed in alternating mode", ErrInvalidSession)
		}
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if m.Role != want {
			return fmt.Errorf("%w: expected %s message at index %d, got %s", ErrInvalidSession, want, i, m.Role)
		}
	}
	if len(msgs)%2 == 1 {
		return fmt.Errorf("%w: conversation ends without an assistant reply", ErrInvalidSession)
	}
	return nil
}

// Validate checks that msgs uses known roles, has non-empty content, and
// carries at most one system message at index 0.
func Validate(msgs []Message) error {
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if i != 0 {
				return fmt.Errorf("%w: system message at index %d", ErrInvalidSession, i)
			}
		case RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: unknown role %q at index %d", ErrInvalidSession, m.Role, i)
		}
		if m.Content == "" && m.Image == nil {
			return fmt.Errorf("%w: message %d has no content", ErrInvalidSession, i)
		}
	}
	return nil
}
