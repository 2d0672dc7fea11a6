// Package chat runs conversation turns against a streaming LLM API.
//
// A Session owns the history for one conversation. Send appends the user
// message, streams the reply through the frame decoder, the wire adapter and
// the thinking splitter, renders it incrementally, and finally commits the
// reply or rolls the user message back. Turn-level failures never surface as
// Go errors: they are reported through Result.Status.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/arin/llmchat/internal/history"
	"github.com/arin/llmchat/internal/provider"
)

const (
	DefaultMaxHistory       = 20
	DefaultMaxMessageLength = 50000
	// DefaultImagePrompt replaces empty input when an image is attached.
	DefaultImagePrompt = "Describe this image in detail."
)

var (
	ErrEmptyInput     = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")
)

// Options configures a new Session.
type Options struct {
	SystemPrompt     string
	Sampling         provider.Sampling
	MaxHistory       int
	MaxMessageLength int
	ShowThinking     bool
	Client           *http.Client
}

// Session is the explicit state of one conversation.
type Session struct {
	Profile provider.Profile
	Model   string
	History *history.History

	SystemPrompt     string
	Sampling         provider.Sampling
	MaxHistory       int
	MaxMessageLength int
	ShowThinking     bool

	// Image is attached to the next user message and cleared once used.
	Image *history.Image

	client *http.Client
}

// NewSession starts an empty conversation with model on the given provider.
func NewSession(p provider.Profile, model string, opts Options) *Session {
	mode := history.ModeStructural
	if p.Family == provider.GeminiStyle {
		mode = history.ModeAlternating
	}
	if opts.MaxHistory < 2 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}

	return &Session{
		Profile:          p,
		Model:            model,
		History:          history.New(opts.SystemPrompt, mode),
		SystemPrompt:     opts.SystemPrompt,
		Sampling:         opts.Sampling,
		MaxHistory:       opts.MaxHistory,
		MaxMessageLength: opts.MaxMessageLength,
		ShowThinking:     opts.ShowThinking,
		client:           opts.Client,
	}
}

// NewHTTPClient returns a client suited to long streamed responses: the
// timeout bounds the wait for response headers, not the whole body.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// UserMessage builds the history entry for text and the attached image
// without touching the session.
func (s *Session) UserMessage(text string) (history.Message, error) {
	if text == "" {
		if s.Image == nil {
			return history.Message{}, ErrEmptyInput
		}
		text = DefaultImagePrompt
	}
	if n := utf8.RuneCountInString(text); n > s.MaxMessageLength {
		return history.Message{}, fmt.Errorf("%w (%d chars, max %d)", ErrMessageTooLong, n, s.MaxMessageLength)
	}

	msg := history.Message{Role: history.RoleUser, Content: text, Image: s.Image}

	// The alternating format has no system role: the prompt rides on the
	// first user message instead.
	if s.History.Mode() == history.ModeAlternating && s.History.Len() == 0 && s.SystemPrompt != "" {
		if s.Image != nil {
			msg.Content = s.SystemPrompt + "\n\n" + text
		} else {
			msg.Content = s.SystemPrompt + "\n\nUser: " + text
		}
	}
	return msg, nil
}

// Send runs one turn for text. The returned error is non-nil only when the
// input is rejected before history is touched.
func (s *Session) Send(ctx context.Context, text string, r Renderer) (Result, error) {
	msg, err := s.UserMessage(text)
	if err != nil {
		return Result{}, err
	}
	s.Image = nil

	s.History.Append(msg)
	s.History.Truncate(s.MaxHistory)

	t := s.stream(ctx, r)
	return s.settle(t, r), nil
}

// Load replaces the conversation with saved messages. A system message saved
// by an OpenAI-compatible session is dropped when loading into the
// alternating format, which has no system role.
func (s *Session) Load(msgs []history.Message) error {
	if s.History.Mode() == history.ModeAlternating && len(msgs) > 0 && msgs[0].Role == history.RoleSystem {
		msgs = msgs[1:]
	}
	return s.History.Replace(msgs)
}
