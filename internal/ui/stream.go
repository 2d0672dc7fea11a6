// Package ui draws chat output to the terminal: the streamed reply, the
// waiting spinner and notices. The reply goes to the output writer; notices
// go to the error writer so piping the output captures only the answer.
package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/arin/llmchat/internal/chat"
)

// Stream implements chat.Renderer for one terminal.
type Stream struct {
	out    io.Writer
	errOut io.Writer

	// spinner is nil when the placeholder should not be drawn.
	spinner *Spinner

	started  bool
	thinking bool
	// atLineStart tracks whether the last write to out ended a line.
	atLineStart bool

	prefix  *color.Color
	answer  *color.Color
	think   *color.Color
	warn    *color.Color
	failure *color.Color
	info    *color.Color
}

// NewStream returns a renderer writing to out and errOut. A spinner
// placeholder is shown while waiting for the first byte when interactive is set.
func NewStream(out, errOut io.Writer, interactive bool) *Stream {
	s := &Stream{
		out:         out,
		errOut:      errOut,
		atLineStart: true,
		prefix:      color.New(color.FgCyan, color.Bold),
		answer:      color.New(color.Reset),
		think:       color.New(color.FgHiBlack, color.Italic),
		warn:        color.New(color.FgYellow),
		failure:     color.New(color.FgRed),
		info:        color.New(color.FgHiBlack),
	}
	if interactive {
		s.spinner = NewSpinner("Waiting…")
	}
	return s
}

// Render draws one event.
func (s *Stream) Render(e chat.Event) {
	switch e.Kind {
	case chat.EventWaiting:
		s.started, s.thinking, s.atLineStart = false, false, true
		if s.spinner != nil {
			s.spinner.Start()
		}
	case chat.EventFirstByte:
		s.begin()
	case chat.EventVisible:
		s.begin()
		if s.thinking {
			s.thinking = false
			s.newline()
		}
		s.write(s.answer, e.Text)
	case chat.EventThinking:
		s.begin()
		if !s.thinking {
			s.thinking = true
			s.write(s.think, "[Thinking] ")
		}
		s.write(s.think, e.Text)
	case chat.EventTag:
		s.begin()
		s.write(s.think, e.Text)
	case chat.EventToolCall:
		s.begin()
		s.newline()
		s.warn.Fprintln(s.errOut, "Tool call requested:")
		fmt.Fprintln(s.errOut, indentJSON(e.Text))
		s.info.Fprintln(s.errOut, "(Tool calls are shown only; they are not executed or sent back to the model.)")
	case chat.EventEnd:
		s.stopSpinner()
		if s.started {
			s.newline()
		}
	case chat.EventWarning:
		s.notice(s.warn, e.Text)
	case chat.EventError:
		s.notice(s.failure, e.Text)
	case chat.EventInfo:
		s.notice(s.info, e.Text)
	}
}

func (s *Stream) begin() {
	if s.started {
		return
	}
	s.stopSpinner()
	s.started = true
	s.prefix.Fprint(s.out, "AI: ")
	s.atLineStart = false
}

func (s *Stream) stopSpinner() {
	if s.spinner != nil && s.spinner.Active() {
		s.spinner.Stop()
	}
}

func (s *Stream) write(c *color.Color, text string) {
	if text == "" {
		return
	}
	c.Fprint(s.out, text)
	s.atLineStart = text[len(text)-1] == '\n'
}

func (s *Stream) newline() {
	if !s.atLineStart {
		fmt.Fprintln(s.out)
		s.atLineStart = true
	}
}

func (s *Stream) notice(c *color.Color, text string) {
	s.stopSpinner()
	if s.started {
		s.newline()
	}
	c.Fprintln(s.errOut, text)
}

func indentJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
