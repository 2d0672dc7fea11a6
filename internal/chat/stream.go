package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/arin/llmchat/internal/frame"
	"github.com/arin/llmchat/internal/history"
	"github.com/arin/llmchat/internal/provider"
	"github.com/arin/llmchat/internal/think"
	"github.com/arin/llmchat/internal/wire"
)

const maxErrorBody = 64 << 10

// stream issues the request for the current history and consumes the reply.
// The response body is closed on every return path.
func (s *Session) stream(ctx context.Context, r Renderer) *turn {
	t := newTurn()
	logger := log.WithFields(log.Fields{"turn": t.id, "provider": s.Profile.Name, "model": s.Model})

	r.Render(Event{Kind: EventWaiting})

	payload, err := s.Profile.Payload(s.Model, s.History.Messages(), s.Sampling)
	if err != nil {
		t.err = err.Error()
		return t
	}
	req, err := s.Profile.NewChatRequest(ctx, s.Model, payload)
	if err != nil {
		t.err = err.Error()
		return t
	}

	logger.Debugf("POST %s (%d bytes)", req.URL.Redacted(), len(payload))
	resp, err := s.client.Do(req)
	if err != nil {
		t.fail(ctx, err)
		return t
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		t.err = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(body)), 200))
		return t
	}

	for data, err := range frame.Frames(resp.Body) {
		if err != nil {
			t.fail(ctx, err)
			break
		}
		d := s.Profile.Normalize(data)
		if d.Error != "" {
			t.err = "API error: " + d.Error
			break
		}
		if s.apply(t, d, r) {
			break
		}
	}
	if t.splitter.Inside() {
		logger.Debug("stream ended inside a thinking block")
	}
	s.emit(t, t.splitter.Close(), r)

	logger.WithFields(log.Fields{
		"finish":  t.finish,
		"chars":   t.raw.Len(),
		"elapsed": time.Since(t.started),
	}).Debug("stream finished")
	return t
}

// apply folds one delta into the turn. It reports whether the stream should
// stop.
func (s *Session) apply(t *turn, d wire.Delta, r Renderer) bool {
	for _, call := range d.ToolCalls {
		t.markFirstByte(r)
		t.toolCalls = append(t.toolCalls, call)
		r.Render(Event{Kind: EventToolCall, Text: call})
	}

	if d.Finish != "" && t.finish == "" {
		t.finish = d.Finish
		log.WithField("turn", t.id).Debugf("finish signal %q", d.Finish)
	}

	if d.HasContent() {
		t.markFirstByte(r)
	}
	if d.Thinking != "" {
		t.thinking.WriteString(d.Thinking)
		if s.ShowThinking {
			r.Render(Event{Kind: EventThinking, Text: d.Thinking})
		}
	}
	if d.Text != "" {
		t.raw.WriteString(d.Text)
		s.emit(t, t.splitter.Write(d.Text), r)
	}

	// Text arriving with a block is still shown before the turn fails.
	if d.BlockReason != "" {
		t.blockReason = d.BlockReason
		return true
	}

	switch {
	case abnormalFinish(t.finish):
		if t.raw.Len() == 0 {
			t.err = fmt.Sprintf("Stream ended by API (reason: %s)", t.finish)
		}
		return true
	case t.finish == wire.FinishStop && s.Profile.Quirk == provider.QuirkInferenceServer:
		return true
	}
	return false
}

func (s *Session) emit(t *turn, spans []think.Span, r Renderer) {
	for _, span := range spans {
		switch span.Kind {
		case think.Visible:
			t.visible.WriteString(span.Text)
			r.Render(Event{Kind: EventVisible, Text: span.Text})
		case think.Thinking:
			t.thinking.WriteString(span.Text)
			if s.ShowThinking {
				r.Render(Event{Kind: EventThinking, Text: span.Text})
			}
		case think.Tag:
			if s.ShowThinking {
				r.Render(Event{Kind: EventTag, Text: span.Text})
			}
		}
	}
}

// settle decides the terminal status and commits or rolls back history.
func (s *Session) settle(t *turn, r Renderer) Result {
	r.Render(Event{Kind: EventEnd})

	res := Result{
		TurnID:    t.id,
		Thinking:  t.thinking.String(),
		Finish:    t.finish,
		ToolCalls: t.toolCalls,
		FirstByte: t.firstByteLatency(),
		Elapsed:   time.Since(t.started),
	}

	switch {
	case t.err != "":
		res.Status = StatusError
		res.Message = t.err
		r.Render(Event{Kind: EventError, Text: t.err})
	case t.blockReason != "":
		res.Status = StatusContentBlocked
		res.Message = fmt.Sprintf("Content blocked (reason: %s)", t.blockReason)
		r.Render(Event{Kind: EventError, Text: res.Message})
	case t.interrupted:
		res.Status = StatusInterrupted
		r.Render(Event{Kind: EventWarning, Text: "(Stream interrupted by user)"})
	case !t.firstByte:
		res.Status = StatusEmpty
		r.Render(Event{Kind: EventInfo, Text: "(empty response)"})
	default:
		res.Status = StatusSuccess
	}

	text := strings.TrimSpace(t.visible.String())
	if utf8.RuneCountInString(text) > s.MaxMessageLength {
		r.Render(Event{Kind: EventWarning, Text: fmt.Sprintf("Response truncated at %d chars.", s.MaxMessageLength)})
		text = cutRunes(text, s.MaxMessageLength)
	}
	res.Text = text

	if res.Status == StatusSuccess || res.Status == StatusInterrupted {
		switch {
		case abnormalFinish(t.finish):
			r.Render(Event{Kind: EventWarning, Text: fmt.Sprintf("Response stopped early (reason: %s)", t.finish)})
		case t.finish == "length" || t.finish == "MAX_TOKENS":
			r.Render(Event{Kind: EventWarning, Text: fmt.Sprintf("Response hit the token limit (reason: %s)", t.finish)})
		}
	}

	commit := (res.Status == StatusSuccess || res.Status == StatusInterrupted) && text != ""
	if commit {
		s.History.Append(history.Message{Role: history.RoleAssistant, Content: text})
		res.Committed = true
		if res.Status == StatusInterrupted {
			r.Render(Event{Kind: EventInfo, Text: "(Partial response saved to history)"})
		}
	} else {
		if res.Status == StatusSuccess {
			r.Render(Event{Kind: EventWarning, Text: "(Response had no visible text)"})
		}
		if s.History.RollbackLastIfUser() {
			res.RolledBack = true
			r.Render(Event{Kind: EventWarning, Text: "(User message rolled back due to error)"})
		}
	}

	log.WithFields(log.Fields{
		"turn":       t.id,
		"status":     res.Status,
		"committed":  res.Committed,
		"rolledBack": res.RolledBack,
	}).Debug("turn settled")
	return res
}

// abnormalFinish reports finish signals that end a Gemini-style stream
// before the model is done.
func abnormalFinish(reason string) bool {
	switch reason {
	case wire.FinishSafety, "RECITATION", "OTHER":
		return true
	}
	return false
}
