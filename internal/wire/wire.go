// Package wire maps one decoded stream frame to a normalized Delta.
//
// Each provider family has its own extraction function; the provider
// profile decides which one applies. Extraction never fails: fields that
// are missing simply stay empty.
package wire

import (
	"github.com/tidwall/gjson"
)

// FinishSafety is synthesized when a Gemini candidate carries a blocked
// safety rating but no finish reason.
const FinishSafety = "SAFETY"

// FinishStop is synthesized for inference-server frames with done=true.
const FinishStop = "stop"

// Delta is the normalized content of one frame.
type Delta struct {
	Text     string
	Thinking string
	// Finish is the provider's finish reason, empty while generating.
	Finish string
	// Error is an API error message carried inside the stream.
	Error string
	// BlockReason is a Gemini prompt-level content block.
	BlockReason string
	// ToolCalls holds the raw JSON of function-call parts. They are shown
	// to the user and never executed.
	ToolCalls []string
}

// HasContent reports whether the frame produced text or thinking.
func (d Delta) HasContent() bool {
	return d.Text != "" || d.Thinking != ""
}

// OpenAI reads an OpenAI-compatible chat completion chunk.
func OpenAI(frame []byte) Delta {
	root := gjson.ParseBytes(frame)
	choice := root.Get("choices.0")

	d := Delta{
		Error:    errorMessage(root),
		Text:     choice.Get("delta.content").String(),
		Thinking: firstString(choice, "delta.reasoning", "delta.reasoning_content"),
		Finish:   choice.Get("finish_reason").String(),
	}
	if d.Text == "" {
		d.Text = choice.Get("text").String()
	}
	return d
}

// Ollama reads a bare JSON line from an Ollama-style inference server.
func Ollama(frame []byte) Delta {
	root := gjson.ParseBytes(frame)

	d := Delta{
		Error:    errorMessage(root),
		Text:     root.Get("message.content").String(),
		Thinking: root.Get("message.thinking").String(),
	}
	if root.Get("done").Type == gjson.True {
		d.Finish = FinishStop
	}
	return d
}

// Gemini reads a streamGenerateContent response. Function-call parts are
// collected only when tools is set.
func Gemini(frame []byte, tools bool) Delta {
	root := gjson.ParseBytes(frame)
	candidate := root.Get("candidates.0")
	parts := candidate.Get("content.parts")

	d := Delta{
		Error:       errorMessage(root),
		Text:        parts.Get("0.text").String(),
		Finish:      candidate.Get("finishReason").String(),
		BlockReason: root.Get("promptFeedback.blockReason").String(),
	}

	if d.Finish == "" || d.Finish == "null" {
		d.Finish = ""
		for _, rating := range candidate.Get("safetyRatings").Array() {
			if rating.Get("blocked").Bool() {
				d.Finish = FinishSafety
				break
			}
		}
	}

	if tools {
		for _, part := range parts.Array() {
			if part.Get("functionCall").Exists() {
				d.ToolCalls = append(d.ToolCalls, part.Raw)
			}
		}
	}
	return d
}

// errorMessage returns the first non-empty of error.message, error (when a
// string) and detail.
func errorMessage(root gjson.Result) string {
	e := root.Get("error")
	switch {
	case e.IsObject():
		if msg := e.Get("message"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
		return e.Raw
	case e.Type == gjson.String && e.String() != "":
		return e.String()
	}
	// Only a string detail is a message. Validation errors carry an array of
	// field problems there, which is not treated as a stream error.
	if detail := root.Get("detail"); detail.Type == gjson.String {
		return detail.String()
	}
	return ""
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := r.Get(p).String(); s != "" {
			return s
		}
	}
	return ""
}
