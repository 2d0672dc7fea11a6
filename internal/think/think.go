// Package think separates inline <think>...</think> reasoning from the
// visible answer in a streamed response.
//
// The Splitter works incrementally: a tag may arrive split across any number
// of deltas. Text that could still be the start of a tag is held back until
// the next delta (or Close) decides it.
package think

import "strings"

// Kind classifies a span of streamed text.
type Kind int

const (
	Visible Kind = iota
	Thinking
	// Tag is the literal marker text, e.g. "<think>" or "</think>".
	Tag
)

func (k Kind) String() string {
	switch k {
	case Visible:
		return "visible"
	case Thinking:
		return "thinking"
	case Tag:
		return "tag"
	}
	return "unknown"
}

const (
	openTag  = "<think"
	closeTag = "</think"
)

// Span is a run of text of a single kind. Concatenating every span emitted
// for a turn reproduces the raw text exactly.
type Span struct {
	Kind Kind
	Text string
}

// Splitter is a two-state scanner over the text deltas of one turn.
type Splitter struct {
	inside  bool
	pending string
}

// Inside reports whether the scanner is currently inside a thinking block.
func (s *Splitter) Inside() bool { return s.inside }

// Write consumes the next delta and returns the spans it completed.
func (s *Splitter) Write(delta string) []Span {
	s.pending += delta
	return s.scan(false)
}

// Close flushes held-back text at end of stream. An unterminated opening
// tag classifies the remainder as thinking.
func (s *Splitter) Close() []Span {
	return s.scan(true)
}

func (s *Splitter) scan(final bool) []Span {
	var spans []Span
	emit := func(k Kind, text string) {
		if text != "" {
			spans = append(spans, Span{Kind: k, Text: text})
		}
	}

	for s.pending != "" {
		marker, kind := openTag, Visible
		if s.inside {
			marker, kind = closeTag, Thinking
		}

		idx := strings.Index(s.pending, marker)
		if idx < 0 {
			keep := 0
			if !final {
				keep = partialSuffix(s.pending, marker)
			}
			cut := len(s.pending) - keep
			emit(kind, s.pending[:cut])
			s.pending = s.pending[cut:]
			break
		}

		emit(kind, s.pending[:idx])
		rest := s.pending[idx+len(marker):]
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			if !final {
				s.pending = s.pending[idx:]
				break
			}
			emit(Tag, s.pending[idx:])
			s.pending = ""
			s.inside = !s.inside
			break
		}

		emit(Tag, s.pending[idx:idx+len(marker)+end+1])
		s.pending = rest[end+1:]
		s.inside = !s.inside
	}

	if final {
		s.pending = ""
	}
	return spans
}

// partialSuffix returns the length of the longest proper prefix of marker
// that text ends with.
func partialSuffix(text, marker string) int {
	for k := min(len(text), len(marker)-1); k > 0; k-- {
		if strings.HasSuffix(text, marker[:k]) {
			return k
		}
	}
	return 0
}
