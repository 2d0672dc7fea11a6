package think

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type split struct {
	visible  string
	thinking string
	raw      string
}

func run(deltas ...string) (split, bool) {
	var s Splitter
	var spans []Span
	for _, d := range deltas {
		spans = append(spans, s.Write(d)...)
	}
	spans = append(spans, s.Close()...)

	var out split
	for _, sp := range spans {
		out.raw += sp.Text
		switch sp.Kind {
		case Visible:
			out.visible += sp.Text
		case Thinking:
			out.thinking += sp.Text
		}
	}
	return out, s.Inside()
}

func TestSplitter_TagSplitAcrossDeltas(t *testing.T) {
	got, inside := run("<thi", "nk>reasoning</think>answer")

	assert.Equal(t, "reasoning", got.thinking)
	assert.Equal(t, "answer", got.visible)
	assert.False(t, inside)
}

func TestSplitter_NoTags(t *testing.T) {
	got, _ := run("Hello", " world")
	assert.Equal(t, "Hello world", got.visible)
	assert.Empty(t, got.thinking)
}

func TestSplitter_TagWithAttribute(t *testing.T) {
	got, _ := run(`before<think mode="deep">inner</think>after`)

	assert.Equal(t, "beforeafter", got.visible)
	assert.Equal(t, "inner", got.thinking)
}

func TestSplitter_CloseTagSplit(t *testing.T) {
	got, _ := run("<think>a", "b</th", "ink", ">c")

	assert.Equal(t, "ab", got.thinking)
	assert.Equal(t, "c", got.visible)
}

func TestSplitter_UnterminatedBlockStaysThinking(t *testing.T) {
	got, inside := run("answer <think>still going")

	assert.True(t, inside)
	assert.Equal(t, "answer ", got.visible)
	assert.Equal(t, "still going", got.thinking)
}

func TestSplitter_UnterminatedOpenTagAtEnd(t *testing.T) {
	got, inside := run("text <think")

	assert.True(t, inside)
	assert.Equal(t, "text ", got.visible)
	assert.Equal(t, "text <think", got.raw)
}

func TestSplitter_PartialMarkerAtEndIsVisible(t *testing.T) {
	got, inside := run("a < b and c <th")

	assert.False(t, inside)
	assert.Equal(t, "a < b and c <th", got.visible)
}

func TestSplitter_HoldsBackPossibleTag(t *testing.T) {
	var s Splitter
	spans := s.Write("hello <thi")

	assert.Equal(t, []Span{{Kind: Visible, Text: "hello "}}, spans)
}

func TestSplitter_MultipleBlocks(t *testing.T) {
	got, _ := run("<think>one</think>A<think>two</think>B")

	assert.Equal(t, "onetwo", got.thinking)
	assert.Equal(t, "AB", got.visible)
}

func TestSplitter_EmitsTagSpans(t *testing.T) {
	var s Splitter
	spans := append(s.Write("x<think>y</think>z"), s.Close()...)

	assert.Equal(t, []Span{
		{Kind: Visible, Text: "x"},
		{Kind: Tag, Text: "<think>"},
		{Kind: Thinking, Text: "y"},
		{Kind: Tag, Text: "</think>"},
		{Kind: Visible, Text: "z"},
	}, spans)
}

// Every two- and three-way split of the input must reproduce the raw text
// and classify text exactly as the unsplit input does.
func TestSplitter_SplitInvariance(t *testing.T) {
	inputs := []string{
		"<think>reasoning</think>answer",
		"pre <think>a</think> mid <think>b</think> post",
		"no tags at all <t <th </think",
		"<think x=1>deep</think >tail",
		"answer then <think>never closed",
		"<thinking>variant</thinking>done",
	}
	for _, input := range inputs {
		whole, wholeInside := run(input)
		assert.Equal(t, input, whole.raw)

		for i := 0; i <= len(input); i++ {
			got, inside := run(input[:i], input[i:])
			assert.Equal(t, input, got.raw, "split at %d", i)
			assert.Equal(t, whole.visible, got.visible, "split at %d of %q", i, input)
			assert.Equal(t, whole.thinking, got.thinking, "split at %d of %q", i, input)
			assert.Equal(t, wholeInside, inside)

			for j := i; j <= len(input); j++ {
				got3, _ := run(input[:i], input[i:j], input[j:])
				assert.Equal(t, whole.visible, got3.visible, "split at %d,%d", i, j)
			}
		}
	}
}

func TestSplitter_ByteSplitDropsThinking(t *testing.T) {
	input := "x<think>hidden</think>y"
	var s Splitter
	var b strings.Builder
	for i := range len(input) {
		for _, sp := range s.Write(input[i : i+1]) {
			if sp.Kind == Visible {
				b.WriteString(sp.Text)
			}
		}
	}
	for _, sp := range s.Close() {
		if sp.Kind == Visible {
			b.WriteString(sp.Text)
		}
	}
	assert.Equal(t, "xy", b.String())
}
