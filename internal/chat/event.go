package chat

import "time"

// EventKind tags a rendering event emitted during a turn.
type EventKind int

const (
	// EventWaiting is emitted before the request goes out; renderers show a placeholder.
	EventWaiting EventKind = iota
	// EventFirstByte replaces the placeholder with the response prefix. Emitted at most once.
	EventFirstByte
	EventVisible
	EventThinking
	// EventTag carries a literal <think> or </think> marker.
	EventTag
	EventToolCall
	EventWarning
	EventError
	EventInfo
	// EventEnd closes the response line.
	EventEnd
)

// Event is one unit of incremental output for the terminal.
type Event struct {
	Kind EventKind
	Text string
}

// Renderer receives the events of a turn in order.
type Renderer interface {
	Render(Event)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(Event)

func (f RendererFunc) Render(e Event) { f(e) }

// Status is the terminal state of a turn.
type Status int

const (
	StatusSuccess Status = iota
	StatusContentBlocked
	StatusError
	StatusEmpty
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusContentBlocked:
		return "blocked"
	case StatusError:
		return "error"
	case StatusEmpty:
		return "empty"
	case StatusInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// Result describes how a turn ended and what it did to history.
type Result struct {
	TurnID string
	Status Status
	// Text is the visible reply, thinking removed. It is what was committed
	// when Committed is set.
	Text     string
	Thinking string
	Finish   string
	// Message is the error or block description for failed turns.
	Message   string
	ToolCalls []string

	Committed  bool
	RolledBack bool

	FirstByte time.Duration
	Elapsed   time.Duration
}
