package react

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyAnswer is returned by [FinalText] when a run produced no messages.
var ErrEmptyAnswer = errors.New("react: agent produced no messages")

// Content is the body of a [Message]: either [Text] or [Fragments].
type Content interface {
	isContent()
}

// Text is a message body delivered in one piece.
type Text string

// Fragments is a message body delivered as ordered pieces, as produced by a
// streaming completion.
type Fragments []string

func (Text) isContent()      {}
func (Fragments) isContent() {}

// String renders c as a single string. Fragments are concatenated in order
// with no separator; a nil Content renders as "".
func String(c Content) string {
	switch v := c.(type) {
	case Text:
		return string(v)
	case Fragments:
		return strings.Join(v, "")
	}
	return ""
}

// Message is one step of a run as seen by the caller.
type Message struct {
	// Role is one of the llm.Role* constants.
	Role    string
	Content Content
}

// Result is the outcome of [Agent.Run]. Messages holds every assistant and
// tool message the run produced, in order; the last one is the answer.
type Result struct {
	Messages  []Message
	ToolCalls int
	Rounds    int
}

// FinalText returns the text of the last message in r.
func FinalText(r *Result) (string, error) {
	if r == nil || len(r.Messages) == 0 {
		return "", ErrEmptyAnswer
	}
	last := r.Messages[len(r.Messages)-1]
	switch last.Content.(type) {
	case Text, Fragments:
		return String(last.Content), nil
	}
	return "", fmt.Errorf("react: unsupported message content %T", last.Content)
}
