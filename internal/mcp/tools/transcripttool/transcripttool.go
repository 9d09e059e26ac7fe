// Package transcripttool exposes the dictation transcript to the agent as
// built-in tools, so it can refer back to earlier parts of the conversation
// that are not in its own memory (for example notes dictated by a sender
// other than the human identity).
//
// Two tools are exported via [NewTools]:
//   - "search_transcript": case-insensitive substring search over entries.
//   - "recent_transcript": the last N entries.
package transcripttool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/murmur/internal/mcp/tools"
	"github.com/MrWong99/murmur/internal/transcript"
	"github.com/MrWong99/murmur/pkg/provider/llm"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Reader is the read side of the transcript log.
type Reader interface {
	Entries() []transcript.Entry
}

type searchArgs struct {
	Query  string `json:"query"`
	Sender string `json:"sender,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type recentArgs struct {
	Limit int `json:"limit,omitempty"`
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}

func decodeArgs(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	return json.Unmarshal([]byte(args), v)
}

// makeSearchHandler returns the newest matching entries, oldest first.
func makeSearchHandler(r Reader) func(context.Context, string) (string, error) {
	return func(_ context.Context, args string) (string, error) {
		var a searchArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", fmt.Errorf("transcript tool: search_transcript: failed to parse arguments: %w", err)
		}
		query := strings.ToLower(strings.TrimSpace(a.Query))
		if query == "" {
			return "", fmt.Errorf("transcript tool: search_transcript: query must not be empty")
		}
		limit := clampLimit(a.Limit)

		entries := r.Entries()
		var matches []transcript.Entry
		for i := len(entries) - 1; i >= 0 && len(matches) < limit; i-- {
			e := entries[i]
			if a.Sender != "" && e.Sender != a.Sender {
				continue
			}
			if strings.Contains(strings.ToLower(e.Text), query) {
				matches = append(matches, e)
			}
		}
		reverse(matches)
		return encode("search_transcript", matches)
	}
}

func makeRecentHandler(r Reader) func(context.Context, string) (string, error) {
	return func(_ context.Context, args string) (string, error) {
		var a recentArgs
		if err := decodeArgs(args, &a); err != nil {
			return "", fmt.Errorf("transcript tool: recent_transcript: failed to parse arguments: %w", err)
		}
		n := clampLimit(a.Limit)

		entries := r.Entries()
		if len(entries) > n {
			entries = entries[len(entries)-n:]
		}
		return encode("recent_transcript", entries)
	}
}

func reverse(entries []transcript.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

func encode(tool string, entries []transcript.Entry) (string, error) {
	if entries == nil {
		entries = []transcript.Entry{}
	}
	res, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("transcript tool: %s: failed to encode result: %w", tool, err)
	}
	return string(res), nil
}

// NewTools constructs the transcript tools backed by r.
func NewTools(r Reader) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "search_transcript",
				Description: "Search the dictation transcript for entries containing the query (case-insensitive). Returns the most recent matches in chronological order, each with sender, text and timestamp.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Text to look for in transcript entries.",
						},
						"sender": map[string]any{
							"type":        "string",
							"description": "Only return entries from this sender. Omit to search all senders.",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum number of entries to return. Defaults to 10.",
							"minimum":     1,
							"maximum":     maxLimit,
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: makeSearchHandler(r),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "recent_transcript",
				Description: "Return the most recent dictation transcript entries in chronological order.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum number of entries to return. Defaults to 10.",
							"minimum":     1,
							"maximum":     maxLimit,
						},
					},
				},
			},
			Handler: makeRecentHandler(r),
		},
	}
}
