package models

import (
	"errors"
	"fmt"
)

type ChatCompletionsPostRequest struct {
	Messages []ChatMessage `json:"messages"`
	// CaseNumber of the case being discussed, if any.
	CaseNumber string `json:"caseNumber,omitempty"`
}

var ErrMessagesRequired = errors.New("Messages array is required")

// Validate returns an error if the request can't be sent to the LLM.
// A nil messages field means it was missing or null; an empty array is allowed.
func (r ChatCompletionsPostRequest) Validate() error {
	if r.Messages == nil {
		return ErrMessagesRequired
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
	}
	return nil
}

type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

func (r ChatRole) Valid() bool {
	switch r {
	case ChatRoleSystem, ChatRoleUser, ChatRoleAssistant:
		return true
	}
	return false
}

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// FormattedSource is a search result, cleaned up for display.
type FormattedSource struct {
	Title string `json:"title"`
	// Content is the document fields, as indented JSON.
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

// StreamingChunk is the payload of each server-sent event frame.
type StreamingChunk struct {
	// Content is everything generated so far, not just the latest delta.
	Content string            `json:"content"`
	Sources []FormattedSource `json:"sources"`
	// IsComplete is set on the final frame only.
	IsComplete bool `json:"isComplete"`
	// Error is set on the final frame if the LLM stream failed after the
	// first frame was sent.
	Error string `json:"error,omitempty"`
}
