package rag

import (
	"context"
	"iter"
	"strings"

	"github.com/a-h/caseassist/models"
	"github.com/tmc/langchaingo/llms"
)

const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.3
)

func NewCompleter(llm llms.Model, maxTokens int, temperature float64) Completer {
	return Completer{
		llm:         llm,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

type Completer struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

// Stream sends the messages to the LLM and returns the response as it's generated.
//
// Each chunk contains the whole response so far and the sources. The final chunk
// has IsComplete set. If the LLM fails, the error is yielded and the sequence ends.
// Breaking out of the loop cancels the LLM call.
func (c Completer) Stream(ctx context.Context, messages []models.ChatMessage, sources []models.FormattedSource) iter.Seq2[models.StreamingChunk, error] {
	if sources == nil {
		sources = []models.FormattedSource{}
	}
	return func(yield func(models.StreamingChunk, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		var content strings.Builder
		var stopped bool
		// Returning an error from the streaming func leaves the openai client's
		// response reader blocked, so a stopped consumer cancels the request instead.
		f := func(ctx context.Context, delta []byte) error {
			if stopped || len(delta) == 0 {
				return nil
			}
			content.Write(delta)
			if !yield(models.StreamingChunk{Content: content.String(), Sources: sources}, nil) {
				stopped = true
				cancel()
			}
			return nil
		}
		_, err := c.llm.GenerateContent(ctx, toMessageContent(messages),
			llms.WithStreamingFunc(f),
			llms.WithMaxTokens(c.maxTokens),
			llms.WithTemperature(c.temperature),
		)
		if stopped {
			return
		}
		if err != nil {
			yield(models.StreamingChunk{}, err)
			return
		}
		yield(models.StreamingChunk{Content: content.String(), Sources: sources, IsComplete: true}, nil)
	}
}

var roleToMessageType = map[models.ChatRole]llms.ChatMessageType{
	models.ChatRoleSystem:    llms.ChatMessageTypeSystem,
	models.ChatRoleUser:      llms.ChatMessageTypeHuman,
	models.ChatRoleAssistant: llms.ChatMessageTypeAI,
}

func toMessageContent(messages []models.ChatMessage) []llms.MessageContent {
	mc := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		t, ok := roleToMessageType[m.Role]
		if !ok {
			t = llms.ChatMessageTypeGeneric
		}
		mc[i] = llms.TextParts(t, m.Content)
	}
	return mc
}
