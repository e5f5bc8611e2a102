package rag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/a-h/caseassist/models"
	"github.com/a-h/caseassist/search"
	"github.com/tidwall/gjson"
)

const DefaultSystemPrompt = `You are a legal assistant.

Use the following sources to provide accurate, relevant information. Always cite your sources when providing information from documents. Be professional and precise in your responses.

Available Sources:
%s

If the sources don't contain relevant information, say so clearly and provide general guidance where appropriate.`

// NoSources replaces the context block when the search returned nothing.
const NoSources = "No sources were found for this question."

var ErrInvalidTemplate = errors.New("rag: system prompt template must contain exactly one %s, write %% for a literal percent sign")

// NewPrompt creates a prompt from a template. The template must contain a single %s,
// which is replaced with the sources. A literal percent sign is written as %%.
func NewPrompt(template string) (p Prompt, err error) {
	var verbs int
	for i := 0; i < len(template); i++ {
		if template[i] != '%' {
			continue
		}
		if i+1 >= len(template) {
			return p, ErrInvalidTemplate
		}
		i++
		switch template[i] {
		case '%':
		case 's':
			verbs++
		default:
			return p, ErrInvalidTemplate
		}
	}
	if verbs != 1 {
		return p, ErrInvalidTemplate
	}
	return Prompt{template: template}, nil
}

type Prompt struct {
	template string
}

// Assemble prepends a system message containing the documents to the conversation.
func (p Prompt) Assemble(conversation []models.ChatMessage, docs []search.Document) []models.ChatMessage {
	sources := Context(docs)
	if sources == "" {
		sources = NoSources
	}
	messages := make([]models.ChatMessage, 0, len(conversation)+1)
	messages = append(messages, models.ChatMessage{
		Role:    models.ChatRoleSystem,
		Content: fmt.Sprintf(p.template, sources),
	})
	return append(messages, conversation...)
}

// Context renders the documents as text for the LLM.
func Context(docs []search.Document) string {
	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Source ")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(" (Score: ")
		sb.WriteString(strconv.FormatFloat(doc.Score, 'f', -1, 64))
		sb.WriteString("):")
		for _, f := range doc.Fields {
			sb.WriteString("\n")
			sb.WriteString(f.Key)
			sb.WriteString(": ")
			sb.WriteString(renderValue(gjson.ParseBytes(f.Value)))
		}
	}
	return sb.String()
}

func renderValue(r gjson.Result) string {
	switch {
	case r.Type == gjson.String:
		return r.Str
	case r.Type == gjson.Null:
		return "null"
	case r.IsArray():
		values := r.Array()
		rendered := make([]string, len(values))
		for i, v := range values {
			rendered[i] = renderValue(v)
		}
		return strings.Join(rendered, ",")
	default:
		return r.Raw
	}
}
