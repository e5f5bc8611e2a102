// Package ragtest provides stand-ins for the search index and LLM.
package ragtest

import (
	"context"
	"strings"
	"sync"

	"github.com/a-h/caseassist/search"
	"github.com/tmc/langchaingo/llms"
)

// Searcher returns Docs, or Err if set.
type Searcher struct {
	Docs []search.Document
	Err  error

	m       sync.Mutex
	queries []string
	opts    []search.Options
}

func (s *Searcher) Search(ctx context.Context, query string, opts search.Options) ([]search.Document, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.queries = append(s.queries, query)
	s.opts = append(s.opts, opts)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Docs, nil
}

func (s *Searcher) Queries() []string {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *Searcher) Options() []search.Options {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]search.Options(nil), s.opts...)
}

// LLM streams Deltas to the streaming function.
//
// If Err is set, it's returned after FailAfter deltas have been sent.
// If Block is set, the LLM waits for the context to be done after sending Deltas.
type LLM struct {
	Deltas    []string
	Err       error
	FailAfter int
	Block     bool
	// NoChoices returns a response without any choices.
	NoChoices bool

	m        sync.Mutex
	calls    int
	messages [][]llms.MessageContent
	options  []llms.CallOptions
}

func (l *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	l.m.Lock()
	l.calls++
	l.messages = append(l.messages, messages)
	l.options = append(l.options, opts)
	l.m.Unlock()

	var sb strings.Builder
	for i, delta := range l.Deltas {
		if l.Err != nil && i == l.FailAfter {
			return nil, l.Err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sb.WriteString(delta)
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(delta)); err != nil {
				return nil, err
			}
		}
	}
	if l.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if l.Err != nil {
		return nil, l.Err
	}
	if l.NoChoices {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: sb.String()}},
	}, nil
}

func (l *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l, prompt, options...)
}

func (l *LLM) Calls() int {
	l.m.Lock()
	defer l.m.Unlock()
	return l.calls
}

// Messages returns the messages sent on each call.
func (l *LLM) Messages() [][]llms.MessageContent {
	l.m.Lock()
	defer l.m.Unlock()
	return append([][]llms.MessageContent(nil), l.messages...)
}

// Options returns the options used on each call.
func (l *LLM) Options() []llms.CallOptions {
	l.m.Lock()
	defer l.m.Unlock()
	return append([]llms.CallOptions(nil), l.options...)
}

// Text returns the text of a message.
func Text(mc llms.MessageContent) string {
	var sb strings.Builder
	for _, p := range mc.Parts {
		if tc, ok := p.(llms.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
