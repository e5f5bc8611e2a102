package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/a-h/caseassist/metrics"
	"github.com/a-h/caseassist/models"
	"github.com/a-h/caseassist/search"
)

type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Document, error)
}

// NewRetriever creates a Retriever. If searcher is nil, retrieval is disabled
// and every call returns no documents.
func NewRetriever(log *slog.Logger, searcher Searcher, top int, m *metrics.Metrics) Retriever {
	return Retriever{
		log:      log,
		searcher: searcher,
		top:      top,
		metrics:  m,
	}
}

type Retriever struct {
	log      *slog.Logger
	searcher Searcher
	top      int
	metrics  *metrics.Metrics
}

func (r Retriever) Configured() bool {
	return r.searcher != nil
}

// Retrieve finds documents relevant to the query. Errors are logged and
// result in no documents, so that the chat can continue without context.
func (r Retriever) Retrieve(ctx context.Context, query string) []search.Document {
	if r.searcher == nil {
		return nil
	}
	r.log.Debug("searching", slog.String("query", query))
	start := time.Now()
	docs, err := r.searcher.Search(ctx, query, search.Options{
		Top:  r.top,
		Mode: search.ModeAny,
	})
	r.metrics.ObserveSearch(time.Since(start), len(docs), err)
	if err != nil {
		r.log.Error("search failed, continuing without sources", slog.Any("error", err))
		return nil
	}
	r.log.Info("search complete", slog.Int("results", len(docs)))
	return docs
}

// LatestUserQuery returns the content of the last user message.
func LatestUserQuery(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.ChatRoleUser {
			return messages[i].Content
		}
	}
	return ""
}
