package get

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/caseassist/models"
	"github.com/a-h/respond"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	testPrompt     = "Hello, can you help me?"
	testMaxTokens  = 10
	successMessage = "Azure OpenAI connection successful"
	emptyMessage   = "Azure OpenAI returned no choices"
)

func New(log *slog.Logger, llm llms.Model, searchConfigured bool) Handler {
	return Handler{
		log:              log,
		llm:              llm,
		searchConfigured: searchConfigured,
	}
}

// Handler checks that the LLM can be reached by asking for a very short completion.
type Handler struct {
	log              *slog.Logger
	llm              llms.Model
	searchConfigured bool
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, testPrompt),
	}
	resp, err := h.llm.GenerateContent(r.Context(), msgs, llms.WithMaxTokens(testMaxTokens))
	if errors.Is(err, openai.ErrEmptyResponse) || (err == nil && (resp == nil || len(resp.Choices) == 0)) {
		h.log.Warn("connection test returned no choices")
		respond.WithJSON(w, models.TestConnectionGetResponse{
			Success:          false,
			Message:          emptyMessage,
			SearchConfigured: h.searchConfigured,
		}, http.StatusOK)
		return
	}
	if err != nil {
		h.log.Error("connection test failed", slog.Any("error", err))
		respond.WithJSON(w, models.TestConnectionGetResponse{
			Success:          false,
			Error:            err.Error(),
			SearchConfigured: h.searchConfigured,
		}, http.StatusInternalServerError)
		return
	}
	respond.WithJSON(w, models.TestConnectionGetResponse{
		Success:          true,
		Message:          successMessage,
		SearchConfigured: h.searchConfigured,
	}, http.StatusOK)
}
