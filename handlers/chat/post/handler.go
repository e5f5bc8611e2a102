package post

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/caseassist/metrics"
	"github.com/a-h/caseassist/middleware"
	"github.com/a-h/caseassist/models"
	"github.com/a-h/caseassist/rag"
	"github.com/a-h/caseassist/sse"
	"github.com/a-h/respond"
)

func New(log *slog.Logger, retriever rag.Retriever, prompt rag.Prompt, completer rag.Completer, timeout time.Duration, m *metrics.Metrics) Handler {
	return Handler{
		log:       log,
		retriever: retriever,
		prompt:    prompt,
		completer: completer,
		timeout:   timeout,
		metrics:   m,
	}
}

type Handler struct {
	log       *slog.Logger
	retriever rag.Retriever
	prompt    rag.Prompt
	completer rag.Completer
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// MaxBodyBytes is the largest request body accepted.
const MaxBodyBytes = 100 << 10

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.ChatCompletionsPostRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req)
	if err != nil {
		h.log.Info("failed to decode body", slog.Any("error", err))
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respond.WithJSON(w, models.ErrorResponse{Error: "Request body too large", Message: err.Error()}, http.StatusRequestEntityTooLarge)
			return
		}
		respond.WithJSON(w, decodeError(err), http.StatusBadRequest)
		return
	}
	if err = req.Validate(); err != nil {
		h.log.Info("invalid request", slog.Any("error", err))
		respond.WithJSON(w, validationError(err), http.StatusBadRequest)
		return
	}

	log := h.log.With(slog.String("requestId", middleware.GetRequestID(r)))
	if req.CaseNumber != "" {
		log = log.With(slog.String("caseNumber", req.CaseNumber))
	}

	docs := h.retriever.Retrieve(r.Context(), rag.LatestUserQuery(req.Messages))
	if err = r.Context().Err(); err != nil {
		log.Info("client disconnected before generating content", slog.Any("error", err))
		h.metrics.CountCompletion(metrics.OutcomeClientDisconnect)
		return
	}
	sources := rag.FormatSources(docs)
	messages := h.prompt.Assemble(req.Messages, docs)
	log.Info("generating content", slog.Int("messages", len(req.Messages)), slog.Int("sources", len(sources)))

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	closed := h.metrics.StreamOpened()
	outcome := h.stream(ctx, log, w, messages, sources)
	closed(outcome)
}

func (h Handler) stream(ctx context.Context, log *slog.Logger, w http.ResponseWriter, messages []models.ChatMessage, sources []models.FormattedSource) (outcome metrics.Outcome) {
	start := time.Now()
	s := sse.NewWriter(w)
	var last models.StreamingChunk
	for chunk, err := range h.completer.Stream(ctx, messages, sources) {
		if err != nil {
			if !s.Started() {
				log.Error("failed to generate content", slog.Any("error", err))
				respond.WithJSON(w, models.ErrorResponse{Error: "Internal server error", Message: err.Error()}, http.StatusInternalServerError)
				return metrics.OutcomeUpstreamError
			}
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Info("client disconnected during stream", slog.Any("error", err))
				return metrics.OutcomeClientDisconnect
			}
			log.Error("stream failed", slog.Int("contentLength", len(last.Content)), slog.Any("error", err))
			final := models.StreamingChunk{
				Content:    last.Content,
				Sources:    sources,
				IsComplete: true,
				Error:      err.Error(),
			}
			if err = s.Write(final); err != nil {
				log.Info("failed to write error frame", slog.Any("error", err))
			}
			return metrics.OutcomeStreamError
		}
		if !s.Started() {
			h.metrics.ObserveFirstChunk(time.Since(start))
		}
		if err = s.Write(chunk); err != nil {
			log.Info("client disconnected during stream", slog.Any("error", err))
			return metrics.OutcomeClientDisconnect
		}
		last = chunk
	}
	log.Info("stream complete", slog.Int("contentLength", len(last.Content)), slog.Duration("duration", time.Since(start)))
	return metrics.OutcomeOK
}

func decodeError(err error) models.ErrorResponse {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) && ute.Field == "messages" {
		return models.ErrorResponse{Error: models.ErrMessagesRequired.Error(), Message: err.Error()}
	}
	return models.ErrorResponse{Error: "Invalid request body", Message: err.Error()}
}

func validationError(err error) models.ErrorResponse {
	if errors.Is(err, models.ErrMessagesRequired) {
		return models.ErrorResponse{Error: err.Error()}
	}
	return models.ErrorResponse{Error: "Invalid message", Message: err.Error()}
}
