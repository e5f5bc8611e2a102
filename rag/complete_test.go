package rag

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/a-h/caseassist/models"
	"github.com/google/go-cmp/cmp"
	"github.com/tmc/langchaingo/llms/openai"
)

func newAzureUpstream(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/gpt-4o/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range deltas {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
			w.(http.Flusher).Flush()
		}
		// Hold the response open until the client goes away.
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newAzureLLM(t *testing.T, baseURL string) *openai.LLM {
	t.Helper()
	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(baseURL),
		openai.WithToken("test-key"),
		openai.WithModel("gpt-4o"),
		openai.WithAPIVersion("2024-10-21"),
	)
	if err != nil {
		t.Fatalf("failed to create LLM: %v", err)
	}
	return llm
}

func streamReaders() int {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	return strings.Count(string(buf[:n]), "openaiclient.parseStreamingChatResponse")
}

func TestCompleterStreamStopReleasesAzureResponse(t *testing.T) {
	upstream := newAzureUpstream(t, "The ", "limit ")
	c := NewCompleter(newAzureLLM(t, upstream.URL), 10, 0)
	messages := []models.ChatMessage{{Role: models.ChatRoleUser, Content: "What is the limit?"}}

	for i := 0; i < 3; i++ {
		done := make(chan []string)
		go func() {
			var contents []string
			for chunk, err := range c.Stream(context.Background(), messages, nil) {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					break
				}
				contents = append(contents, chunk.Content)
				break
			}
			done <- contents
		}()
		select {
		case contents := <-done:
			if len(contents) != 1 || contents[0] != "The " {
				t.Errorf("expected the first chunk only, got %q", contents)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("expected the stream to return after the consumer stopped")
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for streamReaders() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected no response readers to remain, got %d", streamReaders())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCompleterStreamFromAzure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Six ", "years."} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer s.Close()
	c := NewCompleter(newAzureLLM(t, s.URL), 10, 0)

	var contents []string
	var complete bool
	for chunk, err := range c.Stream(context.Background(), []models.ChatMessage{{Role: models.ChatRoleUser, Content: "Limit?"}}, nil) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		contents = append(contents, chunk.Content)
		complete = chunk.IsComplete
	}
	expected := []string{"Six ", "Six years.", "Six years."}
	if diff := cmp.Diff(expected, contents); diff != "" {
		t.Error(diff)
	}
	if !complete {
		t.Error("expected the last chunk to be complete")
	}
}
