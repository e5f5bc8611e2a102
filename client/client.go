package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/caseassist/models"
	"github.com/a-h/jsonapi"
)

// New creates a client. If token is not empty, it's sent as a bearer token.
func New(baseURL, token string) Client {
	return Client{
		baseURL: baseURL,
		token:   token,
	}
}

type Client struct {
	baseURL string
	token   string
}

// ErrStreamEnded is returned when the server closes the stream before the final chunk.
var ErrStreamEnded = errors.New("stream ended before the response was complete")

// StreamError is returned when the server reports that the LLM failed mid-stream.
type StreamError struct {
	Content string
	Message string
}

func (e StreamError) Error() string {
	return fmt.Sprintf("stream failed: %s", e.Message)
}

func (c Client) authorize(r *http.Request) {
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c Client) Health(ctx context.Context) (resp models.HealthGetResponse, err error) {
	err = c.get(ctx, &resp, "health")
	return resp, err
}

// TestConnection asks the server to check its connection to the LLM. A failed
// check is returned as a response with Success set to false, not as an error.
func (c Client) TestConnection(ctx context.Context) (resp models.TestConnectionGetResponse, err error) {
	err = c.get(ctx, &resp, "api", "test-connection")
	var ise jsonapi.InvalidStatusError
	if errors.As(err, &ise) && ise.Status == http.StatusInternalServerError {
		if jsonErr := json.Unmarshal([]byte(ise.Body), &resp); jsonErr == nil {
			return resp, nil
		}
	}
	return resp, err
}

func (c Client) get(ctx context.Context, v any, path ...string) (err error) {
	url, err := jsonapi.URL(c.baseURL).Path(path...).String()
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)
	res, err := jsonapi.Raw(httpReq)
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(body),
		}
	}
	if err = json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ChatCompletions streams the response to the conversation. f is called for each chunk,
// the last of which has IsComplete set.
func (c Client) ChatCompletions(ctx context.Context, request models.ChatCompletionsPostRequest, f func(ctx context.Context, chunk models.StreamingChunk) error) (err error) {
	url, err := jsonapi.URL(c.baseURL).Path("api", "chat", "completions").String()
	if err != nil {
		return err
	}
	buf, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)
	res, err := jsonapi.Raw(httpReq,
		jsonapi.WithRequestHeader("Content-Type", "application/json"),
		jsonapi.WithRequestHeader("Accept", "text/event-stream"))
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(body),
		}
	}
	return readEvents(ctx, res.Body, f)
}

func readEvents(ctx context.Context, r io.Reader, f func(ctx context.Context, chunk models.StreamingChunk) error) (err error) {
	scanner := bufio.NewScanner(r)
	// Every frame carries the whole response so far, plus the sources.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		var chunk models.StreamingChunk
		if err = json.Unmarshal([]byte(strings.TrimSpace(data)), &chunk); err != nil {
			return fmt.Errorf("failed to decode chunk: %w", err)
		}
		if chunk.Error != "" {
			return StreamError{Content: chunk.Content, Message: chunk.Error}
		}
		if err = f(ctx, chunk); err != nil {
			return fmt.Errorf("failed to process chunk: %w", err)
		}
		if chunk.IsComplete {
			return nil
		}
	}
	if err = scanner.Err(); err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return ErrStreamEnded
}
