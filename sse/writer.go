// Package sse writes Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w}
}

// Writer writes JSON values as SSE data frames. Headers are sent with the
// first frame, so an error response can still be written until then.
type Writer struct {
	w       http.ResponseWriter
	started bool
}

// Started returns true once the first frame has been written.
func (s *Writer) Started() bool {
	return s.started
}

// Write sends v as a single data frame and flushes it to the client.
func (s *Writer) Write(v any) (err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: failed to marshal event: %w", err)
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err = fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: failed to write event: %w", err)
	}
	if flusher, canFlush := s.w.(http.Flusher); canFlush {
		flusher.Flush()
	}
	return nil
}
