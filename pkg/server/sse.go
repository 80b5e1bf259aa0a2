package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"lumen-hq/relay/pkg/oai"
)

// sseWriter streams chat completion chunks as server-sent events in the
// OpenAI wire format: one "data:" line per chunk, a blank line between
// events, and a literal [DONE] sentinel at the end.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Started reports whether any bytes have been written. Once true, errors
// can no longer be reported as an HTTP status.
func (s *sseWriter) Started() bool { return s.started }

func (s *sseWriter) Send(chunk oai.ChatCompletionChunk) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Done terminates the event stream. Safe to call only after at least one
// Send.
func (s *sseWriter) Done() {
	if !s.started {
		return
	}
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}
