package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter streams server-sent events over an HTTP response. Construct one
// with NewSSEWriter, which sets the event-stream headers and sends an initial
// ping so clients know the connection is live.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for server-sent events. It fails if the underlying
// writer cannot be flushed incrementally.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	s := &SSEWriter{w: w, flusher: flusher}
	if _, err := w.Write([]byte(": ping\n\n")); err != nil {
		return nil, err
	}
	flusher.Flush()
	return s, nil
}

// Send writes one data event and flushes it to the client.
func (s *SSEWriter) Send(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendJSON marshals v and sends it as one data event.
func (s *SSEWriter) SendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(string(payload))
}
