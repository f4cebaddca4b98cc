package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/transport"
)

// writerState tracks the state of an SSE event writer.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // Headers committed, events flowing
	writerCompleted                    // Terminal event sent
)

// errWriterCompleted is returned for writes after the terminal event.
var errWriterCompleted = errors.New("cannot write event: stream is completed")

// sseWriter implements transport.EventWriter for Server-Sent Events.
// Each event is one frame:
//
//	data: {json}\n
//	\n
//
// Heartbeats are comment frames (": ping"). Headers are committed by the
// first write, so a turn that fails before producing output can still be
// answered with a plain JSON error.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

var _ transport.EventWriter = (*sseWriter)(nil)

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// WriteEvent sends a single event. After a terminal event (done, error,
// clarification) further writes fail.
func (s *sseWriter) WriteEvent(_ context.Context, event api.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errWriterCompleted
	}
	s.commitHeaders()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if event.IsTerminal() {
		s.state = writerCompleted
	}
	return nil
}

// Ping writes a heartbeat comment frame. It is a no-op once the stream is
// completed.
func (s *sseWriter) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return nil
	}
	s.commitHeaders()
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Flush ensures buffered data is sent to the client.
func (s *sseWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rc.Flush()
}

// started reports whether headers were committed.
func (s *sseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}

// completed reports whether a terminal event was sent.
func (s *sseWriter) completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerCompleted
}

// commitHeaders must be called with mu held.
func (s *sseWriter) commitHeaders() {
	if s.state != writerIdle {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.state = writerStreaming
}
