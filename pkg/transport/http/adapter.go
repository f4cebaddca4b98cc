package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/debug"
	"github.com/rhuss/homebrain/pkg/observability"
	"github.com/rhuss/homebrain/pkg/transport"
)

// Adapter serves the chat API over HTTP.
// It routes requests to the turn handler and the checkpoint store and
// serializes responses.
type Adapter struct {
	handler  transport.TurnHandler
	store    transport.CheckpointStore
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize       int64
	HeartbeatInterval time.Duration
	ServiceName       string
	Validation        api.ValidationConfig
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:       1 << 20, // 1 MB
		HeartbeatInterval: 15 * time.Second,
		ServiceName:       "homebrain-backend",
		Validation:        api.DefaultValidationConfig(),
	}
}

// NewAdapter creates an HTTP adapter for runner and store. Middleware is
// applied to turns in the given order.
func NewAdapter(runner transport.TurnRunner, store transport.CheckpointStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	handler := transport.RunnerHandler(runner)
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}

	a := &Adapter{
		handler:  handler,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /api/chat", a.handleChat)
	a.mux.HandleFunc("POST /api/chat/stream", a.handleChatStream)
	a.mux.HandleFunc("POST /api/chat/resume", a.handleResume)
	a.mux.HandleFunc("DELETE /api/chat/stream/{thread_id}", a.handleCancelStream)
	a.mux.HandleFunc("GET /api/threads", a.handleListThreads)
	a.mux.HandleFunc("GET /api/threads/{id}", a.handleGetThread)
	a.mux.HandleFunc("DELETE /api/threads/{id}", a.handleDeleteThread)
	a.mux.HandleFunc("GET /api/health", a.handleHealth)
	a.mux.Handle("GET /metrics", promhttp.Handler())

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler records
// request metrics and propagates the X-Request-ID header.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// httpRequestIDMiddleware puts the client's X-Request-ID, or a fresh id
// when the header is absent, on the request context and echoes it in the
// response. The RequestID turn middleware keeps an id already present.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		next.ServeHTTP(&requestIDResponseWriter{ResponseWriter: w, r: r}, r)
	})
}

// requestIDResponseWriter injects the X-Request-ID header before the first
// write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleChat handles POST /api/chat.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if !a.decode(w, r, &req) {
		return
	}
	if apiErr := api.ValidateChatRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	res, err := a.handler.HandleTurn(r.Context(), &transport.TurnRequest{
		Op:       transport.OpRun,
		ThreadID: req.ThreadID,
		Text:     req.Message,
	})
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeTurnResult(w, res)
}

// handleChatStream handles POST /api/chat/stream.
func (a *Adapter) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if !a.decode(w, r, &req) {
		return
	}
	if apiErr := api.ValidateChatRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	// The id is fixed here so the stream can be cancelled by thread id
	// before the engine reports it.
	if req.ThreadID == "" {
		req.ThreadID = api.NewThreadID()
	}
	a.stream(w, r, &transport.TurnRequest{Op: transport.OpRun, ThreadID: req.ThreadID, Text: req.Message})
}

// handleResume handles POST /api/chat/resume.
func (a *Adapter) handleResume(w http.ResponseWriter, r *http.Request) {
	var req api.ResumeRequest
	if !a.decode(w, r, &req) {
		return
	}
	if apiErr := api.ValidateResumeRequest(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	turn := &transport.TurnRequest{Op: transport.OpResume, ThreadID: req.ThreadID, Text: req.Choice}
	if req.Stream {
		a.stream(w, r, turn)
		return
	}

	res, err := a.handler.HandleTurn(r.Context(), turn)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeTurnResult(w, res)
}

// stream runs a turn with an SSE writer, registering it for cancellation
// and sending heartbeats while it runs.
func (a *Adapter) stream(w http.ResponseWriter, r *http.Request, turn *transport.TurnRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sw := newSSEWriter(w)
	turn.Writer = sw

	a.inflight.Register(turn.ThreadID, cancel)
	defer a.inflight.Remove(turn.ThreadID)

	stop := a.heartbeat(ctx, sw, turn.ThreadID)
	_, err := a.handler.HandleTurn(ctx, turn)
	stop()

	if err != nil {
		a.writeStreamError(ctx, w, sw, turn.ThreadID, err)
	}
}

// heartbeat pings sw every HeartbeatInterval until the returned stop
// function is called. stop waits for the pinger to exit.
func (a *Adapter) heartbeat(ctx context.Context, sw *sseWriter, threadID string) (stop func()) {
	if a.config.HeartbeatInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(a.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := sw.Ping(); err != nil {
					debug.Log("stream", "heartbeat failed", "thread_id", threadID, "error", err)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// writeStreamError reports a turn error the engine did not put on the
// stream itself. Nothing is written once the caller is gone or a terminal
// event was sent.
func (a *Adapter) writeStreamError(ctx context.Context, w http.ResponseWriter, sw *sseWriter, threadID string, err error) {
	if ctx.Err() != nil || sw.completed() {
		return
	}
	if sw.started() {
		msg := transport.APIErrorFromError(err).Message
		if werr := sw.WriteEvent(ctx, api.ErrorEvent(threadID, msg)); werr != nil {
			debug.Log("stream", "error event not delivered", "thread_id", threadID, "error", werr)
		}
		return
	}
	transport.WriteError(w, err)
}

// handleCancelStream handles DELETE /api/chat/stream/{thread_id}.
func (a *Adapter) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if !a.inflight.Cancel(threadID) {
		transport.WriteAPIError(w, api.NewNotFoundError("no active stream for thread "+threadID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListThreads handles GET /api/threads.
func (a *Adapter) handleListThreads(w http.ResponseWriter, r *http.Request) {
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	list, err := a.store.List(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError("listing threads failed"))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetThread handles GET /api/threads/{id}.
func (a *Adapter) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateThreadID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed thread ID"))
		return
	}

	state, err := a.store.Load(r.Context(), id)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleDeleteThread handles DELETE /api/threads/{id}.
func (a *Adapter) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateThreadID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed thread ID"))
		return
	}

	if err := a.store.Delete(r.Context(), id); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /api/health.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.store.HealthCheck(r.Context()); err != nil {
		debug.Log("store", "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"service": a.config.ServiceName,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": a.config.ServiceName,
	})
}

// decode reads a JSON body into v. It writes the error response and
// returns false when the body is unusable.
func (a *Adapter) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// parseListOptions extracts limit and order from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{Order: q.Get("order")}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}
	return opts.Normalize(), nil
}

// writeTurnResult writes a completed turn with 200, or a suspended one
// with 202 and the clarification.
func writeTurnResult(w http.ResponseWriter, res *api.TurnResult) {
	if res.Suspended() {
		writeJSON(w, http.StatusAccepted, api.ChatResponse{
			ThreadID:      res.ThreadID,
			Clarification: res.Clarification,
		})
		return
	}
	writeJSON(w, http.StatusOK, api.ChatResponse{
		ThreadID: res.ThreadID,
		Reply:    res.Reply,
		Route:    res.Decision.Route,
		History:  res.History,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
