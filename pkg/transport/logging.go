package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/homebrain/pkg/api"
)

// Logging returns middleware that emits one structured log entry per turn
// with the op, thread, route, duration and outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next TurnHandler) TurnHandler {
		return TurnHandlerFunc(func(ctx context.Context, req *TurnRequest) (*api.TurnResult, error) {
			start := time.Now()

			res, err := next.HandleTurn(ctx, req)

			threadID := req.ThreadID
			if res != nil && res.ThreadID != "" {
				threadID = res.ThreadID
			}
			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("op", string(req.Op)),
				slog.String("thread_id", threadID),
				slog.Bool("stream", req.Streaming()),
				slog.Duration("duration", time.Since(start)),
			}
			if res != nil && res.Decision.Route != "" {
				attrs = append(attrs, slog.String("route", string(res.Decision.Route)))
			}
			if res != nil && res.Suspended() {
				attrs = append(attrs, slog.Bool("suspended", true))
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}

			return res, err
		})
	}
}
