package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/homebrain/pkg/api"
)

// Recovery returns middleware that converts a panic inside a turn into a
// server error. The server keeps accepting turns afterwards.
func Recovery() Middleware {
	return func(next TurnHandler) TurnHandler {
		return TurnHandlerFunc(func(ctx context.Context, req *TurnRequest) (res *api.TurnResult, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic during turn", "thread_id", req.ThreadID, "panic", r)
					res = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.HandleTurn(ctx, req)
		})
	}
}
