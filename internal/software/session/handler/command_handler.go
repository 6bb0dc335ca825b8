package handler

import (
	"context"
	"net/http"
	"time"
)

// ----- Handlers: POST /v1/offer/{accept,reject}, POST /v1/ride/{start-pickup,pickup-complete,start,complete} -----

// command adapts a session command to HTTP. The response is the session status after the command.
func (handler *SessionHTTPHandler) command(run func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := handler.withReqID(r)

		// bound the emit
		cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := run(cmdCtx); err != nil {
			handler.httpError(ctx, w, statusFor(err), err.Error(), err)
			return
		}

		handler.logger.Info(ctx, "console_command", "Console command applied",
			map[string]any{"path": r.URL.Path})
		handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.Status())
	}
}
