package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"driver-dispatch/internal/general/identity"
)

// ----- Handler: GET /v1/session -----

func (handler *SessionHTTPHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)
	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.Status())
}

// ----- Handler: GET /v1/earnings -----

func (handler *SessionHTTPHandler) handleEarnings(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)

	if handler.dir == nil {
		handler.httpError(ctx, w, http.StatusServiceUnavailable, "driver API is not configured", nil)
		return
	}

	// bound the upstream call
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	earnings, err := handler.dir.Earnings(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			handler.httpError(ctx, w, http.StatusBadGateway, "driver API rejected the token", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadGateway, "failed to fetch earnings", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, earnings)
}
