package handler

import (
	"net/http"
)

// ----- Handler: GET /health -----

func (handler *SessionHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		Status string `json:"status"`
	}
	handler.jsonResponse(r.Context(), w, http.StatusOK, resp{Status: "ok"})
}
