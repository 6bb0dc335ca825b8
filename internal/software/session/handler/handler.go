package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"driver-dispatch/internal/general/jwt"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/general/metrics"
	"driver-dispatch/internal/general/websocket"
	"driver-dispatch/internal/ports"
	"driver-dispatch/internal/software/session/service"

	"github.com/gorilla/mux"
)

// SessionHTTPHandler exposes the dispatch session to a local console.
type SessionHTTPHandler struct {
	svc     ports.DispatchService
	dir     ports.DriverDirectory
	logger  *logger.Logger
	auth    *jwt.Manager
	metrics *metrics.Metrics
}

// NewSessionHTTPHandler wires the handler. dir, auth and m may be nil: earnings then answer 503,
// the API is unauthenticated and requests are not measured.
func NewSessionHTTPHandler(
	svc ports.DispatchService,
	dir ports.DriverDirectory,
	logger *logger.Logger,
	auth *jwt.Manager,
	m *metrics.Metrics,
) *SessionHTTPHandler {
	return &SessionHTTPHandler{svc: svc, dir: dir, logger: logger, auth: auth, metrics: m}
}

// Router builds the route table.
func (handler *SessionHTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	if handler.metrics != nil {
		r.Use(handler.metrics.Middleware)
		r.Handle("/metrics", handler.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", handler.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	if handler.auth != nil {
		v1.Use(jwt.AuthMiddleware(handler.auth, jwt.RoleConsole, jwt.RoleDriver))
	}
	v1.HandleFunc("/session", handler.handleSession).Methods(http.MethodGet)
	v1.HandleFunc("/earnings", handler.handleEarnings).Methods(http.MethodGet)
	v1.HandleFunc("/offer/accept", handler.command(handler.svc.Accept)).Methods(http.MethodPost)
	v1.HandleFunc("/offer/reject", handler.command(handler.svc.Reject)).Methods(http.MethodPost)
	v1.HandleFunc("/ride/start-pickup", handler.command(handler.svc.StartPickup)).Methods(http.MethodPost)
	v1.HandleFunc("/ride/pickup-complete", handler.command(handler.svc.PickupComplete)).Methods(http.MethodPost)
	v1.HandleFunc("/ride/start", handler.command(handler.svc.StartRide)).Methods(http.MethodPost)
	v1.HandleFunc("/ride/complete", handler.command(handler.svc.CompleteRide)).Methods(http.MethodPost)

	return r
}

// ----- general helpers -----

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoLiveOffer),
		errors.Is(err, service.ErrAlreadyAccepted),
		errors.Is(err, service.ErrRideInProgress),
		errors.Is(err, service.ErrNoActiveRide),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoSession),
		errors.Is(err, websocket.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// jsonResponse encodes data as the response body.
func (handler *SessionHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	buf := []byte("{}")
	if data != nil {
		var err error
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends {"error": msg}. Client errors are logged at WARN, server errors at ERROR.
func (handler *SessionHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	if status >= 500 && status != http.StatusServiceUnavailable {
		handler.logger.Error(ctx, "http_internal_error", msg, err, nil)
	} else {
		handler.logger.Warn(ctx, "request_failed", msg, map[string]any{"status": status})
	}

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *SessionHTTPHandler) withReqID(r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(r.Context(), reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
