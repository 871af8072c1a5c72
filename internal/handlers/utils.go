package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lifelog/apiserver/internal/auth"
	"github.com/lifelog/apiserver/internal/logger"
	"github.com/lifelog/apiserver/internal/services"
	"github.com/lifelog/apiserver/internal/store"
)

const maxBodyBytes = 1 << 20

// Response is the envelope every API endpoint answers with. Error carries
// internal detail and is only filled in development mode.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// errorWriter maps service errors onto status codes. Unexpected errors are
// logged and reported as 500 with detail only when debug is set.
type errorWriter struct {
	debug bool
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, services.ErrExportsDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("request.failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		resp := Response{Success: false, Message: "internal server error"}
		if e.debug {
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
