package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/resumeai/resumeai-go/internal/apperr"
)

const maxBodyBytes = 1 << 20 // 1MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeJSON reads a JSON body into dst. It writes the error response itself
// and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

// errorWriter renders service errors. Internal errors are logged and only
// described to the client when exposeDetail is set.
type errorWriter struct {
	exposeDetail bool
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind != apperr.KindInternal {
		writeJSON(w, kind.HTTPStatus(), errorResponse(err.Error()))
		return
	}

	slog.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)

	body := errorResponse("internal server error")
	if e.exposeDetail {
		body["detail"] = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}
