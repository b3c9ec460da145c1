package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/alexjbarnes/scout-sync/internal/errors"
	"github.com/alexjbarnes/scout-sync/internal/session"
)

// maxRequestBytes caps control API request bodies.
const maxRequestBytes = 64 * 1024

type fileRequest struct {
	Path string `json:"path"`
}

type destinationRequest struct {
	PantryID string `json:"pantry_id"`
}

type encodingRequest struct {
	B64 *bool `json:"b64"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleStatus returns the GET /api/status handler.
func HandleStatus(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		writeJSON(w, http.StatusOK, sess.State())
	}
}

// HandleFile returns the PUT /api/file handler.
func HandleFile(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileRequest
		if !decodePut(w, r, &req) {
			return
		}

		if err := sess.SetFile(req.Path); err != nil {
			writeCommandError(w, logger, "set file", err)
			return
		}

		writeJSON(w, http.StatusOK, sess.State())
	}
}

// HandleDestination returns the PUT /api/destination handler.
func HandleDestination(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req destinationRequest
		if !decodePut(w, r, &req) {
			return
		}

		if err := sess.SetDestination(req.PantryID); err != nil {
			writeCommandError(w, logger, "set destination", err)
			return
		}

		writeJSON(w, http.StatusOK, sess.State())
	}
}

// HandleEncoding returns the PUT /api/encoding handler. The b64 field is
// required.
func HandleEncoding(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req encodingRequest
		if !decodePut(w, r, &req) {
			return
		}

		if req.B64 == nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "b64 is required"})
			return
		}

		if err := sess.SetEncoding(*req.B64); err != nil {
			writeCommandError(w, logger, "set encoding", err)
			return
		}

		writeJSON(w, http.StatusOK, sess.State())
	}
}

func decodePut(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}

	return true
}

func writeCommandError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if errors.Is(err, apperrors.ErrInvalidSetting) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	logger.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
