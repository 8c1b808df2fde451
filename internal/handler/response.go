package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"profiledrive/internal/service"
)

type errorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
	EntryID           int64  `json:"entry_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError переводит ошибки сервиса в HTTP-статусы; инфраструктурные ошибки наружу не отдаются
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *service.PolicyDeniedError
	var stale *service.ArchiveStaleError

	switch {
	case errors.As(err, &denied):
		seconds := int64(math.Ceil(denied.Remaining.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error(), RetryAfterSeconds: seconds})
	case errors.As(err, &stale):
		writeJSON(w, http.StatusGone, errorResponse{Error: "archived version is no longer available", EntryID: stale.Entry.ID})
	case errors.Is(err, service.ErrNoArchiveAvailable),
		errors.Is(err, service.ErrSlotNotFound),
		errors.Is(err, service.ErrUploadNotFound),
		errors.Is(err, service.ErrArchiveEntryNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUploadExpired):
		writeMessage(w, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrConcurrentMutation),
		errors.Is(err, service.ErrUploadNotConfirmed),
		errors.Is(err, service.ErrUploadClosed),
		errors.Is(err, service.ErrArchiveNotStale):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidSubType),
		errors.Is(err, service.ErrInvalidKind),
		errors.Is(err, service.ErrUnsupportedOperation):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOwnerRequired):
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
