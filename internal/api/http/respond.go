package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/session"
	"github.com/mind-engage/mindengage-lessons/internal/storage"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps package sentinels to status codes. Anything unknown is
// logged and reported as 500 without detail.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, lesson.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, scenario.ErrBadAddress):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, scenario.ErrInvalid),
		errors.Is(err, storage.ErrBadKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
