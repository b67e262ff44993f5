package http

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/storage"
)

// MountMedia serves rendered segment media under
// /lessons/{id}/{list}/{n}. Uploads take either a raw body or a multipart
// "file" field, up to maxBytes.
func MountMedia(r chi.Router, bs storage.BlobStore, lessons lesson.Store, maxBytes int64, logger *zap.Logger, upload func(http.Handler) http.Handler) {
	r.With(upload).Put("/lessons/{id}/{list}/{n}", func(w http.ResponseWriter, r *http.Request) {
		key, ok := mediaKey(w, r)
		if !ok {
			return
		}
		if _, err := lessons.Get(r.Context(), chi.URLParam(r, "id")); err != nil {
			respondError(w, logger, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		var body io.Reader = r.Body
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				if tooLarge(err) {
					http.Error(w, "media too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			body = f
		}
		stored, err := bs.Put(key, body)
		if err != nil {
			if tooLarge(err) {
				http.Error(w, "media too large", http.StatusRequestEntityTooLarge)
				return
			}
			respondError(w, logger, err)
			return
		}
		logger.Info("segment media stored", zap.String("key", stored))
		respondJSON(w, http.StatusCreated, map[string]string{"key": stored})
	})

	r.Get("/lessons/{id}/{list}/{n}", func(w http.ResponseWriter, r *http.Request) {
		key, ok := mediaKey(w, r)
		if !ok {
			return
		}
		rc, info, err := bs.Open(key)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, path.Base(key), info.ModTime, rc)
	})
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func mediaKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	list := chi.URLParam(r, "list")
	if err != nil || n < 1 || list == "" || strings.ContainsAny(list, `/\`) || list == ".." {
		http.Error(w, "bad segment address", http.StatusBadRequest)
		return "", false
	}
	return storage.SegmentKey(chi.URLParam(r, "id"), list, n), true
}
