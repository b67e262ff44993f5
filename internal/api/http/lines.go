package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/render"
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
)

// linePatch edits one line in place. Absent fields are left alone;
// clear_image drops the image.
type linePatch struct {
	Role       *string             `json:"role"`
	Dialogue   *string             `json:"dialogue"`
	Image      *scenario.ImageData `json:"image"`
	ClearImage bool                `json:"clear_image"`
}

func (p linePatch) empty() bool {
	return p.Role == nil && p.Dialogue == nil && p.Image == nil && !p.ClearImage
}

func (p linePatch) apply(l *scenario.DialogueLine) {
	if p.Role != nil {
		l.Role = *p.Role
	}
	if p.Dialogue != nil {
		l.Dialogue = *p.Dialogue
	}
	if p.ClearImage {
		l.Image = nil
	}
	if p.Image != nil {
		img := *p.Image
		l.Image = &img
	}
}

func lineAddress(w http.ResponseWriter, r *http.Request) (scenario.Address, bool) {
	addr, err := scenario.ParseAddress(chi.URLParam(r, "path"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return addr, true
}

// GET /lessons/{id}/lines/{path}
// path is "script.3" or "script.3.branch_options.1.dialogue.0".
func GetLineHandler(store lesson.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := lineAddress(w, r)
		if !ok {
			return
		}
		l, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, logger, err)
			return
		}
		line, err := l.Scenario.Resolve(addr)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"path": addr.String(), "line": line})
	}
}

// PATCH /lessons/{id}/lines/{path}
// Saves a new lesson version, so the edited segment is rendered again.
func PatchLineHandler(store lesson.Store, pub render.Publisher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := lineAddress(w, r)
		if !ok {
			return
		}
		var patch linePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || patch.empty() {
			http.Error(w, "patch needs role, dialogue, image or clear_image", http.StatusBadRequest)
			return
		}
		l, ok := ownedLesson(w, r, store, logger)
		if !ok {
			return
		}
		sc := l.Scenario.Clone()
		if err := sc.Update(addr, patch.apply); err != nil {
			respondError(w, logger, err)
			return
		}
		if err := scenario.Check(sc); err != nil {
			respondError(w, logger, err)
			return
		}
		l.Scenario = sc
		out, err := saveLesson(r, store, pub, logger, l)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		logger.Debug("line edited", zap.String("lesson_id", l.ID), zap.Stringer("path", addr))
		respondJSON(w, http.StatusOK, out)
	}
}
