package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
	"github.com/mind-engage/mindengage-lessons/internal/render"
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/segment"
	"github.com/mind-engage/mindengage-lessons/internal/storage"
)

// permManageAnyLesson lets staff edit or delete lessons they do not own.
const permManageAnyLesson = "lesson:manage_any"

type saveLessonResponse struct {
	ID       string             `json:"id"`
	Version  int                `json:"version"`
	Segments int                `json:"segments"`
	Warnings []scenario.Warning `json:"warnings"`
}

// requestFormat reads YAML bodies when the client says so; JSON otherwise.
func requestFormat(r *http.Request) scenario.Format {
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return scenario.FormatYAML
	}
	return scenario.FormatJSON
}

func decodeScenario(w http.ResponseWriter, r *http.Request) (scenario.Scenario, bool) {
	sc, err := scenario.Decode(r.Body, requestFormat(r))
	if err != nil {
		http.Error(w, "bad scenario: "+err.Error(), http.StatusBadRequest)
		return scenario.Scenario{}, false
	}
	if err := scenario.Check(sc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return scenario.Scenario{}, false
	}
	return sc, true
}

// saveLesson stores l and queues rendering for every segment of the new
// version. A publish failure is logged; the lesson stays saved and can be
// re-rendered on the next edit.
func saveLesson(r *http.Request, store lesson.Store, pub render.Publisher, logger *zap.Logger, l lesson.Lesson) (saveLessonResponse, error) {
	saved, err := store.Put(r.Context(), l)
	if err != nil {
		return saveLessonResponse{}, err
	}
	m := segment.Build(saved.Scenario.Script)
	if pub != nil {
		jobs, err := render.Jobs(saved.ID, saved.Version, saved.Scenario, m)
		if err == nil {
			err = pub.Publish(r.Context(), jobs)
		}
		if err != nil {
			logger.Warn("render jobs not published", zap.String("lesson_id", saved.ID), zap.Error(err))
		}
	}
	warnings := scenario.Validate(saved.Scenario)
	if warnings == nil {
		warnings = []scenario.Warning{}
	}
	return saveLessonResponse{ID: saved.ID, Version: saved.Version, Segments: m.Total(), Warnings: warnings}, nil
}

// POST /lessons
func CreateLessonHandler(store lesson.Store, pub render.Publisher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := decodeScenario(w, r)
		if !ok {
			return
		}
		out, err := saveLesson(r, store, pub, logger, lesson.Lesson{
			OwnerID:  authmw.SubjectFromContext(r.Context()),
			Scenario: sc,
		})
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusCreated, out)
	}
}

// PUT /lessons/{id}
func UpdateLessonHandler(store lesson.Store, pub render.Publisher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := ownedLesson(w, r, store, logger)
		if !ok {
			return
		}
		sc, ok := decodeScenario(w, r)
		if !ok {
			return
		}
		l.Title = ""
		l.Scenario = sc
		out, err := saveLesson(r, store, pub, logger, l)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// GET /lessons?q=&owner=&limit=&offset=
func ListLessonsHandler(store lesson.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		owner := q.Get("owner")
		if owner == "me" {
			owner = authmw.SubjectFromContext(r.Context())
		}
		list, err := store.List(r.Context(), lesson.ListOpts{
			Q:       q.Get("q"),
			OwnerID: owner,
			Limit:   parseIntDefault(q.Get("limit"), 50),
			Offset:  parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /lessons/{id}
func GetLessonHandler(store lesson.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, l)
	}
}

// GET /lessons/{id}/scenario?format=yaml
func GetScenarioHandler(store lesson.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, logger, err)
			return
		}
		f := scenario.Format(r.URL.Query().Get("format"))
		if f == scenario.FormatYAML {
			w.Header().Set("Content-Type", "application/yaml")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		if err := scenario.Encode(w, l.Scenario, f); err != nil {
			logger.Error("encode scenario", zap.String("lesson_id", l.ID), zap.Error(err))
		}
	}
}

// DELETE /lessons/{id}
// Rendered media goes with the lesson. Leftover files are logged, not fatal.
func DeleteLessonHandler(store lesson.Store, blobs storage.BlobStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := ownedLesson(w, r, store, logger)
		if !ok {
			return
		}
		if err := store.Delete(r.Context(), l.ID); err != nil {
			respondError(w, logger, err)
			return
		}
		if blobs != nil {
			if err := blobs.DeletePrefix(storage.LessonPrefix(l.ID)); err != nil {
				logger.Warn("lesson media not removed", zap.String("lesson_id", l.ID), zap.Error(err))
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type segmentsResponse struct {
	LessonID string      `json:"lesson_id"`
	Version  int         `json:"version"`
	Total    int         `json:"total"`
	Lists    segment.Map `json:"lists"`
	// Media maps "<list>/<n>" to the rendered file name.
	Media map[string]string `json:"media"`
}

// GET /lessons/{id}/segments
func SegmentsHandler(store lesson.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, logger, err)
			return
		}
		m := segment.Build(l.Scenario.Script)
		media := make(map[string]string, m.Total())
		for _, key := range m.Keys() {
			for _, seg := range m[key] {
				media[key+"/"+itoa(seg.Number)] = segment.MediaName(l.Scenario.Title, key, seg.Number)
			}
		}
		respondJSON(w, http.StatusOK, segmentsResponse{
			LessonID: l.ID, Version: l.Version, Total: m.Total(), Lists: m, Media: media,
		})
	}
}

type validateResponse struct {
	Warnings []scenario.Warning `json:"warnings"`
	Fixed    *scenario.Scenario `json:"fixed,omitempty"`
}

// POST /lessons/{id}/validate?fix=true
//
// fix returns the branch-safe rewrite without storing it.
func ValidateLessonHandler(store lesson.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, logger, err)
			return
		}
		out := validateResponse{Warnings: scenario.Validate(l.Scenario)}
		if out.Warnings == nil {
			out.Warnings = []scenario.Warning{}
		}
		if r.URL.Query().Get("fix") == "true" {
			fixed := scenario.EnsureBranchSafety(l.Scenario)
			out.Fixed = &fixed
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// ownedLesson loads the {id} lesson and writes 403 unless the caller owns
// it or may manage any lesson.
func ownedLesson(w http.ResponseWriter, r *http.Request, store lesson.Store, logger *zap.Logger) (lesson.Lesson, bool) {
	l, err := store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, logger, err)
		return lesson.Lesson{}, false
	}
	sub := authmw.SubjectFromContext(r.Context())
	if (sub == "" || l.OwnerID != sub) && !rbac.Can(r.Context(), permManageAnyLesson) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return lesson.Lesson{}, false
	}
	return l, true
}
