package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
	"github.com/mind-engage/mindengage-lessons/internal/session"
)

const (
	permViewAnySession = "session:view-all"
	permPlayAnySession = "session:play-any"
)

// POST /lessons/{id}/sessions
func StartSessionHandler(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Start(r.Context(), chi.URLParam(r, "id"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusCreated, out)
	}
}

// GET /sessions/{id}
func GetSessionHandler(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := authorizeSession(r, svc, permViewAnySession)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, sess)
	}
}

// GET /sessions/{id}/events
func SessionEventsHandler(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := authorizeSession(r, svc, permViewAnySession)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		evs, err := svc.Events(r.Context(), sess.ID)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, evs)
	}
}

// POST /sessions/{id}/finished
func SegmentFinishedHandler(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return playHandler(svc, logger, func(r *http.Request, id string) (session.Outcome, error) {
		return svc.SegmentFinished(r.Context(), id)
	})
}

// POST /sessions/{id}/answer  {"index": n}
func AnswerHandler(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return playHandler(svc, logger, func(r *http.Request, id string) (session.Outcome, error) {
		var req struct {
			Index *int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
			return session.Outcome{}, errBadAnswer
		}
		return svc.AnswerBreakpoint(r.Context(), id, *req.Index)
	})
}

// POST /sessions/{id}/reset
func ResetSessionHandler(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return playHandler(svc, logger, func(r *http.Request, id string) (session.Outcome, error) {
		return svc.Reset(r.Context(), id)
	})
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

const errBadAnswer = badRequest(`expected {"index": n}`)

func playHandler(svc *session.Service, logger *zap.Logger, apply func(r *http.Request, id string) (session.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := authorizeSession(r, svc, permPlayAnySession)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		out, err := apply(r, sess.ID)
		var br badRequest
		if errors.As(err, &br) {
			http.Error(w, br.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// authorizeSession loads the {id} session and checks the caller started it
// or holds perm.
func authorizeSession(r *http.Request, svc *session.Service, perm string) (session.Session, error) {
	sess, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return session.Session{}, err
	}
	if err := sess.CheckOwner(authmw.SubjectFromContext(r.Context()), rbac.Can(r.Context(), perm)); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}
