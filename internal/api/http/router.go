package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/metrics"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
	"github.com/mind-engage/mindengage-lessons/internal/render"
	"github.com/mind-engage/mindengage-lessons/internal/session"
	"github.com/mind-engage/mindengage-lessons/internal/storage"
)

// Deps are the collaborators the HTTP surface is built from. DB backs the
// users table; Metrics and Ready may be nil.
type Deps struct {
	Auth     *authmw.AuthService
	DB       *sql.DB
	Lessons  lesson.Store
	Sessions *session.Service
	Blobs    storage.BlobStore
	Renders  render.Publisher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Ready    func(ctx context.Context) error

	LocalAuth bool
	GuestAuth bool
	// DevLogin accepts username==password logins and trusts token roles
	// for users missing from the users table.
	DevLogin       bool
	CORSOrigins    []string
	WSEnabled      bool
	RequestTimeout time.Duration
	MaxMediaBytes  int64
}

func NewRouter(d Deps) chi.Router {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.MaxMediaBytes <= 0 {
		d.MaxMediaBytes = 512 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Range"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				log.Warn("not ready", zap.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	if d.LocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.DB, d.DevLogin, log))
	}
	if d.GuestAuth && d.DB != nil {
		r.Post("/auth/guest", authmw.GuestLoginHandler(d.Auth, d.DB, log))
	}

	authn := []func(http.Handler) http.Handler{authmw.JWTMiddleware(d.Auth)}
	if d.DB != nil {
		authn = append(authn, authmw.AttachRoleFromDB(d.DB, d.DevLogin, log))
	}

	// The player socket outlives any request timeout.
	if d.WSEnabled {
		r.With(authn...).With(rbac.Require("session:play")).
			Get("/sessions/{id}/ws", SessionSocketHandler(d.Sessions, d.CORSOrigins, log))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(authn...)
		pr.Use(middleware.Timeout(d.RequestTimeout))

		pr.Route("/lessons", func(lr chi.Router) {
			lr.With(rbac.Require("lesson:create")).Post("/", CreateLessonHandler(d.Lessons, d.Renders, log))
			lr.With(rbac.Require("lesson:view")).Get("/", ListLessonsHandler(d.Lessons, log))
			lr.With(rbac.Require("lesson:view")).Get("/{id}", GetLessonHandler(d.Lessons, log))
			lr.With(rbac.Require("lesson:create")).Put("/{id}", UpdateLessonHandler(d.Lessons, d.Renders, log))
			lr.With(rbac.Require("lesson:delete_own")).Delete("/{id}", DeleteLessonHandler(d.Lessons, d.Blobs, log))
			lr.With(rbac.Require("lesson:view")).Get("/{id}/lines/{path}", GetLineHandler(d.Lessons, log))
			lr.With(rbac.Require("lesson:create")).Patch("/{id}/lines/{path}", PatchLineHandler(d.Lessons, d.Renders, log))
			lr.With(rbac.Require("lesson:view")).Get("/{id}/scenario", GetScenarioHandler(d.Lessons, log))
			lr.With(rbac.Require("lesson:view")).Get("/{id}/segments", SegmentsHandler(d.Lessons, log))
			lr.With(rbac.Require("lesson:validate")).Post("/{id}/validate", ValidateLessonHandler(d.Lessons, log))
			lr.With(rbac.Require("session:start")).Post("/{id}/sessions", StartSessionHandler(d.Sessions, log))
		})

		viewSession := rbac.RequireAny("session:view-own", "session:view-all")
		pr.With(viewSession).Get("/sessions/{id}", GetSessionHandler(d.Sessions, log))
		pr.With(viewSession).Get("/sessions/{id}/events", SessionEventsHandler(d.Sessions, log))
		pr.With(rbac.Require("session:play")).Post("/sessions/{id}/finished", SegmentFinishedHandler(d.Sessions, log))
		pr.With(rbac.Require("session:play")).Post("/sessions/{id}/answer", AnswerHandler(d.Sessions, log))
		pr.With(rbac.Require("session:play")).Post("/sessions/{id}/reset", ResetSessionHandler(d.Sessions, log))

		if d.Blobs != nil {
			pr.Route("/media", func(mr chi.Router) {
				mr.Use(rbac.Require("media:view"))
				MountMedia(mr, d.Blobs, d.Lessons, d.MaxMediaBytes, log, rbac.Require("media:upload"))
			})
		}

		if d.DB != nil {
			pr.With(rbac.Require("users:bulk_upsert")).Post("/users/bulk", BulkUpsertUsersHandler(d.DB, log))
			pr.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.DB, log))
			pr.With(rbac.Require("user:change_password")).Post("/users/me/password", ChangePasswordHandler(d.DB, log))
		}
	})
	return r
}

// requestLogger logs one line per request at Info, or Warn for 5xx.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusInternalServerError {
				log.Warn("request", fields...)
				return
			}
			log.Info("request", fields...)
		})
	}
}
