package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-lessons/internal/api/http"
	auth "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/metrics"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
	"github.com/mind-engage/mindengage-lessons/internal/render"
	"github.com/mind-engage/mindengage-lessons/internal/session"
	"github.com/mind-engage/mindengage-lessons/internal/storage"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

const lessonJSON = `{
  "title": "Engaging a Student",
  "characters": {"Teacher": "calm, warm"},
  "script": [
    {"role": "Teacher", "dialogue": "Hello", "image": {"url": "1.png"}},
    {"role": "Teacher", "dialogue": "Question", "image": {"url": "2.png"},
     "breakpoint": {"question": "What now?", "options": [
        {"text": "Ask them", "isCorrect": true, "branchTarget": "option_A"},
        {"text": "Keep going"}]}},
    {"branch_options": [{"type": "option_A", "dialogue": [
        {"role": "Student", "dialogue": "I think so", "image": {"url": "a1.png"}},
        {"role": "Student", "dialogue": "Maybe", "image": {"url": "a2.png"}}]}]},
    {"role": "Teacher", "dialogue": "Wrap up"}
  ]
}`

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []render.Job
}

func (p *recordingPublisher) Publish(_ context.Context, jobs []render.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, jobs...)
	return nil
}

type env struct {
	t       *testing.T
	router  http.Handler
	authSvc *auth.AuthService
	pub     *recordingPublisher
	blobs   storage.BlobStore
	ready   error
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	e := &env{t: t, authSvc: auth.NewAuthService("test-secret"), pub: &recordingPublisher{}, blobs: blobs}

	lessons := lesson.NewSQLStore(conn)
	m := metrics.New()
	svc := session.NewService(lessons, session.NewInMemoryStore(), zap.NewNop(),
		session.WithEventLog(syncx.NewEventRepo(conn, "")), session.WithMetrics(m))

	e.router = api.NewRouter(api.Deps{
		Auth:        e.authSvc,
		DB:          conn,
		Lessons:     lessons,
		Sessions:    svc,
		Blobs:       blobs,
		Renders:     e.pub,
		Metrics:     m,
		Logger:      zap.NewNop(),
		Ready:       func(context.Context) error { return e.ready },
		LocalAuth:   true,
		GuestAuth:   true,
		DevLogin:    true,
		CORSOrigins: []string{"http://localhost:3000"},
		WSEnabled:   true,

		MaxMediaBytes: 64,
	})
	return e
}

func (e *env) token(sub, role string) string {
	tok, err := e.authSvc.IssueJWT(sub, role)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path, tok, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type created struct {
	ID       string `json:"id"`
	Version  int    `json:"version"`
	Segments int    `json:"segments"`
	Warnings []struct {
		Code string `json:"code"`
	} `json:"warnings"`
}

func (e *env) createLesson(tok string) created {
	rec := e.do(http.MethodPost, "/lessons", tok, lessonJSON)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[created](e.t, rec)
}

func TestHealthAndReady(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/readyz", "", "").Code)
	e.ready = errors.New("db down")
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodGet, "/readyz", "", "").Code)

	rec := e.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLessons_AuthoringLifecycle(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	bo := e.token("bo", rbac.RoleInstructor)
	learner := e.token("cy", rbac.RoleLearner)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/lessons", "", lessonJSON).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/lessons", learner, lessonJSON).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/lessons", ana, `{"script":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/lessons", ana, `{`).Code)

	c := e.createLesson(ana)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, c.Version)
	assert.Equal(t, 5, c.Segments)
	assert.Empty(t, c.Warnings)
	assert.Len(t, e.pub.jobs, 5)
	assert.Equal(t, "Engaging_a_Student_segment_1", e.pub.jobs[0].MediaName)
	assert.Equal(t, "calm, warm", e.pub.jobs[0].Lines[0].Voice)

	rec := e.do(http.MethodGet, "/lessons/"+c.ID, learner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	l := decode[lesson.Lesson](t, rec)
	assert.Equal(t, "ana", l.OwnerID)
	assert.Equal(t, "Engaging a Student", l.Title)

	rec = e.do(http.MethodGet, "/lessons?q=engaging", learner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]lesson.Summary](t, rec), 1)
	rec = e.do(http.MethodGet, "/lessons?owner=me", bo, "")
	assert.Empty(t, decode[[]lesson.Summary](t, rec))

	rec = e.do(http.MethodGet, "/lessons/"+c.ID+"/scenario?format=yaml", learner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "branch_options:")
	assert.Contains(t, rec.Body.String(), "branchTarget: option_A")

	rec = e.do(http.MethodGet, "/lessons/"+c.ID+"/segments", learner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	segs := decode[struct {
		Total int                          `json:"total"`
		Lists map[string][]json.RawMessage `json:"lists"`
		Media map[string]string            `json:"media"`
	}](t, rec)
	assert.Equal(t, 5, segs.Total)
	assert.Len(t, segs.Lists["main"], 3)
	assert.Len(t, segs.Lists["option_A"], 2)
	assert.Equal(t, "Engaging_a_Student_option_A_segment_2", segs.Media["option_A/2"])

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/lessons/nope", learner, "").Code)

	// only the owner (or an admin) edits or deletes
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, "/lessons/"+c.ID, bo, lessonJSON).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/lessons/"+c.ID, bo, "").Code)

	yamlBody := "title: Short\nscript:\n  - role: Teacher\n    dialogue: Hi\n"
	rec = e.do(http.MethodPut, "/lessons/"+c.ID, ana, yamlBody, "Content-Type", "application/yaml")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[created](t, rec)
	assert.Equal(t, 2, up.Version)
	assert.Equal(t, 1, up.Segments)

	admin := e.token("root", rbac.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/lessons/"+c.ID, admin, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/lessons/"+c.ID, learner, "").Code)
}

func TestLessons_ValidateAndFix(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	body := `{"title":"Loose","script":[
	  {"role":"T","dialogue":"before"},
	  {"branch_options":[{"type":"side","dialogue":[{"role":"S","dialogue":"x"}]}]}
	]}`
	rec := e.do(http.MethodPost, "/lessons", ana, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[created](t, rec)
	require.Len(t, c.Warnings, 1)
	assert.Equal(t, "missing_branch_breakpoint", c.Warnings[0].Code)

	rec = e.do(http.MethodPost, "/lessons/"+c.ID+"/validate?fix=true", ana, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Warnings []map[string]any `json:"warnings"`
		Fixed    *struct {
			Script []struct {
				Breakpoint *struct {
					Options []struct {
						BranchTarget string `json:"branchTarget"`
					} `json:"options"`
				} `json:"breakpoint"`
			} `json:"script"`
		} `json:"fixed"`
	}](t, rec)
	assert.Len(t, out.Warnings, 1)
	require.NotNil(t, out.Fixed)
	require.NotNil(t, out.Fixed.Script[0].Breakpoint)
	assert.Equal(t, "side", out.Fixed.Script[0].Breakpoint.Options[0].BranchTarget)

	learner := e.token("cy", rbac.RoleLearner)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/lessons/"+c.ID+"/validate", learner, "").Code)
}

func TestLessons_EditLineByPath(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	bo := e.token("bo", rbac.RoleInstructor)
	cy := e.token("cy", rbac.RoleLearner)
	c := e.createLesson(ana)
	branchLine := "/lessons/" + c.ID + "/lines/script.2.branch_options.0.dialogue.1"

	type lineResp struct {
		Path string `json:"path"`
		Line struct {
			Role     string `json:"role"`
			Dialogue string `json:"dialogue"`
			Image    *struct {
				URL string `json:"url"`
			} `json:"image"`
		} `json:"line"`
	}
	rec := e.do(http.MethodGet, branchLine, cy, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[lineResp](t, rec)
	assert.Equal(t, "script.2.branch_options.0.dialogue.1", got.Path)
	assert.Equal(t, "Maybe", got.Line.Dialogue)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, branchLine, cy, `{"dialogue":"x"}`).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, branchLine, bo, `{"dialogue":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, branchLine, ana, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, "/lessons/"+c.ID+"/lines/scene.1", ana, `{"dialogue":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPatch, "/lessons/"+c.ID+"/lines/script.99", ana, `{"dialogue":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/lessons/"+c.ID+"/lines/script.0.branch_options.0.dialogue.0", cy, "").Code)

	rec = e.do(http.MethodPatch, branchLine, ana, `{"dialogue":"Definitely"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[created](t, rec)
	assert.Equal(t, 2, up.Version)
	assert.Equal(t, c.Segments, up.Segments)

	got = decode[lineResp](t, e.do(http.MethodGet, branchLine, cy, ""))
	assert.Equal(t, "Definitely", got.Line.Dialogue)
	assert.Equal(t, "Student", got.Line.Role)
	require.NotNil(t, got.Line.Image)
	assert.Equal(t, "a2.png", got.Line.Image.URL)

	// without its image the second branch line joins the first segment
	rec = e.do(http.MethodPatch, branchLine, ana, `{"clear_image":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	up = decode[created](t, rec)
	assert.Equal(t, 3, up.Version)
	assert.Equal(t, c.Segments-1, up.Segments)

	rec = e.do(http.MethodPatch, "/lessons/"+c.ID+"/lines/script.3", ana, `{"role":"Narrator","image":{"url":"end.png"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[lineResp](t, e.do(http.MethodGet, "/lessons/"+c.ID+"/lines/script.3", cy, ""))
	assert.Equal(t, "Narrator", got.Line.Role)
	assert.Equal(t, "Wrap up", got.Line.Dialogue)
	require.NotNil(t, got.Line.Image)
	assert.Equal(t, "end.png", got.Line.Image.URL)
}

func TestLessons_RejectReusedBranchType(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	body := `{"title":"Twice","script":[
	  {"dialogue":"one","breakpoint":{"question":"Q","options":[{"text":"a","branchTarget":"option_A"}]}},
	  {"branch_options":[{"type":"option_A","dialogue":[{"role":"S","dialogue":"x"}]}]},
	  {"dialogue":"two","breakpoint":{"question":"Q","options":[{"text":"a","branchTarget":"option_A"}]}},
	  {"branch_options":[{"type":"option_A","dialogue":[{"role":"S","dialogue":"y"}]}]}
	]}`
	rec := e.do(http.MethodPost, "/lessons", ana, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "option_A")
}

type outcome struct {
	Session struct {
		ID        string `json:"id"`
		LearnerID string `json:"learner_id"`
	} `json:"session"`
	Request *struct {
		ListKey       string `json:"list_key"`
		SegmentNumber int    `json:"segment_number"`
	} `json:"request"`
	Breakpoint *struct {
		Question string `json:"question"`
	} `json:"breakpoint"`
	Ended   bool `json:"ended"`
	Ignored bool `json:"ignored"`
}

func TestSessions_PlayThroughBranch(t *testing.T) {
	e := newEnv(t)
	c := e.createLesson(e.token("ana", rbac.RoleInstructor))
	cy := e.token("cy", rbac.RoleLearner)

	rec := e.do(http.MethodPost, "/lessons/"+c.ID+"/sessions", cy, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[outcome](t, rec)
	id := out.Session.ID
	assert.Equal(t, "cy", out.Session.LearnerID)
	require.NotNil(t, out.Request)
	assert.Equal(t, 1, out.Request.SegmentNumber)

	out = decode[outcome](t, e.do(http.MethodPost, "/sessions/"+id+"/finished", cy, ""))
	assert.Equal(t, 2, out.Request.SegmentNumber)

	out = decode[outcome](t, e.do(http.MethodPost, "/sessions/"+id+"/finished", cy, ""))
	require.NotNil(t, out.Breakpoint)
	assert.Equal(t, "What now?", out.Breakpoint.Question)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/sessions/"+id+"/answer", cy, `{}`).Code)

	out = decode[outcome](t, e.do(http.MethodPost, "/sessions/"+id+"/answer", cy, `{"index":0}`))
	require.NotNil(t, out.Request)
	assert.Equal(t, "option_A", out.Request.ListKey)
	assert.Equal(t, 1, out.Request.SegmentNumber)

	out = decode[outcome](t, e.do(http.MethodPost, "/sessions/"+id+"/answer", cy, `{"index":0}`))
	assert.True(t, out.Ignored)

	rec = e.do(http.MethodGet, "/sessions/"+id+"/events", cy, "")
	require.Equal(t, http.StatusOK, rec.Code)
	evs := decode[[]syncx.Event](t, rec)
	require.NotEmpty(t, evs)
	assert.Equal(t, syncx.SessionStarted, evs[0].Type)

	out = decode[outcome](t, e.do(http.MethodPost, "/sessions/"+id+"/reset", cy, ""))
	assert.Equal(t, "main", out.Request.ListKey)
	assert.Equal(t, 1, out.Request.SegmentNumber)
}

func TestSessions_Ownership(t *testing.T) {
	e := newEnv(t)
	c := e.createLesson(e.token("ana", rbac.RoleInstructor))
	cy := e.token("cy", rbac.RoleLearner)
	dee := e.token("dee", rbac.RoleLearner)
	ana := e.token("ana", rbac.RoleInstructor)

	id := decode[outcome](t, e.do(http.MethodPost, "/lessons/"+c.ID+"/sessions", cy, "")).Session.ID

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/sessions/"+id, dee, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/sessions/"+id+"/finished", dee, "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/sessions/"+id, ana, "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/sessions/"+id+"/events", ana, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/sessions/"+id+"/finished", ana, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/sessions/missing", cy, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/lessons/missing/sessions", cy, "").Code)
}

func TestMedia_UploadAndRangeRead(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	cy := e.token("cy", rbac.RoleLearner)
	c := e.createLesson(ana)
	path := "/media/lessons/" + c.ID + "/option_A/2"

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, path, cy, "nope").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPut, "/media/lessons/missing/main/1", ana, "x").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, "/media/lessons/"+c.ID+"/main/0", ana, "x").Code)

	rec := e.do(http.MethodPut, path, ana, "0123456789")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, storage.SegmentKey(c.ID, "option_A", 2), decode[map[string]string](t, rec)["key"])

	rec = e.do(http.MethodGet, path, cy, "", "Range", "bytes=2-5")
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/media/lessons/"+c.ID+"/main/1", cy, "").Code)
}

func TestMedia_UploadLimit(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	c := e.createLesson(ana)
	path := "/media/lessons/" + c.ID + "/main/1"

	rec := e.do(http.MethodPut, path, ana, strings.Repeat("x", 65))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	_, _, err := e.blobs.Open(storage.SegmentKey(c.ID, "main", 1))
	assert.ErrorIs(t, err, storage.ErrNotFound, "partial upload discarded")

	assert.Equal(t, http.StatusCreated, e.do(http.MethodPut, path, ana, strings.Repeat("x", 64)).Code)
}

func TestLessons_DeleteRemovesMedia(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	keep := e.createLesson(ana)
	gone := e.createLesson(ana)
	for _, id := range []string{keep.ID, gone.ID} {
		require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/media/lessons/"+id+"/main/1", ana, "video").Code)
		require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/media/lessons/"+id+"/option_A/2", ana, "video").Code)
	}

	require.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/lessons/"+gone.ID, ana, "").Code)

	for _, key := range []string{storage.SegmentKey(gone.ID, "main", 1), storage.SegmentKey(gone.ID, "option_A", 2)} {
		_, _, err := e.blobs.Open(key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/media/lessons/"+keep.ID+"/option_A/2", ana, "").Code)
}

func TestUsers_BulkLoginAndPassword(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)

	rec := e.do(http.MethodPost, "/users/bulk", ana, `[
	  {"id":"u1","username":"lee","role":"learner","password":"first-pass"},
	  {"username":"kim","password":"kim-pass-1"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int{"inserted": 2, "updated": 0}, decode[map[string]int](t, rec))

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/users/bulk", ana, `[{"username":"x","role":"teacher","password":"p"}]`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/users/bulk", ana, `[{"username":"new-no-pass"}]`).Code)

	rec = e.do(http.MethodGet, "/users?role=learner", ana, "")
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]map[string]string](t, rec)
	require.Len(t, users, 2)
	assert.Equal(t, "kim", users[0]["username"])

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/users", e.token("cy", rbac.RoleLearner), "").Code)

	rec = e.do(http.MethodPost, "/auth/login", "", `{"username":"lee","password":"first-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[map[string]any](t, rec)["access_token"].(string)

	assert.Equal(t, http.StatusForbidden,
		e.do(http.MethodPost, "/users/me/password", tok, `{"old_password":"wrong","new_password":"second-pass"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.do(http.MethodPost, "/users/me/password", tok, `{"old_password":"first-pass","new_password":"short"}`).Code)
	assert.Equal(t, http.StatusNoContent,
		e.do(http.MethodPost, "/users/me/password", tok, `{"old_password":"first-pass","new_password":"second-pass"}`).Code)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/auth/login", "", `{"username":"lee","password":"first-pass"}`).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/auth/login", "", `{"username":"lee","password":"second-pass"}`).Code)
}

func TestUsers_StoredRoleOverridesToken(t *testing.T) {
	e := newEnv(t)
	ana := e.token("ana", rbac.RoleInstructor)
	rec := e.do(http.MethodPost, "/users/bulk", ana, `[{"id":"u9","username":"demoted","role":"learner","password":"pw-123456"}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	// u9 holds an instructor token but is a learner in the users table
	stale := e.token("u9", rbac.RoleInstructor)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/lessons", stale, lessonJSON).Code)
}

func TestGuestCanPlay(t *testing.T) {
	e := newEnv(t)
	c := e.createLesson(e.token("ana", rbac.RoleInstructor))

	rec := e.do(http.MethodPost, "/auth/guest", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[map[string]string](t, rec)["access_token"]

	rec = e.do(http.MethodPost, "/lessons/"+c.ID+"/sessions", tok, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/lessons", tok, lessonJSON).Code)
}
