package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Golfwang123/CivicVoicev1/internal/mailer"
	"github.com/Golfwang123/CivicVoicev1/internal/models"
	"github.com/Golfwang123/CivicVoicev1/internal/progress"
	"github.com/Golfwang123/CivicVoicev1/internal/store"
	"github.com/Golfwang123/CivicVoicev1/internal/store/memstore"
)

type failDispatcher struct{}

func (failDispatcher) Send(mailer.Message) error {
	return errors.New("relay unreachable")
}

type okDispatcher struct {
	sent []mailer.Message
}

func (d *okDispatcher) Send(msg mailer.Message) error {
	d.sent = append(d.sent, msg)
	return nil
}

func newTestHandler(st store.Store, dispatcher mailer.Dispatcher) *Handler {
	return &Handler{
		Store:     st,
		Sessions:  sessions.NewCookieStore([]byte("test-secret")),
		Templates: template.Must(template.New("index.html").Parse("ok")),
		Mailer:    dispatcher,
	}
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/submit", h.SubmitProject)
	r.Post("/projects/{id}/upvote", h.UpvoteSubmit)
	r.Post("/projects/{id}/email", h.EmailSubmit)
	r.Post("/projects/{id}/comments", h.CommentSubmit)
	r.Post("/admin/projects/{id}/status", h.AdminStatusUpdate)
	r.Get("/api/map/data", h.MapData)
	r.Get("/api/map/popup/{id}", h.ProjectPopup)
	r.Get("/api/stats", h.StatsAPI)
	r.Get("/api/activity", h.ActivityAPI)
	return r
}

func postForm(router http.Handler, path, ip string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = ip + ":54321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func submitProject(t *testing.T, router http.Handler) {
	t.Helper()
	w := postForm(router, "/submit", "9.9.9.9", url.Values{
		"title":       {"Pothole on Main"},
		"description": {"Deep pothole near the bus stop"},
		"issue_type":  {models.IssuePothole},
		"location":    {"Main St & 2nd Ave"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("HX-Redirect"))
}

func TestSubmitProject(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))

	submitProject(t, router)

	project, err := st.GetProjectByID(1)
	require.NoError(t, err)
	assert.Equal(t, "Pothole on Main", project.Title)
	assert.Equal(t, models.UrgencyMedium, project.UrgencyLevel, "urgency defaults to medium")
	assert.Equal(t, progress.StatusIdeaSubmitted, project.ProgressStatus)
	assert.NotEmpty(t, project.EmailTemplate, "fallback draft fills the template")
	assert.NotEmpty(t, project.EmailSubject)
	assert.NotEmpty(t, project.EmailRecipient)
}

func TestSubmitProjectValidation(t *testing.T) {
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))

	w := postForm(router, "/submit", "9.9.9.9", url.Values{
		"title":       {"Pothole"},
		"description": {"desc"},
		"issue_type":  {"tornado"},
		"location":    {"Main St"},
	})
	assert.Equal(t, "#error", w.Header().Get("HX-Retarget"))

	_, err := st.GetProjectByID(1)
	assert.ErrorIs(t, err, store.ErrNotFound, "invalid input must not create a project")
}

func TestUpvoteDedupByIP(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))
	submitProject(t, router)

	w := postForm(router, "/projects/1/upvote", "1.2.3.4", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("HX-Redirect"))

	w = postForm(router, "/projects/1/upvote", "1.2.3.4", nil)
	assert.Equal(t, "#upvote-error", w.Header().Get("HX-Retarget"))

	project, err := st.GetProjectByID(1)
	require.NoError(t, err)
	assert.Equal(t, 1, project.Upvotes, "second attempt from the same address must not count")

	w = postForm(router, "/projects/1/upvote", "5.6.7.8", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	project, err = st.GetProjectByID(1)
	require.NoError(t, err)
	assert.Equal(t, 2, project.Upvotes)
}

func TestUpvoteUsesForwardedForHeader(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))
	submitProject(t, router)

	req := httptest.NewRequest(http.MethodPost, "/projects/1/upvote", nil)
	req.RemoteAddr = "10.0.0.1:1111"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	voted, err := st.HasUserUpvoted(1, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, voted, "dedup key is the first forwarded address")
}

func TestUpvoteMissingProject(t *testing.T) {
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))

	w := postForm(router, "/projects/42/upvote", "1.2.3.4", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmailDispatchSuccessRecordsEmail(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	dispatcher := &okDispatcher{}
	router := newTestRouter(newTestHandler(st, dispatcher))
	submitProject(t, router)

	w := postForm(router, "/projects/1/email", "1.2.3.4", url.Values{
		"sender_email": {"resident@example.com"},
		"sender_name":  {"Jordan"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, "resident@example.com", dispatcher.sent[0].From)

	project, err := st.GetProjectByID(1)
	require.NoError(t, err)
	assert.Equal(t, 1, project.EmailsSent)

	emails, err := st.GetProjectEmails(1)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	require.NotNil(t, emails[0].SenderName)
	assert.Equal(t, "Jordan", *emails[0].SenderName)
}

func TestEmailDispatchFailureLeavesNoRecord(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, failDispatcher{}))
	submitProject(t, router)

	w := postForm(router, "/projects/1/email", "1.2.3.4", nil)
	assert.Equal(t, "#email-error", w.Header().Get("HX-Retarget"))

	project, err := st.GetProjectByID(1)
	require.NoError(t, err)
	assert.Equal(t, 0, project.EmailsSent, "failed dispatch must not increment the counter")

	emails, err := st.GetProjectEmails(1)
	require.NoError(t, err)
	assert.Empty(t, emails)

	stats, err := st.GetCommunityStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EmailsSent)
}

func TestCommentDefaultsToAnonymous(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))
	submitProject(t, router)

	w := postForm(router, "/projects/1/comments", "1.2.3.4", url.Values{
		"text": {"Please fix this soon"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	comments, err := st.GetProjectComments(1)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Anonymous User", comments[0].CommenterName)

	w = postForm(router, "/projects/1/comments", "1.2.3.4", url.Values{"text": {""}})
	assert.Equal(t, "#comment-error", w.Header().Get("HX-Retarget"))
}

func TestAdminStatusUpdate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))
	submitProject(t, router)

	w := postForm(router, "/admin/projects/1/status", "1.2.3.4", url.Values{
		"status": {progress.StatusOfficialAcknowledgment},
	})
	require.Equal(t, http.StatusOK, w.Code)

	project, err := st.GetProjectByID(1)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusOfficialAcknowledgment, project.ProgressStatus)

	w = postForm(router, "/admin/projects/1/status", "1.2.3.4", url.Values{
		"status": {progress.StatusIdeaSubmitted},
	})
	assert.Equal(t, "#status-error", w.Header().Get("HX-Retarget"))

	project, err = st.GetProjectByID(1)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusOfficialAcknowledgment, project.ProgressStatus)
}

func TestStatsAPIEmptyBoard(t *testing.T) {
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.CommunityStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.SuccessRate)
	assert.Equal(t, 0, stats.ActiveIssues)
}

func TestActivityAPI(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))
	submitProject(t, router)
	postForm(router, "/projects/1/upvote", "1.2.3.4", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/activity?limit=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var activities []activityView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activities))
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityUpvote, activities[0].ActivityType)
	assert.Equal(t, "Anonymous User", activities[0].ActorName, "anonymous actor defaults at the presentation layer")
}

func TestMapData(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))
	submitProject(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/map/data", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var projects []models.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "Pothole on Main", projects[0].Title)
}

func TestProjectPopup(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	st := memstore.New()
	router := newTestRouter(newTestHandler(st, &okDispatcher{}))
	submitProject(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/map/popup/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pothole on Main")
	assert.Contains(t, w.Body.String(), "Idea Submitted")
}
