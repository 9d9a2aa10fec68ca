package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/Golfwang123/CivicVoicev1/internal/ai"
	"github.com/Golfwang123/CivicVoicev1/internal/auth"
	"github.com/Golfwang123/CivicVoicev1/internal/logger"
	"github.com/Golfwang123/CivicVoicev1/internal/mailer"
	"github.com/Golfwang123/CivicVoicev1/internal/models"
	"github.com/Golfwang123/CivicVoicev1/internal/store"
)

const (
	anonymousActor = "Anonymous User"
	systemActor    = "System"
)

type Handler struct {
	Store     store.Store
	Sessions  *sessions.CookieStore
	Templates *template.Template
	Mailer    mailer.Dispatcher
}

func New(st store.Store, sessionStore *sessions.CookieStore, dispatcher mailer.Dispatcher) *Handler {
	tmpl := template.Must(template.ParseGlob("templates/*.html"))
	return &Handler{
		Store:     st,
		Sessions:  sessionStore,
		Templates: tmpl,
		Mailer:    dispatcher,
	}
}

// sessionUser returns the logged-in user's id and username, or nil when
// the visitor is anonymous.
func (h *Handler) sessionUser(r *http.Request) (*int, string) {
	session, _ := h.Sessions.Get(r, "session")
	userID, ok := session.Values["user_id"].(int)
	if !ok {
		return nil, ""
	}
	username, _ := session.Values["username"].(string)
	return &userID, username
}

// clientIP is the upvote dedup key: first X-Forwarded-For entry when the
// request came through a proxy, RemoteAddr host otherwise.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func htmxError(w http.ResponseWriter, target, message string) {
	w.Header().Set("HX-Retarget", target)
	w.Header().Set("HX-Reswap", "innerHTML")
	fmt.Fprintf(w, `<div class="text-red-600 text-sm">%s</div>`, template.HTMLEscapeString(message))
}

// actorLabel fills in the presentation-layer default for activity actors.
func actorLabel(a models.Activity) string {
	if a.ActorName != nil && *a.ActorName != "" {
		return *a.ActorName
	}
	if a.ActivityType == models.ActivityStatusChange {
		return systemActor
	}
	return anonymousActor
}

type activityView struct {
	ID           int    `json:"id"`
	ProjectID    int    `json:"project_id"`
	ActivityType string `json:"activity_type"`
	ActorName    string `json:"actor_name"`
	Description  string `json:"description"`
	CreatedAt    string `json:"created_at"`
}

func activityViews(activities []models.Activity) []activityView {
	views := make([]activityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, activityView{
			ID:           a.ID,
			ProjectID:    a.ProjectID,
			ActivityType: a.ActivityType,
			ActorName:    actorLabel(a),
			Description:  a.Description,
			CreatedAt:    a.CreatedAt.Format("Jan 2, 2006 15:04"),
		})
	}
	return views
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	userID, username := h.sessionUser(r)

	stats, err := h.Store.GetCommunityStats()
	if err != nil {
		stats = models.CommunityStats{}
	}
	activities, err := h.Store.GetRecentActivities(10)
	if err != nil {
		activities = nil
	}

	data := map[string]interface{}{
		"LoggedIn":   userID != nil,
		"Username":   username,
		"Stats":      stats,
		"Activities": activityViews(activities),
	}

	h.Templates.ExecuteTemplate(w, "index.html", data)
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.Templates.ExecuteTemplate(w, "register.html", nil)
}

func (h *Handler) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	confirmPassword := r.FormValue("confirm_password")

	if err := auth.ValidateUsername(username); err != nil {
		htmxError(w, "#error", err.Error())
		return
	}
	if email == "" {
		htmxError(w, "#error", "Email is required")
		return
	}
	if password != confirmPassword {
		htmxError(w, "#error", "Passwords do not match")
		return
	}
	if err := auth.ValidatePassword(password); err != nil {
		htmxError(w, "#error", err.Error())
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		htmxError(w, "#error", "Server error")
		return
	}

	user, err := h.Store.CreateUser(store.UserInput{
		Username: username,
		Password: hash,
		Email:    email,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			htmxError(w, "#error", "Username already taken")
		case errors.Is(err, store.ErrEmailTaken):
			htmxError(w, "#error", "Email already registered")
		default:
			htmxError(w, "#error", "Server error")
		}
		return
	}

	session, _ := h.Sessions.Get(r, "session")
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Values["role"] = user.Role
	session.Save(r, w)

	w.Header().Set("HX-Redirect", "/")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.Templates.ExecuteTemplate(w, "login.html", nil)
}

func (h *Handler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := h.Store.GetUserByUsername(username)
	if err != nil {
		htmxError(w, "#error", "Invalid username or password")
		return
	}

	if err := auth.CheckPassword(password, user.Password); err != nil {
		htmxError(w, "#error", "Invalid username or password")
		return
	}

	session, _ := h.Sessions.Get(r, "session")
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Values["role"] = user.Role
	session.Save(r, w)

	w.Header().Set("HX-Redirect", "/")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.Sessions.Get(r, "session")
	session.Options.MaxAge = -1
	session.Save(r, w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) SubmitPage(w http.ResponseWriter, r *http.Request) {
	userID, username := h.sessionUser(r)

	data := map[string]interface{}{
		"LoggedIn": userID != nil,
		"Username": username,
	}

	h.Templates.ExecuteTemplate(w, "submit.html", data)
}

func (h *Handler) SubmitProject(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.sessionUser(r)

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	issueType := r.FormValue("issue_type")
	location := strings.TrimSpace(r.FormValue("location"))
	latitude := strings.TrimSpace(r.FormValue("lat"))
	longitude := strings.TrimSpace(r.FormValue("lng"))
	urgency := r.FormValue("urgency_level")
	contactEmail := strings.TrimSpace(r.FormValue("contact_email"))

	if title == "" || description == "" || location == "" {
		htmxError(w, "#error", "Title, description, and location are required")
		return
	}
	if !models.ValidIssueType(issueType) {
		htmxError(w, "#error", "Please choose a valid issue type")
		return
	}
	if urgency == "" {
		urgency = models.UrgencyMedium
	}
	if !models.ValidUrgencyLevel(urgency) {
		htmxError(w, "#error", "Please choose a valid urgency level")
		return
	}

	draft := ai.GenerateEmailDraft(ai.DraftRequest{
		IssueType:    issueType,
		Location:     location,
		Description:  description,
		UrgencyLevel: urgency,
	})

	submission := models.ProjectSubmission{
		Title:          title,
		Description:    description,
		IssueType:      issueType,
		Location:       location,
		Latitude:       latitude,
		Longitude:      longitude,
		UrgencyLevel:   urgency,
		EmailTemplate:  draft.Body,
		EmailSubject:   draft.Subject,
		EmailRecipient: draft.Recipient,
		CreatedBy:      userID,
	}
	if contactEmail != "" {
		submission.ContactEmail = &contactEmail
	}

	project, err := h.Store.CreateProject(submission)
	if err != nil {
		htmxError(w, "#error", "Failed to create project")
		return
	}

	logger.Info("project submitted",
		zap.Int("project_id", project.ID),
		zap.String("issue_type", project.IssueType),
	)

	w.Header().Set("HX-Redirect", fmt.Sprintf("/projects/%d", project.ID))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ProjectsPage(w http.ResponseWriter, r *http.Request) {
	userID, username := h.sessionUser(r)

	var projects []models.Project
	var err error

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	issueType := r.URL.Query().Get("type")
	status := r.URL.Query().Get("status")

	switch {
	case query != "":
		projects, err = h.Store.SearchProjects(query)
	case issueType != "":
		projects, err = h.Store.GetProjectsByType(issueType)
	case status != "":
		projects, err = h.Store.GetProjectsByStatus(status)
	default:
		projects, err = h.Store.GetAllProjects()
	}
	if err != nil {
		projects = []models.Project{}
	}

	data := map[string]interface{}{
		"LoggedIn": userID != nil,
		"Username": username,
		"Projects": projects,
		"Query":    query,
		"Type":     issueType,
		"Status":   status,
	}

	h.Templates.ExecuteTemplate(w, "projects.html", data)
}

func (h *Handler) ProjectDetail(w http.ResponseWriter, r *http.Request) {
	userID, username := h.sessionUser(r)

	projectID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	project, err := h.Store.GetProjectByID(projectID)
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	comments, _ := h.Store.GetProjectComments(projectID)
	activities, _ := h.Store.GetProjectActivities(projectID)
	hasUpvoted, _ := h.Store.HasUserUpvoted(projectID, clientIP(r))

	data := map[string]interface{}{
		"LoggedIn":   userID != nil,
		"Username":   username,
		"Project":    project,
		"Comments":   comments,
		"Activities": activityViews(activities),
		"HasUpvoted": hasUpvoted,
	}

	h.Templates.ExecuteTemplate(w, "project_detail.html", data)
}

func (h *Handler) UpvoteSubmit(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.sessionUser(r)

	projectID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	ip := clientIP(r)

	hasUpvoted, _ := h.Store.HasUserUpvoted(projectID, ip)
	if hasUpvoted {
		htmxError(w, "#upvote-error", "You have already upvoted this issue")
		return
	}

	_, err = h.Store.CreateUpvote(store.UpvoteInput{
		ProjectID: projectID,
		UserID:    userID,
		IPAddress: ip,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "Project not found", http.StatusNotFound)
		case errors.Is(err, store.ErrDuplicateUpvote):
			htmxError(w, "#upvote-error", "You have already upvoted this issue")
		default:
			htmxError(w, "#upvote-error", "Failed to save upvote")
		}
		return
	}

	w.Header().Set("HX-Redirect", fmt.Sprintf("/projects/%d", projectID))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) EmailSubmit(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	project, err := h.Store.GetProjectByID(projectID)
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	senderEmail := strings.TrimSpace(r.FormValue("sender_email"))
	senderName := strings.TrimSpace(r.FormValue("sender_name"))
	customContent := strings.TrimSpace(r.FormValue("custom_content"))

	body := project.EmailTemplate
	if customContent != "" {
		body = customContent
	}

	err = h.Mailer.Send(mailer.Message{
		From:       senderEmail,
		To:         project.EmailRecipient,
		Subject:    project.EmailSubject,
		Body:       body,
		SenderName: senderName,
	})
	if err != nil {
		// No Email record on dispatch failure: the counters track
		// delivered mail only.
		logger.Warn("email dispatch failed",
			zap.Int("project_id", projectID),
			zap.Error(err),
		)
		htmxError(w, "#email-error", "Could not send the email, please try again later")
		return
	}

	input := store.EmailInput{ProjectID: projectID}
	if senderEmail != "" {
		input.SenderEmail = &senderEmail
	}
	if senderName != "" {
		input.SenderName = &senderName
	}
	if customContent != "" {
		input.CustomContent = &customContent
	}

	if _, err := h.Store.CreateEmail(input); err != nil {
		htmxError(w, "#email-error", "Failed to record the email")
		return
	}

	w.Header().Set("HX-Redirect", fmt.Sprintf("/projects/%d", projectID))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) CommentSubmit(w http.ResponseWriter, r *http.Request) {
	_, username := h.sessionUser(r)

	projectID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		htmxError(w, "#comment-error", "Comment cannot be empty")
		return
	}

	commenterName := strings.TrimSpace(r.FormValue("commenter_name"))
	if commenterName == "" {
		commenterName = username
	}
	if commenterName == "" {
		commenterName = anonymousActor
	}

	_, err = h.Store.CreateComment(store.CommentInput{
		ProjectID:     projectID,
		Text:          text,
		CommenterName: commenterName,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		htmxError(w, "#comment-error", "Failed to save comment")
		return
	}

	w.Header().Set("HX-Redirect", fmt.Sprintf("/projects/%d", projectID))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) MapPage(w http.ResponseWriter, r *http.Request) {
	userID, username := h.sessionUser(r)

	data := map[string]interface{}{
		"LoggedIn": userID != nil,
		"Username": username,
	}

	h.Templates.ExecuteTemplate(w, "map.html", data)
}

func (h *Handler) MapData(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.GetAllProjects()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode([]models.Project{})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(projects)
}

func (h *Handler) ProjectPopup(w http.ResponseWriter, r *http.Request) {
	projectID, _ := strconv.Atoi(chi.URLParam(r, "id"))

	project, err := h.Store.GetProjectByID(projectID)
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	statusText := map[string]string{
		"idea_submitted":          "Idea Submitted",
		"community_support":       "Community Support",
		"email_campaign_active":   "Email Campaign Active",
		"official_acknowledgment": "Official Acknowledgment",
		"planning_stage":          "Planning Stage",
		"implementation":          "Implementation",
		"completed":               "Completed",
	}

	html := fmt.Sprintf(`
		<div class="p-4 max-w-sm">
			<h3 class="font-bold text-lg mb-2">%s</h3>
			<p class="text-sm text-gray-600 mb-2"><span class="px-2 py-1 rounded bg-gray-200 text-gray-800">%s</span></p>
			<p class="text-sm mb-2">%s</p>
			<p class="text-sm mb-2"><strong>Upvotes:</strong> %d</p>
			<p class="text-sm mb-2"><strong>Emails sent:</strong> %d</p>
			<a href="/projects/%d" class="text-blue-600 hover:underline text-sm">Details →</a>
		</div>
	`, template.HTMLEscapeString(project.Title), statusText[project.ProgressStatus],
		template.HTMLEscapeString(truncateString(project.Description, 100)),
		project.Upvotes, project.EmailsSent, project.ID)

	w.Write([]byte(html))
}

func (h *Handler) StatsAPI(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.GetCommunityStats()
	if err != nil {
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *Handler) ActivityAPI(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	activities, err := h.Store.GetRecentActivities(limit)
	if err != nil {
		http.Error(w, "Failed to load activity", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(activityViews(activities))
}

func (h *Handler) AdminStatusUpdate(w http.ResponseWriter, r *http.Request) {
	_, username := h.sessionUser(r)

	projectID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	newStatus := r.FormValue("status")

	project, err := h.Store.AdvanceProjectStatus(projectID, newStatus, username)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "Project not found", http.StatusNotFound)
		case errors.Is(err, store.ErrInvalidStatus):
			htmxError(w, "#status-error", "Unknown status")
		case errors.Is(err, store.ErrStatusRegression):
			htmxError(w, "#status-error", "Status cannot move backwards")
		default:
			htmxError(w, "#status-error", "Failed to update status")
		}
		return
	}

	logger.Info("project status updated",
		zap.Int("project_id", project.ID),
		zap.String("status", project.ProgressStatus),
		zap.String("admin", username),
	)

	w.Header().Set("HX-Redirect", fmt.Sprintf("/projects/%d", project.ID))
	w.WriteHeader(http.StatusOK)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
