// Package memstore is the in-memory engagement ledger. It is the
// authoritative implementation of store.Store: one mutex guards all six
// collections, so every engagement mutation (row, counter, status,
// activity) is observed as a single unit.
package memstore

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Golfwang123/CivicVoicev1/internal/models"
	"github.com/Golfwang123/CivicVoicev1/internal/progress"
	"github.com/Golfwang123/CivicVoicev1/internal/store"
)

type upvoteKey struct {
	projectID int
	ipAddress string
}

type Store struct {
	mu sync.Mutex

	users      map[int]models.User
	projects   map[int]models.Project
	upvotes    map[int]models.Upvote
	emails     map[int]models.Email
	activities map[int]models.Activity
	comments   map[int]models.Comment

	upvoted map[upvoteKey]bool

	nextUserID     int
	nextProjectID  int
	nextUpvoteID   int
	nextEmailID    int
	nextActivityID int
	nextCommentID  int
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      map[int]models.User{},
		projects:   map[int]models.Project{},
		upvotes:    map[int]models.Upvote{},
		emails:     map[int]models.Email{},
		activities: map[int]models.Activity{},
		comments:   map[int]models.Comment{},
		upvoted:    map[upvoteKey]bool{},

		nextUserID:     1,
		nextProjectID:  1,
		nextUpvoteID:   1,
		nextEmailID:    1,
		nextActivityID: 1,
		nextCommentID:  1,
	}
}

func (s *Store) CreateUser(in store.UserInput) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, in.Username) {
			return nil, store.ErrUsernameTaken
		}
		if u.Email == in.Email {
			return nil, store.ErrEmailTaken
		}
	}

	role := in.Role
	if role == "" {
		role = "citizen"
	}

	user := models.User{
		ID:        s.nextUserID,
		Username:  in.Username,
		Password:  in.Password,
		Email:     in.Email,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.nextUserID++
	s.users[user.ID] = user

	return &user, nil
}

func (s *Store) GetUserByID(id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := 1; id < s.nextUserID; id++ {
		if user, ok := s.users[id]; ok && strings.EqualFold(user.Username, username) {
			return &user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProject(sub models.ProjectSubmission) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	urgency := sub.UrgencyLevel
	if urgency == "" {
		urgency = models.UrgencyMedium
	}

	project := models.Project{
		ID:             s.nextProjectID,
		Title:          sub.Title,
		Description:    sub.Description,
		IssueType:      sub.IssueType,
		Location:       sub.Location,
		Latitude:       sub.Latitude,
		Longitude:      sub.Longitude,
		UrgencyLevel:   urgency,
		ContactEmail:   sub.ContactEmail,
		EmailTemplate:  sub.EmailTemplate,
		EmailSubject:   sub.EmailSubject,
		EmailRecipient: sub.EmailRecipient,
		Upvotes:        0,
		EmailsSent:     0,
		ProgressStatus: progress.StatusIdeaSubmitted,
		CreatedAt:      time.Now(),
		CreatedBy:      sub.CreatedBy,
	}
	s.nextProjectID++
	s.projects[project.ID] = project

	s.recordActivity(project.ID, models.ActivityProjectCreated,
		s.actorForUser(sub.CreatedBy), "New issue reported: "+project.Title)

	return &project, nil
}

func (s *Store) GetProjectByID(id int) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &project, nil
}

func (s *Store) GetAllProjects() ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedProjects(func(models.Project) bool { return true }), nil
}

func (s *Store) GetProjectsByType(issueType string) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedProjects(func(p models.Project) bool {
		return p.IssueType == issueType
	}), nil
}

func (s *Store) GetProjectsByStatus(status string) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedProjects(func(p models.Project) bool {
		return p.ProgressStatus == status
	}), nil
}

func (s *Store) SearchProjects(query string) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	return s.sortedProjects(func(p models.Project) bool {
		return strings.Contains(strings.ToLower(p.Title), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			strings.Contains(strings.ToLower(p.Location), q)
	}), nil
}

// sortedProjects returns matching projects ordered by upvotes descending.
// Candidates are gathered in id order so ties keep insertion order.
// Callers must hold the lock.
func (s *Store) sortedProjects(match func(models.Project) bool) []models.Project {
	var projects []models.Project
	for id := 1; id < s.nextProjectID; id++ {
		if p, ok := s.projects[id]; ok && match(p) {
			projects = append(projects, p)
		}
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Upvotes > projects[j].Upvotes
	})
	return projects
}

func (s *Store) CreateUpvote(in store.UpvoteInput) (*models.Upvote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[in.ProjectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.upvoted[upvoteKey{in.ProjectID, in.IPAddress}] {
		return nil, store.ErrDuplicateUpvote
	}

	upvote := models.Upvote{
		ID:        s.nextUpvoteID,
		ProjectID: in.ProjectID,
		UserID:    in.UserID,
		IPAddress: in.IPAddress,
		CreatedAt: time.Now(),
	}
	s.nextUpvoteID++
	s.upvotes[upvote.ID] = upvote
	s.upvoted[upvoteKey{in.ProjectID, in.IPAddress}] = true

	project.Upvotes++
	s.projects[project.ID] = project

	s.recordActivity(project.ID, models.ActivityUpvote,
		s.actorForUser(in.UserID), "Upvoted \""+project.Title+"\"")
	s.reevaluateStatus(project.ID)

	return &upvote, nil
}

func (s *Store) HasUserUpvoted(projectID int, ipAddress string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upvoted[upvoteKey{projectID, ipAddress}], nil
}

func (s *Store) GetProjectUpvotes(projectID int) ([]models.Upvote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var upvotes []models.Upvote
	for id := 1; id < s.nextUpvoteID; id++ {
		if u, ok := s.upvotes[id]; ok && u.ProjectID == projectID {
			upvotes = append(upvotes, u)
		}
	}
	return upvotes, nil
}

func (s *Store) CreateEmail(in store.EmailInput) (*models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[in.ProjectID]
	if !ok {
		return nil, store.ErrNotFound
	}

	email := models.Email{
		ID:            s.nextEmailID,
		ProjectID:     in.ProjectID,
		SenderEmail:   in.SenderEmail,
		SenderName:    in.SenderName,
		CustomContent: in.CustomContent,
		SentAt:        time.Now(),
	}
	s.nextEmailID++
	s.emails[email.ID] = email

	project.EmailsSent++
	s.projects[project.ID] = project

	s.recordActivity(project.ID, models.ActivityEmailSent,
		in.SenderName, "Email sent about \""+project.Title+"\"")
	s.reevaluateStatus(project.ID)

	return &email, nil
}

func (s *Store) GetProjectEmails(projectID int) ([]models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var emails []models.Email
	for id := 1; id < s.nextEmailID; id++ {
		if e, ok := s.emails[id]; ok && e.ProjectID == projectID {
			emails = append(emails, e)
		}
	}
	return emails, nil
}

func (s *Store) CreateComment(in store.CommentInput) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[in.ProjectID]
	if !ok {
		return nil, store.ErrNotFound
	}

	comment := models.Comment{
		ID:            s.nextCommentID,
		ProjectID:     in.ProjectID,
		Text:          in.Text,
		CommenterName: in.CommenterName,
		CreatedAt:     time.Now(),
	}
	s.nextCommentID++
	s.comments[comment.ID] = comment

	actor := in.CommenterName
	s.recordActivity(project.ID, models.ActivityCommentAdded,
		&actor, "Commented on \""+project.Title+"\"")

	return &comment, nil
}

func (s *Store) GetProjectComments(projectID int) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var comments []models.Comment
	for id := 1; id < s.nextCommentID; id++ {
		if c, ok := s.comments[id]; ok && c.ProjectID == projectID {
			comments = append(comments, c)
		}
	}
	return comments, nil
}

func (s *Store) RecordActivity(projectID int, activityType string, actorName *string, description string) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return nil, store.ErrNotFound
	}
	s.recordActivity(projectID, activityType, actorName, description)
	activity := s.activities[s.nextActivityID-1]
	return &activity, nil
}

func (s *Store) GetRecentActivities(limit int) ([]models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var activities []models.Activity
	for id := s.nextActivityID - 1; id >= 1 && len(activities) < limit; id-- {
		if a, ok := s.activities[id]; ok {
			activities = append(activities, a)
		}
	}
	return activities, nil
}

func (s *Store) GetProjectActivities(projectID int) ([]models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var activities []models.Activity
	for id := s.nextActivityID - 1; id >= 1; id-- {
		if a, ok := s.activities[id]; ok && a.ProjectID == projectID {
			activities = append(activities, a)
		}
	}
	return activities, nil
}

func (s *Store) GetCommunityStats() (models.CommunityStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.CommunityStats{
		EmailsSent: len(s.emails),
	}
	total := len(s.projects)
	for _, p := range s.projects {
		if p.ProgressStatus == progress.StatusCompleted {
			stats.IssuesResolved++
		} else {
			stats.ActiveIssues++
		}
	}
	if total > 0 {
		stats.SuccessRate = int(math.Round(float64(stats.IssuesResolved) / float64(total) * 100))
	}
	return stats, nil
}

func (s *Store) AdvanceProjectStatus(projectID int, newStatus, actorName string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !progress.Valid(newStatus) {
		return nil, store.ErrInvalidStatus
	}
	project, ok := s.projects[projectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if progress.Rank(newStatus) < progress.Rank(project.ProgressStatus) {
		return nil, store.ErrStatusRegression
	}
	if newStatus == project.ProgressStatus {
		return &project, nil
	}

	project.ProgressStatus = newStatus
	s.projects[project.ID] = project

	var actor *string
	if actorName != "" {
		actor = &actorName
	}
	s.recordActivity(project.ID, models.ActivityStatusChange,
		actor, "Status changed to "+newStatus)

	return &project, nil
}

// reevaluateStatus runs the automatic promotion rules against the
// project's post-increment counts and records a status_change activity
// when the status moves. Callers must hold the lock.
func (s *Store) reevaluateStatus(projectID int) {
	project := s.projects[projectID]
	next := progress.NextStatus(project.Upvotes, project.EmailsSent, project.ProgressStatus)
	if next == project.ProgressStatus {
		return
	}
	project.ProgressStatus = next
	s.projects[project.ID] = project
	s.recordActivity(project.ID, models.ActivityStatusChange,
		nil, "Status changed to "+next)
}

// recordActivity appends one audit entry. Callers must hold the lock.
func (s *Store) recordActivity(projectID int, activityType string, actorName *string, description string) {
	activity := models.Activity{
		ID:           s.nextActivityID,
		ProjectID:    projectID,
		ActivityType: activityType,
		ActorName:    actorName,
		Description:  description,
		CreatedAt:    time.Now(),
	}
	s.nextActivityID++
	s.activities[activity.ID] = activity
}

// actorForUser resolves a user id to a display name, or nil for
// anonymous actors. Callers must hold the lock.
func (s *Store) actorForUser(userID *int) *string {
	if userID == nil {
		return nil
	}
	user, ok := s.users[*userID]
	if !ok {
		return nil
	}
	name := user.Username
	return &name
}
