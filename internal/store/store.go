// Package store defines the contract every CivicVoice data backend
// implements. The memstore backend is the default; the postgres backend
// covers deployments that set DATABASE_URL.
package store

import (
	"errors"

	"github.com/Golfwang123/CivicVoicev1/internal/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateUpvote  = errors.New("address already upvoted this project")
	ErrUsernameTaken    = errors.New("username already registered")
	ErrEmailTaken       = errors.New("email already registered")
	ErrStatusRegression = errors.New("progress status cannot move backwards")
	ErrInvalidStatus    = errors.New("unknown progress status")
)

// UpvoteInput identifies the endorsing actor. UserID is nil for
// anonymous visitors; IPAddress must be non-empty and is the dedup key.
type UpvoteInput struct {
	ProjectID int
	UserID    *int
	IPAddress string
}

// EmailInput records one delivered outreach email. The dispatcher must
// have succeeded before this reaches the store.
type EmailInput struct {
	ProjectID     int
	SenderEmail   *string
	SenderName    *string
	CustomContent *string
}

type CommentInput struct {
	ProjectID     int
	Text          string
	CommenterName string
}

type UserInput struct {
	Username string
	Password string
	Email    string
	Role     string
}

// Store is the full operation surface of the engagement ledger. Every
// mutating call is atomic: the record write, any counter increment, the
// status re-evaluation, and the activity entry land together or not at
// all.
type Store interface {
	CreateUser(in UserInput) (*models.User, error)
	GetUserByID(id int) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)

	CreateProject(sub models.ProjectSubmission) (*models.Project, error)
	GetProjectByID(id int) (*models.Project, error)
	GetAllProjects() ([]models.Project, error)
	GetProjectsByType(issueType string) ([]models.Project, error)
	GetProjectsByStatus(status string) ([]models.Project, error)
	SearchProjects(query string) ([]models.Project, error)

	CreateUpvote(in UpvoteInput) (*models.Upvote, error)
	HasUserUpvoted(projectID int, ipAddress string) (bool, error)
	GetProjectUpvotes(projectID int) ([]models.Upvote, error)

	CreateEmail(in EmailInput) (*models.Email, error)
	GetProjectEmails(projectID int) ([]models.Email, error)

	CreateComment(in CommentInput) (*models.Comment, error)
	GetProjectComments(projectID int) ([]models.Comment, error)

	// RecordActivity appends an audit entry outside the fixed invocation
	// points, e.g. for boundary-layer system events. actorName may be nil.
	RecordActivity(projectID int, activityType string, actorName *string, description string) (*models.Activity, error)
	GetRecentActivities(limit int) ([]models.Activity, error)
	GetProjectActivities(projectID int) ([]models.Activity, error)

	GetCommunityStats() (models.CommunityStats, error)

	// AdvanceProjectStatus is the manual override path for statuses the
	// automatic evaluation cannot reach. It refuses regressions.
	AdvanceProjectStatus(projectID int, newStatus, actorName string) (*models.Project, error)
}
