package models

import "time"

// Issue types accepted on submission.
const (
	IssueCrosswalk   = "crosswalk"
	IssuePothole     = "pothole"
	IssueSidewalk    = "sidewalk"
	IssueStreetlight = "streetlight"
	IssueOther       = "other"
)

// Urgency levels accepted on submission.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

var validIssueTypes = map[string]bool{
	IssueCrosswalk:   true,
	IssuePothole:     true,
	IssueSidewalk:    true,
	IssueStreetlight: true,
	IssueOther:       true,
}

var validUrgencyLevels = map[string]bool{
	UrgencyLow:    true,
	UrgencyMedium: true,
	UrgencyHigh:   true,
}

func ValidIssueType(t string) bool {
	return validIssueTypes[t]
}

func ValidUrgencyLevel(u string) bool {
	return validUrgencyLevels[u]
}

// Activity types recorded in the audit trail.
const (
	ActivityProjectCreated = "project_created"
	ActivityUpvote         = "upvote"
	ActivityEmailSent      = "email_sent"
	ActivityStatusChange   = "status_change"
	ActivityCommentAdded   = "comment_added"
)

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID             int       `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	IssueType      string    `json:"issue_type"`
	Location       string    `json:"location"`
	Latitude       string    `json:"latitude"`
	Longitude      string    `json:"longitude"`
	UrgencyLevel   string    `json:"urgency_level"`
	ContactEmail   *string   `json:"contact_email"`
	EmailTemplate  string    `json:"email_template"`
	EmailSubject   string    `json:"email_subject"`
	EmailRecipient string    `json:"email_recipient"`
	Upvotes        int       `json:"upvotes"`
	EmailsSent     int       `json:"emails_sent"`
	ProgressStatus string    `json:"progress_status"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      *int      `json:"created_by"`
}

type Upvote struct {
	ID        int       `json:"id"`
	ProjectID int       `json:"project_id"`
	UserID    *int      `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

type Email struct {
	ID            int       `json:"id"`
	ProjectID     int       `json:"project_id"`
	SenderEmail   *string   `json:"sender_email"`
	SenderName    *string   `json:"sender_name"`
	CustomContent *string   `json:"custom_content"`
	SentAt        time.Time `json:"sent_at"`
}

type Activity struct {
	ID           int       `json:"id"`
	ProjectID    int       `json:"project_id"`
	ActivityType string    `json:"activity_type"`
	ActorName    *string   `json:"actor_name"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

type Comment struct {
	ID            int       `json:"id"`
	ProjectID     int       `json:"project_id"`
	Text          string    `json:"text"`
	CommenterName string    `json:"commenter_name"`
	CreatedAt     time.Time `json:"created_at"`
}

type CommunityStats struct {
	ActiveIssues   int `json:"active_issues"`
	EmailsSent     int `json:"emails_sent"`
	IssuesResolved int `json:"issues_resolved"`
	SuccessRate    int `json:"success_rate"`
}

// ProjectSubmission carries validated form input into the store.
type ProjectSubmission struct {
	Title          string
	Description    string
	IssueType      string
	Location       string
	Latitude       string
	Longitude      string
	UrgencyLevel   string
	ContactEmail   *string
	EmailTemplate  string
	EmailSubject   string
	EmailRecipient string
	CreatedBy      *int
}
