// Package postgres implements store.Store over a pgx connection pool for
// deployments that set DATABASE_URL. Engagement mutations run inside one
// transaction so the counters, status, and activity trail stay in step.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Golfwang123/CivicVoicev1/internal/models"
	"github.com/Golfwang123/CivicVoicev1/internal/progress"
	"github.com/Golfwang123/CivicVoicev1/internal/store"
)

type Store struct {
	Pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New() (*Store, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := &Store{Pool: pool}
	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	ctx := context.Background()

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		role TEXT DEFAULT 'citizen',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users(LOWER(username));

	CREATE TABLE IF NOT EXISTS projects (
		id SERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		issue_type TEXT NOT NULL,
		location TEXT NOT NULL,
		latitude TEXT NOT NULL DEFAULT '',
		longitude TEXT NOT NULL DEFAULT '',
		urgency_level TEXT NOT NULL DEFAULT 'medium',
		contact_email TEXT,
		email_template TEXT NOT NULL DEFAULT '',
		email_subject TEXT NOT NULL DEFAULT '',
		email_recipient TEXT NOT NULL DEFAULT '',
		upvotes INT NOT NULL DEFAULT 0,
		emails_sent INT NOT NULL DEFAULT 0,
		progress_status TEXT NOT NULL DEFAULT 'idea_submitted',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_by INT REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS upvotes (
		id SERIAL PRIMARY KEY,
		project_id INT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id INT REFERENCES users(id),
		ip_address TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(project_id, ip_address)
	);

	CREATE TABLE IF NOT EXISTS emails (
		id SERIAL PRIMARY KEY,
		project_id INT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		sender_email TEXT,
		sender_name TEXT,
		custom_content TEXT,
		sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS activities (
		id SERIAL PRIMARY KEY,
		project_id INT NOT NULL,
		activity_type TEXT NOT NULL,
		actor_name TEXT,
		description TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS comments (
		id SERIAL PRIMARY KEY,
		project_id INT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		commenter_name TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(progress_status);
	CREATE INDEX IF NOT EXISTS idx_projects_type ON projects(issue_type);
	CREATE INDEX IF NOT EXISTS idx_upvotes_project ON upvotes(project_id);
	CREATE INDEX IF NOT EXISTS idx_emails_project ON emails(project_id);
	CREATE INDEX IF NOT EXISTS idx_activities_project ON activities(project_id);
	CREATE INDEX IF NOT EXISTS idx_comments_project ON comments(project_id);
	`

	_, err := s.Pool.Exec(ctx, schema)
	return err
}

const projectColumns = `id, title, description, issue_type, location, latitude, longitude,
	urgency_level, contact_email, email_template, email_subject, email_recipient,
	upvotes, emails_sent, progress_status, created_at, created_by`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.IssueType, &p.Location,
		&p.Latitude, &p.Longitude, &p.UrgencyLevel, &p.ContactEmail,
		&p.EmailTemplate, &p.EmailSubject, &p.EmailRecipient,
		&p.Upvotes, &p.EmailsSent, &p.ProgressStatus, &p.CreatedAt, &p.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) queryProjects(query string, args ...any) ([]models.Project, error) {
	ctx := context.Background()
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) CreateUser(in store.UserInput) (*models.User, error) {
	ctx := context.Background()

	var exists bool
	err := s.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))",
		in.Username,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrUsernameTaken
	}

	err = s.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)",
		in.Email,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrEmailTaken
	}

	role := in.Role
	if role == "" {
		role = "citizen"
	}

	var user models.User
	err = s.Pool.QueryRow(ctx,
		`INSERT INTO users (username, password, email, role) VALUES ($1, $2, $3, $4)
		 RETURNING id, username, password, email, role, created_at`,
		in.Username, in.Password, in.Email, role,
	).Scan(&user.ID, &user.Username, &user.Password, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *Store) GetUserByID(id int) (*models.User, error) {
	return s.scanUser("SELECT id, username, password, email, role, created_at FROM users WHERE id = $1", id)
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	return s.scanUser(
		"SELECT id, username, password, email, role, created_at FROM users WHERE LOWER(username) = LOWER($1) ORDER BY id LIMIT 1",
		username)
}

func (s *Store) scanUser(query string, args ...any) (*models.User, error) {
	var user models.User
	err := s.Pool.QueryRow(context.Background(), query, args...).
		Scan(&user.ID, &user.Username, &user.Password, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateProject(sub models.ProjectSubmission) (*models.Project, error) {
	ctx := context.Background()

	urgency := sub.UrgencyLevel
	if urgency == "" {
		urgency = models.UrgencyMedium
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	project, err := scanProject(tx.QueryRow(ctx,
		`INSERT INTO projects (title, description, issue_type, location, latitude, longitude,
			urgency_level, contact_email, email_template, email_subject, email_recipient, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+projectColumns,
		sub.Title, sub.Description, sub.IssueType, sub.Location, sub.Latitude, sub.Longitude,
		urgency, sub.ContactEmail, sub.EmailTemplate, sub.EmailSubject, sub.EmailRecipient, sub.CreatedBy,
	))
	if err != nil {
		return nil, err
	}

	actor, err := actorForUser(ctx, tx, sub.CreatedBy)
	if err != nil {
		return nil, err
	}
	if err := insertActivity(ctx, tx, project.ID, models.ActivityProjectCreated,
		actor, "New issue reported: "+project.Title); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Store) GetProjectByID(id int) (*models.Project, error) {
	return scanProject(s.Pool.QueryRow(context.Background(),
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", id))
}

func (s *Store) GetAllProjects() ([]models.Project, error) {
	return s.queryProjects(
		"SELECT " + projectColumns + " FROM projects ORDER BY upvotes DESC, id ASC")
}

func (s *Store) GetProjectsByType(issueType string) ([]models.Project, error) {
	return s.queryProjects(
		"SELECT "+projectColumns+" FROM projects WHERE issue_type = $1 ORDER BY upvotes DESC, id ASC",
		issueType)
}

func (s *Store) GetProjectsByStatus(status string) ([]models.Project, error) {
	return s.queryProjects(
		"SELECT "+projectColumns+" FROM projects WHERE progress_status = $1 ORDER BY upvotes DESC, id ASC",
		status)
}

func (s *Store) SearchProjects(query string) ([]models.Project, error) {
	pattern := "%" + query + "%"
	return s.queryProjects(
		`SELECT `+projectColumns+` FROM projects
		 WHERE title ILIKE $1 OR description ILIKE $1 OR location ILIKE $1
		 ORDER BY upvotes DESC, id ASC`,
		pattern)
}

func (s *Store) CreateUpvote(in store.UpvoteInput) (*models.Upvote, error) {
	ctx := context.Background()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var title, status string
	var upvotes, emailsSent int
	err = tx.QueryRow(ctx,
		"SELECT title, upvotes, emails_sent, progress_status FROM projects WHERE id = $1 FOR UPDATE",
		in.ProjectID,
	).Scan(&title, &upvotes, &emailsSent, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM upvotes WHERE project_id = $1 AND ip_address = $2)",
		in.ProjectID, in.IPAddress,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrDuplicateUpvote
	}

	upvote := models.Upvote{ProjectID: in.ProjectID, UserID: in.UserID, IPAddress: in.IPAddress}
	err = tx.QueryRow(ctx,
		"INSERT INTO upvotes (project_id, user_id, ip_address) VALUES ($1, $2, $3) RETURNING id, created_at",
		in.ProjectID, in.UserID, in.IPAddress,
	).Scan(&upvote.ID, &upvote.CreatedAt)
	if err != nil {
		return nil, err
	}

	upvotes++
	if _, err := tx.Exec(ctx,
		"UPDATE projects SET upvotes = $1 WHERE id = $2", upvotes, in.ProjectID); err != nil {
		return nil, err
	}

	actor, err := actorForUser(ctx, tx, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := insertActivity(ctx, tx, in.ProjectID, models.ActivityUpvote,
		actor, "Upvoted \""+title+"\""); err != nil {
		return nil, err
	}

	if err := reevaluateStatus(ctx, tx, in.ProjectID, upvotes, emailsSent, status); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &upvote, nil
}

func (s *Store) HasUserUpvoted(projectID int, ipAddress string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(context.Background(),
		"SELECT EXISTS(SELECT 1 FROM upvotes WHERE project_id = $1 AND ip_address = $2)",
		projectID, ipAddress,
	).Scan(&exists)
	return exists, err
}

func (s *Store) GetProjectUpvotes(projectID int) ([]models.Upvote, error) {
	ctx := context.Background()
	rows, err := s.Pool.Query(ctx,
		"SELECT id, project_id, user_id, ip_address, created_at FROM upvotes WHERE project_id = $1 ORDER BY id",
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var upvotes []models.Upvote
	for rows.Next() {
		var u models.Upvote
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.UserID, &u.IPAddress, &u.CreatedAt); err != nil {
			return nil, err
		}
		upvotes = append(upvotes, u)
	}
	return upvotes, rows.Err()
}

func (s *Store) CreateEmail(in store.EmailInput) (*models.Email, error) {
	ctx := context.Background()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var title, status string
	var upvotes, emailsSent int
	err = tx.QueryRow(ctx,
		"SELECT title, upvotes, emails_sent, progress_status FROM projects WHERE id = $1 FOR UPDATE",
		in.ProjectID,
	).Scan(&title, &upvotes, &emailsSent, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	email := models.Email{
		ProjectID:     in.ProjectID,
		SenderEmail:   in.SenderEmail,
		SenderName:    in.SenderName,
		CustomContent: in.CustomContent,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO emails (project_id, sender_email, sender_name, custom_content)
		 VALUES ($1, $2, $3, $4) RETURNING id, sent_at`,
		in.ProjectID, in.SenderEmail, in.SenderName, in.CustomContent,
	).Scan(&email.ID, &email.SentAt)
	if err != nil {
		return nil, err
	}

	emailsSent++
	if _, err := tx.Exec(ctx,
		"UPDATE projects SET emails_sent = $1 WHERE id = $2", emailsSent, in.ProjectID); err != nil {
		return nil, err
	}

	if err := insertActivity(ctx, tx, in.ProjectID, models.ActivityEmailSent,
		in.SenderName, "Email sent about \""+title+"\""); err != nil {
		return nil, err
	}

	if err := reevaluateStatus(ctx, tx, in.ProjectID, upvotes, emailsSent, status); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &email, nil
}

func (s *Store) GetProjectEmails(projectID int) ([]models.Email, error) {
	ctx := context.Background()
	rows, err := s.Pool.Query(ctx,
		"SELECT id, project_id, sender_email, sender_name, custom_content, sent_at FROM emails WHERE project_id = $1 ORDER BY id",
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []models.Email
	for rows.Next() {
		var e models.Email
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.SenderEmail, &e.SenderName, &e.CustomContent, &e.SentAt); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func (s *Store) CreateComment(in store.CommentInput) (*models.Comment, error) {
	ctx := context.Background()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var title string
	err = tx.QueryRow(ctx, "SELECT title FROM projects WHERE id = $1", in.ProjectID).Scan(&title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	comment := models.Comment{ProjectID: in.ProjectID, Text: in.Text, CommenterName: in.CommenterName}
	err = tx.QueryRow(ctx,
		"INSERT INTO comments (project_id, text, commenter_name) VALUES ($1, $2, $3) RETURNING id, created_at",
		in.ProjectID, in.Text, in.CommenterName,
	).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := insertActivity(ctx, tx, in.ProjectID, models.ActivityCommentAdded,
		&in.CommenterName, "Commented on \""+title+"\""); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (s *Store) GetProjectComments(projectID int) ([]models.Comment, error) {
	ctx := context.Background()
	rows, err := s.Pool.Query(ctx,
		"SELECT id, project_id, text, commenter_name, created_at FROM comments WHERE project_id = $1 ORDER BY id",
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Text, &c.CommenterName, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) RecordActivity(projectID int, activityType string, actorName *string, description string) (*models.Activity, error) {
	ctx := context.Background()

	var exists bool
	if err := s.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)", projectID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	activity := models.Activity{
		ProjectID:    projectID,
		ActivityType: activityType,
		ActorName:    actorName,
		Description:  description,
	}
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO activities (project_id, activity_type, actor_name, description) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		projectID, activityType, actorName, description,
	).Scan(&activity.ID, &activity.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (s *Store) GetRecentActivities(limit int) ([]models.Activity, error) {
	return s.queryActivities(
		"SELECT id, project_id, activity_type, actor_name, description, created_at FROM activities ORDER BY id DESC LIMIT $1",
		limit)
}

func (s *Store) GetProjectActivities(projectID int) ([]models.Activity, error) {
	return s.queryActivities(
		"SELECT id, project_id, activity_type, actor_name, description, created_at FROM activities WHERE project_id = $1 ORDER BY id DESC",
		projectID)
}

func (s *Store) queryActivities(query string, args ...any) ([]models.Activity, error) {
	ctx := context.Background()
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.ActivityType, &a.ActorName, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *Store) GetCommunityStats() (models.CommunityStats, error) {
	ctx := context.Background()
	var stats models.CommunityStats
	var total int

	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE progress_status = 'completed'),
			COUNT(*) FILTER (WHERE progress_status <> 'completed')
		FROM projects`,
	).Scan(&total, &stats.IssuesResolved, &stats.ActiveIssues)
	if err != nil {
		return stats, err
	}

	if err := s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM emails").Scan(&stats.EmailsSent); err != nil {
		return stats, err
	}

	if total > 0 {
		stats.SuccessRate = int(float64(stats.IssuesResolved)/float64(total)*100 + 0.5)
	}
	return stats, nil
}

func (s *Store) AdvanceProjectStatus(projectID int, newStatus, actorName string) (*models.Project, error) {
	ctx := context.Background()

	if !progress.Valid(newStatus) {
		return nil, store.ErrInvalidStatus
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		"SELECT progress_status FROM projects WHERE id = $1 FOR UPDATE", projectID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if progress.Rank(newStatus) < progress.Rank(current) {
		return nil, store.ErrStatusRegression
	}

	if newStatus != current {
		if _, err := tx.Exec(ctx,
			"UPDATE projects SET progress_status = $1 WHERE id = $2", newStatus, projectID); err != nil {
			return nil, err
		}
		var actor *string
		if actorName != "" {
			actor = &actorName
		}
		if err := insertActivity(ctx, tx, projectID, models.ActivityStatusChange,
			actor, "Status changed to "+newStatus); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetProjectByID(projectID)
}

func (s *Store) Close() {
	s.Pool.Close()
}

// reevaluateStatus applies the automatic promotion rules inside the
// caller's transaction.
func reevaluateStatus(ctx context.Context, tx pgx.Tx, projectID, upvotes, emailsSent int, current string) error {
	next := progress.NextStatus(upvotes, emailsSent, current)
	if next == current {
		return nil
	}
	if _, err := tx.Exec(ctx,
		"UPDATE projects SET progress_status = $1 WHERE id = $2", next, projectID); err != nil {
		return err
	}
	return insertActivity(ctx, tx, projectID, models.ActivityStatusChange,
		nil, "Status changed to "+next)
}

func insertActivity(ctx context.Context, tx pgx.Tx, projectID int, activityType string, actorName *string, description string) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO activities (project_id, activity_type, actor_name, description) VALUES ($1, $2, $3, $4)",
		projectID, activityType, actorName, description)
	return err
}

func actorForUser(ctx context.Context, tx pgx.Tx, userID *int) (*string, error) {
	if userID == nil {
		return nil, nil
	}
	var username string
	err := tx.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", *userID).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &username, nil
}
