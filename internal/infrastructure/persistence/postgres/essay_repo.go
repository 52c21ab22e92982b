package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESSAY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const submissionColumns = `
	id, user_id, topic_id, content, status,
	ai_grade, ai_feedback,
	teacher_grade, teacher_feedback, has_teacher_grade,
	submitted_at, updated_at`

// EssayRepository implements education.EssayRepository for PostgreSQL.
type EssayRepository struct {
	conn *Connection
}

// NewEssayRepository creates a new EssayRepository.
func NewEssayRepository(conn *Connection) *EssayRepository {
	return &EssayRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Topics
// ─────────────────────────────────────────────────────────────────────────────

// CreateTopic creates a new essay topic.
func (r *EssayRepository) CreateTopic(ctx context.Context, t *education.EssayTopic) error {
	query := `
		INSERT INTO essay_topics (title, description, deadline, submission_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.conn.QueryRow(ctx, query, t.Title, t.Description, t.Deadline, t.SubmissionType).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create essay topic: %w", err)
	}
	return nil
}

// GetTopic returns a topic by id.
func (r *EssayRepository) GetTopic(ctx context.Context, id int64) (*education.EssayTopic, error) {
	t, err := scanTopic(r.conn.QueryRow(ctx, `
		SELECT id, title, description, deadline, submission_type, created_at
		FROM essay_topics WHERE id = $1
	`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, education.ErrTopicNotFound
		}
		return nil, fmt.Errorf("failed to get essay topic: %w", err)
	}
	return t, nil
}

// ListTopics returns all topics ordered by deadline ascending.
func (r *EssayRepository) ListTopics(ctx context.Context) ([]*education.EssayTopic, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, title, description, deadline, submission_type, created_at
		FROM essay_topics ORDER BY deadline
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query essay topics: %w", err)
	}
	defer rows.Close()

	return scanTopics(rows)
}

// UpcomingTopics returns topics with a deadline in (after, until].
func (r *EssayRepository) UpcomingTopics(ctx context.Context, after, until time.Time) ([]*education.EssayTopic, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, title, description, deadline, submission_type, created_at
		FROM essay_topics
		WHERE deadline > $1 AND deadline <= $2
		ORDER BY deadline
	`, after, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming topics: %w", err)
	}
	defer rows.Close()

	return scanTopics(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Submissions
// ─────────────────────────────────────────────────────────────────────────────

// CreateSubmission stores a new submission.
func (r *EssayRepository) CreateSubmission(ctx context.Context, s *education.Submission) error {
	query := `
		INSERT INTO submissions (user_id, topic_id, content, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, submitted_at, updated_at
	`

	err := r.conn.QueryRow(ctx, query, s.UserID, s.TopicID, s.Content, s.Status).
		Scan(&s.ID, &s.SubmittedAt, &s.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return education.ErrResubmissionNotAllowed
		}
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// UpdateSubmission updates the submission's status, grades and content.
func (r *EssayRepository) UpdateSubmission(ctx context.Context, s *education.Submission) error {
	query := `
		UPDATE submissions SET
			content = $2,
			status = $3,
			ai_grade = $4,
			ai_feedback = $5,
			teacher_grade = $6,
			teacher_feedback = $7,
			has_teacher_grade = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.conn.QueryRow(ctx, query,
		s.ID, s.Content, s.Status,
		s.AIGrade, s.AIFeedback,
		s.TeacherGrade, s.TeacherFeedback, s.HasTeacherGrade,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return education.ErrSubmissionNotFound
		}
		return fmt.Errorf("failed to update submission: %w", err)
	}
	return nil
}

// GetSubmission returns a user's submission for a topic.
func (r *EssayRepository) GetSubmission(ctx context.Context, userID string, topicID int64) (*education.Submission, error) {
	s, err := scanSubmission(r.conn.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = $1 AND topic_id = $2`,
		userID, topicID))
	if err != nil {
		if IsNoRows(err) {
			return nil, education.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

// HasSettledSubmission reports whether the user has a submission for the
// topic in a status that no longer needs deadline reminders.
func (r *EssayRepository) HasSettledSubmission(ctx context.Context, userID string, topicID int64) (bool, error) {
	var settled bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM submissions
			WHERE user_id = $1 AND topic_id = $2
			  AND status IN ('ai_graded', 'done', 'teacher_review')
		)
	`, userID, topicID).Scan(&settled)
	if err != nil {
		return false, fmt.Errorf("failed to check submission status: %w", err)
	}
	return settled, nil
}

// ListSubmissionsForUser returns all submissions of a user, newest first.
func (r *EssayRepository) ListSubmissionsForUser(ctx context.Context, userID string) ([]*education.Submission, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = $1 ORDER BY submitted_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*education.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanTopic(row pgx.Row) (*education.EssayTopic, error) {
	var t education.EssayTopic
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Deadline, &t.SubmissionType, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTopics(rows pgx.Rows) ([]*education.EssayTopic, error) {
	var topics []*education.EssayTopic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan essay topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func scanSubmission(row pgx.Row) (*education.Submission, error) {
	var s education.Submission
	err := row.Scan(
		&s.ID, &s.UserID, &s.TopicID, &s.Content, &s.Status,
		&s.AIGrade, &s.AIFeedback,
		&s.TeacherGrade, &s.TeacherFeedback, &s.HasTeacherGrade,
		&s.SubmittedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
