package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION SERVICE
// Orchestrates the essay lifecycle: submit, AI grade, appeal, teacher
// review. One submission per student per topic; resubmission rewrites
// it in place when the status allows.
// ══════════════════════════════════════════════════════════════════════════════

// Appeal and grading errors surfaced to the transport layer.
var (
	// ErrAppealNotAllowed - only AI-graded work can be appealed.
	ErrAppealNotAllowed = errors.New("only ai-graded work can be appealed")

	// ErrInvalidGrade - the teacher grade is out of the 0-100 range.
	ErrInvalidGrade = errors.New("grade is out of the 0-100 range")
)

// SubmissionService handles essay submissions end to end.
type SubmissionService struct {
	essays education.EssayRepository
	grader *EssayGrader
	log    *logger.Logger

	now func() time.Time
}

// NewSubmissionService creates a SubmissionService.
func NewSubmissionService(essays education.EssayRepository, grader *EssayGrader, log *logger.Logger) *SubmissionService {
	if log == nil {
		log = logger.Default()
	}
	return &SubmissionService{
		essays: essays,
		grader: grader,
		log:    log,
		now:    timeutil.Now,
	}
}

// Submit stores the essay and grades it with AI. When the model chain
// is down the submission stays pending with the fallback feedback; it
// is never lost.
func (s *SubmissionService) Submit(ctx context.Context, userID string, topicID int64, content string) (*education.Submission, error) {
	topic, err := s.essays.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if s.now().After(topic.Deadline) {
		return nil, education.ErrDeadlinePassed
	}

	submission, err := s.essays.GetSubmission(ctx, userID, topicID)
	switch {
	case err == nil:
		if !submission.Status.AllowsResubmission() {
			return nil, education.ErrResubmissionNotAllowed
		}
		submission.Content = content
		submission.Status = education.StatusPending
	case errors.Is(err, education.ErrSubmissionNotFound):
		submission = &education.Submission{
			UserID:  userID,
			TopicID: topicID,
			Content: content,
			Status:  education.StatusPending,
		}
		if err := s.essays.CreateSubmission(ctx, submission); err != nil {
			return nil, fmt.Errorf("store submission: %w", err)
		}
	default:
		return nil, fmt.Errorf("load submission: %w", err)
	}

	verdict, err := s.grader.Grade(ctx, topic, content)
	if err != nil {
		return nil, err
	}

	submission.AIGrade = verdict.Grade
	submission.AIFeedback = verdict.Feedback
	if verdict.Available {
		submission.Status = education.StatusAIGraded
	}

	if err := s.essays.UpdateSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("save grading result: %w", err)
	}

	s.log.Info("essay submitted",
		logger.UserID(userID),
		logger.TopicTitle(topic.Title),
		logger.F("grade", submission.AIGrade),
		logger.F("status", string(submission.Status)),
	)

	return submission, nil
}

// Appeal moves an AI-graded submission to teacher review.
func (s *SubmissionService) Appeal(ctx context.Context, userID string, topicID int64) (*education.Submission, error) {
	submission, err := s.essays.GetSubmission(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}
	if submission.Status != education.StatusAIGraded {
		return nil, fmt.Errorf("%w: current status is %s", ErrAppealNotAllowed, submission.Status)
	}

	submission.Status = education.StatusTeacherReview
	if err := s.essays.UpdateSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("save appeal: %w", err)
	}
	return submission, nil
}

// TeacherGrade records the teacher's verdict, which overrides the AI grade.
// A resubmit decision reopens the work instead of closing it.
func (s *SubmissionService) TeacherGrade(ctx context.Context, userID string, topicID int64, grade int, feedback string, resubmit bool) (*education.Submission, error) {
	if grade < 0 || grade > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidGrade, grade)
	}

	submission, err := s.essays.GetSubmission(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}

	submission.TeacherGrade = grade
	submission.TeacherFeedback = feedback
	submission.HasTeacherGrade = true
	if resubmit {
		submission.Status = education.StatusResubmit
	} else {
		submission.Status = education.StatusDone
	}

	if err := s.essays.UpdateSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("save teacher grade: %w", err)
	}
	return submission, nil
}
