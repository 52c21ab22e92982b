package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNCHRONIZER
// Pulls the user's academic records from HEMIS and replaces the local
// copy wholesale. Each category (schedule, attendance, tasks) is
// replaced in its own transaction, so one failing category never rolls
// back the others. The whole sync is re-run on the next cycle anyway.
// ══════════════════════════════════════════════════════════════════════════════

// AcademicFetcher is the slice of the HEMIS client the synchronizer needs.
type AcademicFetcher interface {
	FetchCurriculumSemesters(ctx context.Context, token string) ([]hemis.CurriculumSemester, error)
	FetchWeeks(ctx context.Context, token string) ([]hemis.WeekInfo, error)
	FetchLessons(ctx context.Context, token, semesterCode string) ([]hemis.Lesson, error)
	FetchAttendance(ctx context.Context, token, semesterCode string) ([]hemis.AbsenceRecord, error)
	FetchPerformance(ctx context.Context, token, semesterCode string) ([]hemis.TaskInfo, error)
}

// Result summarizes one sync run.
type Result struct {
	UserID       string
	SemesterCode string

	ScheduleCount   int
	AttendanceCount int
	TaskCount       int

	SyncedAt time.Time
}

// Synchronizer refreshes one user's academic records.
type Synchronizer struct {
	tokens        *TokenManager
	client        AcademicFetcher
	users         user.Repository
	educationRepo education.Repository
	log           *logger.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(
	tokens *TokenManager,
	client AcademicFetcher,
	users user.Repository,
	educationRepo education.Repository,
	log *logger.Logger,
) *Synchronizer {
	if log == nil {
		log = logger.Default()
	}
	return &Synchronizer{
		tokens:        tokens,
		client:        client,
		users:         users,
		educationRepo: educationRepo,
		log:           log,
	}
}

// Sync refreshes the user's semesters, schedule, attendance and tasks.
//
// The semester catalog must load for anything else to proceed. After
// that the three record categories are replaced independently; if any
// of them fails Sync returns an error, but the categories that already
// committed keep their fresh data.
func (s *Synchronizer) Sync(ctx context.Context, u *user.User) (*Result, error) {
	token, err := s.tokens.EnsureValid(ctx, u)
	if err != nil {
		return nil, err
	}

	semester, err := s.syncSemesters(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("sync semesters: %w", err)
	}
	if semester == nil {
		// HEMIS has no curriculum on record yet; there is nothing to
		// mirror and nothing wrong either.
		s.log.Info("no semesters on record, nothing to sync", logger.UserID(u.ID))
		return &Result{UserID: u.ID, SyncedAt: timeutil.Now()}, nil
	}

	result := &Result{
		UserID:       u.ID,
		SemesterCode: semester.Code.String(),
		SyncedAt:     timeutil.Now(),
	}

	var errs []error

	if n, err := s.syncSchedule(ctx, token, u.ID, semester); err != nil {
		errs = append(errs, fmt.Errorf("sync schedule: %w", err))
	} else {
		result.ScheduleCount = n
	}

	if n, err := s.syncAttendance(ctx, token, u.ID, semester); err != nil {
		errs = append(errs, fmt.Errorf("sync attendance: %w", err))
	} else {
		result.AttendanceCount = n
	}

	if n, err := s.syncTasks(ctx, token, u.ID, semester); err != nil {
		errs = append(errs, fmt.Errorf("sync tasks: %w", err))
	} else {
		result.TaskCount = n
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}

	u.LastSyncedAt = result.SyncedAt
	if err := s.users.Update(ctx, u); err != nil {
		s.log.Warn("failed to record sync timestamp",
			logger.UserID(u.ID), logger.Err(err))
	}

	s.log.Info("user synced",
		logger.UserID(u.ID),
		logger.Semester(result.SemesterCode),
		logger.F("schedule", result.ScheduleCount),
		logger.F("attendance", result.AttendanceCount),
		logger.F("tasks", result.TaskCount),
	)

	return result, nil
}

// syncSemesters refreshes the semester and week catalogs and returns
// the semester the rest of the sync should target. An empty remote
// catalog yields (nil, nil): not an error, just nothing to do.
func (s *Synchronizer) syncSemesters(ctx context.Context, token string) (*education.Semester, error) {
	semesters, err := s.client.FetchCurriculumSemesters(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(semesters) == 0 {
		return nil, nil
	}

	for _, sem := range semesters {
		entity := &education.Semester{
			Code:    education.SemesterCode(sem.Code),
			Name:    sem.Name,
			Current: sem.Current,
		}
		if err := s.educationRepo.UpsertSemester(ctx, entity); err != nil {
			return nil, err
		}
	}

	weeks, err := s.client.FetchWeeks(ctx, token)
	if err != nil {
		return nil, err
	}
	for _, w := range weeks {
		entity := &education.Week{
			RemoteID:  w.ID,
			Name:      w.Name,
			StartDate: w.StartDate,
			EndDate:   w.EndDate,
		}
		if err := s.educationRepo.UpsertWeek(ctx, entity); err != nil {
			return nil, err
		}
	}

	return s.educationRepo.GetCurrentSemester(ctx)
}

func (s *Synchronizer) syncSchedule(ctx context.Context, token, userID string, semester *education.Semester) (int, error) {
	lessons, err := s.client.FetchLessons(ctx, token, semester.Code.String())
	if err != nil {
		return 0, err
	}

	entries := make([]*education.ScheduleEntry, 0, len(lessons))
	for _, l := range lessons {
		entries = append(entries, &education.ScheduleEntry{
			UserID:       userID,
			SemesterID:   semester.ID,
			WeekRemoteID: l.WeekID,
			SubjectName:  l.Subject,
			WeekDay:      timeutil.WeekdayNameUz(l.Date.In(timeutil.TashkentTZ).Weekday()),
			StartTime:    l.StartTime,
			EndTime:      l.EndTime,
			Teacher:      l.Teacher,
			Auditorium:   l.Auditorium,
			LessonType:   l.LessonType,
		})
	}

	if err := s.educationRepo.ReplaceSchedule(ctx, userID, semester.ID, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *Synchronizer) syncAttendance(ctx context.Context, token, userID string, semester *education.Semester) (int, error) {
	records, err := s.client.FetchAttendance(ctx, token, semester.Code.String())
	if err != nil {
		return 0, err
	}

	entities := make([]*education.AttendanceRecord, 0, len(records))
	for _, r := range records {
		entities = append(entities, &education.AttendanceRecord{
			UserID:      userID,
			SemesterID:  semester.ID,
			SubjectName: r.Subject,
			Date:        r.Date,
			Hours:       r.Hours,
			Excused:     r.Excused,
			Teacher:     r.Teacher,
			LessonType:  r.LessonType,
		})
	}

	if err := s.educationRepo.ReplaceAttendance(ctx, userID, semester.ID, entities); err != nil {
		return 0, err
	}
	return len(entities), nil
}

func (s *Synchronizer) syncTasks(ctx context.Context, token, userID string, semester *education.Semester) (int, error) {
	tasks, err := s.client.FetchPerformance(ctx, token, semester.Code.String())
	if err != nil {
		return 0, err
	}

	entities := make([]*education.Task, 0, len(tasks))
	for _, t := range tasks {
		entities = append(entities, &education.Task{
			UserID:      userID,
			SemesterID:  semester.ID,
			SubjectName: t.Subject,
			Name:        t.Name,
			Deadline:    t.Deadline,
			HasDeadline: t.HasDeadline,
			Status:      t.Status,
			Grade:       t.Grade,
			MaxGrade:    t.MaxGrade,
		})
	}

	if err := s.educationRepo.ReplaceTasks(ctx, userID, semester.ID, entities); err != nil {
		return 0, err
	}
	return len(entities), nil
}
