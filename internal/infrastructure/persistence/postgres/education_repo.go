package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// EDUCATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EducationRepository implements education.Repository for PostgreSQL.
type EducationRepository struct {
	conn *Connection
}

// NewEducationRepository creates a new EducationRepository.
func NewEducationRepository(conn *Connection) *EducationRepository {
	return &EducationRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Semesters & Weeks
// ─────────────────────────────────────────────────────────────────────────────

// UpsertSemester creates or updates a semester by code.
func (r *EducationRepository) UpsertSemester(ctx context.Context, s *education.Semester) error {
	query := `
		INSERT INTO semesters (code, name, current)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, current = EXCLUDED.current
		RETURNING id
	`

	err := r.conn.QueryRow(ctx, query, s.Code.String(), s.Name, s.Current).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert semester %s: %w", s.Code, err)
	}
	return nil
}

// ListSemesters returns all semesters ordered by code descending.
func (r *EducationRepository) ListSemesters(ctx context.Context) ([]*education.Semester, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, code, name, current FROM semesters
		ORDER BY NULLIF(regexp_replace(code, '\D', '', 'g'), '')::int DESC NULLS LAST
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query semesters: %w", err)
	}
	defer rows.Close()

	var semesters []*education.Semester
	for rows.Next() {
		s, err := scanSemester(rows)
		if err != nil {
			return nil, err
		}
		semesters = append(semesters, s)
	}
	return semesters, rows.Err()
}

// GetCurrentSemester returns the semester flagged current, falling back
// to the one with the highest code.
func (r *EducationRepository) GetCurrentSemester(ctx context.Context) (*education.Semester, error) {
	s, err := scanSemester(r.conn.QueryRow(ctx,
		`SELECT id, code, name, current FROM semesters WHERE current LIMIT 1`))
	if err == nil {
		return s, nil
	}
	if !IsNoRows(err) {
		return nil, err
	}

	s, err = scanSemester(r.conn.QueryRow(ctx, `
		SELECT id, code, name, current FROM semesters
		ORDER BY NULLIF(regexp_replace(code, '\D', '', 'g'), '')::int DESC NULLS LAST
		LIMIT 1
	`))
	if err != nil {
		if IsNoRows(err) {
			return nil, education.ErrSemesterNotFound
		}
		return nil, err
	}
	return s, nil
}

// UpsertWeek creates or updates a week by its remote id.
func (r *EducationRepository) UpsertWeek(ctx context.Context, w *education.Week) error {
	query := `
		INSERT INTO weeks (remote_id, name, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (remote_id) DO UPDATE SET
			name = EXCLUDED.name,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date
		RETURNING id
	`

	err := r.conn.QueryRow(ctx, query, w.RemoteID, w.Name, w.StartDate, w.EndDate).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert week %d: %w", w.RemoteID, err)
	}
	return nil
}

// ListWeeks returns all weeks ordered by start date.
func (r *EducationRepository) ListWeeks(ctx context.Context) ([]*education.Week, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT id, remote_id, name, start_date, end_date FROM weeks ORDER BY start_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query weeks: %w", err)
	}
	defer rows.Close()

	var weeks []*education.Week
	for rows.Next() {
		var w education.Week
		if err := rows.Scan(&w.ID, &w.RemoteID, &w.Name, &w.StartDate, &w.EndDate); err != nil {
			return nil, fmt.Errorf("failed to scan week: %w", err)
		}
		weeks = append(weeks, &w)
	}
	return weeks, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Wholesale replace per (user, semester)
// ─────────────────────────────────────────────────────────────────────────────

// ReplaceSchedule replaces the user's schedule for a semester in one
// transaction: delete everything, then insert the fresh rows.
func (r *EducationRepository) ReplaceSchedule(ctx context.Context, userID string, semesterID int64, entries []*education.ScheduleEntry) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM schedule_entries WHERE user_id = $1 AND semester_id = $2`,
			userID, semesterID); err != nil {
			return fmt.Errorf("failed to clear schedule: %w", err)
		}

		for _, e := range entries {
			subjectID, err := getOrCreateSubject(ctx, tx, e.SubjectName)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO schedule_entries (
					user_id, semester_id, week_remote_id, subject_id,
					week_day, start_time, end_time, teacher, auditorium, lesson_type
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				userID, semesterID, e.WeekRemoteID, subjectID,
				e.WeekDay, e.StartTime, e.EndTime, e.Teacher, e.Auditorium, e.LessonType,
			); err != nil {
				return fmt.Errorf("failed to insert schedule entry: %w", err)
			}
		}
		return nil
	})
}

// ReplaceAttendance replaces the user's attendance records for a semester.
func (r *EducationRepository) ReplaceAttendance(ctx context.Context, userID string, semesterID int64, records []*education.AttendanceRecord) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM attendance_records WHERE user_id = $1 AND semester_id = $2`,
			userID, semesterID); err != nil {
			return fmt.Errorf("failed to clear attendance: %w", err)
		}

		for _, rec := range records {
			subjectID, err := getOrCreateSubject(ctx, tx, rec.SubjectName)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO attendance_records (
					user_id, semester_id, subject_id, lesson_date,
					hours, excused, teacher, lesson_type
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				userID, semesterID, subjectID, timeOrNull(rec.Date),
				rec.Hours, rec.Excused, rec.Teacher, rec.LessonType,
			); err != nil {
				return fmt.Errorf("failed to insert attendance record: %w", err)
			}
		}
		return nil
	})
}

// ReplaceTasks replaces the user's tasks for a semester.
func (r *EducationRepository) ReplaceTasks(ctx context.Context, userID string, semesterID int64, tasks []*education.Task) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM tasks WHERE user_id = $1 AND semester_id = $2`,
			userID, semesterID); err != nil {
			return fmt.Errorf("failed to clear tasks: %w", err)
		}

		for _, task := range tasks {
			subjectID, err := getOrCreateSubject(ctx, tx, task.SubjectName)
			if err != nil {
				return err
			}
			var deadline interface{}
			if task.HasDeadline {
				deadline = task.Deadline
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO tasks (
					user_id, semester_id, subject_id, name,
					deadline, status, grade, max_grade
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				userID, semesterID, subjectID, task.Name,
				deadline, task.Status, task.Grade, task.MaxGrade,
			); err != nil {
				return fmt.Errorf("failed to insert task: %w", err)
			}
		}
		return nil
	})
}

// getOrCreateSubject resolves a subject id by name within the transaction.
func getOrCreateSubject(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	if name == "" {
		name = "Noma'lum fan"
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO subjects (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve subject %q: %w", name, err)
	}
	return id, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Views
// ─────────────────────────────────────────────────────────────────────────────

// ScheduleForUser returns the user's schedule for a semester.
func (r *EducationRepository) ScheduleForUser(ctx context.Context, userID string, semesterID int64) ([]*education.ScheduleEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT e.id, e.user_id, e.semester_id, e.week_remote_id, e.subject_id, s.name,
			   e.week_day, e.start_time, e.end_time, e.teacher, e.auditorium, e.lesson_type
		FROM schedule_entries e
		JOIN subjects s ON s.id = e.subject_id
		WHERE e.user_id = $1 AND e.semester_id = $2
		ORDER BY e.week_remote_id, e.week_day, e.start_time
	`, userID, semesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	var entries []*education.ScheduleEntry
	for rows.Next() {
		var e education.ScheduleEntry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.SemesterID, &e.WeekRemoteID, &e.SubjectID, &e.SubjectName,
			&e.WeekDay, &e.StartTime, &e.EndTime, &e.Teacher, &e.Auditorium, &e.LessonType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// AttendanceForUser returns the user's attendance records for a semester.
func (r *EducationRepository) AttendanceForUser(ctx context.Context, userID string, semesterID int64) ([]*education.AttendanceRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT a.id, a.user_id, a.semester_id, a.subject_id, s.name,
			   a.lesson_date, a.hours, a.excused, a.teacher, a.lesson_type
		FROM attendance_records a
		JOIN subjects s ON s.id = a.subject_id
		WHERE a.user_id = $1 AND a.semester_id = $2
		ORDER BY a.lesson_date DESC NULLS LAST
	`, userID, semesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []*education.AttendanceRecord
	for rows.Next() {
		var (
			rec  education.AttendanceRecord
			date sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.SemesterID, &rec.SubjectID, &rec.SubjectName,
			&date, &rec.Hours, &rec.Excused, &rec.Teacher, &rec.LessonType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		if date.Valid {
			rec.Date = date.Time
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// AbsenceBySubject returns per-subject absence totals for a semester.
func (r *EducationRepository) AbsenceBySubject(ctx context.Context, userID string, semesterID int64) ([]*education.SubjectAbsence, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT a.subject_id, s.name,
			   COALESCE(SUM(a.hours), 0),
			   COALESCE(SUM(a.hours) FILTER (WHERE a.excused), 0)
		FROM attendance_records a
		JOIN subjects s ON s.id = a.subject_id
		WHERE a.user_id = $1 AND a.semester_id = $2
		GROUP BY a.subject_id, s.name
		ORDER BY 3 DESC
	`, userID, semesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query absence totals: %w", err)
	}
	defer rows.Close()

	var totals []*education.SubjectAbsence
	for rows.Next() {
		var t education.SubjectAbsence
		if err := rows.Scan(&t.SubjectID, &t.SubjectName, &t.Hours, &t.ExcusedHours); err != nil {
			return nil, fmt.Errorf("failed to scan absence total: %w", err)
		}
		totals = append(totals, &t)
	}
	return totals, rows.Err()
}

// TasksForUser returns the user's tasks for a semester.
func (r *EducationRepository) TasksForUser(ctx context.Context, userID string, semesterID int64) ([]*education.Task, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT t.id, t.user_id, t.semester_id, t.subject_id, s.name,
			   t.name, t.deadline, t.status, t.grade, t.max_grade
		FROM tasks t
		JOIN subjects s ON s.id = t.subject_id
		WHERE t.user_id = $1 AND t.semester_id = $2
		ORDER BY t.deadline ASC NULLS LAST
	`, userID, semesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// RecentGrades returns the user's latest graded tasks across semesters.
func (r *EducationRepository) RecentGrades(ctx context.Context, userID string, limit int) ([]*education.Task, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.conn.Query(ctx, `
		SELECT t.id, t.user_id, t.semester_id, t.subject_id, s.name,
			   t.name, t.deadline, t.status, t.grade, t.max_grade
		FROM tasks t
		JOIN subjects s ON s.id = t.subject_id
		WHERE t.user_id = $1 AND t.grade > 0
		ORDER BY t.id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent grades: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanSemester(row pgx.Row) (*education.Semester, error) {
	var (
		s    education.Semester
		code string
	)
	if err := row.Scan(&s.ID, &code, &s.Name, &s.Current); err != nil {
		return nil, err
	}
	s.Code = education.SemesterCode(code)
	return &s, nil
}

func scanTasks(rows pgx.Rows) ([]*education.Task, error) {
	var tasks []*education.Task
	for rows.Next() {
		var (
			t        education.Task
			deadline sql.NullTime
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.SemesterID, &t.SubjectID, &t.SubjectName,
			&t.Name, &deadline, &t.Status, &t.Grade, &t.MaxGrade,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if deadline.Valid {
			t.Deadline = deadline.Time
			t.HasDeadline = true
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
