package education

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence/postgres.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища академических данных.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Semesters & Weeks
	// ─────────────────────────────────────────────────────────────────────────

	// UpsertSemester создаёт или обновляет семестр по коду.
	UpsertSemester(ctx context.Context, s *Semester) error

	// ListSemesters возвращает все семестры, по коду по убыванию.
	ListSemesters(ctx context.Context) ([]*Semester, error)

	// GetCurrentSemester возвращает семестр с флагом current,
	// иначе семестр с наибольшим кодом.
	// Возвращает ErrSemesterNotFound, если семестров нет вовсе.
	GetCurrentSemester(ctx context.Context) (*Semester, error)

	// UpsertWeek создаёт или обновляет неделю по внешнему идентификатору.
	UpsertWeek(ctx context.Context, w *Week) error

	// ListWeeks возвращает все недели по дате начала.
	ListWeeks(ctx context.Context) ([]*Week, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Wholesale replace per (user, semester)
	// Каждая операция выполняется в одной транзакции: старые строки
	// удаляются и вставляются свежие, частичное состояние не видно.
	// ─────────────────────────────────────────────────────────────────────────

	// ReplaceSchedule замещает расписание пользователя за семестр.
	ReplaceSchedule(ctx context.Context, userID string, semesterID int64, entries []*ScheduleEntry) error

	// ReplaceAttendance замещает записи посещаемости пользователя за семестр.
	ReplaceAttendance(ctx context.Context, userID string, semesterID int64, records []*AttendanceRecord) error

	// ReplaceTasks замещает задания пользователя за семестр.
	ReplaceTasks(ctx context.Context, userID string, semesterID int64, tasks []*Task) error

	// ─────────────────────────────────────────────────────────────────────────
	// Views
	// ─────────────────────────────────────────────────────────────────────────

	// ScheduleForUser возвращает расписание пользователя за семестр.
	ScheduleForUser(ctx context.Context, userID string, semesterID int64) ([]*ScheduleEntry, error)

	// AttendanceForUser возвращает записи посещаемости за семестр.
	AttendanceForUser(ctx context.Context, userID string, semesterID int64) ([]*AttendanceRecord, error)

	// AbsenceBySubject возвращает агрегаты пропусков по предметам за семестр.
	AbsenceBySubject(ctx context.Context, userID string, semesterID int64) ([]*SubjectAbsence, error)

	// TasksForUser возвращает задания пользователя за семестр.
	TasksForUser(ctx context.Context, userID string, semesterID int64) ([]*Task, error)

	// RecentGrades возвращает последние оценённые задания пользователя.
	RecentGrades(ctx context.Context, userID string, limit int) ([]*Task, error)
}

// EssayRepository определяет операции хранилища эссе.
type EssayRepository interface {
	// CreateTopic создаёт новую тему эссе.
	CreateTopic(ctx context.Context, t *EssayTopic) error

	// GetTopic возвращает тему по ID.
	// Возвращает ErrTopicNotFound, если тема не найдена.
	GetTopic(ctx context.Context, id int64) (*EssayTopic, error)

	// ListTopics возвращает все темы по дедлайну по возрастанию.
	ListTopics(ctx context.Context) ([]*EssayTopic, error)

	// UpcomingTopics возвращает темы с дедлайном в интервале (after, until].
	UpcomingTopics(ctx context.Context, after, until time.Time) ([]*EssayTopic, error)

	// CreateSubmission сохраняет новую работу.
	CreateSubmission(ctx context.Context, s *Submission) error

	// UpdateSubmission обновляет статус, оценки и содержимое работы.
	UpdateSubmission(ctx context.Context, s *Submission) error

	// GetSubmission возвращает работу пользователя по теме.
	// Возвращает ErrSubmissionNotFound, если работы нет.
	GetSubmission(ctx context.Context, userID string, topicID int64) (*Submission, error)

	// HasSettledSubmission проверяет, есть ли у пользователя работа
	// по теме в статусе, не требующем напоминаний.
	HasSettledSubmission(ctx context.Context, userID string, topicID int64) (bool, error)

	// ListSubmissionsForUser возвращает все работы пользователя.
	ListSubmissionsForUser(ctx context.Context, userID string) ([]*Submission, error)
}
