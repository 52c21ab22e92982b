// Package education содержит доменную модель академических данных:
// семестры, недели, расписание, посещаемость, задания и эссе.
package education

import (
	"errors"
	"strconv"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// SemesterCode представляет код семестра в HEMIS ("11", "12", ...).
type SemesterCode string

// Numeric возвращает числовое значение кода. Нечисловые коды дают 0,
// поэтому при сортировке они уходят в конец.
func (c SemesterCode) Numeric() int {
	n, err := strconv.Atoi(string(c))
	if err != nil {
		return 0
	}
	return n
}

// String возвращает строковое представление кода.
func (c SemesterCode) String() string {
	return string(c)
}

// Semester - семестр учебного плана.
type Semester struct {
	ID      int64
	Code    SemesterCode
	Name    string
	Current bool
}

// Week - учебная неделя семестра, идентификатор приходит из HEMIS.
type Week struct {
	ID        int64
	RemoteID  int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Contains проверяет, попадает ли момент времени в неделю.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.StartDate) && !t.After(w.EndDate)
}

// Subject - учебный предмет. Уникален по имени.
type Subject struct {
	ID   int64
	Name string
}

// ScheduleEntry - одна пара в расписании пользователя.
type ScheduleEntry struct {
	ID           int64
	UserID       string
	SemesterID   int64
	WeekRemoteID int64
	SubjectID    int64
	SubjectName  string
	WeekDay      string
	StartTime    string
	EndTime      string
	Teacher      string
	Auditorium   string
	LessonType   string
}

// AttendanceRecord - запись о пропуске занятия.
type AttendanceRecord struct {
	ID          int64
	UserID      string
	SemesterID  int64
	SubjectID   int64
	SubjectName string
	Date        time.Time
	// Hours - количество пропущенных академических часов.
	Hours int
	// Excused - пропуск по уважительной причине.
	Excused    bool
	Teacher    string
	LessonType string
}

// Task - задание с дедлайном и оценкой из HEMIS.
type Task struct {
	ID          int64
	UserID      string
	SemesterID  int64
	SubjectID   int64
	SubjectName string
	Name        string
	Deadline    time.Time
	HasDeadline bool
	Status      string
	Grade       float64
	MaxGrade    float64
}

// SubjectAbsence - агрегат пропусков по предмету за семестр.
type SubjectAbsence struct {
	SubjectID   int64
	SubjectName string
	// Hours - суммарные пропущенные часы по предмету.
	Hours int
	// ExcusedHours - из них по уважительной причине.
	ExcusedHours int
}

// ══════════════════════════════════════════════════════════════════════════════
// ESSAYS
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionStatus определяет состояние сданной работы.
type SubmissionStatus string

const (
	// StatusPending - работа сдана, ожидает AI-проверки.
	StatusPending SubmissionStatus = "pending"
	// StatusAIGraded - оценена искусственным интеллектом.
	StatusAIGraded SubmissionStatus = "ai_graded"
	// StatusAppeal - студент не согласен с оценкой.
	StatusAppeal SubmissionStatus = "appeal"
	// StatusTeacherReview - на проверке у преподавателя.
	StatusTeacherReview SubmissionStatus = "teacher_review"
	// StatusDone - проверка завершена.
	StatusDone SubmissionStatus = "done"
	// StatusResubmit - преподаватель вернул работу на доработку.
	StatusResubmit SubmissionStatus = "resubmit"
)

// IsValid проверяет, что статус корректен.
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAIGraded, StatusAppeal,
		StatusTeacherReview, StatusDone, StatusResubmit:
		return true
	default:
		return false
	}
}

// Settled возвращает true, если по работе не нужны напоминания о дедлайне.
func (s SubmissionStatus) Settled() bool {
	return s == StatusAIGraded || s == StatusDone || s == StatusTeacherReview
}

// AllowsResubmission возвращает true, если работу можно пересдать.
func (s SubmissionStatus) AllowsResubmission() bool {
	return s == StatusAIGraded || s == StatusResubmit
}

// EssayTopic - тема эссе с дедлайном сдачи.
type EssayTopic struct {
	ID          int64
	Title       string
	Description string
	Deadline    time.Time
	// SubmissionType - "text" или "file".
	SubmissionType string
	CreatedAt      time.Time
}

// Submission - сданная работа по теме эссе.
type Submission struct {
	ID      int64
	UserID  string
	TopicID int64
	Content string
	Status  SubmissionStatus

	AIGrade    int
	AIFeedback string

	TeacherGrade    int
	TeacherFeedback string
	HasTeacherGrade bool

	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// FinalGrade возвращает итоговую оценку: оценка преподавателя
// имеет приоритет над оценкой AI.
func (s *Submission) FinalGrade() int {
	if s.HasTeacherGrade {
		return s.TeacherGrade
	}
	return s.AIGrade
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrSemesterNotFound - подходящий семестр не найден.
	ErrSemesterNotFound = errors.New("semester not found")

	// ErrTopicNotFound - тема эссе не найдена.
	ErrTopicNotFound = errors.New("essay topic not found")

	// ErrSubmissionNotFound - работа не найдена.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrResubmissionNotAllowed - пересдача в текущем статусе запрещена.
	ErrResubmissionNotAllowed = errors.New("resubmission is not allowed in current status")

	// ErrDeadlinePassed - дедлайн темы уже прошёл.
	ErrDeadlinePassed = errors.New("essay deadline has passed")
)
