package hemis

import (
	"encoding/json"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// apiResponse is the generic HEMIS response envelope.
// Every endpoint wraps its payload as {"success": ..., "data": ..., "error": ...}.
type apiResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// listPayload accepts both payload shapes HEMIS uses for collections:
// a bare JSON array and an object with an "items" array.
type listPayload[T any] struct {
	Items []T
}

func (l *listPayload[T]) UnmarshalJSON(data []byte) error {
	var direct []T
	if err := json.Unmarshal(data, &direct); err == nil {
		l.Items = direct
		return nil
	}

	var wrapped struct {
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	l.Items = wrapped.Items
	return nil
}

// namedRef is a nested {"name": ...} reference used all over HEMIS payloads.
type namedRef struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

// authRequestDTO is the login payload.
type authRequestDTO struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// authDataDTO is the login response payload.
type authDataDTO struct {
	Token string `json:"token"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// accountMeDTO is the /account/me payload.
type accountMeDTO struct {
	StudentIDNumber string   `json:"student_id_number"`
	FullName        string   `json:"full_name"`
	ShortName       string   `json:"short_name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Image           string   `json:"image"`
	BirthDate       int64    `json:"birth_date"`
	Address         string   `json:"address"`
	AvgGPA          string   `json:"avg_gpa"`
	UniversityName  string   `json:"university_name"`
	Group           namedRef `json:"group"`
	Faculty         namedRef `json:"faculty"`
	Specialty       namedRef `json:"specialty"`
	Level           namedRef `json:"level"`
	EducationForm   namedRef `json:"educationForm"`
	EducationType   namedRef `json:"educationType"`
	Province        namedRef `json:"province"`
	District        namedRef `json:"district"`
}

// documentDTO is an entry of /student/document-all.
type documentDTO struct {
	Type       string                 `json:"type"`
	Name       string                 `json:"name"`
	Attributes []documentAttributeDTO `json:"attributes"`
}

type documentAttributeDTO struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ══════════════════════════════════════════════════════════════════════════════
// EDUCATION
// ══════════════════════════════════════════════════════════════════════════════

// semesterDTO is an entry of /education/semesters.
type semesterDTO struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// curriculumSemesterDTO is an entry of /education/semester,
// the lighter curriculum-plan shape used by sync and the token probe.
type curriculumSemesterDTO struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// weekDTO is an entry of /education/week.
type weekDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate int64  `json:"start_date"`
	EndDate   int64  `json:"end_date"`
}

// lessonDTO is an entry of /education/schedule.
type lessonDTO struct {
	Subject       namedRef      `json:"subject"`
	Employee      namedRef      `json:"employee"`
	Auditorium    namedRef      `json:"auditorium"`
	TrainingType  namedRef      `json:"trainingType"`
	LessonPair    lessonPairDTO `json:"lessonPair"`
	LessonDate    int64         `json:"lesson_date"`
	Week          int64         `json:"_week"`
	WeekStartTime int64         `json:"weekStartTime"`
	WeekEndTime   int64         `json:"weekEndTime"`
}

type lessonPairDTO struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// attendanceDTO is an entry of /education/attendance.
type attendanceDTO struct {
	Subject      namedRef `json:"subject"`
	Employee     namedRef `json:"employee"`
	TrainingType namedRef `json:"trainingType"`
	LessonDate   int64    `json:"lesson_date"`
	AbsentOn     int      `json:"absent_on"`
	AbsentOff    int      `json:"absent_off"`
	Explicable   bool     `json:"explicable"`
}

// taskDTO is an entry of /education/task-list and /education/performance.
type taskDTO struct {
	ID                  int64            `json:"id"`
	Name                string           `json:"name"`
	Subject             namedRef         `json:"subject"`
	Deadline            int64            `json:"deadline"`
	MaxBall             float64          `json:"max_ball"`
	TaskStatus          namedRef         `json:"taskStatus"`
	StudentTaskActivity *taskActivityDTO `json:"studentTaskActivity"`
}

type taskActivityDTO struct {
	Mark float64 `json:"mark"`
}
