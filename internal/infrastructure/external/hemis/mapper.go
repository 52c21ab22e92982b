package hemis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VIEW TYPES
// Flattened representations handed to the application layer.
// ══════════════════════════════════════════════════════════════════════════════

// Profile is the merged student profile from /account/me and the
// diploma document.
type Profile struct {
	StudentID      string
	FullName       string
	ShortName      string
	Email          string
	Phone          string
	ImageURL       string
	BirthDate      string
	Address        string
	GPA            string
	UniversityName string
	Group          string
	Faculty        string
	Specialty      string
	Level          string
	EducationForm  string
	EducationType  string
	DiplomaNumber  string
	DiplomaDate    string
}

// SemesterInfo is a display semester entry.
type SemesterInfo struct {
	ID      string
	Name    string
	Current bool
}

// CurriculumSemester is a curriculum-plan semester entry used by sync.
type CurriculumSemester struct {
	Code    string
	Name    string
	Current bool
}

// WeekInfo is an academic week catalog entry.
type WeekInfo struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Lesson is a single schedule entry.
type Lesson struct {
	Subject    string
	Teacher    string
	Auditorium string
	LessonType string
	PairName   string
	StartTime  string
	EndTime    string
	Date       time.Time
	WeekID     int64
	WeekStart  time.Time
	WeekEnd    time.Time
}

// TimeSlot returns the lesson time range, e.g. "08:30-09:50".
func (l Lesson) TimeSlot() string {
	return l.StartTime + "-" + l.EndTime
}

// ScheduleWeek is a week entry of the schedule view.
type ScheduleWeek struct {
	ID      int64
	Name    string
	Start   time.Time
	End     time.Time
	Current bool
}

// ScheduleDay groups the selected week's lessons by weekday.
type ScheduleDay struct {
	Name    string
	Lessons []Lesson
}

// ScheduleView is the weekly schedule as shown on the portal.
type ScheduleView struct {
	Weeks          []ScheduleWeek
	SelectedWeekID int64
	Days           []ScheduleDay
}

// AbsenceRecord is a single attendance record.
type AbsenceRecord struct {
	Subject    string
	Teacher    string
	LessonType string
	Date       time.Time
	Hours      int
	Excused    bool
}

// AttendanceSummary aggregates absence records for display.
type AttendanceSummary struct {
	TotalHours     int
	ExcusedHours   int
	UnexcusedHours int
	Records        []AbsenceRecord
}

// TaskInfo is a task entry with grade and deadline.
type TaskInfo struct {
	ID           int64
	Name         string
	Subject      string
	Deadline     time.Time
	HasDeadline  bool
	DeadlineText string
	Status       string
	Grade        float64
	MaxGrade     float64
	Percentage   int
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// Diploma attribute labels as HEMIS renders them.
const (
	diplomaNumberLabel = "Diplom raqami"
	diplomaDateLabel   = "Qayd sanasi"
)

func mapProfile(dto accountMeDTO) *Profile {
	address := dto.Address
	if address == "" && (dto.Province.Name != "" || dto.District.Name != "") {
		address = dto.Province.Name
		if dto.District.Name != "" {
			if address != "" {
				address += ", "
			}
			address += dto.District.Name
		}
	}

	return &Profile{
		StudentID:      dto.StudentIDNumber,
		FullName:       dto.FullName,
		ShortName:      dto.ShortName,
		Email:          dto.Email,
		Phone:          dto.Phone,
		ImageURL:       dto.Image,
		BirthDate:      timeutil.FormatUnixDate(dto.BirthDate),
		Address:        address,
		GPA:            dto.AvgGPA,
		UniversityName: dto.UniversityName,
		Group:          dto.Group.Name,
		Faculty:        dto.Faculty.Name,
		Specialty:      dto.Specialty.Name,
		Level:          dto.Level.Name,
		EducationForm:  dto.EducationForm.Name,
		EducationType:  dto.EducationType.Name,
	}
}

func mergeDiploma(profile *Profile, docs []documentDTO) {
	for _, doc := range docs {
		if doc.Type != "diploma" {
			continue
		}
		for _, attr := range doc.Attributes {
			switch attr.Label {
			case diplomaNumberLabel:
				profile.DiplomaNumber = attr.Value
			case diplomaDateLabel:
				profile.DiplomaDate = attr.Value
			}
		}
		return
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SEMESTER MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func mapSemesters(dtos []semesterDTO) []SemesterInfo {
	out := make([]SemesterInfo, 0, len(dtos))
	for _, dto := range dtos {
		id := dto.Code
		if id == "" {
			id = strconv.FormatInt(dto.ID, 10)
		}
		out = append(out, SemesterInfo{
			ID:      id,
			Name:    dto.Name,
			Current: dto.Current,
		})
	}

	// Numeric ids sort descending; anything non-numeric counts as 0
	// and drops to the end.
	sort.SliceStable(out, func(i, j int) bool {
		return semesterSortValue(out[i].ID) > semesterSortValue(out[j].ID)
	})
	return out
}

func semesterSortValue(id string) int {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0
	}
	return n
}

func mapWeek(dto weekDTO) WeekInfo {
	return WeekInfo{
		ID:        dto.ID,
		Name:      dto.Name,
		StartDate: timeutil.FromUnix(dto.StartDate),
		EndDate:   timeutil.FromUnix(dto.EndDate),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func mapLesson(dto lessonDTO) Lesson {
	return Lesson{
		Subject:    dto.Subject.Name,
		Teacher:    dto.Employee.Name,
		Auditorium: dto.Auditorium.Name,
		LessonType: dto.TrainingType.Name,
		PairName:   dto.LessonPair.Name,
		StartTime:  dto.LessonPair.StartTime,
		EndTime:    dto.LessonPair.EndTime,
		Date:       timeutil.FromUnix(dto.LessonDate),
		WeekID:     dto.Week,
		WeekStart:  timeutil.FromUnix(dto.WeekStartTime),
		WeekEnd:    timeutil.FromUnix(dto.WeekEndTime),
	}
}

// BuildScheduleView assembles the weekly schedule view:
//   - the week catalog is deduplicated by week id and sorted by start time,
//   - a week is current when now falls inside [start, end],
//   - the selected week is the requested one if it exists, else the
//     current one, else the first of the catalog,
//   - the selected week's lessons are grouped Monday through Saturday,
//     deduplicated by identical (time slot, subject) within a day and
//     sorted by start time.
func BuildScheduleView(lessons []Lesson, requestedWeekID int64, now time.Time) *ScheduleView {
	view := &ScheduleView{}
	if len(lessons) == 0 {
		return view
	}

	view.Weeks = collectWeeks(lessons, now)
	if len(view.Weeks) == 0 {
		return view
	}

	view.SelectedWeekID = selectWeek(view.Weeks, requestedWeekID)
	view.Days = groupByWeekday(lessons, view.SelectedWeekID)
	return view
}

func collectWeeks(lessons []Lesson, now time.Time) []ScheduleWeek {
	seen := make(map[int64]ScheduleWeek)
	for _, l := range lessons {
		if l.WeekID == 0 {
			continue
		}
		if _, ok := seen[l.WeekID]; ok {
			continue
		}
		seen[l.WeekID] = ScheduleWeek{
			ID:      l.WeekID,
			Start:   l.WeekStart,
			End:     timeutil.EndOfDay(l.WeekEnd),
			Current: timeutil.Between(now, l.WeekStart, timeutil.EndOfDay(l.WeekEnd)),
		}
	}

	weeks := make([]ScheduleWeek, 0, len(seen))
	for _, w := range seen {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool {
		return weeks[i].Start.Before(weeks[j].Start)
	})

	for i := range weeks {
		weeks[i].Name = fmt.Sprintf("%d-hafta (%s - %s)",
			i+1,
			timeutil.FormatTashkent(weeks[i].Start, "02.01"),
			timeutil.FormatTashkent(weeks[i].End, "02.01"))
	}
	return weeks
}

func selectWeek(weeks []ScheduleWeek, requested int64) int64 {
	if requested != 0 {
		for _, w := range weeks {
			if w.ID == requested {
				return w.ID
			}
		}
	}
	for _, w := range weeks {
		if w.Current {
			return w.ID
		}
	}
	return weeks[0].ID
}

func groupByWeekday(lessons []Lesson, weekID int64) []ScheduleDay {
	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}

	byDay := make(map[time.Weekday][]Lesson)
	dedup := make(map[string]struct{})
	for _, l := range lessons {
		if l.WeekID != weekID {
			continue
		}
		day := timeutil.ToTashkent(l.Date).Weekday()
		if day == time.Sunday {
			continue
		}
		key := day.String() + "|" + l.TimeSlot() + "|" + l.Subject
		if _, ok := dedup[key]; ok {
			continue
		}
		dedup[key] = struct{}{}
		byDay[day] = append(byDay[day], l)
	}

	days := make([]ScheduleDay, 0, len(weekdays))
	for _, wd := range weekdays {
		dayLessons := byDay[wd]
		sort.Slice(dayLessons, func(i, j int) bool {
			if dayLessons[i].StartTime != dayLessons[j].StartTime {
				return dayLessons[i].StartTime < dayLessons[j].StartTime
			}
			return dayLessons[i].Subject < dayLessons[j].Subject
		})
		days = append(days, ScheduleDay{
			Name:    timeutil.WeekdayNameUz(wd),
			Lessons: dayLessons,
		})
	}
	return days
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func mapAbsence(dto attendanceDTO) AbsenceRecord {
	hours := dto.AbsentOn + dto.AbsentOff
	if hours == 0 {
		// Records without explicit hours count as one pair
		hours = 2
	}
	return AbsenceRecord{
		Subject:    dto.Subject.Name,
		Teacher:    dto.Employee.Name,
		LessonType: dto.TrainingType.Name,
		Date:       timeutil.FromUnix(dto.LessonDate),
		Hours:      hours,
		Excused:    dto.Explicable,
	}
}

// SummarizeAttendance aggregates absence records into portal totals.
func SummarizeAttendance(records []AbsenceRecord) AttendanceSummary {
	summary := AttendanceSummary{Records: records}
	for _, r := range records {
		summary.TotalHours += r.Hours
		if r.Excused {
			summary.ExcusedHours += r.Hours
		} else {
			summary.UnexcusedHours += r.Hours
		}
	}
	return summary
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK MAPPING
// ══════════════════════════════════════════════════════════════════════════════

const noDeadlineText = "Muddat belgilanmagan"

func mapTask(dto taskDTO) TaskInfo {
	task := TaskInfo{
		ID:       dto.ID,
		Name:     dto.Name,
		Subject:  dto.Subject.Name,
		Status:   dto.TaskStatus.Name,
		MaxGrade: dto.MaxBall,
	}

	if dto.StudentTaskActivity != nil {
		task.Grade = dto.StudentTaskActivity.Mark
	}

	if dto.Deadline > 0 {
		task.Deadline = timeutil.FromUnix(dto.Deadline)
		task.HasDeadline = true
		task.DeadlineText = timeutil.FormatTashkent(task.Deadline, timeutil.FormatDateTime)
	} else {
		task.DeadlineText = noDeadlineText
	}

	task.Percentage = gradePercentage(task.Grade, task.MaxGrade)
	return task
}

// gradePercentage rounds half away from zero; a zero max grade yields 0.
func gradePercentage(grade, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(grade / max * 100))
}
