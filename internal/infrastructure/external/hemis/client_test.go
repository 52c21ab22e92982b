package hemis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.RetryConfig.MaxRetries = 0
	return NewClient(cfg), srv
}

func TestAuthenticate_Success(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		w.Write([]byte(`{"success": true, "data": {"token": "tok-123"}, "error": null}`))
	}))

	token, err := client.Authenticate(context.Background(), "s12345", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestAuthenticate_RejectedCredentials(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success": false, "data": null, "error": "invalid credentials"}`))
	}))

	_, err := client.Authenticate(context.Background(), "s12345", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestProbeSemesters_ExpiredToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer dead-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := client.ProbeSemesters(context.Background(), "dead-token")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestProbeSemesters_ValidToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [], "error": null}`))
	}))

	assert.NoError(t, client.ProbeSemesters(context.Background(), "live-token"))
}

func TestFetchProfile_MergesDiploma(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/me":
			w.Write([]byte(`{"success": true, "data": {
				"student_id_number": "365221100042",
				"full_name": "KARIMOV AZIZ ANVAROVICH",
				"birth_date": 1041379200,
				"avg_gpa": "3.8",
				"group": {"name": "KI-21-02"},
				"faculty": {"name": "Kompyuter injiniring"},
				"province": {"name": "Samarqand viloyati"},
				"district": {"name": "Samarqand shahri"}
			}, "error": null}`))
		case "/student/document-all":
			w.Write([]byte(`{"success": true, "data": [
				{"type": "attestat", "attributes": [{"label": "Diplom raqami", "value": "IGNORED"}]},
				{"type": "diploma", "attributes": [
					{"label": "Diplom raqami", "value": "B 1234567"},
					{"label": "Qayd sanasi", "value": "15.06.2021"}
				]}
			], "error": null}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	profile, err := client.FetchProfile(context.Background(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "KARIMOV AZIZ ANVAROVICH", profile.FullName)
	assert.Equal(t, "KI-21-02", profile.Group)
	assert.Equal(t, "3.8", profile.GPA)
	// unix 1041379200 = 01.01.2003 UTC
	assert.Equal(t, "01.01.2003", profile.BirthDate)
	// empty address falls back to province + district
	assert.Equal(t, "Samarqand viloyati, Samarqand shahri", profile.Address)
	// only the diploma document contributes attributes
	assert.Equal(t, "B 1234567", profile.DiplomaNumber)
	assert.Equal(t, "15.06.2021", profile.DiplomaDate)
}

func TestFetchProfile_DocumentsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/me":
			w.Write([]byte(`{"success": true, "data": {"full_name": "TEST"}, "error": null}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	profile, err := client.FetchProfile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "TEST", profile.FullName)
	assert.Empty(t, profile.DiplomaNumber)
}

func TestFetchSemesters_SortsNumericDescending(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [
			{"id": 2, "code": "11", "name": "1-semestr"},
			{"id": 5, "code": "13", "name": "3-semestr", "current": true},
			{"id": 3, "code": "frozen", "name": "Akadem"},
			{"id": 4, "code": "12", "name": "2-semestr"}
		], "error": null}`))
	}))

	semesters, err := client.FetchSemesters(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, semesters, 4)

	assert.Equal(t, "13", semesters[0].ID)
	assert.True(t, semesters[0].Current)
	assert.Equal(t, "12", semesters[1].ID)
	assert.Equal(t, "11", semesters[2].ID)
	// non-numeric code sorts as 0, last
	assert.Equal(t, "frozen", semesters[3].ID)
}

func TestFetchSemesters_CodeFallsBackToID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [{"id": 42, "name": "X"}], "error": null}`))
	}))

	semesters, err := client.FetchSemesters(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, semesters, 1)
	assert.Equal(t, "42", semesters[0].ID)
}

func TestFetchAttendance_SumsHoursAndExcusedFlag(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "11", r.URL.Query().Get("semester"))
		w.Write([]byte(`{"success": true, "data": {"items": [
			{"subject": {"name": "Matematika"}, "absent_on": 1, "absent_off": 1, "explicable": true},
			{"subject": {"name": "Fizika"}, "absent_on": 0, "absent_off": 2, "explicable": false},
			{"subject": {"name": "Tarix"}}
		]}, "error": null}`))
	}))

	records, err := client.FetchAttendance(context.Background(), "tok", "11")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, 2, records[0].Hours)
	assert.True(t, records[0].Excused)
	assert.Equal(t, 2, records[1].Hours)
	assert.False(t, records[1].Excused)
	// missing hour fields count as one pair
	assert.Equal(t, 2, records[2].Hours)

	summary := SummarizeAttendance(records)
	assert.Equal(t, 6, summary.TotalHours)
	assert.Equal(t, 2, summary.ExcusedHours)
	assert.Equal(t, 4, summary.UnexcusedHours)
}

func TestFetchTasks_PercentageRounding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [
			{"name": "Amaliy ish 1", "max_ball": 30, "studentTaskActivity": {"mark": 20}},
			{"name": "Amaliy ish 2", "max_ball": 0, "studentTaskActivity": {"mark": 5}},
			{"name": "Amaliy ish 3", "max_ball": 40, "deadline": 1735603200}
		], "error": null}`))
	}))

	tasks, err := client.FetchTasks(context.Background(), "tok", "11")
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// 20/30 = 66.67 rounds to 67, not truncated to 66
	assert.Equal(t, 67, tasks[0].Percentage)
	assert.Equal(t, noDeadlineText, tasks[0].DeadlineText)
	// zero max grade never divides
	assert.Equal(t, 0, tasks[1].Percentage)
	assert.True(t, tasks[2].HasDeadline)
	assert.Equal(t, 0.0, tasks[2].Grade)
}

func TestBuildScheduleView(t *testing.T) {
	week1Start := timeutil.Date(2025, 9, 1)
	week1End := timeutil.Date(2025, 9, 7)
	week2Start := timeutil.Date(2025, 9, 8)
	week2End := timeutil.Date(2025, 9, 14)

	lesson := func(weekID int64, start, end time.Time, date time.Time, slot, subject string) Lesson {
		return Lesson{
			Subject:   subject,
			StartTime: slot,
			Date:      date,
			WeekID:    weekID,
			WeekStart: start,
			WeekEnd:   end,
		}
	}

	lessons := []Lesson{
		lesson(102, week2Start, week2End, timeutil.Date(2025, 9, 9), "10:00", "Fizika"),
		lesson(101, week1Start, week1End, timeutil.Date(2025, 9, 1), "10:00", "Matematika"),
		lesson(101, week1Start, week1End, timeutil.Date(2025, 9, 1), "08:30", "Tarix"),
		// duplicate (slot, subject) on the same day collapses
		lesson(101, week1Start, week1End, timeutil.Date(2025, 9, 1), "10:00", "Matematika"),
		// Sunday lessons are dropped
		lesson(101, week1Start, week1End, timeutil.Date(2025, 9, 7), "08:30", "Fizika"),
	}

	now := timeutil.DateTime(2025, 9, 3, 12, 0, 0)
	view := BuildScheduleView(lessons, 0, now)

	require.Len(t, view.Weeks, 2)
	// sorted by start, named by position
	assert.Equal(t, int64(101), view.Weeks[0].ID)
	assert.Equal(t, "1-hafta (01.09 - 07.09)", view.Weeks[0].Name)
	assert.True(t, view.Weeks[0].Current)
	assert.False(t, view.Weeks[1].Current)

	// no explicit request, current week wins
	assert.Equal(t, int64(101), view.SelectedWeekID)

	require.Len(t, view.Days, 6)
	monday := view.Days[0]
	assert.Equal(t, "Dushanba", monday.Name)
	require.Len(t, monday.Lessons, 2)
	// sorted by start time
	assert.Equal(t, "Tarix", monday.Lessons[0].Subject)
	assert.Equal(t, "Matematika", monday.Lessons[1].Subject)
}

func TestBuildScheduleView_WeekSelection(t *testing.T) {
	week1Start := timeutil.Date(2025, 9, 1)
	week1End := timeutil.Date(2025, 9, 7)
	week2Start := timeutil.Date(2025, 9, 8)
	week2End := timeutil.Date(2025, 9, 14)

	lessons := []Lesson{
		{Subject: "A", WeekID: 101, WeekStart: week1Start, WeekEnd: week1End, Date: week1Start},
		{Subject: "B", WeekID: 102, WeekStart: week2Start, WeekEnd: week2End, Date: week2Start},
	}

	// requested week exists
	now := timeutil.DateTime(2025, 9, 3, 12, 0, 0)
	view := BuildScheduleView(lessons, 102, now)
	assert.Equal(t, int64(102), view.SelectedWeekID)

	// unknown request falls back to the current week
	view = BuildScheduleView(lessons, 999, now)
	assert.Equal(t, int64(101), view.SelectedWeekID)

	// outside any week the first one is selected
	outside := timeutil.DateTime(2026, 1, 1, 12, 0, 0)
	view = BuildScheduleView(lessons, 0, outside)
	assert.Equal(t, int64(101), view.SelectedWeekID)
}

func TestFetchLessons_ServerErrorRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultClientConfig(srv.URL)
	cfg.RetryConfig = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	client := NewClient(cfg)

	_, err := client.FetchLessons(context.Background(), "tok", "11")
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestGradePercentage(t *testing.T) {
	assert.Equal(t, 67, gradePercentage(20, 30))
	assert.Equal(t, 50, gradePercentage(1, 2))
	assert.Equal(t, 0, gradePercentage(5, 0))
	assert.Equal(t, 100, gradePercentage(30, 30))
	assert.Equal(t, 83, gradePercentage(25, 30))
}
