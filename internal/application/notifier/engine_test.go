package notifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/notification"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeUsers struct {
	user.Repository
	linked []*user.User
}

func (f *fakeUsers) ListLinked(ctx context.Context) ([]*user.User, error) {
	return f.linked, nil
}

type fakeEssays struct {
	education.EssayRepository
	topics  []*education.EssayTopic
	settled map[string]bool // userID:topicID
}

func (f *fakeEssays) UpcomingTopics(ctx context.Context, after, until time.Time) ([]*education.EssayTopic, error) {
	var out []*education.EssayTopic
	for _, t := range f.topics {
		if t.Deadline.After(after) && !t.Deadline.After(until) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeEssays) HasSettledSubmission(ctx context.Context, userID string, topicID int64) (bool, error) {
	return f.settled[fmt.Sprintf("%s:%d", userID, topicID)], nil
}

type fakeEducation struct {
	education.Repository
	semester *education.Semester
	absences map[string][]*education.SubjectAbsence
}

func (f *fakeEducation) GetCurrentSemester(ctx context.Context) (*education.Semester, error) {
	if f.semester == nil {
		return nil, education.ErrSemesterNotFound
	}
	return f.semester, nil
}

func (f *fakeEducation) AbsenceBySubject(ctx context.Context, userID string, semesterID int64) ([]*education.SubjectAbsence, error) {
	return f.absences[userID], nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	sent    []sentMessage
	failFor map[int64]error
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	if err := f.failFor[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

var baseTime = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func linkedStudent(id string, chatID int64) *user.User {
	return &user.User{ID: id, TelegramChatID: user.TelegramChatID(chatID)}
}

type engineFixture struct {
	engine    *Engine
	users     *fakeUsers
	essays    *fakeEssays
	education *fakeEducation
	ledger    *notification.MemoryLedger
	messenger *fakeMessenger
}

func newFixture() *engineFixture {
	f := &engineFixture{
		users:     &fakeUsers{linked: []*user.User{linkedStudent("u-1", 100)}},
		essays:    &fakeEssays{settled: make(map[string]bool)},
		education: &fakeEducation{semester: &education.Semester{ID: 1, Code: "12"}, absences: make(map[string][]*education.SubjectAbsence)},
		ledger:    notification.NewMemoryLedger(),
		messenger: &fakeMessenger{failFor: make(map[int64]error)},
	}
	f.engine = NewEngine(f.users, f.essays, f.education, f.ledger, f.messenger, DefaultConfig(), nil)
	f.engine.now = func() time.Time { return baseTime }
	return f
}

// ─────────────────────────────────────────────────────────────────────────────
// Deadline reminder tests
// ─────────────────────────────────────────────────────────────────────────────

func TestCheckDeadlines_OneDayWindowFiresOnce(t *testing.T) {
	f := newFixture()
	f.essays.topics = []*education.EssayTopic{
		{ID: 5, Title: "Milliy g'oya", Deadline: baseTime.Add(24*time.Hour + 10*time.Minute)},
	}

	require.NoError(t, f.engine.CheckDeadlines(context.Background()))
	require.Len(t, f.messenger.sent, 1)
	assert.Equal(t, int64(100), f.messenger.sent[0].chatID)
	assert.Contains(t, f.messenger.sent[0].text, "Milliy g'oya")
	assert.Contains(t, f.messenger.sent[0].text, "1 kun")

	// Second poll in the same window stays silent
	require.NoError(t, f.engine.CheckDeadlines(context.Background()))
	assert.Len(t, f.messenger.sent, 1)
}

func TestCheckDeadlines_TwoHourWindow(t *testing.T) {
	f := newFixture()
	f.essays.topics = []*education.EssayTopic{
		{ID: 6, Title: "Iqtisodiyot", Deadline: baseTime.Add(2 * time.Hour)},
	}

	require.NoError(t, f.engine.CheckDeadlines(context.Background()))

	require.Len(t, f.messenger.sent, 1)
	assert.Contains(t, f.messenger.sent[0].text, "2 soat")
}

func TestCheckDeadlines_BothWindowsAreIndependent(t *testing.T) {
	f := newFixture()
	topic := &education.EssayTopic{ID: 7, Title: "Falsafa", Deadline: baseTime.Add(24 * time.Hour)}
	f.essays.topics = []*education.EssayTopic{topic}

	// 1-day reminder now
	require.NoError(t, f.engine.CheckDeadlines(context.Background()))
	require.Len(t, f.messenger.sent, 1)

	// 22 hours later the 2-hours window opens for the same topic
	f.engine.now = func() time.Time { return baseTime.Add(22 * time.Hour) }
	require.NoError(t, f.engine.CheckDeadlines(context.Background()))
	require.Len(t, f.messenger.sent, 2)
	assert.Contains(t, f.messenger.sent[1].text, "2 soat")
}

func TestCheckDeadlines_OutsideWindowsSilent(t *testing.T) {
	f := newFixture()
	f.essays.topics = []*education.EssayTopic{
		{ID: 8, Title: "A", Deadline: baseTime.Add(12 * time.Hour)},
		{ID: 9, Title: "B", Deadline: baseTime.Add(30 * time.Minute)},
	}

	require.NoError(t, f.engine.CheckDeadlines(context.Background()))

	assert.Empty(t, f.messenger.sent)
}

func TestDeadlineWindow_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		left   time.Duration
		window notification.Window
		due    bool
	}{
		{"upper edge of the 1-day window is inside", 24*time.Hour + 30*time.Minute, notification.WindowOneDay, true},
		{"middle of the 1-day window", 24 * time.Hour, notification.WindowOneDay, true},
		{"lower edge of the 1-day window is outside", 23 * time.Hour, "", false},
		{"just above the 1-day lower edge", 23*time.Hour + time.Minute, notification.WindowOneDay, true},
		{"just past the 1-day upper edge", 24*time.Hour + 31*time.Minute, "", false},
		{"upper edge of the 2-hours window is inside", 2*time.Hour + 30*time.Minute, notification.WindowTwoHours, true},
		{"middle of the 2-hours window", 2 * time.Hour, notification.WindowTwoHours, true},
		{"lower edge of the 2-hours window is outside", time.Hour, "", false},
		{"just above the 2-hours lower edge", time.Hour + time.Minute, notification.WindowTwoHours, true},
		{"between the windows", 12 * time.Hour, "", false},
		{"deadline already passed", -time.Hour, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, due := deadlineWindow(baseTime, baseTime.Add(tt.left))

			assert.Equal(t, tt.due, due)
			assert.Equal(t, tt.window, window)
		})
	}
}

func TestCheckDeadlines_SettledSubmissionSkipped(t *testing.T) {
	f := newFixture()
	f.essays.topics = []*education.EssayTopic{
		{ID: 10, Title: "Tarix", Deadline: baseTime.Add(24 * time.Hour)},
	}
	f.essays.settled["u-1:10"] = true

	require.NoError(t, f.engine.CheckDeadlines(context.Background()))

	assert.Empty(t, f.messenger.sent)
}

func TestCheckDeadlines_FailedDispatchRetriesNextCycle(t *testing.T) {
	f := newFixture()
	f.essays.topics = []*education.EssayTopic{
		{ID: 11, Title: "Adabiyot", Deadline: baseTime.Add(24 * time.Hour)},
	}
	f.messenger.failFor[100] = errors.New("telegram 502")

	require.NoError(t, f.engine.CheckDeadlines(context.Background()))
	assert.Empty(t, f.messenger.sent)

	// Telegram recovers; the alert was never recorded, so it fires now
	delete(f.messenger.failFor, 100)
	require.NoError(t, f.engine.CheckDeadlines(context.Background()))
	assert.Len(t, f.messenger.sent, 1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Absence warning tests
// ─────────────────────────────────────────────────────────────────────────────

func TestCheckAbsences_ThresholdAndGrowth(t *testing.T) {
	f := newFixture()

	// 4 hours: below threshold, silent
	f.education.absences["u-1"] = []*education.SubjectAbsence{
		{SubjectID: 3, SubjectName: "Matematika", Hours: 4},
	}
	require.NoError(t, f.engine.CheckAbsences(context.Background()))
	assert.Empty(t, f.messenger.sent)

	// 5 hours: one warning
	f.education.absences["u-1"][0].Hours = 5
	require.NoError(t, f.engine.CheckAbsences(context.Background()))
	require.Len(t, f.messenger.sent, 1)
	assert.Contains(t, f.messenger.sent[0].text, "Matematika")
	assert.Contains(t, f.messenger.sent[0].text, "5 soat")

	// Still 5 hours: silent
	require.NoError(t, f.engine.CheckAbsences(context.Background()))
	assert.Len(t, f.messenger.sent, 1)

	// Grown to 7 hours: exactly one more warning
	f.education.absences["u-1"][0].Hours = 7
	require.NoError(t, f.engine.CheckAbsences(context.Background()))
	require.Len(t, f.messenger.sent, 2)
	assert.Contains(t, f.messenger.sent[1].text, "7 soat")
}

func TestCheckAbsences_PerSubjectKeys(t *testing.T) {
	f := newFixture()
	f.education.absences["u-1"] = []*education.SubjectAbsence{
		{SubjectID: 3, SubjectName: "Matematika", Hours: 6},
		{SubjectID: 4, SubjectName: "Fizika", Hours: 8},
		{SubjectID: 5, SubjectName: "Kimyo", Hours: 2},
	}

	require.NoError(t, f.engine.CheckAbsences(context.Background()))

	assert.Len(t, f.messenger.sent, 2, "only subjects at or over the threshold warn")
}

func TestCheckAbsences_PerUserIsolation(t *testing.T) {
	f := newFixture()
	f.users.linked = append(f.users.linked, linkedStudent("u-2", 200))
	f.education.absences["u-1"] = []*education.SubjectAbsence{
		{SubjectID: 3, SubjectName: "Matematika", Hours: 6},
	}
	f.education.absences["u-2"] = []*education.SubjectAbsence{
		{SubjectID: 3, SubjectName: "Matematika", Hours: 6},
	}

	require.NoError(t, f.engine.CheckAbsences(context.Background()))

	assert.Len(t, f.messenger.sent, 2, "same key fires independently per user")
}
