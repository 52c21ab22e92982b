package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemis-hub/hemis-student-hub/internal/application/auth"
	"github.com/hemis-hub/hemis-student-hub/internal/application/chat"
	"github.com/hemis-hub/hemis-student-hub/internal/application/grading"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/gemini"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

type fakeUsers struct {
	user.Repository

	byID       map[string]*user.User
	byUsername map[string]*user.User
}

func newFakeUsers(users ...*user.User) *fakeUsers {
	f := &fakeUsers{
		byID:       make(map[string]*user.User),
		byUsername: make(map[string]*user.User),
	}
	for _, u := range users {
		f.byID[u.ID] = u
		f.byUsername[u.Username] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*user.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	f.byID[u.ID] = u
	f.byUsername[u.Username] = u
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u *user.User) error {
	f.byID[u.ID] = u
	f.byUsername[u.Username] = u
	return nil
}

type fakeHemis struct {
	token string
	err   error
}

func (f *fakeHemis) Authenticate(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeHemis) FetchProfile(_ context.Context, _ string) (*hemis.Profile, error) {
	return &hemis.Profile{FullName: "Test Student"}, nil
}

type memEssays struct {
	education.EssayRepository

	nextTopicID int64
	nextSubID   int64
	topics      map[int64]*education.EssayTopic
	subs        map[string]*education.Submission
}

func newMemEssays() *memEssays {
	return &memEssays{
		topics: make(map[int64]*education.EssayTopic),
		subs:   make(map[string]*education.Submission),
	}
}

func subKey(userID string, topicID int64) string {
	return fmt.Sprintf("%s:%d", userID, topicID)
}

func (m *memEssays) CreateTopic(_ context.Context, t *education.EssayTopic) error {
	m.nextTopicID++
	t.ID = m.nextTopicID
	t.CreatedAt = time.Now()
	m.topics[t.ID] = t
	return nil
}

func (m *memEssays) GetTopic(_ context.Context, id int64) (*education.EssayTopic, error) {
	t, ok := m.topics[id]
	if !ok {
		return nil, education.ErrTopicNotFound
	}
	return t, nil
}

func (m *memEssays) ListTopics(_ context.Context) ([]*education.EssayTopic, error) {
	var out []*education.EssayTopic
	for _, t := range m.topics {
		out = append(out, t)
	}
	return out, nil
}

func (m *memEssays) CreateSubmission(_ context.Context, s *education.Submission) error {
	key := subKey(s.UserID, s.TopicID)
	if _, ok := m.subs[key]; ok {
		return education.ErrResubmissionNotAllowed
	}
	m.nextSubID++
	s.ID = m.nextSubID
	s.SubmittedAt = time.Now()
	m.subs[key] = s
	return nil
}

func (m *memEssays) UpdateSubmission(_ context.Context, s *education.Submission) error {
	m.subs[subKey(s.UserID, s.TopicID)] = s
	return nil
}

func (m *memEssays) GetSubmission(_ context.Context, userID string, topicID int64) (*education.Submission, error) {
	s, ok := m.subs[subKey(userID, topicID)]
	if !ok {
		return nil, education.ErrSubmissionNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memEssays) ListSubmissionsForUser(_ context.Context, userID string) ([]*education.Submission, error) {
	var out []*education.Submission
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeEducation struct {
	education.Repository

	semester education.Semester
	schedule []*education.ScheduleEntry
}

func (f *fakeEducation) GetCurrentSemester(_ context.Context) (*education.Semester, error) {
	if f.semester.ID == 0 {
		return nil, education.ErrSemesterNotFound
	}
	s := f.semester
	return &s, nil
}

func (f *fakeEducation) ListSemesters(_ context.Context) ([]*education.Semester, error) {
	if f.semester.ID == 0 {
		return nil, nil
	}
	s := f.semester
	return []*education.Semester{&s}, nil
}

func (f *fakeEducation) ScheduleForUser(_ context.Context, _ string, _ int64) ([]*education.ScheduleEntry, error) {
	return f.schedule, nil
}

type fakeGenerator struct {
	answer string
}

func (f *fakeGenerator) Generate(_ context.Context, _ gemini.GenerateParams) (string, error) {
	return f.answer, nil
}

func (f *fakeGenerator) GenerateWithModel(_ context.Context, _ string, _ gemini.GenerateParams) (string, error) {
	return f.answer, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type portalFixture struct {
	server    *httptest.Server
	users     *fakeUsers
	essays    *memEssays
	education *fakeEducation
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()

	teacher := &user.User{ID: "t-1", Username: "adams", Role: user.RoleTeacher}
	require.NoError(t, teacher.SetPassword("teach-pass"))

	users := newFakeUsers(teacher)
	essays := newMemEssays()
	educationRepo := &fakeEducation{
		semester: education.Semester{ID: 7, Code: "12", Name: "6-semestr", Current: true},
		schedule: []*education.ScheduleEntry{
			{SubjectName: "Matematika", WeekDay: "Dushanba", StartTime: "08:30"},
		},
	}

	grader := grading.NewEssayGrader(&fakeGenerator{answer: `{"grade": 85, "feedback": "Yaxshi ish"}`}, nil)
	submissions := grading.NewSubmissionService(essays, grader, nil)
	chatSvc := chat.NewService(&fakeGenerator{answer: "Javob tayyor."}, educationRepo, nil)
	examGrader := grading.NewExamGrader(&fakeGenerator{answer: `{"grade": 72, "feedback": "Qoniqarli"}`}, "gemini-2.0-flash", nil)
	authSvc := auth.NewService(users, &fakeHemis{token: "hemis-token"}, nil, nil)

	config := DefaultConfig()
	config.RateLimitPerMinute = 0

	server := NewServer(config, Dependencies{
		Auth:        authSvc,
		Users:       users,
		Education:   educationRepo,
		Essays:      essays,
		Submissions: submissions,
		Chat:        chatSvc,
		Exams:       examGrader,
	})

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &portalFixture{server: ts, users: users, essays: essays, education: educationRepo}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (f *portalFixture) request(t *testing.T, method, path, token string, body interface{}) (int, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func (f *portalFixture) login(t *testing.T, username, password string) string {
	t.Helper()

	status, resp := f.request(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, status)

	var payload loginResponse
	require.NoError(t, json.Unmarshal(resp.Data, &payload))
	require.NotEmpty(t, payload.Token)
	return payload.Token
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_LoginIssuesSession(t *testing.T) {
	f := newPortalFixture(t)

	token := f.login(t, "adams", "teach-pass")

	status, resp := f.request(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), `"adams"`)
}

func TestServer_LoginWrongPassword(t *testing.T) {
	f := newPortalFixture(t)

	status, resp := f.request(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: "adams",
		Password: "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_credentials", resp.Error.Code)
}

func TestServer_StudentFirstLoginRegisters(t *testing.T) {
	f := newPortalFixture(t)

	token := f.login(t, "362231100999", "s3cret")
	assert.NotEmpty(t, token)

	u, err := f.users.GetByUsername(context.Background(), "362231100999")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, u.Role)
}

func TestServer_UnauthorizedWithoutToken(t *testing.T) {
	f := newPortalFixture(t)

	status, resp := f.request(t, http.MethodGet, "/api/v1/schedule", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", resp.Error.Code)
}

func TestServer_LogoutInvalidatesSession(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "adams", "teach-pass")

	status, _ := f.request(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = f.request(t, http.MethodGet, "/api/v1/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_ScheduleView(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "362231100999", "s3cret")

	status, resp := f.request(t, http.MethodGet, "/api/v1/schedule", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), "Matematika")
	assert.Contains(t, string(resp.Data), "Dushanba")
}

func TestServer_UnknownSemester(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "362231100999", "s3cret")

	status, resp := f.request(t, http.MethodGet, "/api/v1/schedule?semester=99", token, nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "semester_not_found", resp.Error.Code)
}

func TestServer_EssayLifecycle(t *testing.T) {
	f := newPortalFixture(t)
	teacherToken := f.login(t, "adams", "teach-pass")
	studentToken := f.login(t, "362231100999", "s3cret")

	// Teacher publishes a topic.
	status, resp := f.request(t, http.MethodPost, "/api/v1/essays", teacherToken, createTopicRequest{
		Title:    "Raqamli iqtisodiyot",
		Deadline: time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, status)

	var topic education.EssayTopic
	require.NoError(t, json.Unmarshal(resp.Data, &topic))
	require.NotZero(t, topic.ID)

	// Student submits and gets the AI grade.
	path := fmt.Sprintf("/api/v1/essays/%d/submission", topic.ID)
	status, resp = f.request(t, http.MethodPost, path, studentToken, submitEssayRequest{
		Content: "Raqamli iqtisodiyot haqida esse.",
	})
	require.Equal(t, http.StatusCreated, status)

	var submission education.Submission
	require.NoError(t, json.Unmarshal(resp.Data, &submission))
	assert.Equal(t, 85, submission.AIGrade)
	assert.Equal(t, education.StatusAIGraded, submission.Status)

	// Student appeals.
	status, _ = f.request(t, http.MethodPost, fmt.Sprintf("/api/v1/essays/%d/appeal", topic.ID), studentToken, nil)
	require.Equal(t, http.StatusOK, status)

	// Teacher settles the appeal with a final grade.
	studentUser, err := f.users.GetByUsername(context.Background(), "362231100999")
	require.NoError(t, err)

	status, resp = f.request(t, http.MethodPost, fmt.Sprintf("/api/v1/essays/%d/grade", topic.ID), teacherToken, teacherGradeRequest{
		UserID:   studentUser.ID,
		Grade:    92,
		Feedback: "A'lo daraja.",
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &submission))
	assert.Equal(t, education.StatusDone, submission.Status)
	assert.Equal(t, 92, submission.FinalGrade())
}

func TestServer_StudentCannotCreateTopics(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "362231100999", "s3cret")

	status, resp := f.request(t, http.MethodPost, "/api/v1/essays", token, createTopicRequest{
		Title:    "Mavzu",
		Deadline: time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", resp.Error.Code)
}

func TestServer_ChatEndpoint(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "362231100999", "s3cret")

	status, resp := f.request(t, http.MethodPost, "/api/v1/chat", token, chatRequest{
		Agent:   "general",
		Message: "Salom!",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), "Javob tayyor.")
}

func TestServer_ChatUnknownAgent(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "362231100999", "s3cret")

	status, resp := f.request(t, http.MethodPost, "/api/v1/chat", token, chatRequest{
		Agent:   "oracle",
		Message: "Salom!",
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", resp.Error.Code)
}

func TestServer_ExamGrade(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "adams", "teach-pass")

	status, resp := f.request(t, http.MethodPost, "/api/v1/exams/grade", token, examGradeRequest{
		Question: "Fotosintez nima?",
		Answer:   "O'simliklar yorug'lik energiyasidan foydalanadi.",
	})
	require.Equal(t, http.StatusOK, status)

	var result grading.GradeResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 72, result.Grade)
	assert.Equal(t, "Qoniqarli", result.Feedback)
}

func TestServer_ExamGradeStudentForbidden(t *testing.T) {
	f := newPortalFixture(t)
	token := f.login(t, "362231100999", "s3cret")

	status, resp := f.request(t, http.MethodPost, "/api/v1/exams/grade", token, examGradeRequest{
		Question: "Fotosintez nima?",
		Answer:   "Bilmayman.",
	})
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", resp.Error.Code)
}
