// Package http - portal endpoint handlers.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/application/auth"
	"github.com/hemis-hub/hemis-student-hub/internal/application/chat"
	"github.com/hemis-hub/hemis-student-hub/internal/application/grading"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "HEMIS Student Hub API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":   "/health",
			"login":    "/api/v1/auth/login",
			"profile":  "/api/v1/me",
			"schedule": "/api/v1/schedule",
			"essays":   "/api/v1/essays",
			"chat":     "/api/v1/chat",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type userView struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Role           string `json:"role"`
	FullName       string `json:"full_name,omitempty"`
	GroupName      string `json:"group_name,omitempty"`
	TelegramLinked bool   `json:"telegram_linked"`
	LastSyncedAt   string `json:"last_synced_at,omitempty"`
}

func newUserView(u *user.User) userView {
	view := userView{
		ID:             u.ID,
		Username:       u.Username,
		Role:           string(u.Role),
		FullName:       u.FullName,
		GroupName:      u.GroupName,
		TelegramLinked: u.IsLinked(),
	}
	if !u.LastSyncedAt.IsZero() {
		view.LastSyncedAt = u.LastSyncedAt.UTC().Format(time.RFC3339)
	}
	return view
}

// handleLogin verifies credentials and issues a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Username and password are required")
		return
	}

	u, err := s.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", "Login or password is incorrect")
			return
		}
		s.logger.Error("login failed", logger.Username(req.Username), logger.Err(err))
		writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "Authentication service is unavailable")
		return
	}

	token, err := s.sessions.Create(r.Context(), u.ID)
	if err != nil {
		s.logger.Error("session create failed", logger.UserID(u.ID), logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "Could not create session")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: newUserView(u)})
}

// handleLogout invalidates the current session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(r.Context(), sessionToken(r.Context())); err != nil {
		s.logger.Warn("session destroy failed", logger.Err(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// handleProfile returns the student's HEMIS profile. Responses are
// cached; local accounts only get their portal record.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())

	if u.Role.IsLocal() {
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": newUserView(u)})
		return
	}

	if s.deps.Profiles != nil {
		if profile, err := s.deps.Profiles.Get(r.Context(), u.ID); err == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"user":    newUserView(u),
				"profile": profile,
			})
			return
		}
	}

	token, err := s.deps.Tokens.EnsureValid(r.Context(), u)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	profile, err := s.deps.Hemis.FetchProfile(r.Context(), token)
	if err != nil {
		s.logger.Error("profile fetch failed", logger.UserID(u.ID), logger.Err(err))
		writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "HEMIS is unavailable")
		return
	}

	if s.deps.Profiles != nil {
		s.deps.Profiles.Put(r.Context(), u.ID, profile)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    newUserView(u),
		"profile": profile,
	})
}

// handleSync runs a full record pull for the signed-in student.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())
	if u.Role.IsLocal() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Only student accounts have HEMIS records")
		return
	}

	result, err := s.deps.Sync.Sync(r.Context(), u)
	if err != nil {
		// A partial result means some categories were refreshed.
		if result == nil {
			s.writeDomainError(w, err)
			return
		}
		s.logger.Warn("partial sync", logger.UserID(u.ID), logger.Err(err))
	}

	if s.deps.Profiles != nil {
		s.deps.Profiles.Invalidate(r.Context(), u.ID)
	}

	writeJSON(w, http.StatusOK, result)
}

// resolveSemester picks the semester from the query string, falling
// back to the current one.
func (s *Server) resolveSemester(r *http.Request) (*education.Semester, error) {
	code := r.URL.Query().Get("semester")
	if code == "" {
		return s.deps.Education.GetCurrentSemester(r.Context())
	}

	semesters, err := s.deps.Education.ListSemesters(r.Context())
	if err != nil {
		return nil, err
	}
	for _, semester := range semesters {
		if semester.Code.String() == code {
			return semester, nil
		}
	}
	return nil, education.ErrSemesterNotFound
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())

	semester, err := s.resolveSemester(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	entries, err := s.deps.Education.ScheduleForUser(r.Context(), u.ID, semester.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"semester": semester,
		"schedule": entries,
	})
}

func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())

	semester, err := s.resolveSemester(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	records, err := s.deps.Education.AttendanceForUser(r.Context(), u.ID, semester.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	totals, err := s.deps.Education.AbsenceBySubject(r.Context(), u.ID, semester.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"semester": semester,
		"records":  records,
		"totals":   totals,
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())

	semester, err := s.resolveSemester(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	tasks, err := s.deps.Education.TasksForUser(r.Context(), u.ID, semester.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"semester": semester,
		"tasks":    tasks,
	})
}

func (s *Server) handleGrades(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	grades, err := s.deps.Education.RecentGrades(r.Context(), u.ID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"grades": grades})
}

// ══════════════════════════════════════════════════════════════════════════════
// ESSAYS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.deps.Essays.ListTopics(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topics": topics})
}

type createTopicRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Deadline       string `json:"deadline"`
	SubmissionType string `json:"submission_type"`
}

// handleCreateTopic publishes a new essay topic. Teacher and admin only.
func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())
	if !u.Role.IsLocal() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Only teachers can create topics")
		return
	}

	var req createTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Title is required")
		return
	}

	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Deadline must be RFC 3339")
		return
	}
	if deadline.Before(timeutil.Now()) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Deadline is already in the past")
		return
	}

	submissionType := req.SubmissionType
	if submissionType == "" {
		submissionType = "text"
	}

	topic := &education.EssayTopic{
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Deadline:       deadline,
		SubmissionType: submissionType,
	}
	if err := s.deps.Essays.CreateTopic(r.Context(), topic); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, topic)
}

// topicID parses the {id} path segment.
func topicID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid topic id")
		return
	}

	topic, err := s.deps.Essays.GetTopic(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	u := requestUser(r.Context())
	response := map[string]interface{}{"topic": topic}
	if submission, err := s.deps.Essays.GetSubmission(r.Context(), u.ID, id); err == nil {
		response["submission"] = submission
	}

	writeJSON(w, http.StatusOK, response)
}

type submitEssayRequest struct {
	Content string `json:"content"`
}

// handleSubmitEssay accepts a submission and grades it with AI.
func (s *Server) handleSubmitEssay(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid topic id")
		return
	}

	var req submitEssayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Essay content is required")
		return
	}

	u := requestUser(r.Context())
	submission, err := s.deps.Submissions.Submit(r.Context(), u.ID, id, req.Content)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submission)
}

// handleAppeal disputes an AI grade.
func (s *Server) handleAppeal(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid topic id")
		return
	}

	u := requestUser(r.Context())
	submission, err := s.deps.Submissions.Appeal(r.Context(), u.ID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submission)
}

type teacherGradeRequest struct {
	UserID   string `json:"user_id"`
	Grade    int    `json:"grade"`
	Feedback string `json:"feedback"`
	Resubmit bool   `json:"resubmit"`
}

// handleTeacherGrade records the final teacher grade for a submission.
func (s *Server) handleTeacherGrade(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())
	if !u.Role.IsLocal() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Only teachers can grade submissions")
		return
	}

	id, ok := topicID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid topic id")
		return
	}

	var req teacherGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return
	}
	if req.UserID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	submission, err := s.deps.Submissions.TeacherGrade(r.Context(), req.UserID, id, req.Grade, req.Feedback, req.Resubmit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submission)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())

	submissions, err := s.deps.Essays.ListSubmissionsForUser(r.Context(), u.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"submissions": submissions})
}

// ══════════════════════════════════════════════════════════════════════════════
// AI CHAT
// ══════════════════════════════════════════════════════════════════════════════

type chatRequest struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

// handleChat forwards the question to the chosen assistant.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Message is required")
		return
	}
	if req.Agent == "" {
		req.Agent = string(chat.AgentGeneral)
	}

	u := requestUser(r.Context())
	answer, err := s.deps.Chat.Ask(r.Context(), u, chat.Agent(req.Agent), req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrUnknownAgent) {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Unknown chat agent")
			return
		}
		s.logger.Error("chat failed", logger.UserID(u.ID), logger.Err(err))
		writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "AI assistant is unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  req.Agent,
		"answer": answer,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITING EXAM
// ══════════════════════════════════════════════════════════════════════════════

type examGradeRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// handleExamGrade grades a single written exam answer. Teachers run it
// against answers collected outside the portal.
func (s *Server) handleExamGrade(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r.Context())
	if !u.Role.IsLocal() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Only teachers can grade exams")
		return
	}
	if s.deps.Exams == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_configured", "Exam grading is not configured")
		return
	}

	var req examGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Question and answer are required")
		return
	}

	result, err := s.deps.Exams.Grade(r.Context(), req.Question, req.Answer)
	if err != nil {
		s.logger.Error("exam grading failed", logger.UserID(u.ID), logger.Err(err))
		writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "AI grading is unavailable")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError translates domain errors into HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, education.ErrSemesterNotFound):
		writeJSONError(w, http.StatusNotFound, "semester_not_found", "No semester data; run a sync first")
	case errors.Is(err, education.ErrTopicNotFound):
		writeJSONError(w, http.StatusNotFound, "topic_not_found", "Essay topic not found")
	case errors.Is(err, education.ErrSubmissionNotFound):
		writeJSONError(w, http.StatusNotFound, "submission_not_found", "Submission not found")
	case errors.Is(err, education.ErrDeadlinePassed):
		writeJSONError(w, http.StatusConflict, "deadline_passed", "The essay deadline has passed")
	case errors.Is(err, education.ErrResubmissionNotAllowed):
		writeJSONError(w, http.StatusConflict, "resubmission_not_allowed", "Submission cannot be replaced in its current status")
	case errors.Is(err, grading.ErrAppealNotAllowed):
		writeJSONError(w, http.StatusConflict, "appeal_not_allowed", "Only AI-graded work can be appealed")
	case errors.Is(err, grading.ErrInvalidGrade):
		writeJSONError(w, http.StatusBadRequest, "invalid_grade", "Grade must be between 0 and 100")
	case errors.Is(err, user.ErrNoCredentials):
		writeJSONError(w, http.StatusConflict, "no_credentials", "No stored HEMIS credentials; sign in again")
	case errors.Is(err, user.ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, "user_not_found", "User not found")
	default:
		s.logger.Error("request failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}
