// Package hemis implements the university HEMIS REST API client.
// This package handles all communication with the academic records system:
// authentication, profile, semesters, schedule, attendance and tasks.
package hemis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrTokenExpired is returned when HEMIS rejects the bearer token (HTTP 401).
	ErrTokenExpired = errors.New("hemis token expired or invalid")

	// ErrAuthFailed is returned when login credentials are rejected.
	ErrAuthFailed = errors.New("hemis authentication failed")
)

// APIError describes a non-success HEMIS response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hemis api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hemis api error: status %d", e.StatusCode)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RetryConfig controls retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// CalculateBackoff returns the exponential backoff delay for an attempt.
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// ClientConfig contains configuration for the HEMIS API client.
type ClientConfig struct {
	// BaseURL is the HEMIS REST base URL, including /rest/v1
	BaseURL string

	// Timeout is the HTTP request timeout, applies to every operation
	Timeout time.Duration

	// RetryConfig for transient failures
	RetryConfig RetryConfig

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables request logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:     baseURL,
		Timeout:     10 * time.Second,
		RetryConfig: DefaultRetryConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the HEMIS REST API client. Tokens are per-user, so every
// authenticated operation takes the bearer token explicitly.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new HEMIS API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// Authenticate logs a student in with HEMIS credentials and returns
// a bearer token. Returns ErrAuthFailed when credentials are rejected.
func (c *Client) Authenticate(ctx context.Context, login, password string) (string, error) {
	body := authRequestDTO{Login: login, Password: password}

	var response apiResponse[authDataDTO]
	err := c.doRequest(ctx, http.MethodPost, "/auth/login", "", body, &response)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return "", ErrAuthFailed
		}
		if errors.Is(err, ErrTokenExpired) {
			return "", ErrAuthFailed
		}
		return "", fmt.Errorf("auth request: %w", err)
	}

	if !response.Success || response.Data.Token == "" {
		if response.Error != "" {
			c.logger.Warn("hemis auth rejected", "login", login, "error", response.Error)
		}
		return "", ErrAuthFailed
	}

	return response.Data.Token, nil
}

// ProbeSemesters performs a cheap authenticated request to check token
// validity. Returns ErrTokenExpired on 401, nil when the token works.
func (c *Client) ProbeSemesters(ctx context.Context, token string) error {
	var response apiResponse[json.RawMessage]
	if err := c.doRequest(ctx, http.MethodGet, "/education/semester", token, nil, &response); err != nil {
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// FetchProfile loads /account/me merged with the diploma attributes
// from /student/document-all.
func (c *Client) FetchProfile(ctx context.Context, token string) (*Profile, error) {
	var me apiResponse[accountMeDTO]
	if err := c.doRequest(ctx, http.MethodGet, "/account/me", token, nil, &me); err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	if !me.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: me.Error}
	}

	profile := mapProfile(me.Data)

	// The diploma document is optional; its absence is not an error.
	var docs apiResponse[listPayload[documentDTO]]
	if err := c.doRequest(ctx, http.MethodGet, "/student/document-all", token, nil, &docs); err != nil {
		c.logger.Warn("hemis documents unavailable", "error", err)
		return profile, nil
	}
	mergeDiploma(profile, docs.Data.Items)

	return profile, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SEMESTERS & WEEKS
// ══════════════════════════════════════════════════════════════════════════════

// FetchSemesters loads the student's semesters sorted by numeric id
// descending. Non-numeric ids sort last.
func (c *Client) FetchSemesters(ctx context.Context, token string) ([]SemesterInfo, error) {
	var response apiResponse[listPayload[semesterDTO]]
	if err := c.doRequest(ctx, http.MethodGet, "/education/semesters", token, nil, &response); err != nil {
		return nil, fmt.Errorf("fetch semesters: %w", err)
	}
	return mapSemesters(response.Data.Items), nil
}

// FetchCurriculumSemesters loads the curriculum-plan semester list
// used by synchronization.
func (c *Client) FetchCurriculumSemesters(ctx context.Context, token string) ([]CurriculumSemester, error) {
	var response apiResponse[listPayload[curriculumSemesterDTO]]
	if err := c.doRequest(ctx, http.MethodGet, "/education/semester", token, nil, &response); err != nil {
		return nil, fmt.Errorf("fetch curriculum semesters: %w", err)
	}

	out := make([]CurriculumSemester, 0, len(response.Data.Items))
	for _, dto := range response.Data.Items {
		if dto.Code == "" {
			continue
		}
		out = append(out, CurriculumSemester{
			Code:    dto.Code,
			Name:    dto.Name,
			Current: dto.Current,
		})
	}
	return out, nil
}

// FetchWeeks loads the academic week catalog.
func (c *Client) FetchWeeks(ctx context.Context, token string) ([]WeekInfo, error) {
	var response apiResponse[listPayload[weekDTO]]
	if err := c.doRequest(ctx, http.MethodGet, "/education/week", token, nil, &response); err != nil {
		return nil, fmt.Errorf("fetch weeks: %w", err)
	}

	out := make([]WeekInfo, 0, len(response.Data.Items))
	for _, dto := range response.Data.Items {
		if dto.ID == 0 {
			continue
		}
		out = append(out, mapWeek(dto))
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// FetchLessons loads the raw lesson list for a semester.
func (c *Client) FetchLessons(ctx context.Context, token, semesterCode string) ([]Lesson, error) {
	path := "/education/schedule?semester=" + url.QueryEscape(semesterCode)

	var response apiResponse[listPayload[lessonDTO]]
	if err := c.doRequest(ctx, http.MethodGet, path, token, nil, &response); err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}

	out := make([]Lesson, 0, len(response.Data.Items))
	for _, dto := range response.Data.Items {
		out = append(out, mapLesson(dto))
	}
	return out, nil
}

// FetchScheduleView builds the weekly schedule view for a semester.
// weekID selects a week; 0 or an unknown id falls back to the current
// week, then to the first week of the catalog.
func (c *Client) FetchScheduleView(ctx context.Context, token, semesterCode string, weekID int64, now time.Time) (*ScheduleView, error) {
	lessons, err := c.FetchLessons(ctx, token, semesterCode)
	if err != nil {
		return nil, err
	}
	return BuildScheduleView(lessons, weekID, now), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// FetchAttendance loads the absence records for a semester.
// Per-record hours are absent_off + absent_on; the excused flag comes
// from explicable.
func (c *Client) FetchAttendance(ctx context.Context, token, semesterCode string) ([]AbsenceRecord, error) {
	path := "/education/attendance?semester=" + url.QueryEscape(semesterCode)

	var response apiResponse[listPayload[attendanceDTO]]
	if err := c.doRequest(ctx, http.MethodGet, path, token, nil, &response); err != nil {
		return nil, fmt.Errorf("fetch attendance: %w", err)
	}

	out := make([]AbsenceRecord, 0, len(response.Data.Items))
	for _, dto := range response.Data.Items {
		out = append(out, mapAbsence(dto))
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TASKS
// ══════════════════════════════════════════════════════════════════════════════

// FetchTasks loads the task list for a semester with grades and deadlines.
func (c *Client) FetchTasks(ctx context.Context, token, semesterCode string) ([]TaskInfo, error) {
	return c.fetchTaskEndpoint(ctx, token, semesterCode, "/education/task-list")
}

// FetchPerformance loads the performance records for a semester.
// Same shape as the task list, sourced from /education/performance.
func (c *Client) FetchPerformance(ctx context.Context, token, semesterCode string) ([]TaskInfo, error) {
	return c.fetchTaskEndpoint(ctx, token, semesterCode, "/education/performance")
}

func (c *Client) fetchTaskEndpoint(ctx context.Context, token, semesterCode, endpoint string) ([]TaskInfo, error) {
	path := endpoint + "?semester=" + url.QueryEscape(semesterCode)

	var response apiResponse[listPayload[taskDTO]]
	if err := c.doRequest(ctx, http.MethodGet, path, token, nil, &response); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	out := make([]TaskInfo, 0, len(response.Data.Items))
	for _, dto := range response.Data.Items {
		out = append(out, mapTask(dto))
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request with retries for transient failures.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body interface{}, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.RetryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryConfig.CalculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.doSingleRequest(ctx, method, path, token, body, result)
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("request failed after %d retries: %w", c.config.RetryConfig.MaxRetries, lastErr)
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path, token string, body interface{}, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.config.Debug {
		c.logger.Debug("hemis api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrTokenExpired
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &envelope)
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// isRetryable checks if an error is worth retrying.
func (c *Client) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// 401 means the token is dead; retrying won't bring it back
	if errors.Is(err, ErrTokenExpired) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}

	// Parse failures are terminal
	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return false
	}

	// Everything else (network, timeouts) gets another chance
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
