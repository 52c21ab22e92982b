// Package auth implements portal sign-in. Teacher and admin accounts
// carry a local bcrypt hash; students are verified against HEMIS and
// created on first login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hemis-hub/hemis-student-hub/internal/application/sync"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ErrInvalidCredentials is returned when the password does not match,
// either locally or against HEMIS.
var ErrInvalidCredentials = errors.New("invalid credentials")

// HemisAuthenticator is the slice of the HEMIS client login needs.
type HemisAuthenticator interface {
	Authenticate(ctx context.Context, login, password string) (string, error)
	FetchProfile(ctx context.Context, token string) (*hemis.Profile, error)
}

// Synchronizer pulls academic records after a successful sign-in.
type Synchronizer interface {
	Sync(ctx context.Context, u *user.User) (*sync.Result, error)
}

// Service authenticates portal users.
type Service struct {
	users       user.Repository
	hemis       HemisAuthenticator
	sync        Synchronizer
	syncTimeout time.Duration
	log         *logger.Logger
}

// NewService creates the auth Service. The synchronizer is optional;
// without it login skips the background record pull.
func NewService(users user.Repository, client HemisAuthenticator, synchronizer Synchronizer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		users:       users,
		hemis:       client,
		sync:        synchronizer,
		syncTimeout: 2 * time.Minute,
		log:         log,
	}
}

// Login verifies the credentials and returns the portal user.
// Local accounts (teacher, admin) are checked against the stored hash.
// Everything else goes to HEMIS; an unknown student is registered on
// first successful sign-in.
func (s *Service) Login(ctx context.Context, username, password string) (*user.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil && u.Role.IsLocal():
		if !u.CheckPassword(password) {
			return nil, ErrInvalidCredentials
		}
		return u, nil
	case err == nil:
		return s.loginStudent(ctx, u, password)
	case errors.Is(err, user.ErrUserNotFound):
		return s.registerStudent(ctx, username, password)
	default:
		return nil, fmt.Errorf("look up user: %w", err)
	}
}

// loginStudent re-verifies an existing student against HEMIS and keeps
// the stored credentials current.
func (s *Service) loginStudent(ctx context.Context, u *user.User, password string) (*user.User, error) {
	token, err := s.authenticate(ctx, u.Username, password)
	if err != nil {
		return nil, err
	}

	u.Hemis = user.HemisCredentials{
		Login:    user.HemisLogin(u.Username),
		Password: password,
		Token:    token,
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}

	s.scheduleSync(u)
	return u, nil
}

// registerStudent creates a portal account on first HEMIS sign-in.
func (s *Service) registerStudent(ctx context.Context, username, password string) (*user.User, error) {
	login := user.HemisLogin(username)
	if !login.IsValid() {
		return nil, ErrInvalidCredentials
	}

	token, err := s.authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	var fullName string
	if profile, err := s.hemis.FetchProfile(ctx, token); err != nil {
		s.log.Warn("profile unavailable on registration",
			logger.Username(username),
			logger.Err(err),
		)
	} else {
		fullName = profile.FullName
	}

	u, err := user.NewStudent(user.NewStudentParams{
		ID:       uuid.NewString(),
		Login:    login,
		Password: password,
		Token:    token,
		FullName: fullName,
	})
	if err != nil {
		return nil, fmt.Errorf("build student account: %w", err)
	}

	if err := s.users.Create(ctx, u); err != nil {
		// A concurrent first login may have won the insert.
		if errors.Is(err, user.ErrUserAlreadyExists) {
			return s.users.GetByUsername(ctx, username)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("student registered",
		logger.UserID(u.ID),
		logger.Username(u.Username),
	)

	s.scheduleSync(u)
	return u, nil
}

func (s *Service) authenticate(ctx context.Context, login, password string) (string, error) {
	token, err := s.hemis.Authenticate(ctx, login, password)
	if err != nil {
		if errors.Is(err, hemis.ErrAuthFailed) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("hemis login: %w", err)
	}
	return token, nil
}

// scheduleSync pulls the student's records in the background so login
// latency does not include the full HEMIS round trip.
func (s *Service) scheduleSync(u *user.User) {
	if s.sync == nil {
		return
	}

	snapshot := *u
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		defer cancel()

		if _, err := s.sync.Sync(ctx, &snapshot); err != nil {
			s.log.Warn("post-login sync failed",
				logger.UserID(snapshot.ID),
				logger.Err(err),
			)
		}
	}()
}
