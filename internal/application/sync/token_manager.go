// Package sync keeps local academic records in step with the HEMIS API.
// It owns the per-user token lifecycle and the wholesale refresh of
// semesters, schedule, attendance and tasks.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOKEN MANAGER
// Every user talks to HEMIS with their own bearer token. Tokens expire
// without warning, so the token is verified with a probe request before
// a sync and re-issued from stored credentials on 401.
// ══════════════════════════════════════════════════════════════════════════════

// ErrRefreshFailed means HEMIS no longer accepts the stored credentials.
// The user has to link their account again.
var ErrRefreshFailed = errors.New("hemis token refresh failed: stored credentials rejected")

// TokenProber verifies and issues HEMIS tokens.
type TokenProber interface {
	Authenticate(ctx context.Context, login, password string) (string, error)
	ProbeSemesters(ctx context.Context, token string) error
}

// TokenStore persists re-issued tokens.
type TokenStore interface {
	UpdateToken(ctx context.Context, userID, token string) error
}

// TokenManager guarantees a working token before any HEMIS call.
type TokenManager struct {
	client TokenProber
	store  TokenStore
	log    *logger.Logger
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(client TokenProber, store TokenStore, log *logger.Logger) *TokenManager {
	if log == nil {
		log = logger.Default()
	}
	return &TokenManager{client: client, store: store, log: log}
}

// EnsureValid returns a working token for the user.
//
// Order: no credentials means ErrNoCredentials right away; an existing
// token is verified with a probe request; on 401 the token is re-issued
// from the stored login and password; the new token is persisted before
// returning so a later failure does not force another login.
func (m *TokenManager) EnsureValid(ctx context.Context, u *user.User) (string, error) {
	if !u.Hemis.Complete() {
		return "", user.ErrNoCredentials
	}

	if u.Hemis.Token != "" {
		err := m.client.ProbeSemesters(ctx, u.Hemis.Token)
		if err == nil {
			return u.Hemis.Token, nil
		}
		if !errors.Is(err, hemis.ErrTokenExpired) {
			// Network and server failures are no reason to re-issue
			return "", fmt.Errorf("token probe failed: %w", err)
		}

		m.log.Info("hemis token expired, re-authenticating",
			logger.UserID(u.ID),
			logger.Username(string(u.Hemis.Login)),
		)
	}

	token, err := m.client.Authenticate(ctx, string(u.Hemis.Login), u.Hemis.Password)
	if err != nil {
		if errors.Is(err, hemis.ErrAuthFailed) {
			return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}
		return "", fmt.Errorf("re-authentication failed: %w", err)
	}

	if err := m.store.UpdateToken(ctx, u.ID, token); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	u.Hemis.Token = token

	return token, nil
}
