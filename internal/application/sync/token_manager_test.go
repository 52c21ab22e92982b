package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	probeErr error
	authErr  error

	issuedToken string
	probeCalls  int
	authCalls   int
}

func (f *fakeProber) ProbeSemesters(ctx context.Context, token string) error {
	f.probeCalls++
	return f.probeErr
}

func (f *fakeProber) Authenticate(ctx context.Context, login, password string) (string, error) {
	f.authCalls++
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.issuedToken, nil
}

type fakeTokenStore struct {
	saved map[string]string
	err   error
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{saved: make(map[string]string)}
}

func (f *fakeTokenStore) UpdateToken(ctx context.Context, userID, token string) error {
	if f.err != nil {
		return f.err
	}
	f.saved[userID] = token
	return nil
}

func linkedUser(token string) *user.User {
	return &user.User{
		ID: "u-1",
		Hemis: user.HemisCredentials{
			Login:    "123456",
			Password: "secret",
			Token:    token,
		},
	}
}

func TestEnsureValid_NoCredentials(t *testing.T) {
	prober := &fakeProber{}
	manager := NewTokenManager(prober, newFakeTokenStore(), nil)

	u := &user.User{ID: "u-1"}
	_, err := manager.EnsureValid(context.Background(), u)

	assert.ErrorIs(t, err, user.ErrNoCredentials)
	assert.Zero(t, prober.probeCalls)
	assert.Zero(t, prober.authCalls)
}

func TestEnsureValid_TokenStillWorks(t *testing.T) {
	prober := &fakeProber{}
	store := newFakeTokenStore()
	manager := NewTokenManager(prober, store, nil)

	token, err := manager.EnsureValid(context.Background(), linkedUser("old-token"))

	require.NoError(t, err)
	assert.Equal(t, "old-token", token)
	assert.Equal(t, 1, prober.probeCalls)
	assert.Zero(t, prober.authCalls, "a working token must not be re-issued")
	assert.Empty(t, store.saved)
}

func TestEnsureValid_ExpiredTokenReissuedAndPersisted(t *testing.T) {
	prober := &fakeProber{probeErr: hemis.ErrTokenExpired, issuedToken: "fresh-token"}
	store := newFakeTokenStore()
	manager := NewTokenManager(prober, store, nil)

	u := linkedUser("stale-token")
	token, err := manager.EnsureValid(context.Background(), u)

	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, "fresh-token", store.saved["u-1"], "new token must be persisted")
	assert.Equal(t, "fresh-token", u.Hemis.Token)
	assert.Equal(t, 1, prober.authCalls)
}

func TestEnsureValid_MissingTokenAuthenticatesDirectly(t *testing.T) {
	prober := &fakeProber{issuedToken: "first-token"}
	store := newFakeTokenStore()
	manager := NewTokenManager(prober, store, nil)

	token, err := manager.EnsureValid(context.Background(), linkedUser(""))

	require.NoError(t, err)
	assert.Equal(t, "first-token", token)
	assert.Zero(t, prober.probeCalls, "empty token has nothing to probe")
}

func TestEnsureValid_NetworkErrorPassesThrough(t *testing.T) {
	netErr := errors.New("connection refused")
	prober := &fakeProber{probeErr: netErr}
	manager := NewTokenManager(prober, newFakeTokenStore(), nil)

	_, err := manager.EnsureValid(context.Background(), linkedUser("token"))

	require.Error(t, err)
	assert.ErrorIs(t, err, netErr)
	assert.Zero(t, prober.authCalls, "network failures must not trigger re-auth")
}

func TestEnsureValid_CredentialsRejected(t *testing.T) {
	prober := &fakeProber{probeErr: hemis.ErrTokenExpired, authErr: hemis.ErrAuthFailed}
	manager := NewTokenManager(prober, newFakeTokenStore(), nil)

	_, err := manager.EnsureValid(context.Background(), linkedUser("stale"))

	assert.ErrorIs(t, err, ErrRefreshFailed)
}

func TestEnsureValid_PersistFailureSurfaces(t *testing.T) {
	prober := &fakeProber{probeErr: hemis.ErrTokenExpired, issuedToken: "fresh"}
	store := newFakeTokenStore()
	store.err = errors.New("db down")
	manager := NewTokenManager(prober, store, nil)

	_, err := manager.EnsureValid(context.Background(), linkedUser("stale"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
