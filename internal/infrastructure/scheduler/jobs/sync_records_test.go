package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
)

type fakeLister struct {
	students []*user.User
	err      error
}

func (f *fakeLister) ListWithCredentials(_ context.Context) ([]*user.User, error) {
	return f.students, f.err
}

type fakePuller struct {
	synced  []string
	failFor map[string]error
}

func (f *fakePuller) SyncUser(_ context.Context, u *user.User) error {
	if err := f.failFor[u.ID]; err != nil {
		return err
	}
	f.synced = append(f.synced, u.ID)
	return nil
}

func TestSyncRecordsJob_SyncsAllAccounts(t *testing.T) {
	lister := &fakeLister{students: []*user.User{
		{ID: "u-1", Username: "one"},
		{ID: "u-2", Username: "two"},
	}}
	puller := &fakePuller{}

	job := NewSyncRecordsJob(lister, puller, nil)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"u-1", "u-2"}, puller.synced)
}

func TestSyncRecordsJob_OneFailureDoesNotStopTheRest(t *testing.T) {
	lister := &fakeLister{students: []*user.User{
		{ID: "u-1", Username: "one"},
		{ID: "u-2", Username: "two"},
		{ID: "u-3", Username: "three"},
	}}
	puller := &fakePuller{failFor: map[string]error{"u-2": errors.New("hemis down")}}

	job := NewSyncRecordsJob(lister, puller, nil)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"u-1", "u-3"}, puller.synced)
}

func TestSyncRecordsJob_ListFailureSurfaces(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	job := NewSyncRecordsJob(lister, &fakePuller{}, nil)
	assert.Error(t, job.Run(context.Background()))
}

func TestSyncRecordsJob_CancelledContextStops(t *testing.T) {
	lister := &fakeLister{students: []*user.User{{ID: "u-1", Username: "one"}}}
	puller := &fakePuller{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewSyncRecordsJob(lister, puller, nil)
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, puller.synced)
}
