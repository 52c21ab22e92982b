package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fireOnceSchedule is due immediately after registration and never again.
type fireOnceSchedule struct{ fired bool }

func (s *fireOnceSchedule) Next(t time.Time) time.Time {
	if s.fired {
		return t.Add(time.Hour)
	}
	s.fired = true
	return t.Add(-time.Second)
}

func (s *fireOnceSchedule) String() string { return "@once" }

// recordingJob logs its start and end into a shared trace.
type recordingJob struct {
	name  string
	sleep time.Duration

	mu    *sync.Mutex
	trace *[]string
}

func (j *recordingJob) Name() string        { return j.name }
func (j *recordingJob) Description() string { return "records its execution for tests" }

func (j *recordingJob) Run(ctx context.Context) error {
	j.mu.Lock()
	*j.trace = append(*j.trace, j.name+":start")
	j.mu.Unlock()

	time.Sleep(j.sleep)

	j.mu.Lock()
	*j.trace = append(*j.trace, j.name+":end")
	j.mu.Unlock()
	return nil
}

func TestCheckAndRunJobs_SameScheduleRunsSequentially(t *testing.T) {
	s := New(DefaultConfig())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	var mu sync.Mutex
	var trace []string

	require.NoError(t, s.Register(&recordingJob{name: "first", sleep: 20 * time.Millisecond, mu: &mu, trace: &trace}, &fireOnceSchedule{}))
	require.NoError(t, s.Register(&recordingJob{name: "second", mu: &mu, trace: &trace}, &fireOnceSchedule{}))
	require.NoError(t, s.Register(&recordingJob{name: "third", mu: &mu, trace: &trace}, &fireOnceSchedule{}))

	s.checkAndRunJobs()
	s.wg.Wait()

	assert.Equal(t, []string{
		"first:start", "first:end",
		"second:start", "second:end",
		"third:start", "third:end",
	}, trace, "a tick finishes each job before starting the next, in registration order")
}

func TestCheckAndRunJobs_SlowBatchIsNotPickedUpTwice(t *testing.T) {
	s := New(DefaultConfig())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	var mu sync.Mutex
	var trace []string

	require.NoError(t, s.Register(&recordingJob{name: "scan", sleep: 20 * time.Millisecond, mu: &mu, trace: &trace}, &fireOnceSchedule{}))

	// A second check arriving while the batch still runs must not
	// schedule the job again: its next run advanced at collection.
	s.checkAndRunJobs()
	s.checkAndRunJobs()
	s.wg.Wait()

	assert.Equal(t, []string{"scan:start", "scan:end"}, trace)
}
