package jobs

import (
	"context"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC RECORDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// AccountLister lists the students whose records can be pulled.
type AccountLister interface {
	ListWithCredentials(ctx context.Context) ([]*user.User, error)
}

// RecordPuller refreshes one student's academic records from HEMIS.
type RecordPuller interface {
	SyncUser(ctx context.Context, u *user.User) error
}

// SyncRecordsJob refreshes academic records for every student with
// stored credentials, so that the alert checks that follow in the same
// scan see current data. One failing account does not stop the rest.
type SyncRecordsJob struct {
	users  AccountLister
	puller RecordPuller
	log    *logger.Logger
}

// NewSyncRecordsJob creates the job.
func NewSyncRecordsJob(users AccountLister, puller RecordPuller, log *logger.Logger) *SyncRecordsJob {
	if log == nil {
		log = logger.Default()
	}
	return &SyncRecordsJob{users: users, puller: puller, log: log}
}

// Name returns the job name.
func (j *SyncRecordsJob) Name() string {
	return "sync_records"
}

// Description returns a human-readable description.
func (j *SyncRecordsJob) Description() string {
	return "Refreshes schedules, attendance and task grades for all students with stored HEMIS credentials"
}

// Run executes the job.
func (j *SyncRecordsJob) Run(ctx context.Context) error {
	students, err := j.users.ListWithCredentials(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, u := range students {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.puller.SyncUser(ctx, u); err != nil {
			failed++
			j.log.Warn("account sync failed",
				logger.UserID(u.ID),
				logger.Username(u.Username),
				logger.Err(err),
			)
		}
	}

	j.log.Info("account sync pass finished",
		logger.F("total", len(students)),
		logger.F("failed", failed),
	)
	return nil
}
