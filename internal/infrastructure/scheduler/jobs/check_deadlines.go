// Package jobs contains the scheduled jobs of the hub: deadline
// reminders, absence warnings and the periodic account sync.
package jobs

import (
	"context"
)

// AlertEngine is the slice of the notifier engine the jobs drive.
type AlertEngine interface {
	CheckDeadlines(ctx context.Context) error
	CheckAbsences(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK DEADLINES JOB
// ══════════════════════════════════════════════════════════════════════════════

// CheckDeadlinesJob sends essay deadline reminders.
type CheckDeadlinesJob struct {
	engine AlertEngine
}

// NewCheckDeadlinesJob creates the job.
func NewCheckDeadlinesJob(engine AlertEngine) *CheckDeadlinesJob {
	return &CheckDeadlinesJob{engine: engine}
}

// Name returns the job name.
func (j *CheckDeadlinesJob) Name() string {
	return "check_deadlines"
}

// Description returns a human-readable description.
func (j *CheckDeadlinesJob) Description() string {
	return "Sends Telegram reminders for essay topics entering the 1-day or 2-hours deadline window"
}

// Run executes the job.
func (j *CheckDeadlinesJob) Run(ctx context.Context) error {
	return j.engine.CheckDeadlines(ctx)
}
