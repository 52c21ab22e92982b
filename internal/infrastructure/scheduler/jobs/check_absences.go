package jobs

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ABSENCES JOB
// ══════════════════════════════════════════════════════════════════════════════

// CheckAbsencesJob warns students whose absence totals crossed the threshold.
type CheckAbsencesJob struct {
	engine AlertEngine
}

// NewCheckAbsencesJob creates the job.
func NewCheckAbsencesJob(engine AlertEngine) *CheckAbsencesJob {
	return &CheckAbsencesJob{engine: engine}
}

// Name returns the job name.
func (j *CheckAbsencesJob) Name() string {
	return "check_absences"
}

// Description returns a human-readable description.
func (j *CheckAbsencesJob) Description() string {
	return "Sends Telegram warnings when a subject's absence total reaches the configured threshold"
}

// Run executes the job.
func (j *CheckAbsencesJob) Run(ctx context.Context) error {
	return j.engine.CheckAbsences(ctx)
}
