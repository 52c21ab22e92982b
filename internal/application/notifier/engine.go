// Package notifier implements the periodic alert engine: essay deadline
// reminders and absence warnings delivered over Telegram.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/notification"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION ENGINE
// The engine polls on a fixed cadence. Deadline reminders fire inside
// hour-wide windows sized so that one poll per hour cannot slip past
// them; the ledger keeps every alert at-most-once per user and key.
// ══════════════════════════════════════════════════════════════════════════════

// Deadline windows in hours before the deadline.
const (
	oneDayWindowLow   = 23.0
	oneDayWindowHigh  = 24.5
	twoHourWindowLow  = 1.0
	twoHourWindowHigh = 2.5
)

// Config tunes the engine.
type Config struct {
	// DeadlineLookahead bounds the topic query, must cover the widest
	// window (default: 25h).
	DeadlineLookahead time.Duration

	// AbsenceThreshold is the minimum total absence hours per subject
	// that triggers a warning (default: 5).
	AbsenceThreshold int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DeadlineLookahead: 25 * time.Hour,
		AbsenceThreshold:  5,
	}
}

// Engine evaluates alert conditions for every linked user.
type Engine struct {
	users     user.Repository
	essays    education.EssayRepository
	education education.Repository
	ledger    notification.Ledger
	messenger notification.Messenger
	config    Config
	log       *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(
	users user.Repository,
	essays education.EssayRepository,
	educationRepo education.Repository,
	ledger notification.Ledger,
	messenger notification.Messenger,
	config Config,
	log *logger.Logger,
) *Engine {
	if config.DeadlineLookahead <= 0 {
		config.DeadlineLookahead = 25 * time.Hour
	}
	if config.AbsenceThreshold <= 0 {
		config.AbsenceThreshold = 5
	}
	if log == nil {
		log = logger.Default()
	}

	return &Engine{
		users:     users,
		essays:    essays,
		education: educationRepo,
		ledger:    ledger,
		messenger: messenger,
		config:    config,
		log:       log,
		now:       timeutil.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Deadline reminders
// ─────────────────────────────────────────────────────────────────────────────

// CheckDeadlines sends reminders for essay topics whose deadline falls
// into the 1-day or 2-hours window. Users who already settled the topic
// are skipped; the ledger suppresses repeats.
func (e *Engine) CheckDeadlines(ctx context.Context) error {
	now := e.now()

	topics, err := e.essays.UpcomingTopics(ctx, now, now.Add(e.config.DeadlineLookahead))
	if err != nil {
		return fmt.Errorf("load upcoming topics: %w", err)
	}
	if len(topics) == 0 {
		return nil
	}

	users, err := e.users.ListLinked(ctx)
	if err != nil {
		return fmt.Errorf("load linked users: %w", err)
	}

	for _, topic := range topics {
		window, ok := deadlineWindow(now, topic.Deadline)
		if !ok {
			continue
		}
		key := notification.DeadlineKey(topic.ID, window)

		for _, u := range users {
			settled, err := e.essays.HasSettledSubmission(ctx, u.ID, topic.ID)
			if err != nil {
				e.log.Warn("submission check failed",
					logger.UserID(u.ID), logger.TopicTitle(topic.Title), logger.Err(err))
				continue
			}
			if settled {
				continue
			}

			e.deliver(ctx, u, key,
				notification.BuildDeadlineReminder(topic.Title, window, topic.Deadline))
		}
	}

	return nil
}

// deadlineWindow maps the remaining time to a reminder window.
func deadlineWindow(now, deadline time.Time) (notification.Window, bool) {
	left := timeutil.HoursUntil(now, deadline)

	switch {
	case left > oneDayWindowLow && left <= oneDayWindowHigh:
		return notification.WindowOneDay, true
	case left > twoHourWindowLow && left <= twoHourWindowHigh:
		return notification.WindowTwoHours, true
	default:
		return "", false
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Absence warnings
// ─────────────────────────────────────────────────────────────────────────────

// CheckAbsences warns users whose per-subject absence total reached the
// threshold. The key includes the exact total, so the warning re-fires
// when the total grows but never for the same total twice.
func (e *Engine) CheckAbsences(ctx context.Context) error {
	users, err := e.users.ListLinked(ctx)
	if err != nil {
		return fmt.Errorf("load linked users: %w", err)
	}

	semester, err := e.education.GetCurrentSemester(ctx)
	if err != nil {
		return fmt.Errorf("resolve current semester: %w", err)
	}

	for _, u := range users {
		totals, err := e.education.AbsenceBySubject(ctx, u.ID, semester.ID)
		if err != nil {
			e.log.Warn("absence totals query failed",
				logger.UserID(u.ID), logger.Err(err))
			continue
		}

		for _, total := range totals {
			if total.Hours < e.config.AbsenceThreshold {
				continue
			}

			key := notification.AbsenceKey(total.SubjectID, total.Hours)
			e.deliver(ctx, u, key,
				notification.BuildAbsenceWarning(total.SubjectName, total.Hours))
		}
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Delivery
// ─────────────────────────────────────────────────────────────────────────────

// deliver sends one alert guarded by the ledger. The ledger records an
// alert only after a successful send, so a failed dispatch is retried
// on the next cycle.
func (e *Engine) deliver(ctx context.Context, u *user.User, key notification.Key, text string) {
	sent, err := e.ledger.Has(ctx, u.ID, key)
	if err != nil {
		e.log.Warn("ledger lookup failed",
			logger.UserID(u.ID), logger.F("key", string(key)), logger.Err(err))
		return
	}
	if sent {
		return
	}

	if err := e.messenger.SendText(ctx, int64(u.TelegramChatID), text); err != nil {
		e.log.Error("alert dispatch failed",
			logger.UserID(u.ID), logger.F("key", string(key)), logger.Err(err))
		return
	}

	if err := e.ledger.Record(ctx, u.ID, key); err != nil {
		e.log.Error("ledger record failed",
			logger.UserID(u.ID), logger.F("key", string(key)), logger.Err(err))
	}
}
