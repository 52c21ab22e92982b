package postgres

import (
	"context"
	"fmt"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION LEDGER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// NotificationLedger implements notification.Ledger on top of the
// notification_log table. The unique constraint on (user_id,
// notification_key) keeps the ledger append-once even when several
// instances record concurrently.
type NotificationLedger struct {
	conn *Connection
}

// NewNotificationLedger creates a new NotificationLedger.
func NewNotificationLedger(conn *Connection) *NotificationLedger {
	return &NotificationLedger{conn: conn}
}

// Has reports whether the notification was already recorded for the user.
func (l *NotificationLedger) Has(ctx context.Context, userID string, key notification.Key) (bool, error) {
	var exists bool
	err := l.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_log WHERE user_id = $1 AND notification_key = $2)`,
		userID, string(key)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check notification log: %w", err)
	}
	return exists, nil
}

// Record marks the notification as sent. Recording the same key twice
// is a no-op.
func (l *NotificationLedger) Record(ctx context.Context, userID string, key notification.Key) error {
	_, err := l.conn.Exec(ctx,
		`INSERT INTO notification_log (user_id, notification_key) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, string(key))
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}
