package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `
	id, username, role, password_hash,
	hemis_login, hemis_password, hemis_token, telegram_chat_id,
	full_name, group_name, faculty, specialty, level_name,
	gpa, phone, address, birth_date, image_url,
	last_synced_at, created_at, updated_at
`

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (
			id, username, role, password_hash,
			hemis_login, hemis_password, hemis_token, telegram_chat_id,
			full_name, group_name, faculty, specialty, level_name,
			gpa, phone, address, birth_date, image_url,
			last_synced_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.conn.Exec(ctx, query,
		u.ID,
		u.Username,
		string(u.Role),
		u.PasswordHash,
		u.Hemis.Login.String(),
		u.Hemis.Password,
		u.Hemis.Token,
		chatIDOrNull(u.TelegramChatID),
		u.FullName,
		u.GroupName,
		u.Faculty,
		u.Specialty,
		u.Level,
		u.GPA,
		u.Phone,
		u.Address,
		u.BirthDate,
		u.ImageURL,
		timeOrNull(u.LastSyncedAt),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return user.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID returns a user by internal ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.conn.QueryRow(ctx, query, id))
}

// GetByUsername returns a user by portal username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(r.conn.QueryRow(ctx, query, username))
}

// GetByTelegramChatID returns a user by linked Telegram chat.
func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID user.TelegramChatID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_chat_id = $1`
	return r.scanUser(r.conn.QueryRow(ctx, query, int64(chatID)))
}

// Update updates a user.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users SET
			role = $2, password_hash = $3,
			hemis_login = $4, hemis_password = $5, hemis_token = $6,
			full_name = $7, group_name = $8, faculty = $9, specialty = $10,
			level_name = $11, gpa = $12, phone = $13, address = $14,
			birth_date = $15, image_url = $16, last_synced_at = $17,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query,
		u.ID,
		string(u.Role),
		u.PasswordHash,
		u.Hemis.Login.String(),
		u.Hemis.Password,
		u.Hemis.Token,
		u.FullName,
		u.GroupName,
		u.Faculty,
		u.Specialty,
		u.Level,
		u.GPA,
		u.Phone,
		u.Address,
		u.BirthDate,
		u.ImageURL,
		timeOrNull(u.LastSyncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}

	return nil
}

// UpdateToken persists a fresh HEMIS token without touching anything else.
func (r *UserRepository) UpdateToken(ctx context.Context, id string, token string) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE users SET hemis_token = $2, updated_at = NOW() WHERE id = $1`,
		id, token)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// LinkTelegram links a Telegram chat to a user.
func (r *UserRepository) LinkTelegram(ctx context.Context, id string, chatID user.TelegramChatID) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE users SET telegram_chat_id = $2, updated_at = NOW() WHERE id = $1`,
		id, int64(chatID))
	if err != nil {
		if IsUniqueViolation(err) {
			return user.ErrTelegramAlreadyLinked
		}
		return fmt.Errorf("failed to link telegram: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// ListLinked returns all users with a linked Telegram chat.
func (r *UserRepository) ListLinked(ctx context.Context) ([]*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_chat_id IS NOT NULL ORDER BY username`
	return r.queryUsers(ctx, query)
}

// ListWithCredentials returns all students with stored HEMIS credentials.
func (r *UserRepository) ListWithCredentials(ctx context.Context) ([]*user.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE role = 'student' AND hemis_login != '' AND hemis_password != ''
		ORDER BY username`
	return r.queryUsers(ctx, query)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*user.User, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := r.scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) scanUser(row pgx.Row) (*user.User, error) {
	u, err := r.scanUserRow(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) scanUserRow(row pgx.Row) (*user.User, error) {
	var (
		u          user.User
		role       string
		hemisLogin string
		chatID     sql.NullInt64
		lastSynced sql.NullTime
	)

	err := row.Scan(
		&u.ID,
		&u.Username,
		&role,
		&u.PasswordHash,
		&hemisLogin,
		&u.Hemis.Password,
		&u.Hemis.Token,
		&chatID,
		&u.FullName,
		&u.GroupName,
		&u.Faculty,
		&u.Specialty,
		&u.Level,
		&u.GPA,
		&u.Phone,
		&u.Address,
		&u.BirthDate,
		&u.ImageURL,
		&lastSynced,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Role = user.Role(role)
	u.Hemis.Login = user.HemisLogin(hemisLogin)
	if chatID.Valid {
		u.TelegramChatID = user.TelegramChatID(chatID.Int64)
	}
	if lastSynced.Valid {
		u.LastSyncedAt = lastSynced.Time
	}

	return &u, nil
}

func chatIDOrNull(id user.TelegramChatID) interface{} {
	if !id.IsValid() {
		return nil
	}
	return int64(id)
}

func timeOrNull(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
