package user

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Контракт для работы с хранилищем пользователей.
// Реализация находится в infrastructure/persistence/postgres.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища пользователей.
type Repository interface {
	// Create создаёт нового пользователя.
	// Возвращает ErrUserAlreadyExists, если username занят.
	Create(ctx context.Context, u *User) error

	// GetByID возвращает пользователя по внутреннему ID.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername возвращает пользователя по имени на портале.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByTelegramChatID возвращает пользователя по привязанному чату.
	// Возвращает ErrUserNotFound, если чат никому не принадлежит.
	GetByTelegramChatID(ctx context.Context, chatID TelegramChatID) (*User, error)

	// Update обновляет данные пользователя.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	Update(ctx context.Context, u *User) error

	// UpdateToken сохраняет новый токен HEMIS немедленно,
	// не трогая остальные поля.
	UpdateToken(ctx context.Context, id string, token string) error

	// LinkTelegram привязывает чат Telegram к пользователю.
	// Возвращает ErrTelegramAlreadyLinked при конфликте уникальности.
	LinkTelegram(ctx context.Context, id string, chatID TelegramChatID) error

	// ListLinked возвращает всех пользователей с привязанным Telegram.
	ListLinked(ctx context.Context) ([]*User, error)

	// ListWithCredentials возвращает всех студентов с сохранёнными
	// учётными данными HEMIS.
	ListWithCredentials(ctx context.Context) ([]*User, error)
}
