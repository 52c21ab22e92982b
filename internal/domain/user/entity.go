// Package user содержит доменную модель пользователя портала.
// Это ядро бизнес-логики - здесь нет внешних зависимостей, кроме bcrypt.
package user

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// TelegramChatID представляет идентификатор чата пользователя в Telegram.
type TelegramChatID int64

// IsValid проверяет, что TelegramChatID положительный.
func (t TelegramChatID) IsValid() bool {
	return t > 0
}

// HemisLogin представляет логин студента в системе HEMIS.
type HemisLogin string

// IsValid проверяет корректность логина HEMIS.
func (l HemisLogin) IsValid() bool {
	s := string(l)
	return len(s) >= 2 && len(s) <= 64 && !strings.ContainsAny(s, " \t\n\r")
}

// String возвращает строковое представление логина.
func (l HemisLogin) String() string {
	return string(l)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль пользователя на портале.
type Role string

const (
	// RoleStudent - студент, данные приходят из HEMIS.
	RoleStudent Role = "student"
	// RoleTeacher - преподаватель, локальный аккаунт с паролем.
	RoleTeacher Role = "teacher"
	// RoleAdmin - администратор портала.
	RoleAdmin Role = "admin"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsLocal возвращает true, если аккаунт аутентифицируется локальным паролем,
// а не через HEMIS.
func (r Role) IsLocal() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User - центральная сущность системы, представляющая пользователя портала.
type User struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// Username - имя пользователя на портале. Для студентов совпадает
	// с логином HEMIS.
	Username string

	// Role - роль на портале.
	Role Role

	// PasswordHash - bcrypt-хеш пароля для локальных аккаунтов.
	PasswordHash string

	// HemisCredentials - сохранённые учётные данные HEMIS.
	// Требуются для автоматического перевыпуска токена.
	Hemis HemisCredentials

	// TelegramChatID - привязанный чат Telegram, 0 если не привязан.
	TelegramChatID TelegramChatID

	// Профиль, заполняется из HEMIS при синхронизации.
	FullName  string
	GroupName string
	Faculty   string
	Specialty string
	Level     string
	GPA       string
	Phone     string
	Address   string
	BirthDate string
	ImageURL  string

	// LastSyncedAt - время последней успешной синхронизации с HEMIS.
	LastSyncedAt time.Time

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// HemisCredentials содержит учётные данные студента в HEMIS.
// Пароль хранится в восстановимом виде: без него невозможно
// перелогиниться после истечения токена.
type HemisCredentials struct {
	Login    HemisLogin
	Password string
	Token    string
}

// Complete возвращает true, если есть и логин, и пароль.
func (c HemisCredentials) Complete() bool {
	return c.Login != "" && c.Password != ""
}

// IsLinked возвращает true, если к пользователю привязан чат Telegram.
func (u *User) IsLinked() bool {
	return u.TelegramChatID.IsValid()
}

// LinkTelegram привязывает чат Telegram к пользователю.
func (u *User) LinkTelegram(chatID TelegramChatID) error {
	if !chatID.IsValid() {
		return ErrInvalidTelegramChatID
	}
	u.TelegramChatID = chatID
	return nil
}

// SetPassword хеширует и устанавливает локальный пароль.
func (u *User) SetPassword(plain string) error {
	if len(plain) < 6 {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword сверяет локальный пароль с хешем.
func (u *User) CheckPassword(plain string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidTelegramChatID - невалидный идентификатор чата Telegram.
	ErrInvalidTelegramChatID = errors.New("invalid telegram chat id: must be positive")

	// ErrInvalidHemisLogin - невалидный логин HEMIS.
	ErrInvalidHemisLogin = errors.New("invalid hemis login: must be 2-64 chars without whitespace")

	// ErrInvalidRole - невалидная роль.
	ErrInvalidRole = errors.New("invalid user role")

	// ErrWeakPassword - слишком короткий пароль.
	ErrWeakPassword = errors.New("password must be at least 6 chars")

	// ErrUserNotFound - пользователь не найден.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists - пользователь уже существует.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrTelegramAlreadyLinked - чат уже привязан к другому пользователю.
	ErrTelegramAlreadyLinked = errors.New("telegram chat already linked to another user")

	// ErrNoCredentials - у пользователя нет сохранённых учётных данных HEMIS.
	ErrNoCredentials = errors.New("user has no hemis credentials")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentParams содержит параметры для создания студента из HEMIS.
type NewStudentParams struct {
	ID       string
	Login    HemisLogin
	Password string
	Token    string
	FullName string
}

// NewStudent создаёт пользователя-студента с валидацией полей.
func NewStudent(params NewStudentParams) (*User, error) {
	if params.ID == "" {
		return nil, errors.New("user id is required")
	}

	if !params.Login.IsValid() {
		return nil, ErrInvalidHemisLogin
	}

	now := time.Now().UTC()

	return &User{
		ID:       params.ID,
		Username: params.Login.String(),
		Role:     RoleStudent,
		Hemis: HemisCredentials{
			Login:    params.Login,
			Password: params.Password,
			Token:    params.Token,
		},
		FullName:  strings.TrimSpace(params.FullName),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
