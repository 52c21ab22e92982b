package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

// botAPIStub emulates the Bot API: it records sendMessage texts and
// deleteMessage calls and answers everything with ok=true.
type botAPIStub struct {
	mu       sync.Mutex
	sent     []string
	deleted  []int64
	failSend bool
}

func (s *botAPIStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if s.failSend {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"chat not found"}`))
				return
			}
			s.sent = append(s.sent, body["text"].(string))
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":100,"chat":{"id":1,"type":"private"}}}`))
		case strings.HasSuffix(r.URL.Path, "/deleteMessage"):
			s.deleted = append(s.deleted, int64(body["message_id"].(float64)))
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		default:
			t.Fatalf("unexpected bot api call: %s", r.URL.Path)
		}
	}
}

func (s *botAPIStub) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *botAPIStub) deletedMessages() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.deleted...)
}

type fakeAuth struct {
	err   error
	token string
	seen  []string
}

func (f *fakeAuth) Authenticate(_ context.Context, login, password string) (string, error) {
	f.seen = append(f.seen, login+":"+password)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeUsers struct {
	user.Repository

	byUsername map[string]*user.User
	linked     map[string]user.TelegramChatID
	tokens     map[string]string
}

func newFakeUsers(users ...*user.User) *fakeUsers {
	f := &fakeUsers{
		byUsername: make(map[string]*user.User),
		linked:     make(map[string]user.TelegramChatID),
		tokens:     make(map[string]string),
	}
	for _, u := range users {
		f.byUsername[u.Username] = u
	}
	return f
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*user.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateToken(_ context.Context, id, token string) error {
	f.tokens[id] = token
	return nil
}

func (f *fakeUsers) LinkTelegram(_ context.Context, id string, chatID user.TelegramChatID) error {
	f.linked[id] = chatID
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type botFixture struct {
	bot   *Bot
	api   *botAPIStub
	auth  *fakeAuth
	users *fakeUsers
}

func newBotFixture(t *testing.T, auth *fakeAuth, users *fakeUsers) *botFixture {
	t.Helper()

	api := &botAPIStub{}
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	config := telegram.DefaultClientConfig("test-token")
	config.BaseURL = server.URL
	client := telegram.NewClient(config)

	bot, err := NewBot(client, auth, users, nil, nil)
	require.NoError(t, err)

	return &botFixture{bot: bot, api: api, auth: auth, users: users}
}

func textUpdate(chatID, messageID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: messageID,
		Message: &telegram.Message{
			MessageID: messageID,
			Chat:      &telegram.Chat{ID: chatID, Type: "private"},
			Text:      text,
		},
	}
}

func (f *botFixture) send(t *testing.T, update *telegram.Update) {
	t.Helper()
	require.NoError(t, f.bot.HandleUpdate(context.Background(), update))
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestBot_FullLinkFlow(t *testing.T) {
	auth := &fakeAuth{token: "fresh-token"}
	student := &user.User{ID: "u-1", Username: "362231100999", Role: user.RoleStudent}
	f := newBotFixture(t, auth, newFakeUsers(student))

	f.send(t, textUpdate(42, 1, "/start"))
	f.send(t, textUpdate(42, 2, "362231100999"))
	f.send(t, textUpdate(42, 3, "s3cret"))

	require.Equal(t, []string{"362231100999:s3cret"}, auth.seen)
	assert.Equal(t, user.TelegramChatID(42), f.users.linked["u-1"])
	assert.Equal(t, "fresh-token", f.users.tokens["u-1"])

	sent := f.api.sentTexts()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0], "HEMIS loginingizni")
	assert.Contains(t, sent[1], "parolingizni")
	assert.Contains(t, sent[2], "muvaffaqiyatli bog'landi")

	// The password message is removed from the chat history.
	assert.Equal(t, []int64{3}, f.api.deletedMessages())
}

func TestBot_RejectedCredentials(t *testing.T) {
	auth := &fakeAuth{err: hemis.ErrAuthFailed}
	f := newBotFixture(t, auth, newFakeUsers())

	f.send(t, textUpdate(42, 1, "/start"))
	f.send(t, textUpdate(42, 2, "362231100999"))
	f.send(t, textUpdate(42, 3, "wrong"))

	sent := f.api.sentTexts()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[2], "noto'g'ri")
	assert.Empty(t, f.users.linked)
	assert.Equal(t, []int64{3}, f.api.deletedMessages())
}

func TestBot_UnknownPortalUser(t *testing.T) {
	auth := &fakeAuth{token: "tok"}
	f := newBotFixture(t, auth, newFakeUsers())

	f.send(t, textUpdate(42, 1, "/start"))
	f.send(t, textUpdate(42, 2, "362231100999"))
	f.send(t, textUpdate(42, 3, "s3cret"))

	sent := f.api.sentTexts()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[2], "ro'yxatdan o'tmagan")
	assert.Empty(t, f.users.linked)
}

func TestBot_HemisUnavailable(t *testing.T) {
	auth := &fakeAuth{err: errors.New("connection refused")}
	f := newBotFixture(t, auth, newFakeUsers())

	f.send(t, textUpdate(42, 1, "/start"))
	f.send(t, textUpdate(42, 2, "362231100999"))
	f.send(t, textUpdate(42, 3, "s3cret"))

	sent := f.api.sentTexts()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[2], "javob bermayapti")
}

func TestBot_InvalidLoginAsksAgain(t *testing.T) {
	f := newBotFixture(t, &fakeAuth{}, newFakeUsers())

	f.send(t, textUpdate(42, 1, "/start"))
	f.send(t, textUpdate(42, 2, "x"))

	sent := f.api.sentTexts()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], "noto'g'ri ko'rinadi")

	// The dialog stays on the login step.
	f.send(t, textUpdate(42, 3, "362231100999"))
	assert.Contains(t, f.api.sentTexts()[2], "parolingizni")
}

func TestBot_CancelResetsDialog(t *testing.T) {
	f := newBotFixture(t, &fakeAuth{}, newFakeUsers())

	f.send(t, textUpdate(42, 1, "/start"))
	f.send(t, textUpdate(42, 2, "/cancel"))

	sent := f.api.sentTexts()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], "bekor qilindi")

	// Plain text after cancel is no longer part of a dialog.
	f.send(t, textUpdate(42, 3, "362231100999"))
	assert.Contains(t, f.api.sentTexts()[2], "/help")
}

func TestBot_IgnoresGroupChats(t *testing.T) {
	f := newBotFixture(t, &fakeAuth{}, newFakeUsers())

	update := textUpdate(42, 1, "/start")
	update.Message.Chat.Type = "group"
	f.send(t, update)

	assert.Empty(t, f.api.sentTexts())
}

func TestBot_TextWithoutDialog(t *testing.T) {
	f := newBotFixture(t, &fakeAuth{}, newFakeUsers())

	f.send(t, textUpdate(42, 1, "salom"))

	sent := f.api.sentTexts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "/help")
}
