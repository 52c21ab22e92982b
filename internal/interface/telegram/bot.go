// Package telegram implements the Telegram side of the student portal:
// the account linking dialog and the bot lifecycle. Once a chat is
// linked, deadline and absence alerts are delivered to it by the
// notification engine.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/telegram"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

const (
	msgAskLogin = "Assalomu alaykum! Men talabalar portalining xabarnoma botiman.\n\n" +
		"Hisobingizni bog'lash uchun HEMIS loginingizni (talaba ID) yuboring."

	msgAskPassword = "Endi HEMIS parolingizni yuboring.\n\n" +
		"Xavfsizlik uchun parol yozilgan xabar tekshirilgandan so'ng o'chiriladi."

	msgBadLogin = "Login noto'g'ri ko'rinadi. HEMIS talaba ID raqamingizni yuboring."

	msgAuthFailed = "Login yoki parol noto'g'ri. Qaytadan urinish uchun /start buyrug'ini yuboring."

	msgHemisDown = "HEMIS hozircha javob bermayapti. Birozdan so'ng /start bilan qayta urining."

	msgNotRegistered = "Bu login portalda ro'yxatdan o'tmagan.\n\n" +
		"Avval portalga kirib hisob yarating, so'ng /start bilan qayta urining."

	msgLinked = "Hisobingiz muvaffaqiyatli bog'landi!\n\n" +
		"Endi sizga quyidagi ogohlantirishlar keladi:\n" +
		"- topshiriq muddatiga 1 kun va 2 soat qolganda eslatma;\n" +
		"- fan bo'yicha qoldirilgan darslar 5 soatga yetganda ogohlantirish."

	msgCancelled = "Bog'lash bekor qilindi. Qayta boshlash uchun /start buyrug'ini yuboring."

	msgNothingToCancel = "Hozir faol amal yo'q. Hisobni bog'lash uchun /start buyrug'ini yuboring."

	msgHelp = "Buyruqlar:\n" +
		"/start - HEMIS hisobini bog'lash\n" +
		"/cancel - joriy amalni bekor qilish\n" +
		"/help - shu yordam"

	msgUnknown = "Tushunmadim. Buyruqlar ro'yxati uchun /help yuboring."

	msgInternalError = "Ichki xatolik yuz berdi. Birozdan so'ng qayta urining."
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Authenticator verifies HEMIS credentials and issues a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (string, error)
}

// Bot routes incoming updates through the linking dialog.
type Bot struct {
	client *telegram.Client
	hemis  Authenticator
	users  user.Repository
	flows  FlowStore
	log    *logger.Logger
}

// NewBot creates the bot. A nil flow store falls back to in-memory state.
func NewBot(client *telegram.Client, auth Authenticator, users user.Repository, flows FlowStore, log *logger.Logger) (*Bot, error) {
	if client == nil {
		return nil, errors.New("telegram client is required")
	}
	if auth == nil {
		return nil, errors.New("hemis authenticator is required")
	}
	if users == nil {
		return nil, errors.New("user repository is required")
	}
	if flows == nil {
		flows = NewMemoryFlowStore()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Bot{client: client, hemis: auth, users: users, flows: flows, log: log}, nil
}

// Run verifies the token and blocks on long polling until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	b.log.Info("telegram bot started",
		logger.F("bot_username", me.Username),
		logger.Int64("bot_id", me.ID),
	)

	return b.client.StartPolling(ctx, b.HandleUpdate)
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single update. Group chats and non-text
// updates are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return nil
	}
	if !telegram.IsPrivateChat(msg) {
		return nil
	}

	chatID := msg.Chat.ID

	switch telegram.ExtractCommand(msg) {
	case "start":
		return b.handleStart(ctx, chatID)
	case "cancel":
		return b.handleCancel(ctx, chatID)
	case "help":
		return b.reply(ctx, chatID, msgHelp)
	case "":
		return b.handleText(ctx, chatID, msg)
	default:
		return b.reply(ctx, chatID, msgUnknown)
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) error {
	if err := b.flows.Put(ctx, chatID, &linkFlow{Step: stepAwaitLogin}); err != nil {
		b.log.Error("failed to start link flow", logger.TelegramChatID(chatID), logger.Err(err))
		return b.reply(ctx, chatID, msgInternalError)
	}
	return b.reply(ctx, chatID, msgAskLogin)
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) error {
	_, active, err := b.flows.Get(ctx, chatID)
	if err != nil {
		b.log.Error("failed to load link flow", logger.TelegramChatID(chatID), logger.Err(err))
		return b.reply(ctx, chatID, msgInternalError)
	}
	if !active {
		return b.reply(ctx, chatID, msgNothingToCancel)
	}
	if err := b.flows.Delete(ctx, chatID); err != nil {
		b.log.Error("failed to clear link flow", logger.TelegramChatID(chatID), logger.Err(err))
	}
	return b.reply(ctx, chatID, msgCancelled)
}

// handleText advances the dialog for plain text messages.
func (b *Bot) handleText(ctx context.Context, chatID int64, msg *telegram.Message) error {
	flow, active, err := b.flows.Get(ctx, chatID)
	if err != nil {
		b.log.Error("failed to load link flow", logger.TelegramChatID(chatID), logger.Err(err))
		return b.reply(ctx, chatID, msgInternalError)
	}
	if !active {
		return b.reply(ctx, chatID, msgUnknown)
	}

	switch flow.Step {
	case stepAwaitLogin:
		return b.acceptLogin(ctx, chatID, strings.TrimSpace(msg.Text))
	case stepAwaitPassword:
		return b.acceptPassword(ctx, chatID, flow.Login, msg)
	default:
		_ = b.flows.Delete(ctx, chatID)
		return b.reply(ctx, chatID, msgUnknown)
	}
}

func (b *Bot) acceptLogin(ctx context.Context, chatID int64, login string) error {
	if !user.HemisLogin(login).IsValid() {
		return b.reply(ctx, chatID, msgBadLogin)
	}

	if err := b.flows.Put(ctx, chatID, &linkFlow{Step: stepAwaitPassword, Login: login}); err != nil {
		b.log.Error("failed to advance link flow", logger.TelegramChatID(chatID), logger.Err(err))
		return b.reply(ctx, chatID, msgInternalError)
	}
	return b.reply(ctx, chatID, msgAskPassword)
}

// acceptPassword finishes the dialog: the password message is deleted
// best-effort, credentials are checked against HEMIS and the chat is
// linked to the portal account.
func (b *Bot) acceptPassword(ctx context.Context, chatID int64, login string, msg *telegram.Message) error {
	password := strings.TrimSpace(msg.Text)

	// The chat history must not keep the password regardless of how
	// the verification below ends.
	if err := b.client.DeleteMessage(ctx, chatID, msg.MessageID); err != nil {
		b.log.Warn("failed to delete password message",
			logger.TelegramChatID(chatID),
			logger.Err(err),
		)
	}

	if err := b.flows.Delete(ctx, chatID); err != nil {
		b.log.Error("failed to clear link flow", logger.TelegramChatID(chatID), logger.Err(err))
	}

	token, err := b.hemis.Authenticate(ctx, login, password)
	if err != nil {
		if errors.Is(err, hemis.ErrAuthFailed) {
			return b.reply(ctx, chatID, msgAuthFailed)
		}
		b.log.Error("hemis unavailable during linking",
			logger.TelegramChatID(chatID),
			logger.Err(err),
		)
		return b.reply(ctx, chatID, msgHemisDown)
	}

	u, err := b.users.GetByUsername(ctx, login)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return b.reply(ctx, chatID, msgNotRegistered)
		}
		b.log.Error("failed to look up portal user",
			logger.TelegramChatID(chatID),
			logger.Err(err),
		)
		return b.reply(ctx, chatID, msgInternalError)
	}

	if err := b.users.UpdateToken(ctx, u.ID, token); err != nil {
		b.log.Warn("failed to store refreshed token",
			logger.UserID(u.ID),
			logger.Err(err),
		)
	}

	if err := b.users.LinkTelegram(ctx, u.ID, user.TelegramChatID(chatID)); err != nil {
		b.log.Error("failed to link telegram chat",
			logger.UserID(u.ID),
			logger.TelegramChatID(chatID),
			logger.Err(err),
		)
		return b.reply(ctx, chatID, msgInternalError)
	}

	b.log.Info("telegram chat linked",
		logger.UserID(u.ID),
		logger.Username(u.Username),
		logger.TelegramChatID(chatID),
	)
	return b.reply(ctx, chatID, msgLinked)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	if _, err := b.client.SendText(ctx, chatID, text); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
