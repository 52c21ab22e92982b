package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

// Messenger - канал доставки уведомлений. Реализуется Telegram-клиентом.
type Messenger interface {
	// SendText отправляет текстовое сообщение в чат.
	SendText(ctx context.Context, chatID int64, text string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE BUILDERS
// Тексты на узбекском, как их видят студенты в боте.
// ══════════════════════════════════════════════════════════════════════════════

// BuildDeadlineReminder строит текст напоминания о дедлайне эссе.
func BuildDeadlineReminder(topicTitle string, w Window, deadline time.Time) string {
	due := timeutil.FormatTashkent(deadline, timeutil.FormatDateTime)
	switch w {
	case WindowOneDay:
		return fmt.Sprintf(
			"⏰ Eslatma!\n\n\"%s\" mavzusidagi esse topshirishga 1 kun qoldi.\nMuddat: %s",
			topicTitle, due)
	case WindowTwoHours:
		return fmt.Sprintf(
			"🚨 Shoshiling!\n\n\"%s\" mavzusidagi esse topshirishga 2 soatdan kam vaqt qoldi.\nMuddat: %s",
			topicTitle, due)
	default:
		return fmt.Sprintf("Eslatma: \"%s\" essesining muddati yaqinlashmoqda.", topicTitle)
	}
}

// BuildAbsenceWarning строит текст предупреждения о пропусках.
func BuildAbsenceWarning(subjectName string, hours int) string {
	return fmt.Sprintf(
		"⚠️ Davomat ogohlantirishi\n\n\"%s\" fanidan %d soat dars qoldirdingiz.\n"+
			"Qoldirilgan soatlar ko'payib ketsa, fanga qayta yozilishingizga to'g'ri kelishi mumkin.",
		subjectName, hours)
}
