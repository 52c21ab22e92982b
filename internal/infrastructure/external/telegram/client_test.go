package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCommand_WithEntity(t *testing.T) {
	msg := &Message{
		Text: "/start now",
		Entities: []MessageEntity{
			{Type: "bot_command", Offset: 0, Length: 6},
		},
	}
	assert.Equal(t, "start", ExtractCommand(msg))
}

func TestExtractCommand_EntityWithBotUsername(t *testing.T) {
	msg := &Message{
		Text: "/help@hemis_hub_bot",
		Entities: []MessageEntity{
			{Type: "bot_command", Offset: 0, Length: 19},
		},
	}
	assert.Equal(t, "help", ExtractCommand(msg))
}

func TestExtractCommand_PlainTextWithoutEntities(t *testing.T) {
	assert.Equal(t, "start", ExtractCommand(&Message{Text: "/start"}))
	assert.Equal(t, "cancel", ExtractCommand(&Message{Text: "/cancel trailing words"}))
	assert.Equal(t, "help", ExtractCommand(&Message{Text: "/help@hemis_hub_bot"}))
}

func TestExtractCommand_NotACommand(t *testing.T) {
	assert.Empty(t, ExtractCommand(nil))
	assert.Empty(t, ExtractCommand(&Message{Text: ""}))
	assert.Empty(t, ExtractCommand(&Message{Text: "362231100999"}))
	assert.Empty(t, ExtractCommand(&Message{Text: "/"}))
	assert.Empty(t, ExtractCommand(&Message{Text: "salom /start"}))
}
