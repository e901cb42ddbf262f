package middleware

import (
	"context"
	"testing"

	"github.com/BatmanBruc/chat-earn-ledger/internal/contextkeys"
	"github.com/BatmanBruc/chat-earn-ledger/store"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCmd  string
		wantArgs []string
	}{
		{name: "Plain", text: "/start", wantCmd: "/start"},
		{name: "WithArgs", text: " /grant 100  30 ", wantCmd: "/grant", wantArgs: []string{"100", "30"}},
		{name: "BotSuffix", text: "/Start@earn_bot ABC", wantCmd: "/start", wantArgs: []string{"ABC"}},
		{name: "NotCommand", text: "hello /start", wantCmd: ""},
		{name: "Empty", text: "  ", wantCmd: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseCommand(tt.text)
			assert.Equal(t, tt.wantCmd, cmd)
			if len(tt.wantArgs) == 0 {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func capture(out *context.Context) bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, _ *models.Update) {
		*out = ctx
	}
}

func update(text, languageCode string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			Text: text,
			From: &models.User{ID: 7, FirstName: "Ann", LanguageCode: languageCode},
			Chat: models.Chat{ID: 7},
		},
	}
}

func TestLangMiddleware(t *testing.T) {
	prefs := store.NewMemoryPreferenceStore()
	m := NewMiddlewares(nil, prefs, nil)

	var got context.Context
	m.LangMiddleware(capture(&got))(context.Background(), nil, update("hi", "ru-RU"))
	lang, ok := contextkeys.GetLang(got)
	require.True(t, ok)
	assert.Equal(t, "ru", lang)

	require.NoError(t, prefs.SetUserOptions(context.Background(), 7, map[string]interface{}{"lang": "en"}))
	m.LangMiddleware(capture(&got))(context.Background(), nil, update("hi", "ru-RU"))
	lang, _ = contextkeys.GetLang(got)
	assert.Equal(t, "en", lang)
}

func TestAnalyzeMessageMiddleware(t *testing.T) {
	m := NewMiddlewares(nil, nil, nil)
	tests := []struct {
		name string
		upd  *models.Update
		want contextkeys.MessageType
	}{
		{name: "Command", upd: update("/help", ""), want: contextkeys.MessageTypeCommand},
		{name: "Text", upd: update("hello", ""), want: contextkeys.MessageTypeText},
		{name: "Empty", upd: update("", ""), want: contextkeys.MessageTypeUnknown},
		{name: "Callback", upd: &models.Update{CallbackQuery: &models.CallbackQuery{Data: "lang:en"}}, want: contextkeys.MessageTypeClickButton},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got context.Context
			m.AnalyzeMessageMiddleware(capture(&got))(context.Background(), nil, tt.upd)
			mt, _ := contextkeys.GetMessageType(got)
			assert.Equal(t, tt.want, mt)
		})
	}
}
