package handlers

import (
	"github.com/BatmanBruc/chat-earn-ledger/internal/i18n"
	"github.com/BatmanBruc/chat-earn-ledger/internal/utils"
	"github.com/go-telegram/bot/models"
)

func langKeyboard() *models.InlineKeyboardMarkup {
	kb := utils.BuildInlineKeyboard([]utils.Button{
		{Text: "🇷🇺 Русский", CallbackData: langCallbackPrefix + string(i18n.RU)},
		{Text: "🇬🇧 English", CallbackData: langCallbackPrefix + string(i18n.EN)},
	})
	return &kb
}
