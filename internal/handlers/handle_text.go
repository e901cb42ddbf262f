package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/BatmanBruc/chat-earn-ledger/internal/chat"
	"github.com/BatmanBruc/chat-earn-ledger/internal/contextkeys"
	"github.com/BatmanBruc/chat-earn-ledger/internal/messages"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/go-telegram/bot/models"
)

// TelegramEventID is the dedup key of a Telegram chat turn. Telegram
// redelivers an update with the same update_id.
func TelegramEventID(updateID int64) string {
	return "tg:" + strconv.FormatInt(updateID, 10)
}

func (bh *Handlers) HandleText(ctx context.Context, update *models.Update) Response {
	lang := langFromCtx(ctx)
	if update == nil || update.Message == nil {
		return Response{}
	}
	accountID, ok := contextkeys.GetAccountID(ctx)
	if !ok {
		return Response{Text: messages.ErrorDefault(lang)}
	}

	reply, err := bh.chat.Handle(ctx, chat.Turn{
		AccountID: accountID,
		EventID:   TelegramEventID(update.ID),
		Platform:  types.PlatformTelegram,
		Message:   update.Message.Text,
	})
	switch {
	case errors.Is(err, types.ErrEmptyMessage):
		return Response{Text: messages.EmptyTextHint(lang)}
	case errors.Is(err, types.ErrResponseGeneratorUnavailable):
		return Response{Text: messages.GeneratorUnavailable(lang)}
	case err != nil:
		return bh.fail(lang, "Chat turn failed", err, slog.String("account_id", accountID))
	}
	return Response{Text: messages.ChatReply(lang, reply.Text, reply.Event.Earnings, reply.Replayed)}
}
