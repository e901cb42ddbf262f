package handlers

import (
	"context"
	"strings"

	"github.com/BatmanBruc/chat-earn-ledger/internal/messages"
)

const langCallbackPrefix = "lang:"

func (bh *Handlers) HandleClickButton(ctx context.Context, userID int64, data string) Response {
	data = strings.TrimSpace(data)
	if arg, ok := strings.CutPrefix(data, langCallbackPrefix); ok {
		return bh.setLang(ctx, userID, arg)
	}
	return Response{Text: messages.ErrorUnknownCommand(langFromCtx(ctx))}
}
