package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/chat"
	"github.com/BatmanBruc/chat-earn-ledger/internal/contextkeys"
	"github.com/BatmanBruc/chat-earn-ledger/internal/i18n"
	"github.com/BatmanBruc/chat-earn-ledger/internal/messages"
	"github.com/BatmanBruc/chat-earn-ledger/internal/middleware"
	"github.com/BatmanBruc/chat-earn-ledger/internal/pricing"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type ChatHandler interface {
	Handle(ctx context.Context, turn chat.Turn) (chat.Reply, error)
}

type Linker interface {
	Link(ctx context.Context, accountID string, platform types.Platform, externalID string) error
}

type PremiumGranter interface {
	GrantPremium(ctx context.Context, accountID string, d time.Duration) (types.Account, error)
}

type StatsReader interface {
	Snapshot(ctx context.Context) (types.StatsSnapshot, error)
}

type Settings struct {
	Policy      pricing.Policy
	BotUsername string
	IsAdmin     func(telegramID int64) bool
}

type Handlers struct {
	store     types.LedgerStore
	chat      ChatHandler
	linker    Linker
	grants    PremiumGranter
	stats     StatsReader
	prefs     types.PreferenceStore
	linkCodes types.SessionStore
	settings  Settings
	log       *slog.Logger
	now       func() time.Time
}

func NewHandlers(
	store types.LedgerStore,
	chat ChatHandler,
	linker Linker,
	grants PremiumGranter,
	stats StatsReader,
	prefs types.PreferenceStore,
	linkCodes types.SessionStore,
	settings Settings,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.IsAdmin == nil {
		settings.IsAdmin = func(int64) bool { return false }
	}
	return &Handlers{
		store:     store,
		chat:      chat,
		linker:    linker,
		grants:    grants,
		stats:     stats,
		prefs:     prefs,
		linkCodes: linkCodes,
		settings:  settings,
		log:       logger,
		now:       time.Now,
	}
}

// Response is what the bot sends back for one update.
type Response struct {
	Text   string
	Markup models.ReplyMarkup
}

func langFromCtx(ctx context.Context) i18n.Lang {
	if v, ok := contextkeys.GetLang(ctx); ok {
		return i18n.Parse(v)
	}
	return i18n.EN
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, chatID := middleware.Sender(update)
	if chatID == 0 {
		return
	}

	if messageType, _ := contextkeys.GetMessageType(ctx); messageType == contextkeys.MessageTypeText {
		_, _ = b.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: models.ChatActionTyping,
		})
	}

	resp := bh.Respond(ctx, update)

	if update.CallbackQuery != nil {
		_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
		})
	}
	if resp.Text == "" {
		return
	}
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        resp.Text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: resp.Markup,
	}); err != nil {
		bh.log.Error("Failed to send message",
			slog.String("type", "telegram"),
			slog.Int64("chat_id", chatID),
			slog.Any("error", err))
	}
}

// Respond computes the reply to an update without talking to Telegram.
func (bh *Handlers) Respond(ctx context.Context, update *models.Update) Response {
	lang := langFromCtx(ctx)
	user, _ := middleware.Sender(update)
	if user == nil {
		return Response{}
	}

	messageType, _ := contextkeys.GetMessageType(ctx)
	switch messageType {
	case contextkeys.MessageTypeCommand:
		return bh.HandleCommand(ctx, update, user.ID)
	case contextkeys.MessageTypeText:
		return bh.HandleText(ctx, update)
	case contextkeys.MessageTypeClickButton:
		data, _ := contextkeys.GetCallbackData(ctx)
		if data == "" && update.CallbackQuery != nil {
			data = update.CallbackQuery.Data
		}
		return bh.HandleClickButton(ctx, user.ID, data)
	default:
		return Response{Text: messages.ErrorUnsupportedMessageType(lang)}
	}
}

func (bh *Handlers) fail(lang i18n.Lang, msg string, err error, attrs ...any) Response {
	bh.log.Error(msg, append([]any{slog.String("type", "telegram"), slog.Any("error", err)}, attrs...)...)
	return Response{Text: messages.ErrorDefault(lang)}
}
