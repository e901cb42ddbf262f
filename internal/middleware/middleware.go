package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/chat-earn-ledger/internal/contextkeys"
	"github.com/BatmanBruc/chat-earn-ledger/internal/i18n"
	"github.com/BatmanBruc/chat-earn-ledger/internal/messages"
	"github.com/BatmanBruc/chat-earn-ledger/types"
)

type AccountResolver interface {
	Resolve(ctx context.Context, platform types.Platform, externalID string, profile types.Profile) (types.Resolution, error)
}

type Middlewares struct {
	resolver AccountResolver
	prefs    types.PreferenceStore
	log      *slog.Logger
}

func NewMiddlewares(resolver AccountResolver, prefs types.PreferenceStore, logger *slog.Logger) *Middlewares {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middlewares{
		resolver: resolver,
		prefs:    prefs,
		log:      logger,
	}
}

// Sender returns the Telegram user behind an update and the chat to answer in.
func Sender(update *models.Update) (*models.User, int64) {
	switch {
	case update == nil:
		return nil, 0
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From, update.Message.Chat.ID
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From, getChatIDFromMaybeInaccessibleMessage(update.CallbackQuery.Message)
	default:
		return nil, 0
	}
}

func getChatIDFromMaybeInaccessibleMessage(m models.MaybeInaccessibleMessage) int64 {
	if m.Message != nil {
		return m.Message.Chat.ID
	}
	if m.InaccessibleMessage != nil {
		return m.InaccessibleMessage.Chat.ID
	}
	return 0
}

// ParseCommand splits "/cmd@bot arg1 arg2" into "/cmd" and its arguments.
// It returns an empty command for text that is not a command.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := fields[0]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}

func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		switch {
		case update.CallbackQuery != nil && update.CallbackQuery.Data != "":
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			ctx = contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
		case update.Message != nil && strings.HasPrefix(strings.TrimSpace(update.Message.Text), "/"):
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
		case update.Message != nil && update.Message.Text != "":
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeText)
		default:
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
		}
		next(ctx, b, update)
	}
}

// LangMiddleware prefers the language stored by /lang over the client's.
func (m *Middlewares) LangMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		user, _ := Sender(update)
		if user == nil {
			next(ctx, b, update)
			return
		}
		lang := i18n.FromLanguageCode(user.LanguageCode)
		if m.prefs != nil {
			options, err := m.prefs.GetUserOptions(ctx, user.ID)
			if err != nil {
				m.log.Warn("Failed to load user options",
					slog.String("type", "telegram"),
					slog.Int64("telegram_id", user.ID),
					slog.Any("error", err))
			}
			if v, ok := options["lang"].(string); ok && i18n.Supported(v) {
				lang = i18n.Parse(v)
			}
		}
		next(contextkeys.WithLang(ctx, string(lang)), b, update)
	}
}

// ResolveAccountMiddleware binds the sender to a ledger account, creating it
// on first contact. The argument of /start is taken as a referral code.
// /link is passed through unresolved so that linking never creates a
// throwaway Telegram account first.
func (m *Middlewares) ResolveAccountMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		user, chatID := Sender(update)
		if user == nil || user.ID == 0 || chatID == 0 {
			return
		}

		var profile types.Profile
		if update.Message != nil {
			cmd, args := ParseCommand(update.Message.Text)
			switch {
			case cmd == "/link":
				next(ctx, b, update)
				return
			case cmd == "/start" && len(args) > 0:
				profile.ReferralCode = args[0]
			}
		}
		profile.DisplayName = displayName(user)

		res, err := m.resolver.Resolve(ctx, types.PlatformTelegram, strconv.FormatInt(user.ID, 10), profile)
		if err != nil {
			m.log.Error("Failed to resolve account",
				slog.String("type", "telegram"),
				slog.Int64("telegram_id", user.ID),
				slog.Any("error", err))
			lang := i18n.EN
			if v, ok := contextkeys.GetLang(ctx); ok {
				lang = i18n.Parse(v)
			}
			b.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:    chatID,
				Text:      messages.ErrorDefault(lang),
				ParseMode: messages.ParseModeHTML,
			})
			return
		}

		ctx = contextkeys.WithAccountID(ctx, res.AccountID)
		ctx = contextkeys.WithCreated(ctx, res.Created)
		next(ctx, b, update)
	}
}
