package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/contextkeys"
	"github.com/BatmanBruc/chat-earn-ledger/internal/i18n"
	"github.com/BatmanBruc/chat-earn-ledger/internal/ledger"
	"github.com/BatmanBruc/chat-earn-ledger/internal/messages"
	"github.com/BatmanBruc/chat-earn-ledger/internal/middleware"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/go-telegram/bot/models"
)

func (bh *Handlers) HandleCommand(ctx context.Context, update *models.Update, userID int64) Response {
	lang := langFromCtx(ctx)
	if update == nil || update.Message == nil {
		return Response{}
	}
	cmd, args := middleware.ParseCommand(update.Message.Text)

	if cmd == "/link" {
		return bh.handleLink(ctx, userID, args)
	}

	accountID, ok := contextkeys.GetAccountID(ctx)
	if !ok {
		return Response{Text: messages.ErrorDefault(lang)}
	}

	switch cmd {
	case "/start":
		acc, err := bh.store.GetAccount(ctx, accountID)
		if err != nil {
			return bh.fail(lang, "Failed to load account", err, slog.String("account_id", accountID))
		}
		return Response{Text: messages.StartWelcome(lang, contextkeys.IsCreated(ctx), bh.settings.Policy.SignupBonus, acc.ReferralCode)}
	case "/help":
		return Response{Text: messages.Help(lang)}
	case "/balance":
		acc, err := bh.store.GetAccount(ctx, accountID)
		if err != nil {
			return bh.fail(lang, "Failed to load account", err, slog.String("account_id", accountID))
		}
		return Response{Text: messages.Balance(lang, *acc, bh.now())}
	case "/stats":
		return bh.userStats(ctx, userID, accountID)
	case "/model":
		return Response{Text: messages.ModelInfo(lang, bh.settings.Policy)}
	case "/referral":
		acc, err := bh.store.GetAccount(ctx, accountID)
		if err != nil {
			return bh.fail(lang, "Failed to load account", err, slog.String("account_id", accountID))
		}
		sum, err := bh.store.ReferralSummary(ctx, accountID)
		if err != nil {
			return bh.fail(lang, "Failed to load referrals", err, slog.String("account_id", accountID))
		}
		return Response{Text: messages.Referral(lang, acc.ReferralCode, sum, bh.settings.BotUsername)}
	case "/lang":
		if len(args) == 0 {
			return Response{Text: messages.LangChoose(lang), Markup: langKeyboard()}
		}
		return bh.setLang(ctx, userID, args[0])
	case "/grant":
		return bh.handleGrant(ctx, userID, args)
	default:
		return Response{Text: messages.ErrorUnknownCommand(lang)}
	}
}

// userStats reports the caller's own activity. Admins also get the
// platform-wide counters.
func (bh *Handlers) userStats(ctx context.Context, userID int64, accountID string) Response {
	lang := langFromCtx(ctx)
	acc, err := bh.store.GetAccount(ctx, accountID)
	if err != nil {
		return bh.fail(lang, "Failed to load account", err, slog.String("account_id", accountID))
	}
	counts, err := bh.store.ChatCounts(ctx, accountID)
	if err != nil {
		return bh.fail(lang, "Failed to load chat counts", err, slog.String("account_id", accountID))
	}
	text := messages.UserStats(lang, *acc, counts)
	if !bh.settings.IsAdmin(userID) {
		return Response{Text: text}
	}
	snap, err := bh.stats.Snapshot(ctx)
	if err != nil {
		return bh.fail(lang, "Failed to load stats", err)
	}
	return Response{Text: text + "\n\n" + messages.Stats(lang, snap)}
}

// handleLink attaches this Telegram identity to the web account that issued
// the one-time code.
func (bh *Handlers) handleLink(ctx context.Context, userID int64, args []string) Response {
	lang := langFromCtx(ctx)
	if len(args) == 0 {
		return Response{Text: messages.LinkUsage(lang)}
	}
	code := strings.TrimSpace(args[0])
	// the code is spent even if linking fails below
	issued, err := bh.linkCodes.TakeSession(ctx, code)
	if errors.Is(err, types.ErrSessionNotFound) {
		return Response{Text: messages.LinkInvalid(lang)}
	}
	if err != nil {
		return bh.fail(lang, "Failed to load link code", err)
	}

	err = bh.linker.Link(ctx, issued.AccountID, types.PlatformTelegram, strconv.FormatInt(userID, 10))
	switch {
	case errors.Is(err, types.ErrDuplicateLink):
		return Response{Text: messages.LinkDuplicate(lang)}
	case errors.Is(err, types.ErrAccountNotFound):
		return Response{Text: messages.LinkInvalid(lang)}
	case err != nil:
		return bh.fail(lang, "Failed to link telegram", err, slog.String("account_id", issued.AccountID))
	}
	return Response{Text: messages.LinkDone(lang)}
}

// handleGrant is the operator command /grant <telegram id | account id> <days>.
// Non-admins get the unknown-command reply.
func (bh *Handlers) handleGrant(ctx context.Context, userID int64, args []string) Response {
	lang := langFromCtx(ctx)
	if !bh.settings.IsAdmin(userID) {
		return Response{Text: messages.ErrorUnknownCommand(lang)}
	}
	if len(args) < 2 {
		return Response{Text: messages.AdminGrantUsage(lang)}
	}
	days, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || days <= 0 || days > ledger.MaxPremiumDays {
		return Response{Text: messages.AdminGrantUsage(lang)}
	}

	target, err := bh.grantTarget(ctx, strings.TrimSpace(args[0]))
	if errors.Is(err, types.ErrAccountNotFound) {
		return Response{Text: messages.AdminAccountNotFound(lang)}
	}
	if err != nil {
		return bh.fail(lang, "Failed to find grant target", err)
	}

	acc, err := bh.grants.GrantPremium(ctx, target, time.Duration(days)*24*time.Hour)
	if err != nil {
		return bh.fail(lang, "Failed to grant premium", err, slog.String("account_id", target))
	}
	bh.log.Warn("Premium granted from telegram",
		slog.String("type", "telegram"),
		slog.Int64("admin_telegram_id", userID),
		slog.String("account_id", acc.ID),
		slog.Int("days", days))
	return Response{Text: messages.AdminGrantDone(lang, acc.ID, *acc.PremiumExpiresAt)}
}

// grantTarget accepts a numeric Telegram id or an account id.
func (bh *Handlers) grantTarget(ctx context.Context, arg string) (string, error) {
	if _, err := strconv.ParseInt(arg, 10, 64); err == nil {
		acc, err := bh.store.FindAccountByLink(ctx, types.PlatformTelegram, arg)
		if err != nil {
			return "", err
		}
		return acc.ID, nil
	}
	acc, err := bh.store.GetAccount(ctx, arg)
	if err != nil {
		return "", err
	}
	return acc.ID, nil
}

func (bh *Handlers) setLang(ctx context.Context, userID int64, arg string) Response {
	lang := langFromCtx(ctx)
	if !i18n.Supported(arg) {
		return Response{Text: messages.LangInvalid(lang)}
	}
	options, err := bh.prefs.GetUserOptions(ctx, userID)
	if err != nil {
		bh.log.Warn("Failed to load user options", slog.String("type", "telegram"), slog.Any("error", err))
	}
	if options == nil {
		options = map[string]interface{}{}
	}
	newLang := i18n.Parse(arg)
	options["lang"] = string(newLang)
	if err := bh.prefs.SetUserOptions(ctx, userID, options); err != nil {
		return bh.fail(lang, "Failed to save user options", err, slog.Int64("telegram_id", userID))
	}
	return Response{Text: messages.LangSet(newLang)}
}
