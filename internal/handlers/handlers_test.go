package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/chat"
	"github.com/BatmanBruc/chat-earn-ledger/internal/chat/mock"
	"github.com/BatmanBruc/chat-earn-ledger/internal/i18n"
	"github.com/BatmanBruc/chat-earn-ledger/internal/ledger"
	"github.com/BatmanBruc/chat-earn-ledger/internal/messages"
	"github.com/BatmanBruc/chat-earn-ledger/internal/middleware"
	"github.com/BatmanBruc/chat-earn-ledger/internal/pricing"
	"github.com/BatmanBruc/chat-earn-ledger/internal/resolver"
	"github.com/BatmanBruc/chat-earn-ledger/internal/stats"
	"github.com/BatmanBruc/chat-earn-ledger/store"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

const adminTelegramID int64 = 42

type testEnv struct {
	store     *store.MemoryStore
	resolver  *resolver.Resolver
	generator *mock.MockResponseGenerator
	linkCodes *store.MemorySessionStore
	prefs     *store.MemoryPreferenceStore
	handlers  *Handlers
	chain     bot.HandlerFunc
	last      Response
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	policy := pricing.DefaultPolicy()
	res := resolver.New(st, policy.SignupBonus)
	engine := ledger.NewEngine(st, policy)
	gen := mock.NewMockResponseGenerator(gomock.NewController(t))

	env := &testEnv{
		store:     st,
		resolver:  res,
		generator: gen,
		linkCodes: store.NewMemorySessionStore(15 * time.Minute),
		prefs:     store.NewMemoryPreferenceStore(),
	}
	env.handlers = NewHandlers(
		st,
		chat.NewService(gen, engine, nil),
		res,
		engine,
		stats.New(st, nil, nil),
		env.prefs,
		env.linkCodes,
		Settings{
			Policy:      policy,
			BotUsername: "earn_bot",
			IsAdmin:     func(id int64) bool { return id == adminTelegramID },
		},
		nil,
	)

	mw := middleware.NewMiddlewares(res, env.prefs, nil)
	final := func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		env.last = env.handlers.Respond(ctx, update)
	}
	env.chain = mw.LangMiddleware(mw.AnalyzeMessageMiddleware(mw.ResolveAccountMiddleware(final)))
	return env
}

func textUpdate(updateID, telegramID int64, text string) *models.Update {
	return &models.Update{
		ID: updateID,
		Message: &models.Message{
			Text: text,
			From: &models.User{ID: telegramID, FirstName: "Ann", LanguageCode: "en"},
			Chat: models.Chat{ID: telegramID},
		},
	}
}

func (e *testEnv) send(t *testing.T, update *models.Update) string {
	t.Helper()
	e.last = Response{}
	e.chain(context.Background(), nil, update)
	return e.last.Text
}

func (e *testEnv) accountOf(t *testing.T, telegramID string) *types.Account {
	t.Helper()
	acc, err := e.store.FindAccountByLink(context.Background(), types.PlatformTelegram, telegramID)
	require.NoError(t, err)
	return acc
}

func TestStartCreatesAccountOnce(t *testing.T) {
	env := newTestEnv(t)

	text := env.send(t, textUpdate(1, 100, "/start"))
	acc := env.accountOf(t, "100")
	assert.Equal(t, messages.StartWelcome(i18n.EN, true, decimal.RequireFromString("10"), acc.ReferralCode), text)
	assert.Contains(t, text, "Signup bonus")
	assert.Equal(t, "Ann", acc.DisplayName)

	text = env.send(t, textUpdate(2, 100, "/start"))
	assert.NotContains(t, text, "Signup bonus")

	_, total, err := env.store.ListAccounts(context.Background(), types.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestStartWithReferralCode(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, textUpdate(1, 100, "/start"))
	referrer := env.accountOf(t, "100")

	env.send(t, textUpdate(2, 200, "/start@earn_bot "+strings.ToLower(referrer.ReferralCode)))
	invited := env.accountOf(t, "200")
	require.NotNil(t, invited.ReferredBy)
	assert.Equal(t, referrer.ID, *invited.ReferredBy)

	text := env.send(t, textUpdate(3, 100, "/referral"))
	assert.Contains(t, text, "https://t.me/earn_bot?start="+referrer.ReferralCode)
	assert.Contains(t, text, "Invited: <b>1</b>")
}

func TestChatTurnCreditsOncePerUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, textUpdate(1, 100, "/start"))
	acc := env.accountOf(t, "100")

	env.generator.EXPECT().Generate(gomock.Any(), acc.ID, "hello there").Return("General Kenobi", nil).Times(2)

	text := env.send(t, textUpdate(7, 100, "hello there"))
	assert.Equal(t, messages.ChatReply(i18n.EN, "General Kenobi", decimal.RequireFromString("0.001"), false), text)

	text = env.send(t, textUpdate(7, 100, "hello there"))
	assert.Equal(t, "General Kenobi", text)

	acc = env.accountOf(t, "100")
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("10.001")))

	text = env.send(t, textUpdate(8, 100, "/balance"))
	assert.Contains(t, text, "10.001")
	assert.Contains(t, text, "Premium is not active")
}

func TestChatTurnGeneratorDown(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, textUpdate(1, 100, "/start"))
	acc := env.accountOf(t, "100")

	env.generator.EXPECT().Generate(gomock.Any(), acc.ID, "hi").Return("", errors.New("timeout"))

	text := env.send(t, textUpdate(2, 100, "hi"))
	assert.Equal(t, messages.GeneratorUnavailable(i18n.EN), text)

	acc = env.accountOf(t, "100")
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("10")))
}

func TestLinkWithOneTimeCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	web, err := env.resolver.Resolve(ctx, types.PlatformWeb, "alice", types.Profile{})
	require.NoError(t, err)
	code, err := env.linkCodes.CreateSession(ctx, web.AccountID)
	require.NoError(t, err)

	text := env.send(t, textUpdate(1, 300, "/link "+code.ID))
	assert.Equal(t, messages.LinkDone(i18n.EN), text)
	assert.Equal(t, web.AccountID, env.accountOf(t, "300").ID)

	_, total, err := env.store.ListAccounts(ctx, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "linking must not create a telegram account")

	text = env.send(t, textUpdate(2, 300, "/link "+code.ID))
	assert.Equal(t, messages.LinkInvalid(i18n.EN), text, "codes are single use")

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "NoCode", text: "/link", want: messages.LinkUsage(i18n.EN)},
		{name: "UnknownCode", text: "/link nope", want: messages.LinkInvalid(i18n.EN)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.send(t, textUpdate(3, 301, tt.text)))
		})
	}
}

func TestLinkTelegramOwnedByAnotherAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.send(t, textUpdate(1, 400, "/start"))

	web, err := env.resolver.Resolve(ctx, types.PlatformWeb, "bob", types.Profile{})
	require.NoError(t, err)
	code, err := env.linkCodes.CreateSession(ctx, web.AccountID)
	require.NoError(t, err)

	text := env.send(t, textUpdate(2, 400, "/link "+code.ID))
	assert.Equal(t, messages.LinkDuplicate(i18n.EN), text)
	assert.NotEqual(t, web.AccountID, env.accountOf(t, "400").ID)
}

func TestLangCommandAndCallback(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, textUpdate(1, 100, "/lang"))
	require.NotNil(t, env.last.Markup)
	kb, ok := env.last.Markup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, "lang:ru", kb.InlineKeyboard[0][0].CallbackData)

	assert.Equal(t, messages.LangSet(i18n.RU), env.send(t, textUpdate(2, 100, "/lang ru")))
	assert.Equal(t, messages.Help(i18n.RU), env.send(t, textUpdate(3, 100, "/help")))
	assert.Equal(t, messages.LangInvalid(i18n.RU), env.send(t, textUpdate(4, 100, "/lang de")))

	click := &models.Update{
		ID: 5,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb",
			From: models.User{ID: 100, LanguageCode: "ru"},
			Data: "lang:en",
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{Chat: models.Chat{ID: 100}},
			},
		},
	}
	assert.Equal(t, messages.LangSet(i18n.EN), env.send(t, click))
	assert.Equal(t, messages.Help(i18n.EN), env.send(t, textUpdate(6, 100, "/help")))
}

func TestGrantCommand(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, textUpdate(1, 100, "/start"))
	target := env.accountOf(t, "100")

	tests := []struct {
		name     string
		sender   int64
		text     string
		want     string
		contains string
	}{
		{name: "NotAdmin", sender: 100, text: "/grant 100 30", want: messages.ErrorUnknownCommand(i18n.EN)},
		{name: "MissingDays", sender: adminTelegramID, text: "/grant 100", want: messages.AdminGrantUsage(i18n.EN)},
		{name: "BadDays", sender: adminTelegramID, text: "/grant 100 -3", want: messages.AdminGrantUsage(i18n.EN)},
		{name: "UnknownTarget", sender: adminTelegramID, text: "/grant 999 3", want: messages.AdminAccountNotFound(i18n.EN)},
		{name: "ByTelegramID", sender: adminTelegramID, text: "/grant 100 30", contains: target.ID},
		{name: "ByAccountID", sender: adminTelegramID, text: "/grant " + target.ID + " 1", contains: target.ID},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := env.send(t, textUpdate(int64(10+i), tt.sender, tt.text))
			if tt.want != "" {
				assert.Equal(t, tt.want, text)
			}
			if tt.contains != "" {
				assert.Contains(t, text, tt.contains)
			}
		})
	}

	acc := env.accountOf(t, "100")
	require.True(t, acc.PremiumActive(time.Now()))
	assert.WithinDuration(t, time.Now().Add(31*24*time.Hour), *acc.PremiumExpiresAt, time.Minute)
}

func TestStatsAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, textUpdate(1, 100, "/start"))
	env.send(t, textUpdate(2, 200, "/start"))

	text := env.send(t, textUpdate(3, 100, "/stats"))
	assert.Contains(t, text, "Your statistics")
	assert.NotContains(t, text, "Users:", "platform counters are admin only")
	assert.Equal(t, messages.ErrorUnknownCommand(i18n.EN), env.send(t, textUpdate(4, 100, "/nope")))

	sticker := &models.Update{
		ID: 5,
		Message: &models.Message{
			From:    &models.User{ID: 100},
			Chat:    models.Chat{ID: 100},
			Sticker: &models.Sticker{FileID: "x"},
		},
	}
	assert.Equal(t, messages.ErrorUnsupportedMessageType(i18n.EN), env.send(t, sticker))
}

func TestStatsPerUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.send(t, textUpdate(1, 100, "/start"))
	acc := env.accountOf(t, "100")
	env.generator.EXPECT().Generate(gomock.Any(), acc.ID, gomock.Any()).Return("ok", nil).Times(3)
	env.send(t, textUpdate(2, 100, "one"))
	env.send(t, textUpdate(3, 100, "two"))
	_, err := env.handlers.chat.Handle(ctx, chat.Turn{AccountID: acc.ID, EventID: "web:ann:1", Platform: types.PlatformWeb, Message: "three"})
	require.NoError(t, err)

	acc = env.accountOf(t, "100")
	counts := types.ChatCounts{Total: 3, Telegram: 2, Web: 1}
	assert.Equal(t, messages.UserStats(i18n.EN, *acc, counts), env.send(t, textUpdate(4, 100, "/stats")))
	assert.Contains(t, env.last.Text, "Average per message: <code>3.334</code>")

	env.send(t, textUpdate(5, adminTelegramID, "/start"))
	text := env.send(t, textUpdate(6, adminTelegramID, "/stats"))
	assert.Contains(t, text, "Messages: <b>0</b>")
	assert.Contains(t, text, "Users: <b>2</b>")
}

func TestModelCommand(t *testing.T) {
	env := newTestEnv(t)
	text := env.send(t, textUpdate(1, 100, "/model"))
	assert.Equal(t, messages.ModelInfo(i18n.EN, pricing.DefaultPolicy()), text)
	assert.Contains(t, text, "Per message: <code>0.001</code>")
	assert.Contains(t, text, "With premium: <code>0.002</code>")
	assert.Contains(t, text, "<code>0.0005</code>")
}

func TestLinkCodeRedeemedOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	web, err := env.resolver.Resolve(ctx, types.PlatformWeb, "zed", types.Profile{})
	require.NoError(t, err)
	code, err := env.linkCodes.CreateSession(ctx, web.AccountID)
	require.NoError(t, err)

	replies := make([]Response, 10)
	var g errgroup.Group
	for i := range replies {
		g.Go(func() error {
			userID := int64(500 + i)
			replies[i] = env.handlers.HandleCommand(ctx, textUpdate(int64(i+1), userID, "/link "+code.ID), userID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	done := 0
	for _, r := range replies {
		if r.Text == messages.LinkDone(i18n.EN) {
			done++
		}
	}
	assert.Equal(t, 1, done)
	links, err := env.store.ListLinks(ctx, web.AccountID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestTelegramEventID(t *testing.T) {
	assert.Equal(t, "tg:123", TelegramEventID(123))
}
