package web

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/chat"
	"github.com/BatmanBruc/chat-earn-ledger/internal/utils"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	localAccountID = "account_id"
	localSessionID = "session_id"

	minPasswordLen = 6
	maxUsernameLen = 32
)

type AccountResolver interface {
	Resolve(ctx context.Context, platform types.Platform, externalID string, profile types.Profile) (types.Resolution, error)
}

type ChatHandler interface {
	Handle(ctx context.Context, turn chat.Turn) (chat.Reply, error)
}

type Server struct {
	resolver  AccountResolver
	chat      ChatHandler
	store     types.LedgerStore
	sessions  types.SessionStore
	linkCodes types.SessionStore
	log       *slog.Logger
	now       func() time.Time
}

// NewServer wires the web API. linkCodes holds the one-time codes a user
// sends to the Telegram bot to attach it to their web account.
func NewServer(resolver AccountResolver, chat ChatHandler, store types.LedgerStore, sessions, linkCodes types.SessionStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		resolver:  resolver,
		chat:      chat,
		store:     store,
		sessions:  sessions,
		linkCodes: linkCodes,
		log:       logger,
		now:       time.Now,
	}
}

// Mount registers the public API under /api.
func (s *Server) Mount(app fiber.Router) {
	api := app.Group("/api")
	api.Post("/register", s.register)
	api.Post("/login", s.login)

	authed := api.Group("", s.authRequired)
	authed.Post("/logout", s.logout)
	authed.Get("/me", s.me)
	authed.Get("/history", s.history)
	authed.Post("/chat", s.sendChat)
	authed.Post("/link/telegram", s.linkTelegram)
}

type registerBody struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *Server) register(c *fiber.Ctx) error {
	var body registerBody
	if err := c.BodyParser(&body); err != nil {
		return utils.SendBadRequest(c, "invalid body")
	}
	username := normalizeUsername(body.Username)
	if username == "" || len(username) > maxUsernameLen {
		return utils.SendBadRequest(c, "username is required")
	}
	if len(body.Password) < minPasswordLen {
		return utils.SendBadRequest(c, "password is too short")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.SendLedgerError(c, err)
	}

	ctx := c.UserContext()
	res, err := s.resolver.Resolve(ctx, types.PlatformWeb, username, types.Profile{
		DisplayName:    strings.TrimSpace(body.Username),
		Email:          body.Email,
		CredentialHash: string(hash),
		ReferralCode:   body.ReferralCode,
	})
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	if !res.Created {
		return utils.SendConflict(c, "username already registered")
	}

	session, err := s.sessions.CreateSession(ctx, res.AccountID)
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	s.log.Info("Web account registered", slog.String("type", "http"), slog.String("account_id", res.AccountID))
	return utils.SendCreated(c, sessionResponse{Token: session.ID, AccountID: res.AccountID, ExpiresAt: session.ExpiresAt})
}

func (s *Server) login(c *fiber.Ctx) error {
	var body loginBody
	if err := c.BodyParser(&body); err != nil {
		return utils.SendBadRequest(c, "invalid body")
	}
	ctx := c.UserContext()
	acc, err := s.store.FindAccountByLink(ctx, types.PlatformWeb, normalizeUsername(body.Username))
	if errors.Is(err, types.ErrAccountNotFound) {
		return utils.SendLedgerError(c, types.ErrInvalidCredentials)
	}
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	if acc.CredentialHash == "" || bcrypt.CompareHashAndPassword([]byte(acc.CredentialHash), []byte(body.Password)) != nil {
		return utils.SendLedgerError(c, types.ErrInvalidCredentials)
	}

	session, err := s.sessions.CreateSession(ctx, acc.ID)
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	return utils.SendSuccess(c, sessionResponse{Token: session.ID, AccountID: acc.ID, ExpiresAt: session.ExpiresAt})
}

func (s *Server) authRequired(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return utils.SendUnauthorized(c, "missing bearer token")
	}
	session, err := s.sessions.GetSession(c.UserContext(), token)
	if err != nil {
		if !errors.Is(err, types.ErrSessionNotFound) {
			s.log.Error("Session lookup failed", slog.String("type", "http"), slog.Any("error", err))
		}
		return utils.SendUnauthorized(c, "invalid session")
	}
	c.Locals(localAccountID, session.AccountID)
	c.Locals(localSessionID, session.ID)
	return c.Next()
}

func accountID(c *fiber.Ctx) string {
	id, _ := c.Locals(localAccountID).(string)
	return id
}

func (s *Server) logout(c *fiber.Ctx) error {
	id, _ := c.Locals(localSessionID).(string)
	if err := s.sessions.DeleteSession(c.UserContext(), id); err != nil {
		return utils.SendLedgerError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type meResponse struct {
	Account       types.Account         `json:"account"`
	PremiumActive bool                  `json:"premium_active"`
	Links         []types.PlatformLink  `json:"links"`
	Referrals     types.ReferralSummary `json:"referrals"`
	Chats         types.ChatCounts      `json:"chats"`
}

func (s *Server) me(c *fiber.Ctx) error {
	ctx := c.UserContext()
	acc, err := s.store.GetAccount(ctx, accountID(c))
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	links, err := s.store.ListLinks(ctx, acc.ID)
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	sum, err := s.store.ReferralSummary(ctx, acc.ID)
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	counts, err := s.store.ChatCounts(ctx, acc.ID)
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	return utils.SendSuccess(c, meResponse{
		Account:       *acc,
		PremiumActive: acc.PremiumActive(s.now()),
		Links:         links,
		Referrals:     sum,
		Chats:         counts,
	})
}

func (s *Server) history(c *fiber.Ctx) error {
	events, err := s.store.ListChatEvents(c.UserContext(), accountID(c), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	return utils.SendSuccess(c, events)
}

type chatBody struct {
	Message string `json:"message"`
	Nonce   string `json:"nonce"`
}

type chatResponse struct {
	Response string          `json:"response"`
	Event    types.ChatEvent `json:"event"`
	Replayed bool            `json:"replayed"`
}

// WebEventID derives the dedup key of a web chat turn. Clients retry a send
// with the same nonce.
func WebEventID(accountID, nonce string) string {
	return "web:" + accountID + ":" + nonce
}

func (s *Server) sendChat(c *fiber.Ctx) error {
	var body chatBody
	if err := c.BodyParser(&body); err != nil {
		return utils.SendBadRequest(c, "invalid body")
	}
	nonce := strings.TrimSpace(body.Nonce)
	if nonce == "" {
		return utils.SendBadRequest(c, "nonce is required")
	}
	id := accountID(c)
	reply, err := s.chat.Handle(c.UserContext(), chat.Turn{
		AccountID: id,
		EventID:   WebEventID(id, nonce),
		Platform:  types.PlatformWeb,
		Message:   body.Message,
	})
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	return utils.SendSuccess(c, chatResponse{Response: reply.Text, Event: reply.Event, Replayed: reply.Replayed})
}

type linkResponse struct {
	Code      string    `json:"code"`
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) linkTelegram(c *fiber.Ctx) error {
	code, err := s.linkCodes.CreateSession(c.UserContext(), accountID(c))
	if err != nil {
		return utils.SendLedgerError(c, err)
	}
	return utils.SendCreated(c, linkResponse{
		Code:      code.ID,
		Command:   "/link " + code.ID,
		ExpiresAt: code.ExpiresAt,
	})
}
