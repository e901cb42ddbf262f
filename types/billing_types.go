package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTx is the set of operations available inside one atomic unit.
// Everything done through a LedgerTx commits together or not at all.
type LedgerTx interface {
	AccountByLink(ctx context.Context, platform Platform, externalID string) (*Account, error)
	AccountByReferralCode(ctx context.Context, code string) (*Account, error)
	// AccountForUpdate locks the row until the transaction ends.
	AccountForUpdate(ctx context.Context, accountID string) (*Account, error)
	InsertAccount(ctx context.Context, account *Account) error
	InsertLink(ctx context.Context, link PlatformLink) (inserted bool, err error)
	TouchAccount(ctx context.Context, accountID string, at time.Time) error

	InsertChatEvent(ctx context.Context, event *ChatEvent) (inserted bool, err error)
	ChatEvent(ctx context.Context, eventID string) (*ChatEvent, error)
	AddBalance(ctx context.Context, accountID string, delta, earned decimal.Decimal) error
	InsertReferralCredit(ctx context.Context, credit ReferralCredit) error

	SetPremium(ctx context.Context, accountID string, isPremium bool, expiresAt *time.Time) error
	InsertAdjustment(ctx context.Context, adj *Adjustment) error

	BumpStats(ctx context.Context, delta StatsDelta, at time.Time) error
}

type LedgerStore interface {
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	GetAccount(ctx context.Context, accountID string) (*Account, error)
	FindAccountByLink(ctx context.Context, platform Platform, externalID string) (*Account, error)
	ListAccounts(ctx context.Context, page Page) ([]Account, int64, error)
	ListChatEvents(ctx context.Context, accountID string, limit, offset int) ([]ChatEvent, error)
	ListLinks(ctx context.Context, accountID string) ([]PlatformLink, error)
	ReferralSummary(ctx context.Context, accountID string) (ReferralSummary, error)
	ChatCounts(ctx context.Context, accountID string) (ChatCounts, error)

	GetStats(ctx context.Context) (StatsSnapshot, error)
	// RecomputeStats rebuilds the counters from accounts and chat_events.
	RecomputeStats(ctx context.Context) (StatsSnapshot, error)
}

type StatsCache interface {
	GetStats(ctx context.Context) (*StatsSnapshot, error)
	SetStats(ctx context.Context, snap StatsSnapshot) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, accountID string) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	// TakeSession returns the session and removes it in one step.
	TakeSession(ctx context.Context, sessionID string) (*Session, error)
}

type PreferenceStore interface {
	GetUserOptions(ctx context.Context, telegramID int64) (map[string]interface{}, error)
	SetUserOptions(ctx context.Context, telegramID int64, options map[string]interface{}) error
}

type ResponseGenerator interface {
	Generate(ctx context.Context, accountID, message string) (string, error)
}
