package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChatEvent struct {
	EventID   string          `json:"event_id"`
	AccountID string          `json:"account_id"`
	Platform  Platform        `json:"platform"`
	Message   string          `json:"message"`
	Response  string          `json:"response"`
	Earnings  decimal.Decimal `json:"earnings"`
	CreatedAt time.Time       `json:"created_at"`
}

type ReferralCredit struct {
	ReferrerID string          `json:"referrer_id"`
	ReferredID string          `json:"referred_id"`
	EventID    string          `json:"event_id"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Adjustment struct {
	ID               int64            `json:"id"`
	AccountID        string           `json:"account_id"`
	Admin            string           `json:"admin"`
	BalanceDelta     *decimal.Decimal `json:"balance_delta,omitempty"`
	Premium          *bool            `json:"premium,omitempty"`
	PremiumExpiresAt *time.Time       `json:"premium_expires_at,omitempty"`
	Reason           string           `json:"reason"`
	CreatedAt        time.Time        `json:"created_at"`
}

type StatsSnapshot struct {
	TotalUsers    int64           `json:"total_users"`
	TotalChats    int64           `json:"total_chats"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// ChatCounts is the per-account chat tally split by front-end.
type ChatCounts struct {
	Total    int64 `json:"total"`
	Telegram int64 `json:"telegram"`
	Web      int64 `json:"web"`
}

// Add counts n chats on platform p.
func (c *ChatCounts) Add(p Platform, n int64) {
	c.Total += n
	switch p {
	case PlatformTelegram:
		c.Telegram += n
	case PlatformWeb:
		c.Web += n
	}
}

type StatsDelta struct {
	Users    int64
	Chats    int64
	Earnings decimal.Decimal
}

// Session is a web login session kept in Redis.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReferralSummary struct {
	Invited int64           `json:"invited"`
	Earned  decimal.Decimal `json:"earned"`
}
