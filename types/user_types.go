package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformTelegram Platform = "telegram"
)

func (p Platform) Valid() bool {
	return p == PlatformWeb || p == PlatformTelegram
}

type Account struct {
	ID               string          `json:"id"`
	DisplayName      string          `json:"display_name"`
	Email            string          `json:"email,omitempty"`
	CredentialHash   string          `json:"-"`
	Balance          decimal.Decimal `json:"balance"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	ReferralCode     string          `json:"referral_code"`
	ReferredBy       *string         `json:"referred_by,omitempty"`
	IsPremium        bool            `json:"is_premium"`
	PremiumExpiresAt *time.Time      `json:"premium_expires_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	LastActiveAt     time.Time       `json:"last_active_at"`
}

// PremiumActive reports whether premium is in effect at now. Expiry is never
// swept; it is only ever evaluated here.
func (a *Account) PremiumActive(now time.Time) bool {
	if a == nil || !a.IsPremium || a.PremiumExpiresAt == nil {
		return false
	}
	return a.PremiumExpiresAt.After(now)
}

type PlatformLink struct {
	Platform   Platform  `json:"platform"`
	ExternalID string    `json:"external_id"`
	AccountID  string    `json:"account_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile carries the optional data a front-end knows at first contact.
type Profile struct {
	DisplayName    string
	Email          string
	CredentialHash string
	ReferralCode   string
}

type Resolution struct {
	AccountID string
	Created   bool
}

type Page struct {
	Page    int
	PerPage int
}

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PerPage
}
