package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ReferralMode string

const (
	// ReferralFixed credits the referrer a flat amount per chat.
	ReferralFixed ReferralMode = "fixed"
	// ReferralFraction credits the referrer a share of the chat earnings.
	ReferralFraction ReferralMode = "fraction"
)

func ParseReferralMode(s string) (ReferralMode, error) {
	switch ReferralMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReferralFixed:
		return ReferralFixed, nil
	case ReferralFraction:
		return ReferralFraction, nil
	default:
		return "", fmt.Errorf("unknown referral bonus mode %q", s)
	}
}

// Policy is the earnings configuration shared by the ledger and the
// front-ends that display rates.
type Policy struct {
	ChatPayRate       decimal.Decimal
	SignupBonus       decimal.Decimal
	PremiumMultiplier decimal.Decimal
	ReferralBonusRate decimal.Decimal
	ReferralMode      ReferralMode
}

func DefaultPolicy() Policy {
	return Policy{
		ChatPayRate:       decimal.RequireFromString("0.001"),
		SignupBonus:       decimal.RequireFromString("10"),
		PremiumMultiplier: decimal.NewFromInt(2),
		ReferralBonusRate: decimal.RequireFromString("0.0005"),
		ReferralMode:      ReferralFixed,
	}
}

func (p Policy) Validate() error {
	if p.ChatPayRate.IsNegative() {
		return fmt.Errorf("chat pay rate must not be negative")
	}
	if p.SignupBonus.IsNegative() {
		return fmt.Errorf("signup bonus must not be negative")
	}
	if p.PremiumMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("premium multiplier must be at least 1")
	}
	if p.ReferralBonusRate.IsNegative() {
		return fmt.Errorf("referral bonus rate must not be negative")
	}
	if p.ReferralMode != ReferralFixed && p.ReferralMode != ReferralFraction {
		return fmt.Errorf("unknown referral bonus mode %q", p.ReferralMode)
	}
	return nil
}

func ChatEarnings(p Policy, premium bool) decimal.Decimal {
	if premium {
		return p.ChatPayRate.Mul(p.PremiumMultiplier)
	}
	return p.ChatPayRate
}

func ReferralBonus(p Policy, earnings decimal.Decimal) decimal.Decimal {
	if p.ReferralMode == ReferralFraction {
		return earnings.Mul(p.ReferralBonusRate)
	}
	return p.ReferralBonusRate
}
