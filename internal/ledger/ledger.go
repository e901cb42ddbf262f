package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/pricing"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/shopspring/decimal"
)

// Engine applies every balance mutation. Each call is a single store
// transaction: the chat event, the account credit, the referrer credit and
// the stats counters are committed together or not at all.
type Engine struct {
	store  types.LedgerStore
	policy pricing.Policy
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEngine(store types.LedgerStore, policy pricing.Policy, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		policy: policy,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() pricing.Policy {
	return e.policy
}

type ChatRequest struct {
	AccountID string
	EventID   string
	Platform  types.Platform
	Message   string
	Response  string
}

// Receipt describes what a RecordChat call did.
type Receipt struct {
	Event         types.ChatEvent
	Replayed      bool
	ReferrerID    string
	ReferralBonus decimal.Decimal
}

// RecordChat credits one chat turn. Replaying an event id returns the event
// stored the first time and changes nothing.
func (e *Engine) RecordChat(ctx context.Context, req ChatRequest) (types.ChatEvent, error) {
	r, err := e.Record(ctx, req)
	if err != nil {
		return types.ChatEvent{}, err
	}
	return r.Event, nil
}

// Record is RecordChat with the replay and referral details exposed.
func (e *Engine) Record(ctx context.Context, req ChatRequest) (Receipt, error) {
	if strings.TrimSpace(req.EventID) == "" {
		return Receipt{}, types.ErrInvalidEvent
	}
	if !req.Platform.Valid() {
		return Receipt{}, types.ErrInvalidIdentity
	}

	var (
		stored   types.ChatEvent
		replayed bool
		bonus    decimal.Decimal
		referrer string
	)
	err := e.store.InTx(ctx, func(tx types.LedgerTx) error {
		replayed, bonus, referrer = false, decimal.Zero, ""

		account, err := tx.AccountForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		earnings := pricing.ChatEarnings(e.policy, account.PremiumActive(now))
		if earnings.IsNegative() {
			return types.ErrInvalidAmount
		}

		ev := types.ChatEvent{
			EventID:   req.EventID,
			AccountID: account.ID,
			Platform:  req.Platform,
			Message:   req.Message,
			Response:  req.Response,
			Earnings:  earnings,
			CreatedAt: now,
		}
		inserted, err := tx.InsertChatEvent(ctx, &ev)
		if err != nil {
			return fmt.Errorf("insert chat event: %w", err)
		}
		if !inserted {
			existing, err := tx.ChatEvent(ctx, req.EventID)
			if err != nil {
				return err
			}
			if existing.AccountID != account.ID {
				return types.ErrInvalidEvent
			}
			stored, replayed = *existing, true
			return nil
		}

		if err := tx.AddBalance(ctx, account.ID, earnings, earnings); err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		if err := tx.TouchAccount(ctx, account.ID, now); err != nil {
			return err
		}

		if account.ReferredBy != nil && *account.ReferredBy != "" {
			ref, err := tx.AccountForUpdate(ctx, *account.ReferredBy)
			switch {
			case errors.Is(err, types.ErrAccountNotFound):
				// dangling referrer, no bonus
			case err != nil:
				return err
			default:
				amount := pricing.ReferralBonus(e.policy, earnings)
				if amount.IsNegative() {
					return types.ErrInvalidAmount
				}
				if amount.IsPositive() {
					if err := tx.AddBalance(ctx, ref.ID, amount, amount); err != nil {
						return fmt.Errorf("credit referrer: %w", err)
					}
					if err := tx.InsertReferralCredit(ctx, types.ReferralCredit{
						ReferrerID: ref.ID,
						ReferredID: account.ID,
						EventID:    ev.EventID,
						Amount:     amount,
						CreatedAt:  now,
					}); err != nil {
						return fmt.Errorf("insert referral credit: %w", err)
					}
					bonus, referrer = amount, ref.ID
				}
			}
		}

		if err := tx.BumpStats(ctx, types.StatsDelta{Chats: 1, Earnings: earnings}, now); err != nil {
			return fmt.Errorf("bump stats: %w", err)
		}
		stored = ev
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	if replayed {
		e.log.Info("Chat event replayed",
			slog.String("type", "ledger"),
			slog.String("event_id", req.EventID))
		return Receipt{Event: stored, Replayed: true}, nil
	}
	attrs := []any{
		slog.String("type", "ledger"),
		slog.String("event_id", stored.EventID),
		slog.String("account_id", stored.AccountID),
		slog.String("earnings", stored.Earnings.String()),
	}
	if referrer != "" {
		attrs = append(attrs, slog.String("referrer_id", referrer), slog.String("referral_bonus", bonus.String()))
	}
	e.log.Info("Chat recorded", attrs...)
	return Receipt{Event: stored, ReferrerID: referrer, ReferralBonus: bonus}, nil
}

// MaxPremiumDays bounds a single premium grant.
const MaxPremiumDays = 3650

// GrantPremium extends premium by d, stacking on top of a still-active expiry.
func (e *Engine) GrantPremium(ctx context.Context, accountID string, d time.Duration) (types.Account, error) {
	if d <= 0 {
		return types.Account{}, types.ErrInvalidAmount
	}
	var out types.Account
	err := e.store.InTx(ctx, func(tx types.LedgerTx) error {
		account, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		expires := extendPremium(account, e.now().UTC(), d)
		if err := tx.SetPremium(ctx, account.ID, true, &expires); err != nil {
			return err
		}
		account.IsPremium = true
		account.PremiumExpiresAt = &expires
		out = *account
		return nil
	})
	if err != nil {
		return types.Account{}, err
	}
	e.log.Info("Premium granted",
		slog.String("type", "ledger"),
		slog.String("account_id", accountID),
		slog.Time("expires_at", *out.PremiumExpiresAt))
	return out, nil
}

func extendPremium(a *types.Account, now time.Time, d time.Duration) time.Time {
	base := now
	if a.IsPremium && a.PremiumExpiresAt != nil && a.PremiumExpiresAt.After(base) {
		base = *a.PremiumExpiresAt
	}
	return base.Add(d)
}

type AdjustRequest struct {
	AccountID       string
	Admin           string
	BalanceDelta    *decimal.Decimal
	Premium         *bool
	PremiumDuration time.Duration
	Reason          string
}

// AdminAdjust is the operator override path. It bypasses event dedup and
// leaves total_earned untouched; every call leaves an audit row.
func (e *Engine) AdminAdjust(ctx context.Context, req AdjustRequest) (types.Account, error) {
	if req.BalanceDelta == nil && req.Premium == nil {
		return types.Account{}, types.ErrInvalidAmount
	}
	if req.BalanceDelta != nil && req.BalanceDelta.IsZero() && req.Premium == nil {
		return types.Account{}, types.ErrInvalidAmount
	}
	if req.PremiumDuration < 0 {
		return types.Account{}, types.ErrInvalidAmount
	}

	var out types.Account
	err := e.store.InTx(ctx, func(tx types.LedgerTx) error {
		account, err := tx.AccountForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		now := e.now().UTC()

		if req.BalanceDelta != nil && !req.BalanceDelta.IsZero() {
			if account.Balance.Add(*req.BalanceDelta).IsNegative() {
				return types.ErrInvalidAmount
			}
			if err := tx.AddBalance(ctx, account.ID, *req.BalanceDelta, decimal.Zero); err != nil {
				return err
			}
			account.Balance = account.Balance.Add(*req.BalanceDelta)
		}

		if req.Premium != nil {
			var expires *time.Time
			if *req.Premium {
				expires = account.PremiumExpiresAt
				if req.PremiumDuration > 0 {
					t := extendPremium(account, now, req.PremiumDuration)
					expires = &t
				}
				if expires == nil || !expires.After(now) {
					return types.ErrInvalidAmount
				}
			}
			if err := tx.SetPremium(ctx, account.ID, *req.Premium, expires); err != nil {
				return err
			}
			account.IsPremium = *req.Premium
			account.PremiumExpiresAt = expires
		}

		adj := &types.Adjustment{
			AccountID:        account.ID,
			Admin:            req.Admin,
			BalanceDelta:     req.BalanceDelta,
			Premium:          req.Premium,
			PremiumExpiresAt: account.PremiumExpiresAt,
			Reason:           req.Reason,
			CreatedAt:        now,
		}
		if err := tx.InsertAdjustment(ctx, adj); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}
		out = *account
		return nil
	})
	if err != nil {
		return types.Account{}, err
	}

	e.log.Warn("Admin adjustment applied",
		slog.String("type", "ledger"),
		slog.String("account_id", req.AccountID),
		slog.String("admin", req.Admin),
		slog.String("reason", req.Reason))
	return out, nil
}
