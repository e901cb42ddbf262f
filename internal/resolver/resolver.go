package resolver

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	referralCodeLen      = 8
	referralCodeAttempts = 5
)

// Resolver maps a platform identity to exactly one account, creating the
// account on first contact.
type Resolver struct {
	store       types.LedgerStore
	signupBonus decimal.Decimal
	log         *slog.Logger
	now         func() time.Time
	newCode     func() (string, error)
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithCodeGenerator replaces the referral code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(r *Resolver) { r.newCode = gen }
}

func New(store types.LedgerStore, signupBonus decimal.Decimal, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		signupBonus: signupBonus,
		log:         slog.Default(),
		now:         time.Now,
		newCode:     NewReferralCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewReferralCode returns 8 upper-cased characters of URL-safe base64.
func NewReferralCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := base64.RawURLEncoding.EncodeToString(buf)
	return strings.ToUpper(code[:referralCodeLen]), nil
}

func normalizeIdentity(platform types.Platform, externalID string) (types.Platform, string, error) {
	externalID = strings.TrimSpace(externalID)
	if !platform.Valid() || externalID == "" {
		return "", "", types.ErrInvalidIdentity
	}
	return platform, externalID, nil
}

// Resolve returns the account bound to (platform, externalID). A referral
// code in profile only has effect when this call creates the account.
func (r *Resolver) Resolve(ctx context.Context, platform types.Platform, externalID string, profile types.Profile) (types.Resolution, error) {
	platform, externalID, err := normalizeIdentity(platform, externalID)
	if err != nil {
		return types.Resolution{}, err
	}

	if res, ok, err := r.existing(ctx, platform, externalID); err != nil || ok {
		return res, err
	}

	var lastErr error
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		res, err := r.create(ctx, platform, externalID, profile)
		if errors.Is(err, types.ErrReferralCodeTaken) {
			lastErr = err
			continue
		}
		if errors.Is(err, errLinkTaken) {
			// another caller won the race; their account is the answer
			res, ok, err := r.existing(ctx, platform, externalID)
			if err != nil {
				return types.Resolution{}, err
			}
			if ok {
				return res, nil
			}
			lastErr = errLinkTaken
			continue
		}
		return res, err
	}
	return types.Resolution{}, fmt.Errorf("create account: %w", lastErr)
}

var errLinkTaken = errors.New("platform link taken concurrently")

func (r *Resolver) existing(ctx context.Context, platform types.Platform, externalID string) (types.Resolution, bool, error) {
	var res types.Resolution
	found := false
	err := r.store.InTx(ctx, func(tx types.LedgerTx) error {
		a, err := tx.AccountByLink(ctx, platform, externalID)
		if errors.Is(err, types.ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		res = types.Resolution{AccountID: a.ID}
		return tx.TouchAccount(ctx, a.ID, r.now().UTC())
	})
	if err != nil {
		return types.Resolution{}, false, err
	}
	return res, found, nil
}

func (r *Resolver) create(ctx context.Context, platform types.Platform, externalID string, profile types.Profile) (types.Resolution, error) {
	code, err := r.newCode()
	if err != nil {
		return types.Resolution{}, fmt.Errorf("generate referral code: %w", err)
	}

	var account types.Account
	err = r.store.InTx(ctx, func(tx types.LedgerTx) error {
		now := r.now().UTC()
		account = types.Account{
			ID:             uuid.New().String(),
			DisplayName:    strings.TrimSpace(profile.DisplayName),
			Email:          strings.ToLower(strings.TrimSpace(profile.Email)),
			CredentialHash: profile.CredentialHash,
			Balance:        r.signupBonus,
			TotalEarned:    r.signupBonus,
			ReferralCode:   code,
			CreatedAt:      now,
			LastActiveAt:   now,
		}
		if refCode := strings.ToUpper(strings.TrimSpace(profile.ReferralCode)); refCode != "" {
			ref, err := tx.AccountByReferralCode(ctx, refCode)
			switch {
			case errors.Is(err, types.ErrAccountNotFound):
				// unknown codes are ignored
			case err != nil:
				return err
			default:
				account.ReferredBy = &ref.ID
			}
		}

		if err := tx.InsertAccount(ctx, &account); err != nil {
			return err
		}
		inserted, err := tx.InsertLink(ctx, types.PlatformLink{
			Platform:   platform,
			ExternalID: externalID,
			AccountID:  account.ID,
			CreatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
		if !inserted {
			return errLinkTaken
		}
		return tx.BumpStats(ctx, types.StatsDelta{Users: 1}, now)
	})
	if err != nil {
		return types.Resolution{}, err
	}

	attrs := []any{
		slog.String("type", "ledger"),
		slog.String("account_id", account.ID),
		slog.String("platform", string(platform)),
	}
	if account.ReferredBy != nil {
		attrs = append(attrs, slog.String("referred_by", *account.ReferredBy))
	}
	r.log.Info("Account created", attrs...)
	return types.Resolution{AccountID: account.ID, Created: true}, nil
}

// Link binds another platform identity to an existing account. Binding the
// same identity to the same account again is a no-op.
func (r *Resolver) Link(ctx context.Context, accountID string, platform types.Platform, externalID string) error {
	platform, externalID, err := normalizeIdentity(platform, externalID)
	if err != nil {
		return err
	}
	err = r.store.InTx(ctx, func(tx types.LedgerTx) error {
		if _, err := tx.AccountForUpdate(ctx, accountID); err != nil {
			return err
		}
		inserted, err := tx.InsertLink(ctx, types.PlatformLink{
			Platform:   platform,
			ExternalID: externalID,
			AccountID:  accountID,
			CreatedAt:  r.now().UTC(),
		})
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
		owner, err := tx.AccountByLink(ctx, platform, externalID)
		if err != nil {
			return err
		}
		if owner.ID != accountID {
			return types.ErrDuplicateLink
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info("Platform linked",
		slog.String("type", "ledger"),
		slog.String("account_id", accountID),
		slog.String("platform", string(platform)))
	return nil
}
