package admin

import (
	"context"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/ledger"
	"github.com/BatmanBruc/chat-earn-ledger/internal/stats"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"golang.org/x/sync/errgroup"
)

type AccountPage struct {
	Accounts []types.Account `json:"accounts"`
	Page     int             `json:"page"`
	PerPage  int             `json:"per_page"`
	Total    int64           `json:"total"`
}

type AccountDetail struct {
	Account   types.Account         `json:"account"`
	Links     []types.PlatformLink  `json:"links"`
	Referrals types.ReferralSummary `json:"referrals"`
	Premium   bool                  `json:"premium_active"`
}

// Service is the operator read/write surface over the ledger.
type Service struct {
	store  types.LedgerStore
	engine *ledger.Engine
	stats  *stats.Aggregator
	now    func() time.Time
}

func NewService(store types.LedgerStore, engine *ledger.Engine, agg *stats.Aggregator) *Service {
	return &Service{store: store, engine: engine, stats: agg, now: time.Now}
}

func (s *Service) ListAccounts(ctx context.Context, page types.Page) (AccountPage, error) {
	page = page.Normalize()
	accounts, total, err := s.store.ListAccounts(ctx, page)
	if err != nil {
		return AccountPage{}, err
	}
	return AccountPage{Accounts: accounts, Page: page.Page, PerPage: page.PerPage, Total: total}, nil
}

func (s *Service) Account(ctx context.Context, accountID string) (AccountDetail, error) {
	var (
		detail  AccountDetail
		account *types.Account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.store.GetAccount(gctx, accountID)
		account = a
		return err
	})
	g.Go(func() error {
		links, err := s.store.ListLinks(gctx, accountID)
		detail.Links = links
		return err
	})
	g.Go(func() error {
		sum, err := s.store.ReferralSummary(gctx, accountID)
		detail.Referrals = sum
		return err
	})
	if err := g.Wait(); err != nil {
		return AccountDetail{}, err
	}
	detail.Account = *account
	detail.Premium = account.PremiumActive(s.now())
	return detail, nil
}

// History returns the account's chat events, newest first.
func (s *Service) History(ctx context.Context, accountID string, limit, offset int) ([]types.ChatEvent, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListChatEvents(ctx, accountID, limit, offset)
}

func (s *Service) Snapshot(ctx context.Context) (types.StatsSnapshot, error) {
	return s.stats.Snapshot(ctx)
}

func (s *Service) Reconcile(ctx context.Context) (types.StatsSnapshot, error) {
	return s.stats.Reconcile(ctx)
}

func (s *Service) Adjust(ctx context.Context, req ledger.AdjustRequest) (types.Account, error) {
	return s.engine.AdminAdjust(ctx, req)
}

func (s *Service) GrantPremium(ctx context.Context, accountID string, d time.Duration) (types.Account, error) {
	return s.engine.GrantPremium(ctx, accountID, d)
}
