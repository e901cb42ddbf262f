package stats

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BatmanBruc/chat-earn-ledger/types"
)

// Aggregator serves platform-wide counters. Snapshots handed out by one
// Aggregator never go backwards; only Reconcile may lower them.
type Aggregator struct {
	store types.LedgerStore
	cache types.StatsCache
	log   *slog.Logger

	mu   sync.Mutex
	last *types.StatsSnapshot
}

// New builds an Aggregator. cache may be nil.
func New(store types.LedgerStore, cache types.StatsCache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, cache: cache, log: logger}
}

func (a *Aggregator) Snapshot(ctx context.Context) (types.StatsSnapshot, error) {
	snap, err := a.read(ctx)
	if err != nil {
		return types.StatsSnapshot{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last != nil && older(snap, *a.last) {
		return *a.last, nil
	}
	a.last = &snap
	return snap, nil
}

func (a *Aggregator) read(ctx context.Context) (types.StatsSnapshot, error) {
	if a.cache != nil {
		cached, err := a.cache.GetStats(ctx)
		if err != nil {
			a.log.Warn("Stats cache read failed", slog.String("type", "db"), slog.Any("error", err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	snap, err := a.store.GetStats(ctx)
	if err != nil {
		return types.StatsSnapshot{}, err
	}
	if a.cache != nil {
		if err := a.cache.SetStats(ctx, snap); err != nil {
			a.log.Warn("Stats cache write failed", slog.String("type", "db"), slog.Any("error", err))
		}
	}
	return snap, nil
}

// Reconcile rebuilds the counters from the ledger rows.
func (a *Aggregator) Reconcile(ctx context.Context) (types.StatsSnapshot, error) {
	snap, err := a.store.RecomputeStats(ctx)
	if err != nil {
		return types.StatsSnapshot{}, err
	}
	if a.cache != nil {
		if err := a.cache.SetStats(ctx, snap); err != nil {
			a.log.Warn("Stats cache write failed", slog.String("type", "db"), slog.Any("error", err))
		}
	}

	a.mu.Lock()
	a.last = &snap
	a.mu.Unlock()

	a.log.Info("Stats reconciled",
		slog.String("type", "ledger"),
		slog.Int64("total_users", snap.TotalUsers),
		slog.Int64("total_chats", snap.TotalChats),
		slog.String("total_earnings", snap.TotalEarnings.String()))
	return snap, nil
}

// older reports whether s lags behind prev on any counter.
func older(s, prev types.StatsSnapshot) bool {
	return s.TotalUsers < prev.TotalUsers ||
		s.TotalChats < prev.TotalChats ||
		s.TotalEarnings.LessThan(prev.TotalEarnings)
}
