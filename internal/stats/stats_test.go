package stats

import (
	"context"
	"testing"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/store"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staleStore lets a test hand out an older counters row than the last one.
type staleStore struct {
	types.LedgerStore
	snap types.StatsSnapshot
}

func (s *staleStore) GetStats(context.Context) (types.StatsSnapshot, error) {
	return s.snap, nil
}

type memCache struct {
	snap *types.StatsSnapshot
	sets int
}

func (c *memCache) GetStats(context.Context) (*types.StatsSnapshot, error) { return c.snap, nil }

func (c *memCache) SetStats(_ context.Context, s types.StatsSnapshot) error {
	c.snap = &s
	c.sets++
	return nil
}

func bump(t *testing.T, st *store.MemoryStore, d types.StatsDelta) {
	t.Helper()
	require.NoError(t, st.InTx(context.Background(), func(tx types.LedgerTx) error {
		return tx.BumpStats(context.Background(), d, time.Now())
	}))
}

func TestSnapshotIsMonotonic(t *testing.T) {
	ctx := context.Background()
	src := &staleStore{LedgerStore: store.NewMemoryStore()}
	agg := New(src, nil, nil)

	src.snap = types.StatsSnapshot{TotalUsers: 5, TotalChats: 10, TotalEarnings: decimal.RequireFromString("0.01")}
	got, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalChats)

	src.snap = types.StatsSnapshot{TotalUsers: 5, TotalChats: 9, TotalEarnings: decimal.RequireFromString("0.009")}
	got, err = agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalChats, "a lagging read never goes backwards")

	src.snap = types.StatsSnapshot{TotalUsers: 6, TotalChats: 11, TotalEarnings: decimal.RequireFromString("0.011")}
	got, err = agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.TotalChats)
	assert.Equal(t, int64(6), got.TotalUsers)
}

func TestReconcileResetsCounters(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	cache := &memCache{}
	agg := New(st, cache, nil)

	bump(t, st, types.StatsDelta{Users: 3, Chats: 7, Earnings: decimal.RequireFromString("0.007")})
	got, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TotalChats)
	assert.Equal(t, 1, cache.sets)

	// drifted counters with no rows behind them are reset to ground truth
	got, err = agg.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalUsers)
	assert.Equal(t, int64(0), got.TotalChats)
	assert.True(t, got.TotalEarnings.IsZero())

	got, err = agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalChats)
}

func TestSnapshotPrefersCache(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	cached := types.StatsSnapshot{TotalUsers: 42}
	agg := New(st, &memCache{snap: &cached}, nil)

	got, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.TotalUsers)
}
