package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/shopspring/decimal"
)

type linkKey struct {
	platform   types.Platform
	externalID string
}

type memoryState struct {
	accounts    map[string]types.Account
	byCode      map[string]string
	byEmail     map[string]string
	links       map[linkKey]types.PlatformLink
	events      map[string]types.ChatEvent
	credits     map[string]types.ReferralCredit
	adjustments []types.Adjustment
	stats       types.StatsSnapshot
}

func newMemoryState() *memoryState {
	return &memoryState{
		accounts: make(map[string]types.Account),
		byCode:   make(map[string]string),
		byEmail:  make(map[string]string),
		links:    make(map[linkKey]types.PlatformLink),
		events:   make(map[string]types.ChatEvent),
		credits:  make(map[string]types.ReferralCredit),
	}
}

func (m *memoryState) clone() *memoryState {
	c := &memoryState{
		accounts:    make(map[string]types.Account, len(m.accounts)),
		byCode:      make(map[string]string, len(m.byCode)),
		byEmail:     make(map[string]string, len(m.byEmail)),
		links:       make(map[linkKey]types.PlatformLink, len(m.links)),
		events:      make(map[string]types.ChatEvent, len(m.events)),
		credits:     make(map[string]types.ReferralCredit, len(m.credits)),
		adjustments: append([]types.Adjustment(nil), m.adjustments...),
		stats:       m.stats,
	}
	for k, v := range m.accounts {
		c.accounts[k] = v
	}
	for k, v := range m.byCode {
		c.byCode[k] = v
	}
	for k, v := range m.byEmail {
		c.byEmail[k] = v
	}
	for k, v := range m.links {
		c.links[k] = v
	}
	for k, v := range m.events {
		c.events[k] = v
	}
	for k, v := range m.credits {
		c.credits[k] = v
	}
	return c
}

// MemoryStore is a process-local LedgerStore. A transaction holds the store
// mutex for its whole duration and works on a copy of the state that replaces
// the live state only when fn returns nil.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

var _ types.LedgerStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{state: newMemoryState(), now: time.Now}
	s.state.stats.LastUpdated = s.now().UTC()
	return s
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx types.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, accountID string) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.accounts[accountID]
	if !ok {
		return nil, types.ErrAccountNotFound
	}
	return &a, nil
}

func (s *MemoryStore) FindAccountByLink(_ context.Context, platform types.Platform, externalID string) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{state: s.state}).accountByLink(platform, externalID)
}

func (s *MemoryStore) ListAccounts(_ context.Context, page types.Page) ([]types.Account, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page = page.Normalize()

	all := make([]types.Account, 0, len(s.state.accounts))
	for _, a := range s.state.accounts {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	start := page.Offset()
	if start >= len(all) {
		return []types.Account{}, total, nil
	}
	end := start + page.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) ListChatEvents(_ context.Context, accountID string, limit, offset int) ([]types.ChatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	events := make([]types.ChatEvent, 0)
	for _, ev := range s.state.events {
		if ev.AccountID == accountID {
			events = append(events, ev)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if offset >= len(events) {
		return []types.ChatEvent{}, nil
	}
	end := offset + limit
	if end > len(events) {
		end = len(events)
	}
	return events[offset:end], nil
}

func (s *MemoryStore) ListLinks(_ context.Context, accountID string) ([]types.PlatformLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := make([]types.PlatformLink, 0, 2)
	for _, l := range s.state.links {
		if l.AccountID == accountID {
			links = append(links, l)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) })
	return links, nil
}

func (s *MemoryStore) ReferralSummary(_ context.Context, accountID string) (types.ReferralSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum types.ReferralSummary
	for _, a := range s.state.accounts {
		if a.ReferredBy != nil && *a.ReferredBy == accountID {
			sum.Invited++
		}
	}
	for _, c := range s.state.credits {
		if c.ReferrerID == accountID {
			sum.Earned = sum.Earned.Add(c.Amount)
		}
	}
	return sum, nil
}

func (s *MemoryStore) ChatCounts(_ context.Context, accountID string) (types.ChatCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts types.ChatCounts
	for _, ev := range s.state.events {
		if ev.AccountID == accountID {
			counts.Add(ev.Platform, 1)
		}
	}
	return counts, nil
}

func (s *MemoryStore) GetStats(_ context.Context) (types.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.stats, nil
}

func (s *MemoryStore) RecomputeStats(_ context.Context) (types.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := types.StatsSnapshot{
		TotalUsers:    int64(len(s.state.accounts)),
		TotalChats:    int64(len(s.state.events)),
		TotalEarnings: decimal.Zero,
		LastUpdated:   s.now().UTC(),
	}
	for _, ev := range s.state.events {
		snap.TotalEarnings = snap.TotalEarnings.Add(ev.Earnings)
	}
	s.state.stats = snap
	return snap, nil
}

// Adjustments returns the admin audit trail for an account, oldest first.
func (s *MemoryStore) Adjustments(accountID string) []types.Adjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Adjustment, 0)
	for _, a := range s.state.adjustments {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) accountByLink(platform types.Platform, externalID string) (*types.Account, error) {
	l, ok := t.state.links[linkKey{platform, externalID}]
	if !ok {
		return nil, types.ErrAccountNotFound
	}
	a, ok := t.state.accounts[l.AccountID]
	if !ok {
		return nil, types.ErrAccountNotFound
	}
	return &a, nil
}

func (t *memoryTx) AccountByLink(_ context.Context, platform types.Platform, externalID string) (*types.Account, error) {
	return t.accountByLink(platform, externalID)
}

func (t *memoryTx) AccountByReferralCode(_ context.Context, code string) (*types.Account, error) {
	id, ok := t.state.byCode[code]
	if !ok {
		return nil, types.ErrAccountNotFound
	}
	a := t.state.accounts[id]
	return &a, nil
}

func (t *memoryTx) AccountForUpdate(_ context.Context, accountID string) (*types.Account, error) {
	a, ok := t.state.accounts[accountID]
	if !ok {
		return nil, types.ErrAccountNotFound
	}
	return &a, nil
}

func (t *memoryTx) InsertAccount(_ context.Context, a *types.Account) error {
	if _, ok := t.state.byCode[a.ReferralCode]; ok {
		return types.ErrReferralCodeTaken
	}
	email := strings.ToLower(strings.TrimSpace(a.Email))
	if email != "" {
		if _, ok := t.state.byEmail[email]; ok {
			return types.ErrEmailTaken
		}
		t.state.byEmail[email] = a.ID
	}
	t.state.accounts[a.ID] = *a
	t.state.byCode[a.ReferralCode] = a.ID
	return nil
}

func (t *memoryTx) InsertLink(_ context.Context, link types.PlatformLink) (bool, error) {
	k := linkKey{link.Platform, link.ExternalID}
	if _, ok := t.state.links[k]; ok {
		return false, nil
	}
	if _, ok := t.state.accounts[link.AccountID]; !ok {
		return false, types.ErrAccountNotFound
	}
	t.state.links[k] = link
	return true, nil
}

func (t *memoryTx) TouchAccount(_ context.Context, accountID string, at time.Time) error {
	a, ok := t.state.accounts[accountID]
	if !ok {
		return types.ErrAccountNotFound
	}
	if at.After(a.LastActiveAt) {
		a.LastActiveAt = at
	}
	t.state.accounts[accountID] = a
	return nil
}

func (t *memoryTx) InsertChatEvent(_ context.Context, ev *types.ChatEvent) (bool, error) {
	if _, ok := t.state.events[ev.EventID]; ok {
		return false, nil
	}
	if _, ok := t.state.accounts[ev.AccountID]; !ok {
		return false, types.ErrAccountNotFound
	}
	t.state.events[ev.EventID] = *ev
	return true, nil
}

func (t *memoryTx) ChatEvent(_ context.Context, eventID string) (*types.ChatEvent, error) {
	ev, ok := t.state.events[eventID]
	if !ok {
		return nil, types.ErrEventNotFound
	}
	return &ev, nil
}

func (t *memoryTx) AddBalance(_ context.Context, accountID string, delta, earned decimal.Decimal) error {
	a, ok := t.state.accounts[accountID]
	if !ok {
		return types.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	a.TotalEarned = a.TotalEarned.Add(earned)
	t.state.accounts[accountID] = a
	return nil
}

func (t *memoryTx) InsertReferralCredit(_ context.Context, c types.ReferralCredit) error {
	if _, ok := t.state.credits[c.EventID]; ok {
		return types.ErrInvalidEvent
	}
	t.state.credits[c.EventID] = c
	return nil
}

func (t *memoryTx) SetPremium(_ context.Context, accountID string, isPremium bool, expiresAt *time.Time) error {
	a, ok := t.state.accounts[accountID]
	if !ok {
		return types.ErrAccountNotFound
	}
	a.IsPremium = isPremium
	if expiresAt != nil {
		exp := *expiresAt
		a.PremiumExpiresAt = &exp
	} else {
		a.PremiumExpiresAt = nil
	}
	t.state.accounts[accountID] = a
	return nil
}

func (t *memoryTx) InsertAdjustment(_ context.Context, adj *types.Adjustment) error {
	adj.ID = int64(len(t.state.adjustments) + 1)
	t.state.adjustments = append(t.state.adjustments, *adj)
	return nil
}

func (t *memoryTx) BumpStats(_ context.Context, d types.StatsDelta, at time.Time) error {
	t.state.stats.TotalUsers += d.Users
	t.state.stats.TotalChats += d.Chats
	t.state.stats.TotalEarnings = t.state.stats.TotalEarnings.Add(d.Earnings)
	if at.After(t.state.stats.LastUpdated) {
		t.state.stats.LastUpdated = at
	}
	return nil
}
