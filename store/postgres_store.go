package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	pgUniqueViolation = "23505"

	accountColumns = `id, display_name, COALESCE(email, ''), credential_hash, balance, total_earned,
  referral_code, referred_by, is_premium, premium_expires_at, created_at, last_active_at`
	chatEventColumns = `event_id, account_id, platform, message, response, earnings, created_at`
)

type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	log     *slog.Logger
}

var _ types.LedgerStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string, timeout time.Duration, logger *slog.Logger) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s := &PostgresStore{pool: pool, timeout: timeout, log: logger}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "chat_earn"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "chat_earn"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx types.LedgerTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Error("Commit failed", slog.String("type", "db"), slog.Any("error", err))
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*types.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return scanAccount(s.pool.QueryRow(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE id = $1
`, accountID))
}

func (s *PostgresStore) FindAccountByLink(ctx context.Context, platform types.Platform, externalID string) (*types.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return scanAccount(s.pool.QueryRow(ctx, `
SELECT `+prefixed("a", accountColumns)+`
FROM accounts a
JOIN platform_links l ON l.account_id = a.id
WHERE l.platform = $1 AND l.external_id = $2
`, string(platform), externalID))
}

func (s *PostgresStore) ListAccounts(ctx context.Context, page types.Page) ([]types.Account, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	page = page.Normalize()

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
SELECT `+accountColumns+`
FROM accounts
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2
`, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0, page.PerPage)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, total, rows.Err()
}

func (s *PostgresStore) ListChatEvents(ctx context.Context, accountID string, limit, offset int) ([]types.ChatEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+chatEventColumns+`
FROM chat_events
WHERE account_id = $1
ORDER BY created_at DESC, event_id
LIMIT $2 OFFSET $3
`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]types.ChatEvent, 0)
	for rows.Next() {
		ev, err := scanChatEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (s *PostgresStore) ListLinks(ctx context.Context, accountID string) ([]types.PlatformLink, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT platform, external_id, account_id, created_at
FROM platform_links
WHERE account_id = $1
ORDER BY created_at
`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]types.PlatformLink, 0, 2)
	for rows.Next() {
		var l types.PlatformLink
		var platform string
		if err := rows.Scan(&platform, &l.ExternalID, &l.AccountID, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Platform = types.Platform(platform)
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *PostgresStore) ReferralSummary(ctx context.Context, accountID string) (types.ReferralSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var sum types.ReferralSummary
	err := s.pool.QueryRow(ctx, `
SELECT
  (SELECT COUNT(*) FROM accounts WHERE referred_by = $1),
  (SELECT COALESCE(SUM(amount), 0) FROM referral_credits WHERE referrer_id = $1)
`, accountID).Scan(&sum.Invited, &sum.Earned)
	return sum, err
}

func (s *PostgresStore) ChatCounts(ctx context.Context, accountID string) (types.ChatCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var counts types.ChatCounts
	rows, err := s.pool.Query(ctx, `
SELECT platform, COUNT(*)
FROM chat_events
WHERE account_id = $1
GROUP BY platform
`, accountID)
	if err != nil {
		return counts, err
	}
	defer rows.Close()
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			return counts, err
		}
		counts.Add(types.Platform(platform), n)
	}
	return counts, rows.Err()
}

func (s *PostgresStore) GetStats(ctx context.Context) (types.StatsSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var snap types.StatsSnapshot
	err := s.pool.QueryRow(ctx, `
SELECT total_users, total_chats, total_earnings, last_updated
FROM ledger_stats
WHERE id = 1
`).Scan(&snap.TotalUsers, &snap.TotalChats, &snap.TotalEarnings, &snap.LastUpdated)
	return snap, err
}

// RecomputeStats rebuilds the counters row from the ledger tables. The row is
// locked first so the recompute statement runs on a snapshot taken after every
// concurrent bump has committed.
func (s *PostgresStore) RecomputeStats(ctx context.Context) (types.StatsSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT id FROM ledger_stats WHERE id = 1 FOR UPDATE`); err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("lock stats: %w", err)
	}

	var snap types.StatsSnapshot
	err = tx.QueryRow(ctx, `
UPDATE ledger_stats SET
  total_users = (SELECT COUNT(*) FROM accounts),
  total_chats = (SELECT COUNT(*) FROM chat_events),
  total_earnings = (SELECT COALESCE(SUM(earnings), 0) FROM chat_events),
  last_updated = NOW()
WHERE id = 1
RETURNING total_users, total_chats, total_earnings, last_updated
`).Scan(&snap.TotalUsers, &snap.TotalChats, &snap.TotalEarnings, &snap.LastUpdated)
	if err != nil {
		return types.StatsSnapshot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("commit tx: %w", err)
	}
	s.log.Info("Stats recomputed",
		slog.String("type", "db"),
		slog.Int64("total_users", snap.TotalUsers),
		slog.Int64("total_chats", snap.TotalChats))
	return snap, nil
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) AccountByLink(ctx context.Context, platform types.Platform, externalID string) (*types.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `
SELECT `+prefixed("a", accountColumns)+`
FROM accounts a
JOIN platform_links l ON l.account_id = a.id
WHERE l.platform = $1 AND l.external_id = $2
`, string(platform), externalID))
}

func (t *pgLedgerTx) AccountByReferralCode(ctx context.Context, code string) (*types.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE referral_code = $1
`, code))
}

func (t *pgLedgerTx) AccountForUpdate(ctx context.Context, accountID string) (*types.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE id = $1
FOR UPDATE
`, accountID))
}

// InsertAccount runs under a savepoint so a unique violation leaves the
// surrounding transaction usable for a retry.
func (t *pgLedgerTx) InsertAccount(ctx context.Context, a *types.Account) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = sp.Exec(ctx, `
INSERT INTO accounts (id, display_name, email, credential_hash, balance, total_earned,
  referral_code, referred_by, is_premium, premium_expires_at, created_at, last_active_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
`, a.ID, strings.TrimSpace(a.DisplayName), strings.TrimSpace(a.Email), a.CredentialHash, a.Balance, a.TotalEarned,
		a.ReferralCode, a.ReferredBy, a.IsPremium, a.PremiumExpiresAt, a.CreatedAt, a.LastActiveAt)
	if err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case "accounts_referral_code_key":
				return types.ErrReferralCodeTaken
			case "accounts_email_key":
				return types.ErrEmailTaken
			}
		}
		return err
	}
	return sp.Commit(ctx)
}

func (t *pgLedgerTx) InsertLink(ctx context.Context, link types.PlatformLink) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
INSERT INTO platform_links (platform, external_id, account_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (platform, external_id) DO NOTHING
`, string(link.Platform), link.ExternalID, link.AccountID, link.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgLedgerTx) TouchAccount(ctx context.Context, accountID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE accounts
SET last_active_at = GREATEST(last_active_at, $2)
WHERE id = $1
`, accountID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrAccountNotFound
	}
	return nil
}

func (t *pgLedgerTx) InsertChatEvent(ctx context.Context, ev *types.ChatEvent) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
INSERT INTO chat_events (event_id, account_id, platform, message, response, earnings, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id) DO NOTHING
`, ev.EventID, ev.AccountID, string(ev.Platform), ev.Message, ev.Response, ev.Earnings, ev.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgLedgerTx) ChatEvent(ctx context.Context, eventID string) (*types.ChatEvent, error) {
	ev, err := scanChatEvent(t.tx.QueryRow(ctx, `
SELECT `+chatEventColumns+`
FROM chat_events
WHERE event_id = $1
`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrEventNotFound
	}
	return ev, err
}

func (t *pgLedgerTx) AddBalance(ctx context.Context, accountID string, delta, earned decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE accounts
SET balance = balance + $2, total_earned = total_earned + $3
WHERE id = $1
`, accountID, delta, earned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrAccountNotFound
	}
	return nil
}

func (t *pgLedgerTx) InsertReferralCredit(ctx context.Context, c types.ReferralCredit) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO referral_credits (referrer_id, referred_id, event_id, amount, created_at)
VALUES ($1, $2, $3, $4, $5)
`, c.ReferrerID, c.ReferredID, c.EventID, c.Amount, c.CreatedAt)
	return err
}

func (t *pgLedgerTx) SetPremium(ctx context.Context, accountID string, isPremium bool, expiresAt *time.Time) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE accounts
SET is_premium = $2, premium_expires_at = $3
WHERE id = $1
`, accountID, isPremium, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrAccountNotFound
	}
	return nil
}

func (t *pgLedgerTx) InsertAdjustment(ctx context.Context, adj *types.Adjustment) error {
	var delta decimal.NullDecimal
	if adj.BalanceDelta != nil {
		delta = decimal.NewNullDecimal(*adj.BalanceDelta)
	}
	return t.tx.QueryRow(ctx, `
INSERT INTO admin_adjustments (account_id, admin, balance_delta, premium, premium_expires_at, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`, adj.AccountID, adj.Admin, delta, adj.Premium, adj.PremiumExpiresAt, strings.TrimSpace(adj.Reason), adj.CreatedAt).Scan(&adj.ID)
}

func (t *pgLedgerTx) BumpStats(ctx context.Context, d types.StatsDelta, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
UPDATE ledger_stats SET
  total_users = total_users + $1,
  total_chats = total_chats + $2,
  total_earnings = total_earnings + $3,
  last_updated = GREATEST(last_updated, $4)
WHERE id = 1
`, d.Users, d.Chats, d.Earnings, at)
	return err
}

func scanAccount(row pgx.Row) (*types.Account, error) {
	var a types.Account
	err := row.Scan(&a.ID, &a.DisplayName, &a.Email, &a.CredentialHash, &a.Balance, &a.TotalEarned,
		&a.ReferralCode, &a.ReferredBy, &a.IsPremium, &a.PremiumExpiresAt, &a.CreatedAt, &a.LastActiveAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanChatEvent(row pgx.Row) (*types.ChatEvent, error) {
	var ev types.ChatEvent
	var platform string
	if err := row.Scan(&ev.EventID, &ev.AccountID, &platform, &ev.Message, &ev.Response, &ev.Earnings, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Platform = types.Platform(platform)
	return &ev, nil
}

// prefixed qualifies every column in a comma separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "COALESCE(") {
			p = "COALESCE(" + alias + "." + strings.TrimPrefix(p, "COALESCE(")
		} else {
			p = alias + "." + p
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}
