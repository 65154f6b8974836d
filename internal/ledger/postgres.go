package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/pkg/database"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

// Schema creates the ledger tables.
const Schema = `
CREATE TABLE IF NOT EXISTS portfolio_accounts (
	id             TEXT PRIMARY KEY,
	cash           NUMERIC(20, 4) NOT NULL CHECK (cash >= 0),
	initial_value  NUMERIC(20, 2) NOT NULL,
	realized_gains NUMERIC(20, 4) NOT NULL DEFAULT 0,
	strategy       TEXT NOT NULL,
	is_initialized BOOLEAN NOT NULL DEFAULT FALSE,
	version        BIGINT NOT NULL DEFAULT 1,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS portfolio_holdings (
	account_id TEXT NOT NULL REFERENCES portfolio_accounts (id),
	symbol     TEXT NOT NULL,
	name       TEXT NOT NULL,
	sector     TEXT NOT NULL,
	quantity   BIGINT NOT NULL CHECK (quantity > 0),
	avg_cost   NUMERIC(20, 4) NOT NULL CHECK (avg_cost >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS portfolio_trades (
	seq           BIGSERIAL PRIMARY KEY,
	id            UUID NOT NULL UNIQUE,
	account_id    TEXT NOT NULL REFERENCES portfolio_accounts (id),
	executed_at   TIMESTAMPTZ NOT NULL,
	type          TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	name          TEXT NOT NULL,
	sector        TEXT NOT NULL,
	quantity      BIGINT NOT NULL,
	price         NUMERIC(20, 4) NOT NULL,
	total         NUMERIC(20, 2) NOT NULL,
	fees          NUMERIC(20, 2) NOT NULL,
	realized_gain NUMERIC(20, 4) NOT NULL DEFAULT 0,
	strategy      TEXT NOT NULL,
	source        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_portfolio_trades_account ON portfolio_trades (account_id, seq DESC);
`

const accountColumns = `id, cash, initial_value, realized_gains, strategy, is_initialized, version, created_at, updated_at`

// PostgresStore keeps the ledger in PostgreSQL. Mutations lock the account
// row for the duration of the transaction.
type PostgresStore struct {
	db       database.DB
	defaults Defaults
	service  string
	now      func() time.Time
}

func NewPostgresStore(db database.DB, defaults Defaults, service string) *PostgresStore {
	return &PostgresStore{
		db:       db,
		defaults: defaults,
		service:  service,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *PostgresStore) Snapshot(ctx context.Context, accountID string) (*Snapshot, error) {
	defer observe(r.service, "ledger_snapshot", time.Now())

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := r.lockAccount(ctx, tx, accountID, "FOR SHARE")
	if err != nil {
		return nil, err
	}
	holdings, err := loadHoldings(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return &Snapshot{Account: acct, Holdings: holdings}, nil
}

func (r *PostgresStore) Apply(ctx context.Context, accountID string, m Mutation) (*Snapshot, error) {
	defer observe(r.service, "ledger_apply", time.Now())

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := r.lockAccount(ctx, tx, accountID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}

	var held *Holding
	if m.Holding != nil {
		held, err = loadHolding(ctx, tx, accountID, m.Holding.Symbol)
		if err != nil {
			return nil, err
		}
	}

	now := r.now()
	acct, pos, err := next(acct, held, m, now)
	if err != nil {
		return nil, err
	}

	if err := updateAccount(ctx, tx, acct); err != nil {
		return nil, err
	}
	if pos != nil {
		if err := writeHolding(ctx, tx, accountID, *pos); err != nil {
			return nil, err
		}
	}
	if m.Trade != nil {
		if err := insertTrade(ctx, tx, settle(*m.Trade, accountID, now)); err != nil {
			return nil, err
		}
	}

	holdings, err := loadHoldings(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit mutation: %w", err)
	}
	return &Snapshot{Account: acct, Holdings: holdings}, nil
}

func (r *PostgresStore) Reset(ctx context.Context, accountID string) (*Account, error) {
	defer observe(r.service, "ledger_reset", time.Now())

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := r.lockAccount(ctx, tx, accountID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM portfolio_holdings WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("failed to purge holdings: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM portfolio_trades WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("failed to purge trades: %w", err)
	}

	acct.Cash = acct.InitialValue
	acct.RealizedGains = decimal.Zero
	acct.IsInitialized = false
	acct.Version++
	acct.UpdatedAt = r.now()
	if err := updateAccount(ctx, tx, acct); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reset: %w", err)
	}
	return &acct, nil
}

func (r *PostgresStore) Trades(ctx context.Context, accountID string, f TradeFilter) ([]TradeRecord, int, error) {
	defer observe(r.service, "ledger_trades", time.Now())

	if err := r.ensureAccount(ctx, r.db, accountID); err != nil {
		return nil, 0, err
	}

	where := []string{"account_id = $1"}
	args := []any{accountID}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Symbol != "" {
		args = append(args, f.Symbol)
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM portfolio_trades WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	query := `
		SELECT id, account_id, executed_at, type, symbol, name, sector, quantity,
		       price, total, fees, realized_gain, strategy, source
		FROM portfolio_trades WHERE ` + cond + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	trades := []TradeRecord{}
	for rows.Next() {
		var t TradeRecord
		var typ, source string
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.Timestamp, &typ, &t.Symbol, &t.Name, &t.Sector, &t.Quantity,
			&t.Price, &t.Total, &t.Fees, &t.RealizedGain, &t.Strategy, &source,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Type = TradeType(typ)
		t.Source = Source(source)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, total, nil
}

func (r *PostgresStore) UpdateSettings(ctx context.Context, accountID string, s Settings) (*Account, error) {
	defer observe(r.service, "ledger_settings", time.Now())

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := r.lockAccount(ctx, tx, accountID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	acct, err = applySettings(acct, s, r.now())
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE portfolio_accounts SET initial_value = $2, cash = $3, version = $4, updated_at = $5
		WHERE id = $1
	`, acct.ID, acct.InitialValue, acct.Cash, acct.Version, acct.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settings: %w", err)
	}
	return &acct, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresStore) ensureAccount(ctx context.Context, q querier, accountID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO portfolio_accounts (id, cash, initial_value, realized_gains, strategy, is_initialized, version)
		VALUES ($1, $2, $2, 0, $3, FALSE, 1)
		ON CONFLICT (id) DO NOTHING
	`, accountID, r.defaults.InitialValue, r.defaults.Strategy)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// lockAccount creates the account when missing and reads it with the
// given row lock clause.
func (r *PostgresStore) lockAccount(ctx context.Context, tx pgx.Tx, accountID, lock string) (Account, error) {
	if err := r.ensureAccount(ctx, tx, accountID); err != nil {
		return Account{}, err
	}

	var a Account
	err := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM portfolio_accounts WHERE id = $1 `+lock, accountID).Scan(
		&a.ID, &a.Cash, &a.InitialValue, &a.RealizedGains, &a.Strategy,
		&a.IsInitialized, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func updateAccount(ctx context.Context, q querier, a Account) error {
	_, err := q.Exec(ctx, `
		UPDATE portfolio_accounts
		SET cash = $2, realized_gains = $3, strategy = $4, is_initialized = $5, version = $6, updated_at = $7
		WHERE id = $1
	`, a.ID, a.Cash, a.RealizedGains, a.Strategy, a.IsInitialized, a.Version, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func loadHolding(ctx context.Context, q querier, accountID, symbol string) (*Holding, error) {
	var h Holding
	err := q.QueryRow(ctx, `
		SELECT symbol, name, sector, quantity, avg_cost, updated_at
		FROM portfolio_holdings WHERE account_id = $1 AND symbol = $2
	`, accountID, symbol).Scan(&h.Symbol, &h.Name, &h.Sector, &h.Quantity, &h.AvgCost, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return &h, nil
}

func loadHoldings(ctx context.Context, q querier, accountID string) (map[string]Holding, error) {
	rows, err := q.Query(ctx, `
		SELECT symbol, name, sector, quantity, avg_cost, updated_at
		FROM portfolio_holdings WHERE account_id = $1
		ORDER BY symbol ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	holdings := make(map[string]Holding)
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.Symbol, &h.Name, &h.Sector, &h.Quantity, &h.AvgCost, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings[h.Symbol] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	return holdings, nil
}

// writeHolding upserts the position, or deletes it when it closed.
func writeHolding(ctx context.Context, q querier, accountID string, h Holding) error {
	if h.Quantity == 0 {
		if _, err := q.Exec(ctx, `
			DELETE FROM portfolio_holdings WHERE account_id = $1 AND symbol = $2
		`, accountID, h.Symbol); err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
		return nil
	}

	_, err := q.Exec(ctx, `
		INSERT INTO portfolio_holdings (account_id, symbol, name, sector, quantity, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			name = EXCLUDED.name,
			sector = EXCLUDED.sector,
			quantity = EXCLUDED.quantity,
			avg_cost = EXCLUDED.avg_cost,
			updated_at = EXCLUDED.updated_at
	`, accountID, h.Symbol, h.Name, h.Sector, h.Quantity, h.AvgCost, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

func insertTrade(ctx context.Context, q querier, t TradeRecord) error {
	_, err := q.Exec(ctx, `
		INSERT INTO portfolio_trades (
			id, account_id, executed_at, type, symbol, name, sector, quantity,
			price, total, fees, realized_gain, strategy, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.AccountID, t.Timestamp, string(t.Type), t.Symbol, t.Name, t.Sector, t.Quantity,
		t.Price, t.Total, t.Fees, t.RealizedGain, t.Strategy, string(t.Source))
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func observe(service, query string, start time.Time) {
	metrics.RecordDBQuery(service, query, time.Since(start))
}
