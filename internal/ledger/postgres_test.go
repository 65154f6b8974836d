package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
)

var (
	accountCols = []string{"id", "cash", "initial_value", "realized_gains", "strategy", "is_initialized", "version", "created_at", "updated_at"}
	holdingCols = []string{"symbol", "name", "sector", "quantity", "avg_cost", "updated_at"}
	tradeCols   = []string{"id", "account_id", "executed_at", "type", "symbol", "name", "sector", "quantity", "price", "total", "fees", "realized_gain", "strategy", "source"}
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresStore(mock, DefaultAccountSettings(), "test")
}

func expectLockedAccount(mock pgxmock.PgxPoolIface, cash string, version int64) {
	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	mock.ExpectExec("INSERT INTO portfolio_accounts").
		WithArgs("acc-1", pgxmock.AnyArg(), "balanced").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT id, cash, initial_value").
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow("acc-1", d(cash), d("100000"), decimal.Zero, "balanced", false, version, now, now))
}

func TestPostgresStore_Snapshot(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, "84985", 2)
	mock.ExpectQuery("ORDER BY symbol ASC").
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows(holdingCols).
			AddRow("AAPL", "Apple Inc.", "Technology", int64(100), d("150"), time.Now()))
	mock.ExpectCommit()

	snap, err := store.Snapshot(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, snap.Account.Cash.Equal(d("84985")))
	assert.Equal(t, int64(2), snap.Account.Version)
	assert.Equal(t, int64(100), snap.Quantity("AAPL"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyBuy(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, "100000", 1)
	mock.ExpectQuery("AND symbol = ").
		WithArgs("acc-1", "AAPL").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("UPDATE portfolio_accounts").
		WithArgs("acc-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "balanced", true, int64(2), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO portfolio_holdings").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO portfolio_trades").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("ORDER BY symbol ASC").
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows(holdingCols).
			AddRow("AAPL", "AAPL Inc.", "Technology", int64(100), d("150"), time.Now()))
	mock.ExpectCommit()

	snap, err := store.Apply(context.Background(), "acc-1", buy("AAPL", 100, "150", "150", "15"))
	require.NoError(t, err)
	assert.True(t, snap.Account.Cash.Equal(d("84985")))
	assert.Equal(t, int64(2), snap.Account.Version)
	assert.Equal(t, int64(100), snap.Quantity("AAPL"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyClosesPosition(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, "1000", 4)
	mock.ExpectQuery("AND symbol = ").
		WithArgs("acc-1", "KO").
		WillReturnRows(pgxmock.NewRows(holdingCols).
			AddRow("KO", "Coca-Cola Company", "Consumer", int64(10), d("60"), time.Now()))
	mock.ExpectExec("UPDATE portfolio_accounts").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM portfolio_holdings").
		WithArgs("acc-1", "KO").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("ORDER BY symbol ASC").
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows(holdingCols))
	mock.ExpectCommit()

	snap, err := store.Apply(context.Background(), "acc-1", Mutation{
		ExpectedVersion: 4,
		CashDelta:       d("600"),
		Holding:         &HoldingChange{Symbol: "KO", QuantityDelta: -10},
	})
	require.NoError(t, err)
	assert.Empty(t, snap.Holdings)
	assert.True(t, snap.Account.Cash.Equal(d("1600")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyRejectsStaleVersion(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, "100000", 3)
	mock.ExpectRollback()

	_, err := store.Apply(context.Background(), "acc-1", Mutation{ExpectedVersion: 2, CashDelta: d("-1")})
	assert.True(t, errors.Is(err, apperrors.ErrConcurrencyConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyRejectsOverspend(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, "100", 1)
	mock.ExpectRollback()

	_, err := store.Apply(context.Background(), "acc-1", Mutation{CashDelta: d("-100.01")})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Reset(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, "512.10", 9)
	mock.ExpectExec("DELETE FROM portfolio_holdings").WithArgs("acc-1").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM portfolio_trades").WithArgs("acc-1").WillReturnResult(pgxmock.NewResult("DELETE", 12))
	mock.ExpectExec("UPDATE portfolio_accounts").
		WithArgs("acc-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "balanced", false, int64(10), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	acct, err := store.Reset(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, acct.Cash.Equal(d("100000")))
	assert.True(t, acct.RealizedGains.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Trades(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec("INSERT INTO portfolio_accounts").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("acc-1", "sell").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY seq DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("acc-1", "sell", 2, 2).
		WillReturnRows(pgxmock.NewRows(tradeCols).
			AddRow("7f1d0c52-4f0e-4d8e-9a57-3b1c8c9f2a10", "acc-1", time.Now(), "sell", "AAPL", "Apple Inc.", "Technology",
				int64(10), d("180"), d("1800.00"), d("1.80"), d("298.20"), "balanced", "auto"))

	trades, total, err := store.Trades(context.Background(), "acc-1", TradeFilter{Type: Sell, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, trades, 1)
	assert.Equal(t, Sell, trades[0].Type)
	assert.Equal(t, SourceAuto, trades[0].Source)
	assert.True(t, trades[0].RealizedGain.Equal(d("298.2")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSettings(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, "100000", 1)
	mock.ExpectExec("UPDATE portfolio_accounts SET initial_value").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	cash := d("2500")
	acct, err := store.UpdateSettings(context.Background(), "acc-1", Settings{Cash: &cash})
	require.NoError(t, err)
	assert.True(t, acct.Cash.Equal(cash))
	assert.Equal(t, int64(2), acct.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginFails(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	_, err := store.Snapshot(context.Background(), "acc-1")
	assert.ErrorContains(t, err, "failed to begin transaction")
}
