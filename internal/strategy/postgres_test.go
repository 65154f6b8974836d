package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var customizationColumns = []string{
	"confidence_level", "trade_frequency", "max_position_size", "stop_loss_percent",
	"take_profit_percent", "auto_rebalance", "reinvest_dividends",
}

func TestPostgresStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM strategy_customizations").
		WithArgs("acc-1", "growth").
		WillReturnRows(pgxmock.NewRows(customizationColumns).AddRow(70, "high", 20, 8, 25, false, true))

	store := NewPostgresStore(mock, "test")
	c, found, err := store.Get(context.Background(), "acc-1", "growth")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Customization{
		ConfidenceLevel:   70,
		TradeFrequency:    FrequencyHigh,
		MaxPositionSize:   20,
		StopLossPercent:   8,
		TakeProfitPercent: 25,
		AutoRebalance:     false,
		ReinvestDividends: true,
	}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM strategy_customizations").
		WithArgs("acc-1", "growth").
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresStore(mock, "test")
	_, found, err := store.Get(context.Background(), "acc-1", "growth")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostgresStore_GetError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM strategy_customizations").WillReturnError(errors.New("connection reset"))

	store := NewPostgresStore(mock, "test")
	_, _, err = store.Get(context.Background(), "acc-1", "growth")
	assert.ErrorContains(t, err, "failed to get customization")
}

func TestPostgresStore_Put(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := DefaultCustomization()
	mock.ExpectExec("INSERT INTO strategy_customizations").
		WithArgs("acc-1", "value", 50, "medium", 15, 10, 20, true, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock, "test")
	require.NoError(t, store.Put(context.Background(), "acc-1", "value", c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := append([]string{"strategy_id"}, customizationColumns...)
	mock.ExpectQuery("FROM strategy_customizations").
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("growth", 70, "high", 20, 8, 25, false, true).
			AddRow("value", 40, "low", 10, 12, 30, true, false))

	store := NewPostgresStore(mock, "test")
	all, err := store.List(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, FrequencyLow, all["value"].TradeFrequency)
	assert.NoError(t, mock.ExpectationsWereMet())
}
