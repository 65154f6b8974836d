package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BytebleCode/Investment-Platform/pkg/database"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

// Schema creates the customization table.
const Schema = `
CREATE TABLE IF NOT EXISTS strategy_customizations (
	account_id          TEXT NOT NULL,
	strategy_id         TEXT NOT NULL,
	confidence_level    INTEGER NOT NULL,
	trade_frequency     TEXT NOT NULL,
	max_position_size   INTEGER NOT NULL,
	stop_loss_percent   INTEGER NOT NULL,
	take_profit_percent INTEGER NOT NULL,
	auto_rebalance      BOOLEAN NOT NULL,
	reinvest_dividends  BOOLEAN NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (account_id, strategy_id)
)`

// PostgresStore persists customizations in PostgreSQL.
type PostgresStore struct {
	db      database.DB
	service string
}

func NewPostgresStore(db database.DB, service string) *PostgresStore {
	return &PostgresStore{db: db, service: service}
}

func (r *PostgresStore) Get(ctx context.Context, accountID, strategyID string) (Customization, bool, error) {
	defer observe(r.service, "customization_get", time.Now())

	var c Customization
	var freq string
	err := r.db.QueryRow(ctx, `
		SELECT confidence_level, trade_frequency, max_position_size, stop_loss_percent,
		       take_profit_percent, auto_rebalance, reinvest_dividends
		FROM strategy_customizations
		WHERE account_id = $1 AND strategy_id = $2
	`, accountID, strategyID).Scan(
		&c.ConfidenceLevel, &freq, &c.MaxPositionSize, &c.StopLossPercent,
		&c.TakeProfitPercent, &c.AutoRebalance, &c.ReinvestDividends,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customization{}, false, nil
	}
	if err != nil {
		return Customization{}, false, fmt.Errorf("failed to get customization: %w", err)
	}
	c.TradeFrequency = Frequency(freq)
	return c, true, nil
}

func (r *PostgresStore) Put(ctx context.Context, accountID, strategyID string, c Customization) error {
	defer observe(r.service, "customization_put", time.Now())

	_, err := r.db.Exec(ctx, `
		INSERT INTO strategy_customizations (
			account_id, strategy_id, confidence_level, trade_frequency, max_position_size,
			stop_loss_percent, take_profit_percent, auto_rebalance, reinvest_dividends, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (account_id, strategy_id) DO UPDATE SET
			confidence_level = EXCLUDED.confidence_level,
			trade_frequency = EXCLUDED.trade_frequency,
			max_position_size = EXCLUDED.max_position_size,
			stop_loss_percent = EXCLUDED.stop_loss_percent,
			take_profit_percent = EXCLUDED.take_profit_percent,
			auto_rebalance = EXCLUDED.auto_rebalance,
			reinvest_dividends = EXCLUDED.reinvest_dividends,
			updated_at = NOW()
	`, accountID, strategyID, c.ConfidenceLevel, string(c.TradeFrequency), c.MaxPositionSize,
		c.StopLossPercent, c.TakeProfitPercent, c.AutoRebalance, c.ReinvestDividends)
	if err != nil {
		return fmt.Errorf("failed to save customization: %w", err)
	}
	return nil
}

func (r *PostgresStore) List(ctx context.Context, accountID string) (map[string]Customization, error) {
	defer observe(r.service, "customization_list", time.Now())

	rows, err := r.db.Query(ctx, `
		SELECT strategy_id, confidence_level, trade_frequency, max_position_size, stop_loss_percent,
		       take_profit_percent, auto_rebalance, reinvest_dividends
		FROM strategy_customizations
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customizations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Customization)
	for rows.Next() {
		var id, freq string
		var c Customization
		if err := rows.Scan(
			&id, &c.ConfidenceLevel, &freq, &c.MaxPositionSize, &c.StopLossPercent,
			&c.TakeProfitPercent, &c.AutoRebalance, &c.ReinvestDividends,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customization: %w", err)
		}
		c.TradeFrequency = Frequency(freq)
		out[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list customizations: %w", err)
	}
	return out, nil
}

func observe(service, query string, start time.Time) {
	metrics.RecordDBQuery(service, query, time.Since(start))
}
