// Package executor turns a proposal into a ledger mutation. It re-reads the
// account at commit time and refuses proposals the current state cannot
// honour.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/internal/engine"
	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

// Options describe where a proposal came from. DecidedAtVersion is the
// snapshot version the proposal was computed from; 0 when unknown.
type Options struct {
	DecidedAtVersion int64
	Source           ledger.Source
}

// Result is the committed trade and the account after it.
type Result struct {
	Trade    ledger.TradeRecord
	Snapshot *ledger.Snapshot
}

type Executor struct {
	ledger  ledger.Ledger
	catalog *strategy.Catalog
}

func New(l ledger.Ledger, catalog *strategy.Catalog) *Executor {
	return &Executor{ledger: l, catalog: catalog}
}

// Execute validates p against a fresh snapshot and applies it. A violation
// that only exists because the account changed since the decision is
// reported as a concurrency conflict.
func (x *Executor) Execute(ctx context.Context, accountID string, p engine.Proposal, opts Options) (*Result, error) {
	if err := validateProposal(p); err != nil {
		return nil, err
	}

	fresh, err := x.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}

	mut, trade, err := x.plan(accountID, fresh, p, opts.Source)
	if err != nil {
		if opts.DecidedAtVersion != 0 && opts.DecidedAtVersion != fresh.Account.Version {
			err = apperrors.ErrConcurrencyConflict.WithDetails(
				fmt.Sprintf("account changed since version %d: %v", opts.DecidedAtVersion, detail(err)))
		}
		reject(accountID, p, err)
		return nil, err
	}

	snap, err := x.ledger.Apply(ctx, accountID, mut)
	if err != nil {
		reject(accountID, p, err)
		return nil, err
	}

	metrics.RecordTrade(string(p.Type), string(opts.Source), trade.Strategy)
	log := logger.ForAccount(ctx, accountID)
	log.Info().
		Str("type", string(p.Type)).
		Str("symbol", p.Symbol).
		Int64("quantity", p.Quantity).
		Str("price", p.Price.String()).
		Str("source", string(opts.Source)).
		Msg("trade executed")

	return &Result{Trade: trade, Snapshot: snap}, nil
}

// plan checks p against snap and builds the mutation.
func (x *Executor) plan(accountID string, snap *ledger.Snapshot, p engine.Proposal, source ledger.Source) (ledger.Mutation, ledger.TradeRecord, error) {
	name, sector := ledger.UnknownName, ""
	if s, ok := x.catalog.Stock(p.Symbol); ok {
		name, sector = s.Name, s.Sector
	}
	qty := decimal.NewFromInt(p.Quantity)
	held, _ := snap.Holding(p.Symbol)

	trade := ledger.TradeRecord{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Timestamp:    time.Now().UTC(),
		Type:         p.Type,
		Symbol:       p.Symbol,
		Name:         name,
		Sector:       sector,
		Quantity:     p.Quantity,
		Price:        p.Price,
		Total:        p.Total,
		Fees:         p.Fees,
		RealizedGain: decimal.Zero,
		Strategy:     snap.Account.Strategy,
		Source:       source,
	}
	mut := ledger.Mutation{ExpectedVersion: snap.Account.Version}

	switch p.Type {
	case ledger.Buy:
		cost := p.Total.Add(p.Fees)
		if snap.Account.Cash.LessThan(cost) {
			return mut, trade, apperrors.ErrInsufficientFunds.WithDetails(
				fmt.Sprintf("need %s, have %s", cost.StringFixed(2), snap.Account.Cash.StringFixed(2)))
		}
		newQty := held.Quantity + p.Quantity
		if p.MaxPositionValue.IsPositive() {
			posValue := p.Price.Mul(decimal.NewFromInt(newQty))
			if posValue.GreaterThan(p.MaxPositionValue) {
				return mut, trade, apperrors.ErrPositionLimit.WithDetails(
					fmt.Sprintf("%s position would be %s, limit %s", p.Symbol, posValue.StringFixed(2), p.MaxPositionValue.StringFixed(2)))
			}
		}
		avg := held.AvgCost.Mul(decimal.NewFromInt(held.Quantity)).
			Add(p.Price.Mul(qty)).
			Div(decimal.NewFromInt(newQty)).
			Round(4)

		mut.CashDelta = cost.Neg()
		mut.Holding = &ledger.HoldingChange{
			Symbol:        p.Symbol,
			Name:          name,
			Sector:        sector,
			QuantityDelta: p.Quantity,
			AvgCost:       avg,
		}

	case ledger.Sell:
		if held.Quantity < p.Quantity {
			return mut, trade, apperrors.ErrInsufficientShares.WithDetails(
				fmt.Sprintf("holding %d %s, selling %d", held.Quantity, p.Symbol, p.Quantity))
		}
		gain := p.Price.Sub(held.AvgCost).Mul(qty).Sub(p.Fees)
		trade.RealizedGain = gain

		mut.CashDelta = p.Total.Sub(p.Fees)
		mut.RealizedGainsDelta = gain
		mut.Holding = &ledger.HoldingChange{
			Symbol:        p.Symbol,
			Name:          name,
			Sector:        sector,
			QuantityDelta: -p.Quantity,
			AvgCost:       held.AvgCost,
		}
	}
	mut.Trade = &trade
	return mut, trade, nil
}

func validateProposal(p engine.Proposal) error {
	var problems []string
	if !p.Type.Valid() {
		problems = append(problems, "type must be one of: buy, sell")
	}
	if p.Symbol == "" {
		problems = append(problems, "symbol is required")
	}
	if p.Quantity <= 0 {
		problems = append(problems, "quantity must be greater than 0")
	}
	if !p.Price.IsPositive() {
		problems = append(problems, "price must be greater than 0")
	}
	if p.Total.IsNegative() || p.Fees.IsNegative() {
		problems = append(problems, "total and fees cannot be negative")
	}
	if len(problems) > 0 {
		return apperrors.ErrValidation.WithDetails(problems)
	}
	return nil
}

func detail(err error) any {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Details != nil {
		return appErr.Details
	}
	return err
}

func reject(accountID string, p engine.Proposal, err error) {
	metrics.RecordLedgerRejection(apperrors.CodeOf(err, "internal"))
	logger.Warn().Err(err).
		Str("account_id", accountID).
		Str("type", string(p.Type)).
		Str("symbol", p.Symbol).
		Int64("quantity", p.Quantity).
		Msg("trade rejected")
}
