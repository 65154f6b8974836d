package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/quotes"
)

var hundred = decimal.NewFromInt(100)

// Position is one holding valued at the current quote. Unpriced holdings
// are valued at their average cost and have Priced=false.
type Position struct {
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	Sector         string          `json:"sector"`
	Quantity       int64           `json:"quantity"`
	AvgCost        decimal.Decimal `json:"avg_cost"`
	Price          decimal.Decimal `json:"current_price"`
	Priced         bool            `json:"priced"`
	MarketValue    decimal.Decimal `json:"market_value"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
	UnrealizedPct  decimal.Decimal `json:"unrealized_gain_percent"`
	Weight         decimal.Decimal `json:"weight"`
}

// Summary is the valued state of an account.
type Summary struct {
	AccountID          string                     `json:"account_id"`
	Strategy           string                     `json:"strategy"`
	TargetRatio        decimal.Decimal            `json:"target_ratio"`
	InitialValue       decimal.Decimal            `json:"initial_value"`
	Cash               decimal.Decimal            `json:"current_cash"`
	InvestedValue      decimal.Decimal            `json:"invested_value"`
	TotalValue         decimal.Decimal            `json:"total_value"`
	UnrealizedGains    decimal.Decimal            `json:"unrealized_gains"`
	RealizedGains      decimal.Decimal            `json:"realized_gains"`
	TotalReturn        decimal.Decimal            `json:"total_return_dollar"`
	TotalReturnPercent decimal.Decimal            `json:"total_return_percent"`
	InvestmentRatio    decimal.Decimal            `json:"investment_ratio"`
	EstimatedTax       decimal.Decimal            `json:"estimated_tax"`
	NumPositions       int                        `json:"num_positions"`
	Positions          []Position                 `json:"positions"`
	Sectors            map[string]decimal.Decimal `json:"sector_allocation"`
	Version            int64                      `json:"version"`
	Timestamp          time.Time                  `json:"timestamp"`
}

// Summary values the account at the current quotes.
func (s *Service) Summary(ctx context.Context, accountID string) (*Summary, error) {
	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(snap.Holdings))
	for sym := range snap.Holdings {
		symbols = append(symbols, sym)
	}
	prices, err := quotes.FetchAll(ctx, s.quotes, symbols)
	if err != nil {
		return nil, err
	}

	out := summarize(snap, prices, s.cfg.TaxRate)
	if target, err := s.catalog.TargetRatio(snap.Account.Strategy); err == nil {
		out.TargetRatio = target
	}
	return out, nil
}

func summarize(snap *ledger.Snapshot, prices map[string]decimal.Decimal, taxRate decimal.Decimal) *Summary {
	acct := snap.Account
	out := &Summary{
		AccountID:     acct.ID,
		Strategy:      acct.Strategy,
		InitialValue:  acct.InitialValue,
		Cash:          acct.Cash,
		RealizedGains: acct.RealizedGains,
		Positions:     []Position{},
		Sectors:       make(map[string]decimal.Decimal),
		Version:       acct.Version,
		Timestamp:     time.Now().UTC(),
	}

	invested := decimal.Zero
	unrealized := decimal.Zero
	for _, h := range snap.Sorted() {
		price, ok := prices[h.Symbol]
		if !ok {
			price = h.AvgCost
		}
		qty := decimal.NewFromInt(h.Quantity)
		mv := price.Mul(qty).Round(2)
		basis := h.CostBasis().Round(2)
		gain := mv.Sub(basis)

		p := Position{
			Symbol:         h.Symbol,
			Name:           h.Name,
			Sector:         h.Sector,
			Quantity:       h.Quantity,
			AvgCost:        h.AvgCost,
			Price:          price,
			Priced:         ok,
			MarketValue:    mv,
			CostBasis:      basis,
			UnrealizedGain: gain,
		}
		if basis.IsPositive() {
			p.UnrealizedPct = gain.Div(basis).Mul(hundred).Round(2)
		}
		out.Positions = append(out.Positions, p)

		sector := h.Sector
		if sector == "" {
			sector = ledger.UnknownName
		}
		out.Sectors[sector] = out.Sectors[sector].Add(mv)

		invested = invested.Add(mv)
		unrealized = unrealized.Add(gain)
	}

	total := acct.Cash.Add(invested)
	out.InvestedValue = invested
	out.TotalValue = total
	out.UnrealizedGains = unrealized
	out.NumPositions = len(out.Positions)
	out.TotalReturn = total.Sub(acct.InitialValue).Round(2)
	if acct.InitialValue.IsPositive() {
		out.TotalReturnPercent = total.Sub(acct.InitialValue).Div(acct.InitialValue).Mul(hundred).Round(4)
	}
	if total.IsPositive() {
		out.InvestmentRatio = invested.Div(total).Round(4)
		for i := range out.Positions {
			out.Positions[i].Weight = out.Positions[i].MarketValue.Div(total).Mul(hundred).Round(4)
		}
	}
	if acct.RealizedGains.IsPositive() {
		out.EstimatedTax = acct.RealizedGains.Mul(taxRate).Round(2)
	}
	for k, v := range out.Sectors {
		out.Sectors[k] = v.Round(2)
	}
	return out
}
