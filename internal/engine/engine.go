// Package engine decides whether and what to trade for one account. It is
// a pure function of the snapshot, the strategy parameters and a price map;
// it never touches the ledger.
package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
)

const (
	ReasonStopLoss       = "stop loss triggered"
	ReasonTakeProfit     = "take profit triggered"
	ReasonWithinBand     = "within target band"
	ReasonNoCapacity     = "insufficient cash or position capacity"
	ReasonNoEligible     = "no eligible symbol below max position size"
	ReasonNoPricedSymbol = "no priced candidate available"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Config holds the engine constants.
type Config struct {
	FeeRate       decimal.Decimal
	BaseTolerance decimal.Decimal
	MaxCashUsage  decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		FeeRate:       decimal.RequireFromString("0.001"),
		BaseTolerance: decimal.RequireFromString("0.05"),
		MaxCashUsage:  decimal.RequireFromString("0.95"),
	}
}

// Proposal is a fully priced trade. MaxPositionValue caps the resulting
// position value for buys; zero means no cap.
type Proposal struct {
	Type             ledger.TradeType `json:"type"`
	Symbol           string           `json:"symbol"`
	Quantity         int64            `json:"quantity"`
	Price            decimal.Decimal  `json:"price"`
	Total            decimal.Decimal  `json:"total"`
	Fees             decimal.Decimal  `json:"fees"`
	Reason           string           `json:"reason"`
	MaxPositionValue decimal.Decimal  `json:"max_position_value,omitempty"`
}

// Decision is either a proposal or a no-op with a reason.
type Decision struct {
	Proposal        *Proposal       `json:"proposal,omitempty"`
	Reason          string          `json:"reason"`
	Strategy        string          `json:"strategy"`
	RatioBefore     decimal.Decimal `json:"ratio_before"`
	RatioAfter      decimal.Decimal `json:"ratio_after"`
	SnapshotVersion int64           `json:"snapshot_version"`
}

// Input is everything a decision depends on.
type Input struct {
	Snapshot      *ledger.Snapshot
	Strategy      strategy.Definition
	Customization strategy.Customization
	Prices        map[string]decimal.Decimal
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// NewProposal prices a trade: total is qty x price and fees are
// total x fee rate, both rounded to cents.
func (e *Engine) NewProposal(t ledger.TradeType, symbol string, qty int64, price decimal.Decimal, reason string) Proposal {
	total := price.Mul(decimal.NewFromInt(qty)).Round(2)
	return Proposal{
		Type:     t,
		Symbol:   symbol,
		Quantity: qty,
		Price:    price,
		Total:    total,
		Fees:     e.Fees(total),
		Reason:   reason,
	}
}

// Fees returns value x fee rate rounded to cents.
func (e *Engine) Fees(value decimal.Decimal) decimal.Decimal {
	return value.Mul(e.cfg.FeeRate).Round(2)
}

// Tolerance is the half-width of the target band. Higher confidence
// narrows it.
func (e *Engine) Tolerance(confidence int) decimal.Decimal {
	return e.cfg.BaseTolerance.Mul(decimal.NewFromInt(int64(100 - confidence))).Div(hundred)
}

// valuation is the priced view of a snapshot.
type valuation struct {
	cash     decimal.Decimal
	invested decimal.Decimal
	total    decimal.Decimal
	ratio    decimal.Decimal
	values   map[string]decimal.Decimal
}

func value(snap *ledger.Snapshot, prices map[string]decimal.Decimal) valuation {
	v := valuation{
		cash:     snap.Account.Cash,
		invested: decimal.Zero,
		values:   make(map[string]decimal.Decimal, len(snap.Holdings)),
	}
	for sym, h := range snap.Holdings {
		price, ok := priced(prices, sym)
		if !ok {
			continue
		}
		pv := price.Mul(decimal.NewFromInt(h.Quantity))
		v.values[sym] = pv
		v.invested = v.invested.Add(pv)
	}
	v.total = v.cash.Add(v.invested)
	v.ratio = ratio(v.invested, v.total)
	return v
}

func ratio(invested, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return invested.Div(total)
}

func priced(prices map[string]decimal.Decimal, symbol string) (decimal.Decimal, bool) {
	p, ok := prices[symbol]
	if !ok || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

// InvestmentRatio returns invested / total over the priced holdings.
func InvestmentRatio(snap *ledger.Snapshot, prices map[string]decimal.Decimal) decimal.Decimal {
	return value(snap, prices).ratio
}

// Decide runs the risk overrides and then ratio rebalancing.
func (e *Engine) Decide(in Input) Decision {
	v := value(in.Snapshot, in.Prices)
	d := Decision{
		Strategy:        in.Strategy.ID,
		RatioBefore:     v.ratio.Round(4),
		RatioAfter:      v.ratio.Round(4),
		SnapshotVersion: in.Snapshot.Account.Version,
	}

	if p := e.riskOverride(in); p != nil {
		return e.propose(d, v, p)
	}

	target := in.Strategy.TargetRatio
	tol := e.Tolerance(in.Customization.ConfidenceLevel)

	switch {
	case v.ratio.LessThan(target.Sub(tol)):
		p, reason := e.rebalanceBuy(in, v, target, tol)
		if p == nil {
			d.Reason = reason
			return d
		}
		return e.propose(d, v, p)
	case v.ratio.GreaterThan(target.Add(tol)):
		p, reason := e.rebalanceSell(in, v, target, tol)
		if p == nil {
			d.Reason = reason
			return d
		}
		return e.propose(d, v, p)
	default:
		d.Reason = ReasonWithinBand
		return d
	}
}

func (e *Engine) propose(d Decision, v valuation, p *Proposal) Decision {
	d.Proposal = p
	d.Reason = p.Reason
	d.RatioAfter = ProjectedRatio(v.invested, v.total, *p).Round(4)
	return d
}

// ProjectedRatio is the investment ratio after p executes at its price.
func ProjectedRatio(invested, total decimal.Decimal, p Proposal) decimal.Decimal {
	total = total.Sub(p.Fees)
	if p.Type == ledger.Buy {
		return ratio(invested.Add(p.Total), total)
	}
	return ratio(invested.Sub(p.Total), total)
}

type trigger struct {
	symbol  string
	urgency decimal.Decimal
	reason  string
}

// riskOverride proposes a full sell of the most urgent stop loss or take
// profit breach.
func (e *Engine) riskOverride(in Input) *Proposal {
	sl := in.Customization.StopLossFraction()
	tp := in.Customization.TakeProfitFraction()

	var best *trigger
	for _, h := range in.Snapshot.Sorted() {
		price, ok := priced(in.Prices, h.Symbol)
		if !ok || !h.AvgCost.IsPositive() {
			continue
		}

		var t *trigger
		stop := h.AvgCost.Mul(one.Sub(sl))
		take := h.AvgCost.Mul(one.Add(tp))
		switch {
		case price.LessThanOrEqual(stop):
			t = &trigger{symbol: h.Symbol, urgency: stop.Sub(price).Div(stop), reason: ReasonStopLoss}
		case price.GreaterThanOrEqual(take):
			t = &trigger{symbol: h.Symbol, urgency: price.Sub(take).Div(take), reason: ReasonTakeProfit}
		}
		if t != nil && (best == nil || t.urgency.GreaterThan(best.urgency)) {
			best = t
		}
	}
	if best == nil {
		return nil
	}

	price, _ := priced(in.Prices, best.symbol)
	p := e.NewProposal(ledger.Sell, best.symbol, in.Snapshot.Quantity(best.symbol), price, best.reason)
	return &p
}

type candidate struct {
	symbol     string
	price      decimal.Decimal
	value      decimal.Decimal
	allocation decimal.Decimal
	quantity   int64
}

func (e *Engine) rebalanceBuy(in Input, v valuation, target, tol decimal.Decimal) (*Proposal, string) {
	maxPos := in.Customization.MaxPositionFraction().Mul(v.total)

	var cands []candidate
	unpriced := false
	for _, sym := range in.Strategy.Symbols {
		price, ok := priced(in.Prices, sym)
		if !ok {
			unpriced = true
			continue
		}
		pv := v.values[sym]
		if pv.GreaterThanOrEqual(maxPos) {
			continue
		}
		cands = append(cands, candidate{symbol: sym, price: price, value: pv, allocation: ratio(pv, v.total)})
	}
	if len(cands) == 0 {
		if unpriced {
			return nil, ReasonNoPricedSymbol
		}
		return nil, ReasonNoEligible
	}
	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].allocation.Equal(cands[j].allocation) {
			return cands[i].allocation.LessThan(cands[j].allocation)
		}
		return cands[i].symbol < cands[j].symbol
	})

	c := cands[0]
	budget := decimal.Min(v.cash.Mul(e.cfg.MaxCashUsage), maxPos.Sub(c.value))
	qty := budget.Div(c.price).Floor()
	if qty.LessThan(one) {
		return nil, ReasonNoCapacity
	}

	reason := fmt.Sprintf("under-invested: ratio %s below %s", v.ratio.StringFixed(4), target.Sub(tol).StringFixed(4))
	p := e.NewProposal(ledger.Buy, c.symbol, qty.IntPart(), c.price, reason)
	p.MaxPositionValue = maxPos.Round(2)
	return &p, ""
}

func (e *Engine) rebalanceSell(in Input, v valuation, target, tol decimal.Decimal) (*Proposal, string) {
	var cands []candidate
	for sym, pv := range v.values {
		cands = append(cands, candidate{symbol: sym, value: pv, quantity: in.Snapshot.Quantity(sym)})
	}
	if len(cands) == 0 {
		return nil, ReasonNoPricedSymbol
	}
	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].value.Equal(cands[j].value) {
			return cands[i].value.GreaterThan(cands[j].value)
		}
		return cands[i].symbol < cands[j].symbol
	})

	c := cands[0]
	price, _ := priced(in.Prices, c.symbol)

	excess := v.invested.Sub(target.Div(one.Sub(target)).Mul(v.cash))
	qty := excess.Div(price).Ceil().IntPart()
	if qty < 1 {
		qty = 1
	}
	if qty > c.quantity {
		qty = c.quantity
	}

	reason := fmt.Sprintf("over-invested: ratio %s above %s", v.ratio.StringFixed(4), target.Add(tol).StringFixed(4))
	p := e.NewProposal(ledger.Sell, c.symbol, qty, price, reason)
	return &p, ""
}
