package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type position struct {
	symbol string
	qty    int64
	avg    string
}

func snapshot(cash string, positions ...position) *ledger.Snapshot {
	snap := &ledger.Snapshot{
		Account:  ledger.Account{ID: "acc-1", Cash: d(cash), Strategy: "balanced", Version: 7},
		Holdings: map[string]ledger.Holding{},
	}
	for _, p := range positions {
		snap.Holdings[p.symbol] = ledger.Holding{Symbol: p.symbol, Quantity: p.qty, AvgCost: d(p.avg)}
	}
	return snap
}

func balanced(t *testing.T) strategy.Definition {
	t.Helper()
	def, err := strategy.Default().Definition("balanced")
	require.NoError(t, err)
	return def
}

func prices(kv ...string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = d(kv[i+1])
	}
	return out
}

var balancedPrices = prices(
	"AAPL", "175", "MSFT", "380", "JNJ", "100", "PG", "155", "JPM", "150",
	"KO", "60", "CAT", "250", "HON", "200", "LMT", "450", "MMM", "100",
)

func TestTolerance(t *testing.T) {
	e := New(DefaultConfig())

	assert.Equal(t, "0.025", e.Tolerance(50).String())
	assert.Equal(t, "0", e.Tolerance(100).String())
	assert.Equal(t, "0.045", e.Tolerance(10).String())
}

func TestFees(t *testing.T) {
	e := New(DefaultConfig())

	assert.Equal(t, "14.88", e.Fees(d("14875")).StringFixed(2))
	assert.Equal(t, "6.00", e.Fees(d("6000")).StringFixed(2))
	assert.Equal(t, "0.01", e.Fees(d("5")).StringFixed(2))
}

func TestDecide_UnderInvestedBuys(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("45000", position{"JNJ", 550, "100"})

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        balancedPrices,
	})

	require.NotNil(t, dec.Proposal, dec.Reason)
	p := dec.Proposal
	assert.Equal(t, ledger.Buy, p.Type)
	assert.Equal(t, "AAPL", p.Symbol, "unheld symbols tie at zero allocation and break by symbol")
	assert.Equal(t, int64(85), p.Quantity, "floor(min(42750, 15000) / 175)")
	assert.Equal(t, "14875.00", p.Total.StringFixed(2))
	assert.Equal(t, "14.88", p.Fees.StringFixed(2))
	assert.Equal(t, "15000.00", p.MaxPositionValue.StringFixed(2))
	assert.Equal(t, "0.5500", dec.RatioBefore.StringFixed(4))
	assert.True(t, dec.RatioAfter.GreaterThan(dec.RatioBefore))
	assert.Equal(t, "balanced", dec.Strategy)
	assert.Equal(t, int64(7), dec.SnapshotVersion)
	assert.Equal(t, p.Reason, dec.Reason)
}

func TestDecide_WithinBand(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("31000", position{"JNJ", 690, "100"})

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        balancedPrices,
	})

	assert.Nil(t, dec.Proposal)
	assert.Equal(t, ReasonWithinBand, dec.Reason)
	assert.Equal(t, "0.6900", dec.RatioBefore.StringFixed(4))
	assert.True(t, dec.RatioAfter.Equal(dec.RatioBefore))
}

func TestDecide_StopLossPrecedesRebalancing(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("90000", position{"JNJ", 100, "160"})

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        prices("JNJ", "140", "AAPL", "175"),
	})

	require.NotNil(t, dec.Proposal)
	assert.Equal(t, ledger.Sell, dec.Proposal.Type)
	assert.Equal(t, "JNJ", dec.Proposal.Symbol)
	assert.Equal(t, int64(100), dec.Proposal.Quantity)
	assert.Equal(t, ReasonStopLoss, dec.Reason)
	assert.True(t, dec.RatioAfter.LessThan(dec.RatioBefore))
}

func TestDecide_MostUrgentOverrideWins(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("50000",
		position{"JNJ", 100, "160"}, // stop at 144, price 140
		position{"KO", 100, "60"},   // take profit at 72, price 80
	)

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        prices("JNJ", "140", "KO", "80"),
	})

	require.NotNil(t, dec.Proposal)
	assert.Equal(t, "KO", dec.Proposal.Symbol)
	assert.Equal(t, ReasonTakeProfit, dec.Reason)
}

func TestDecide_OverrideTiesBreakBySymbol(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("50000", position{"PG", 10, "100"}, position{"KO", 10, "100"})

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        prices("PG", "80", "KO", "80"),
	})

	require.NotNil(t, dec.Proposal)
	assert.Equal(t, "KO", dec.Proposal.Symbol)
}

func TestDecide_OverrideSkipsUnpricedHoldings(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("31000", position{"JNJ", 690, "100"}, position{"KO", 10, "100"})

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        prices("JNJ", "100"),
	})

	assert.Nil(t, dec.Proposal)
}

func TestDecide_OverInvestedSellsLargestPosition(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("25000", position{"AAPL", 200, "175"}, position{"MSFT", 100, "380"})

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        balancedPrices,
	})

	require.NotNil(t, dec.Proposal, dec.Reason)
	p := dec.Proposal
	assert.Equal(t, ledger.Sell, p.Type)
	assert.Equal(t, "MSFT", p.Symbol)
	assert.Equal(t, int64(39), p.Quantity, "ceil((73000 - 0.7/0.3 x 25000) / 380)")
	assert.True(t, p.MaxPositionValue.IsZero())
	assert.True(t, dec.RatioAfter.LessThan(dec.RatioBefore))
}

func TestDecide_SellIsCappedAtHeldQuantity(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("100", position{"AAPL", 10, "175"}, position{"MSFT", 5, "380"})

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        balancedPrices,
	})

	require.NotNil(t, dec.Proposal)
	assert.Equal(t, "MSFT", dec.Proposal.Symbol)
	assert.Equal(t, int64(5), dec.Proposal.Quantity)
}

func TestDecide_BuyNoOps(t *testing.T) {
	e := New(DefaultConfig())
	solo := strategy.Definition{ID: "solo", TargetRatio: d("0.9"), MaxPosition: d("0.2"), Symbols: []string{"AAPL"}}

	tests := []struct {
		name   string
		snap   *ledger.Snapshot
		def    strategy.Definition
		prices map[string]decimal.Decimal
		want   string
	}{
		{
			name:   "no cash",
			snap:   snapshot("100"),
			def:    balanced(t),
			prices: balancedPrices,
			want:   ReasonNoCapacity,
		},
		{
			name:   "pool at capacity",
			snap:   snapshot("80000", position{"AAPL", 200, "100"}),
			def:    solo,
			prices: prices("AAPL", "100"),
			want:   ReasonNoEligible,
		},
		{
			name:   "pool unpriced",
			snap:   snapshot("100000"),
			def:    balanced(t),
			prices: prices(),
			want:   ReasonNoPricedSymbol,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := e.Decide(Input{
				Snapshot:      tt.snap,
				Strategy:      tt.def,
				Customization: strategy.DefaultCustomization(),
				Prices:        tt.prices,
			})
			assert.Nil(t, dec.Proposal)
			assert.Equal(t, tt.want, dec.Reason)
		})
	}
}

func TestDecide_SkipsUnpricedCandidate(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("100000")

	dec := e.Decide(Input{
		Snapshot:      snap,
		Strategy:      balanced(t),
		Customization: strategy.DefaultCustomization(),
		Prices:        prices("MSFT", "380", "KO", "60"),
	})

	require.NotNil(t, dec.Proposal)
	assert.Equal(t, "KO", dec.Proposal.Symbol, "AAPL and the others have no price")
}

func TestDecide_ConfidenceNarrowsBand(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("31000", position{"JNJ", 690, "100"})

	c := strategy.DefaultCustomization()
	c.ConfidenceLevel = 100

	dec := e.Decide(Input{Snapshot: snap, Strategy: balanced(t), Customization: c, Prices: balancedPrices})

	require.NotNil(t, dec.Proposal, "0.69 is outside a zero-width band around 0.70")
	assert.Equal(t, ledger.Buy, dec.Proposal.Type)
}

func TestDecide_DoesNotMutateSnapshot(t *testing.T) {
	e := New(DefaultConfig())
	snap := snapshot("45000", position{"JNJ", 550, "100"})
	before := snap.Holdings["JNJ"].AvgCost.String()

	_ = e.Decide(Input{Snapshot: snap, Strategy: balanced(t), Customization: strategy.DefaultCustomization(), Prices: balancedPrices})

	assert.Equal(t, "45000", snap.Account.Cash.String())
	assert.Equal(t, int64(550), snap.Quantity("JNJ"))
	assert.Equal(t, before, snap.Holdings["JNJ"].AvgCost.String())
}

func TestInvestmentRatio(t *testing.T) {
	snap := snapshot("45000", position{"JNJ", 550, "100"})
	assert.Equal(t, "0.55", InvestmentRatio(snap, prices("JNJ", "100")).String())
	assert.True(t, InvestmentRatio(snapshot("0"), nil).IsZero())
}
