package quotes

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/internal/strategy"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

var (
	minPrice   = decimal.RequireFromString("0.01")
	floorRatio = decimal.RequireFromString("0.5")
)

// Profile is the daily drift and volatility of a simulated market.
type Profile struct {
	Drift      float64
	Volatility float64
}

// ProfileOf returns the market profile of a strategy definition.
func ProfileOf(d strategy.Definition) Profile {
	return Profile{Drift: d.DailyDrift, Volatility: d.Volatility}
}

// Simulator moves universe prices with a daily random walk: each step
// multiplies the price by 1 + drift + Z x volatility x beta. A step never loses more than half
// the price and never goes below one cent.
type Simulator struct {
	mu      sync.Mutex
	catalog *strategy.Catalog
	profile Profile
	rng     *rand.Rand
	prices  map[string]decimal.Decimal
}

// NewSimulator starts every symbol at its base price. Seed 0 seeds from the
// clock.
func NewSimulator(catalog *strategy.Catalog, profile Profile, seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Simulator{
		catalog: catalog,
		profile: profile,
		rng:     rand.New(rand.NewSource(seed)),
		prices:  make(map[string]decimal.Decimal),
	}
	for _, sym := range catalog.Symbols() {
		st, _ := catalog.Stock(sym)
		s.prices[sym] = st.BasePrice
	}
	return s
}

// Quote advances symbol one step and returns the new price.
func (s *Simulator) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prices[symbol]; !ok {
		metrics.RecordQuoteLookup("simulator", "unavailable")
		return decimal.Zero, Unavailable(symbol)
	}
	metrics.RecordQuoteLookup("simulator", "ok")
	return s.step(symbol, s.profile), nil
}

// Peek returns the current price without advancing it.
func (s *Simulator) Peek(symbol string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	return p, ok
}

// Advance moves every symbol one step under p and returns the new prices.
func (s *Simulator) Advance(p Profile) map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(s.prices))
	for _, sym := range s.catalog.Symbols() {
		out[sym] = s.step(sym, p)
	}
	return out
}

// step must be called with mu held.
func (s *Simulator) step(symbol string, p Profile) decimal.Decimal {
	price := s.prices[symbol]
	beta := 1.0
	if st, ok := s.catalog.Stock(symbol); ok && st.Beta > 0 {
		beta = st.Beta
	}

	ret := p.Drift + s.rng.NormFloat64()*p.Volatility*beta
	next := price.Mul(decimal.NewFromFloat(1 + ret)).Round(2)
	next = decimal.Max(next, price.Mul(floorRatio).Round(2), minPrice)

	s.prices[symbol] = next
	return next
}
