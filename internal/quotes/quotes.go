// Package quotes provides price sources for the decision engine. Sources
// answer ErrPriceUnavailable when they cannot price a symbol; any other
// error is a failure of the source itself.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

// Source returns the latest price of a symbol.
type Source interface {
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Unavailable builds the error a source returns for an unpriced symbol.
func Unavailable(symbol string) error {
	return apperrors.ErrPriceUnavailable.WithDetails(fmt.Sprintf("no price for %s", symbol))
}

func IsUnavailable(err error) bool {
	return errors.Is(err, apperrors.ErrPriceUnavailable)
}

// BatchSource prices several symbols at once. Symbols it cannot price are
// absent from the result; an error means the source itself failed.
type BatchSource interface {
	Source
	Quotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// FetchAll prices every symbol, skipping the ones src cannot price. Other
// errors abort the fetch.
func FetchAll(ctx context.Context, src Source, symbols []string) (map[string]decimal.Decimal, error) {
	symbols = dedupe(symbols)
	if b, ok := src.(BatchSource); ok {
		return b.Quotes(ctx, symbols)
	}
	return quoteEach(ctx, src, symbols)
}

func quoteEach(ctx context.Context, src Source, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		p, err := src.Quote(ctx, sym)
		if IsUnavailable(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[sym] = p
	}
	return out, nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func missing(symbols []string, have map[string]decimal.Decimal) []string {
	var out []string
	for _, s := range symbols {
		if _, ok := have[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Static serves fixed prices.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for k, v := range prices {
		s.prices[k] = v
	}
	return s
}

func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *Static) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[symbol]
	if !ok || !p.IsPositive() {
		metrics.RecordQuoteLookup("static", "unavailable")
		return decimal.Zero, Unavailable(symbol)
	}
	metrics.RecordQuoteLookup("static", "ok")
	return p, nil
}

// Fallback asks each source in order and returns the first price. Only
// ErrPriceUnavailable moves on to the next source.
type Fallback struct {
	sources []Source
}

func NewFallback(sources ...Source) *Fallback {
	return &Fallback{sources: sources}
}

func (f *Fallback) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	for _, src := range f.sources {
		p, err := src.Quote(ctx, symbol)
		if err == nil {
			return p, nil
		}
		if !IsUnavailable(err) {
			return decimal.Zero, err
		}
	}
	metrics.RecordQuoteLookup("fallback", "unavailable")
	return decimal.Zero, Unavailable(symbol)
}

// Quotes asks each source only for the symbols earlier sources left unpriced.
func (f *Fallback) Quotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	todo := symbols
	for _, src := range f.sources {
		if len(todo) == 0 {
			break
		}
		got, err := FetchAll(ctx, src, todo)
		if err != nil {
			return nil, err
		}
		for sym, p := range got {
			out[sym] = p
		}
		todo = missing(todo, out)
	}
	for range todo {
		metrics.RecordQuoteLookup("fallback", "unavailable")
	}
	return out, nil
}
