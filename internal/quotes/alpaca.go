package quotes

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/pkg/alpaca"
	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

// AlpacaSource prices symbols at the NBBO midpoint.
type AlpacaSource struct {
	client alpaca.QuoteClient
}

func NewAlpacaSource(client alpaca.QuoteClient) *AlpacaSource {
	return &AlpacaSource{client: client}
}

func (a *AlpacaSource) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := a.client.GetQuote(ctx, symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.Is(err, alpaca.ErrSymbolNotFound) || (errors.As(err, &apiErr) && apiErr.StatusCode < 500) {
			metrics.RecordQuoteLookup("alpaca", "unavailable")
			return decimal.Zero, apperrors.ErrPriceUnavailable.WithDetails("no alpaca quote for " + symbol).WithError(err)
		}
		metrics.RecordQuoteLookup("alpaca", "error")
		return decimal.Zero, apperrors.ErrPriceUnavailable.WithDetails("alpaca quote failed for " + symbol).WithError(err)
	}

	mid, ok := midpoint(*q)
	if !ok {
		metrics.RecordQuoteLookup("alpaca", "unavailable")
		return decimal.Zero, Unavailable(symbol)
	}
	metrics.RecordQuoteLookup("alpaca", "ok")
	return mid, nil
}

// Quotes prices symbols with one batch request. A failed request leaves
// every symbol unpriced so later sources can answer.
func (a *AlpacaSource) Quotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	batch, err := a.client.GetMultiQuotes(ctx, symbols)
	if err != nil {
		log := logger.WithContext(ctx)
		log.Warn().Err(err).Int("symbols", len(symbols)).Msg("alpaca batch quote failed")
		metrics.RecordQuoteLookup("alpaca", "error")
		return out, nil
	}
	for _, sym := range symbols {
		q, found := batch[sym]
		if !found {
			metrics.RecordQuoteLookup("alpaca", "unavailable")
			continue
		}
		mid, ok := midpoint(q)
		if !ok {
			metrics.RecordQuoteLookup("alpaca", "unavailable")
			continue
		}
		metrics.RecordQuoteLookup("alpaca", "ok")
		out[sym] = mid
	}
	return out, nil
}

func midpoint(q alpaca.Quote) (decimal.Decimal, bool) {
	mid := decimal.NewFromFloat(q.Mid()).Round(4)
	return mid, mid.IsPositive()
}
