package quotes

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BytebleCode/Investment-Platform/pkg/alpaca"
)

func TestAlpacaSource(t *testing.T) {
	ctx := context.Background()
	client := alpaca.NewMockClient()
	client.SetQuote("AAPL", 174.90, 175.10)
	client.SetQuote("ASK", 0, 12.5)
	client.SetQuote("NONE", 0, 0)
	client.SetError("BAD", alpaca.ErrSymbolNotFound)
	src := NewAlpacaSource(client)

	p, err := src.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "175", p.String())

	p, err = src.Quote(ctx, "ASK")
	require.NoError(t, err)
	assert.Equal(t, "12.5", p.String())

	_, err = src.Quote(ctx, "NONE")
	assert.True(t, IsUnavailable(err))

	_, err = src.Quote(ctx, "BAD")
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, alpaca.ErrSymbolNotFound)
}

func TestAlpacaSource_ServerErrorIsUnavailable(t *testing.T) {
	client := alpaca.NewMockClient()
	client.SetError("JNJ", &alpaca.APIError{StatusCode: 503, Body: "unavailable"})

	src := NewFallback(NewAlpacaSource(client), NewStatic(nil))
	_, err := src.Quote(context.Background(), "JNJ")
	assert.True(t, IsUnavailable(err))
}

func TestAlpacaSource_Batch(t *testing.T) {
	client := alpaca.NewMockClient()
	client.SetQuote("AAPL", 174, 176)
	client.SetQuote("NONE", 0, 0)
	client.SetError("BAD", alpaca.ErrSymbolNotFound)

	prices, err := FetchAll(context.Background(), NewAlpacaSource(client), []string{"AAPL", "KO", "BAD", "NONE", "AAPL"})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Equal(t, "175", prices["AAPL"].String())
	assert.Equal(t, "150", prices["KO"].String())
	assert.Equal(t, 1, client.Calls(), "one batch request")
}

func TestFallback_BatchFillsGaps(t *testing.T) {
	client := alpaca.NewMockClient()
	client.SetError("PLTR", alpaca.ErrSymbolNotFound)
	backup := NewStatic(map[string]decimal.Decimal{"PLTR": decimal.RequireFromString("22.5"), "AAPL": decimal.NewFromInt(1)})

	prices, err := FetchAll(context.Background(), NewFallback(NewAlpacaSource(client), backup), []string{"AAPL", "PLTR", "ZZZZ"})
	require.NoError(t, err)
	assert.Equal(t, "150", prices["AAPL"].String())
	assert.Equal(t, "22.5", prices["PLTR"].String())
	assert.Equal(t, "150", prices["ZZZZ"].String(), "mock prices unknown symbols")
}
