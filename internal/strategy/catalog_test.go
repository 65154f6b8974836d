package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"conservative", "growth", "value", "balanced", "aggressive"}, c.IDs())

	tests := []struct {
		id       string
		target   string
		maxPos   string
		risk     int
		poolSize int
		first    string
	}{
		{"conservative", "0.6", "0.15", 1, 10, "JNJ"},
		{"growth", "0.8", "0.2", 4, 10, "AAPL"},
		{"value", "0.7", "0.18", 2, 10, "BLK"},
		{"balanced", "0.7", "0.15", 3, 10, "AAPL"},
		{"aggressive", "0.9", "0.25", 5, 8, "COIN"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d, err := c.Definition(tt.id)
			require.NoError(t, err)
			assert.True(t, d.TargetRatio.Equal(decimal.RequireFromString(tt.target)), "target %s", d.TargetRatio)
			assert.True(t, d.MaxPosition.Equal(decimal.RequireFromString(tt.maxPos)), "max position %s", d.MaxPosition)
			assert.Equal(t, tt.risk, d.RiskLevel)
			assert.Len(t, d.Symbols, tt.poolSize)
			assert.Equal(t, tt.first, d.Symbols[0])

			for _, sym := range d.Symbols {
				_, ok := c.Stock(sym)
				assert.True(t, ok, "pool symbol %s missing from universe", sym)
			}
		})
	}
}

func TestCatalog_UnknownStrategy(t *testing.T) {
	c := Default()

	_, err := c.TargetRatio("yolo")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))

	_, err = c.EligibleSymbols("yolo")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))

	assert.False(t, c.Has("yolo"))
}

func TestCatalog_DefinitionIsACopy(t *testing.T) {
	c := Default()

	d, _ := c.Definition("growth")
	d.Symbols[0] = "XXXX"

	again, _ := c.Definition("growth")
	assert.Equal(t, "AAPL", again.Symbols[0])
}

func TestCatalog_Stock(t *testing.T) {
	c := Default()

	s, ok := c.Stock("JNJ")
	require.True(t, ok)
	assert.Equal(t, "Johnson & Johnson", s.Name)
	assert.Equal(t, "Healthcare", s.Sector)
	assert.True(t, s.BasePrice.Equal(decimal.NewFromInt(160)))
	assert.InDelta(t, 0.55, s.Beta, 1e-9)

	_, ok = c.Stock("ZZZZ")
	assert.False(t, ok)
}

func TestCatalog_TradeInterval(t *testing.T) {
	c := Default()

	tests := []struct {
		id   string
		freq Frequency
		want time.Duration
	}{
		{"balanced", FrequencyMedium, 75 * time.Second},
		{"balanced", FrequencyLow, 150 * time.Second},
		{"balanced", FrequencyHigh, 37500 * time.Millisecond},
		{"aggressive", FrequencyHigh, 22500 * time.Millisecond},
		{"conservative", FrequencyLow, 240 * time.Second},
	}
	for _, tt := range tests {
		got, err := c.TradeInterval(tt.id, tt.freq)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.id, tt.freq)
	}

	_, err := c.TradeInterval("balanced", "hourly")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "strategies: ["},
		{"no strategies", "universe: []"},
		{"unknown symbol", `
universe:
  - {symbol: AAA, name: A, sector: X, base_price: "10", beta: 1}
strategies:
  - {id: s, risk_level: 1, target_ratio: "0.5", max_position: "0.2", base_frequency_seconds: 10, symbols: [BBB]}
`},
		{"target out of range", `
universe:
  - {symbol: AAA, name: A, sector: X, base_price: "10", beta: 1}
strategies:
  - {id: s, risk_level: 1, target_ratio: "1.5", max_position: "0.2", base_frequency_seconds: 10, symbols: [AAA]}
`},
		{"duplicate", `
universe:
  - {symbol: AAA, name: A, sector: X, base_price: "10", beta: 1}
strategies:
  - {id: s, risk_level: 1, target_ratio: "0.5", max_position: "0.2", base_frequency_seconds: 10, symbols: [AAA]}
  - {id: s, risk_level: 1, target_ratio: "0.5", max_position: "0.2", base_frequency_seconds: 10, symbols: [AAA]}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_Custom(t *testing.T) {
	c, err := Parse([]byte(`
universe:
  - {symbol: AAA, name: Alpha, sector: Tech, base_price: "10.50", beta: 1.1}
strategies:
  - {id: solo, name: Solo, risk_level: 2, target_ratio: "0.5", max_position: "0.5", base_frequency_seconds: 30, symbols: [AAA]}
`))
	require.NoError(t, err)

	ratio, err := c.TargetRatio("solo")
	require.NoError(t, err)
	assert.Equal(t, "0.5", ratio.String())
	assert.Equal(t, []string{"AAA"}, c.Symbols())
}

func TestLoadFile_Empty(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, c.All(), 5)
}
