package output

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{"dollars", "1234.5", "USD", "$1,234.50"},
		{"rounds to cents", "0.125", "USD", "$0.13"},
		{"negative", "-741.75", "USD", "-$741.75"},
		{"zero minor units", "1500", "JPY", "¥1,500"},
		{"unknown currency", "12.3", "XXX1", "XXX1 12.30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAmount(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPercentAndRatio(t *testing.T) {
	assert.Equal(t, "1.48%", Percent(decimal.RequireFromString("1.4768")))
	assert.Equal(t, "8.13%", Ratio(decimal.RequireFromString("0.0813")))
	assert.Equal(t, "0.00%", Ratio(decimal.Zero))
}

func TestTableAndKeyValueWriteToOut(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	defer func() { Out = prev }()

	Table([]string{"Symbol", "Qty"}, [][]string{{"AAPL", "150"}})
	KeyValue([][]string{{"Cash", "$84,985.00"}})

	out := buf.String()
	assert.Contains(t, out, "Symbol")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "150")
	assert.Contains(t, out, "$84,985.00")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	defer func() { Out = prev }()

	err := JSON(map[string]string{"symbol": "KO"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"KO"}`, buf.String())
}
