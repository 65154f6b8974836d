package alpaca

import (
	"context"
	"sync"
	"time"
)

// MockClient serves quotes from memory. Symbols without a fixed quote are
// priced at 149.50 / 150.50.
type MockClient struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	errs   map[string]error
	calls  int
}

var _ QuoteClient = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		quotes: make(map[string]Quote),
		errs:   make(map[string]error),
	}
}

func (m *MockClient) SetQuote(symbol string, bid, ask float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = Quote{Symbol: symbol, BidPrice: bid, BidSize: 100, AskPrice: ask, AskSize: 100}
}

// SetError makes every lookup of symbol fail with err.
func (m *MockClient) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// Calls counts requests served, batch requests counting once.
func (m *MockClient) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *MockClient) lookup(symbol string) (Quote, error) {
	if err, ok := m.errs[symbol]; ok {
		return Quote{}, err
	}
	q, ok := m.quotes[symbol]
	if !ok {
		q = Quote{Symbol: symbol, BidPrice: 149.50, BidSize: 100, AskPrice: 150.50, AskSize: 100}
	}
	q.Timestamp = time.Now().UTC()
	return q, nil
}

func (m *MockClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	q, err := m.lookup(symbol)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetMultiQuotes omits failing symbols, as Alpaca does for unknown tickers.
func (m *MockClient) GetMultiQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	out := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		if q, err := m.lookup(sym); err == nil {
			out[sym] = q
		}
	}
	return out, nil
}
