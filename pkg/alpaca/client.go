// Package alpaca is a small client for Alpaca's latest-quote market data
// endpoints. Orders are never routed through it.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BytebleCode/Investment-Platform/pkg/telemetry"
)

const (
	defaultDataURL = "https://data.alpaca.markets"
	defaultFeed    = "iex"
)

// ErrSymbolNotFound is returned when a batch response has no quote for a
// requested symbol.
var ErrSymbolNotFound = errors.New("alpaca: symbol not found")

// QuoteClient is the subset of Alpaca used for pricing.
type QuoteClient interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetMultiQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

type Config struct {
	APIKey    string
	SecretKey string
	Feed      string        // iex or sip, defaults to iex
	DataURL   string        // overrides the public endpoint
	Timeout   time.Duration // defaults to 10s
}

type Client struct {
	http    *http.Client
	key     string
	secret  string
	feed    string
	dataURL string
}

var _ QuoteClient = (*Client)(nil)

func NewClient(cfg Config) *Client {
	c := &Client{
		key:     cfg.APIKey,
		secret:  cfg.SecretKey,
		feed:    cfg.Feed,
		dataURL: strings.TrimRight(cfg.DataURL, "/"),
	}
	if c.feed == "" {
		c.feed = defaultFeed
	}
	if c.dataURL == "" {
		c.dataURL = defaultDataURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.http = telemetry.WrapHTTPClient(&http.Client{Timeout: timeout})
	return c
}

// APIError carries a non-2xx response from Alpaca.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Quote is the latest NBBO quote for a symbol.
type Quote struct {
	Symbol    string    `json:"-"`
	AskPrice  float64   `json:"ap"`
	AskSize   int       `json:"as"`
	BidPrice  float64   `json:"bp"`
	BidSize   int       `json:"bs"`
	Timestamp time.Time `json:"t"`
}

// Mid is the bid/ask midpoint. A one-sided quote answers the side that is
// present and an empty one answers zero.
func (q Quote) Mid() float64 {
	switch {
	case q.BidPrice > 0 && q.AskPrice > 0:
		return (q.BidPrice + q.AskPrice) / 2
	case q.AskPrice > 0:
		return q.AskPrice
	default:
		return q.BidPrice
	}
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var body struct {
		Quote Quote `json:"quote"`
	}
	path := "/v2/stocks/" + url.PathEscape(symbol) + "/quotes/latest"
	if err := c.get(ctx, path, url.Values{"feed": {c.feed}}, &body); err != nil {
		return nil, err
	}
	body.Quote.Symbol = symbol
	return &body.Quote, nil
}

// GetMultiQuotes fetches several symbols in one request. Symbols Alpaca
// does not know are absent from the result.
func (c *Client) GetMultiQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	var body struct {
		Quotes map[string]Quote `json:"quotes"`
	}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}, "feed": {c.feed}}
	if err := c.get(ctx, "/v2/stocks/quotes/latest", q, &body); err != nil {
		return nil, err
	}
	for sym, quote := range body.Quotes {
		quote.Symbol = sym
		out[sym] = quote
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("alpaca: build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("alpaca: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("alpaca: decode %s: %w", path, err)
	}
	return nil
}
