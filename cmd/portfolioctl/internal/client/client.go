package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/BytebleCode/Investment-Platform/internal/engine"
	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/portfolio"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
	"github.com/BytebleCode/Investment-Platform/pkg/response"
	"github.com/BytebleCode/Investment-Platform/pkg/telemetry"
)

type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client
}

// APIError is an error envelope returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []string
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New() *Client {
	return NewWithURL(viper.GetString("api_url"), viper.GetString("account"))
}

func NewWithURL(baseURL, account string) *Client {
	hc := telemetry.WrapHTTPClient(&http.Client{Timeout: 30 * time.Second})
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		account:    account,
		httpClient: hc,
	}
}

func (c *Client) Account() string {
	return c.account
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (c *Client) do(method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN_ERROR", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) accountPath(suffix string) string {
	return "/api/v1/accounts/" + url.PathEscape(c.account) + suffix
}

// Account endpoints

func (c *Client) GetAccount() (*ledger.Account, error) {
	var resp ledger.Account
	err := c.do("GET", c.accountPath(""), nil, &resp)
	return &resp, err
}

func (c *Client) GetHoldings() ([]ledger.Holding, error) {
	var resp []ledger.Holding
	err := c.do("GET", c.accountPath("/holdings"), nil, &resp)
	return resp, err
}

type TradesPage struct {
	Items      []ledger.TradeRecord `json:"items"`
	Pagination response.Pagination  `json:"pagination"`
}

func (c *Client) GetTrades(tradeType string, page, perPage int) (*TradesPage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("per_page", fmt.Sprint(perPage))
	if tradeType != "" {
		q.Set("type", tradeType)
	}
	var resp TradesPage
	err := c.do("GET", c.accountPath("/trades?"+q.Encode()), nil, &resp)
	return &resp, err
}

func (c *Client) PlaceTrade(req portfolio.TradeRequest) (*ledger.TradeRecord, error) {
	var resp ledger.TradeRecord
	err := c.do("POST", c.accountPath("/trades"), req, &resp)
	return &resp, err
}

func (c *Client) AutoTrade(prices map[string]decimal.Decimal) (*portfolio.Result, error) {
	var body any
	if len(prices) > 0 {
		body = map[string]any{"prices": prices}
	}
	var resp portfolio.Result
	err := c.do("POST", c.accountPath("/auto-trade"), body, &resp)
	return &resp, err
}

func (c *Client) Reset() (*ledger.Account, error) {
	var resp ledger.Account
	err := c.do("POST", c.accountPath("/reset"), nil, &resp)
	return &resp, err
}

func (c *Client) GetSummary() (*portfolio.Summary, error) {
	var resp portfolio.Summary
	err := c.do("GET", c.accountPath("/summary"), nil, &resp)
	return &resp, err
}

func (c *Client) GetRecommendation() (*engine.Decision, error) {
	var resp engine.Decision
	err := c.do("GET", c.accountPath("/recommendation"), nil, &resp)
	return &resp, err
}

func (c *Client) SwitchStrategy(id string) (*ledger.Account, error) {
	var resp ledger.Account
	err := c.do("PUT", c.accountPath("/strategy"), map[string]string{"strategy": id}, &resp)
	return &resp, err
}

func (c *Client) UpdateSettings(req portfolio.SettingsRequest) (*ledger.Account, error) {
	var resp ledger.Account
	err := c.do("PUT", c.accountPath("/settings"), req, &resp)
	return &resp, err
}

// Strategy endpoints

func (c *Client) ListStrategies() ([]strategy.Definition, error) {
	var resp []strategy.Definition
	err := c.do("GET", "/api/v1/strategies", nil, &resp)
	return resp, err
}

func (c *Client) GetCustomization(strategyID string) (*strategy.Customization, error) {
	var resp strategy.Customization
	err := c.do("GET", c.accountPath("/strategies/"+url.PathEscape(strategyID)+"/customization"), nil, &resp)
	return &resp, err
}

func (c *Client) UpdateCustomization(strategyID string, p strategy.Patch) (*strategy.Customization, error) {
	var resp strategy.Customization
	err := c.do("PUT", c.accountPath("/strategies/"+url.PathEscape(strategyID)+"/customization"), p, &resp)
	return &resp, err
}
