package events

import "time"

// =============================================================================
// Event Payload Definitions
// =============================================================================
// Each event type has a corresponding payload struct defined here.
//
// Guidelines:
// - Monetary amounts are decimal strings, never floats
// - Use time.Time for timestamps
// - Include account_id in all account-related payloads
// =============================================================================

// TradeExecutedPayload is the payload for trade.executed.v1 events
type TradeExecutedPayload struct {
	TradeID    string    `json:"trade_id"`
	AccountID  string    `json:"account_id"`
	Side       string    `json:"side"` // buy, sell
	Symbol     string    `json:"symbol"`
	Quantity   int64     `json:"quantity"`
	Price      string    `json:"price"`
	Total      string    `json:"total"`
	Fees       string    `json:"fees"`
	Strategy   string    `json:"strategy"`
	Source     string    `json:"source"` // auto, manual
	Reason     string    `json:"reason,omitempty"`
	CashAfter  string    `json:"cash_after"`
	Version    int64     `json:"version"`
	ExecutedAt time.Time `json:"executed_at"`
}

// AccountResetPayload is the payload for account.reset.v1 events
type AccountResetPayload struct {
	AccountID    string    `json:"account_id"`
	InitialValue string    `json:"initial_value"`
	Strategy     string    `json:"strategy"`
	ResetAt      time.Time `json:"reset_at"`
}

// StrategySwitchedPayload is the payload for strategy.switched.v1 events
type StrategySwitchedPayload struct {
	AccountID string `json:"account_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// CustomizationUpdatedPayload is the payload for customization.updated.v1 events
type CustomizationUpdatedPayload struct {
	AccountID         string `json:"account_id"`
	Strategy          string `json:"strategy"`
	ConfidenceLevel   int    `json:"confidence_level"`
	TradingFrequency  string `json:"trading_frequency"`
	MaxPositionSize   int    `json:"max_position_size"`
	StopLossPercent   int    `json:"stop_loss_percent"`
	TakeProfitPercent int    `json:"take_profit_percent"`
	AutoRebalance     bool   `json:"auto_rebalance"`
	ReinvestDividends bool   `json:"reinvest_dividends"`
}

// PriceUpdatePayload is the payload for price.update.v1 events
type PriceUpdatePayload struct {
	Symbol    string    `json:"symbol"`
	BidPrice  string    `json:"bid_price,omitempty"`
	AskPrice  string    `json:"ask_price,omitempty"`
	LastPrice string    `json:"last_price"`
	Timestamp time.Time `json:"timestamp"`
}
