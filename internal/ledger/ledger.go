// Package ledger is the authoritative portfolio state: accounts, holdings
// and the append-only trade history. Every change goes through Apply, which
// either commits the whole mutation or leaves the account untouched.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
)

type TradeType string

const (
	Buy  TradeType = "buy"
	Sell TradeType = "sell"
)

func (t TradeType) Valid() bool {
	return t == Buy || t == Sell
}

type Source string

const (
	SourceManual Source = "manual"
	SourceAuto   Source = "auto"
)

// UnknownName is the display name of symbols outside the universe.
const UnknownName = "Unknown"

type Account struct {
	ID            string          `json:"id"`
	Cash          decimal.Decimal `json:"cash"`
	InitialValue  decimal.Decimal `json:"initial_value"`
	RealizedGains decimal.Decimal `json:"realized_gains"`
	Strategy      string          `json:"current_strategy"`
	IsInitialized bool            `json:"is_initialized"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Holding struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Sector    string          `json:"sector"`
	Quantity  int64           `json:"quantity"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CostBasis is quantity x average cost.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AvgCost.Mul(decimal.NewFromInt(h.Quantity))
}

type TradeRecord struct {
	ID           string          `json:"trade_id"`
	AccountID    string          `json:"account_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Type         TradeType       `json:"type"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"stock_name"`
	Sector       string          `json:"sector"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Total        decimal.Decimal `json:"total"`
	Fees         decimal.Decimal `json:"fees"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	Strategy     string          `json:"strategy"`
	Source       Source          `json:"source"`
}

// Snapshot is a consistent read of one account and its holdings.
type Snapshot struct {
	Account  Account
	Holdings map[string]Holding
}

func (s *Snapshot) Holding(symbol string) (Holding, bool) {
	h, ok := s.Holdings[symbol]
	return h, ok
}

// Quantity returns the shares held in symbol, 0 when not held.
func (s *Snapshot) Quantity(symbol string) int64 {
	return s.Holdings[symbol].Quantity
}

// Sorted returns the holdings ordered by symbol.
func (s *Snapshot) Sorted() []Holding {
	out := make([]Holding, 0, len(s.Holdings))
	for _, h := range s.Holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{Account: s.Account, Holdings: make(map[string]Holding, len(s.Holdings))}
	for k, v := range s.Holdings {
		out.Holdings[k] = v
	}
	return out
}

// HoldingChange adjusts one position. AvgCost is the average cost after
// the change; it is ignored when the position closes.
type HoldingChange struct {
	Symbol        string
	Name          string
	Sector        string
	QuantityDelta int64
	AvgCost       decimal.Decimal
}

// Mutation is applied atomically. ExpectedVersion 0 skips the version check.
type Mutation struct {
	ExpectedVersion    int64
	CashDelta          decimal.Decimal
	RealizedGainsDelta decimal.Decimal
	Strategy           string
	Holding            *HoldingChange
	Trade              *TradeRecord
}

// Settings replaces the initial value and/or the cash balance.
type Settings struct {
	InitialValue *decimal.Decimal
	Cash         *decimal.Decimal
}

// TradeFilter pages and filters the history. Limit 0 returns everything.
type TradeFilter struct {
	Type   TradeType
	Symbol string
	Limit  int
	Offset int
}

// Defaults seed accounts created on first access.
type Defaults struct {
	InitialValue decimal.Decimal
	Strategy     string
}

func DefaultAccountSettings() Defaults {
	return Defaults{
		InitialValue: decimal.RequireFromString("100000.00"),
		Strategy:     "balanced",
	}
}

// Ledger is implemented by MemoryStore and PostgresStore. Accounts are
// created on first access by every method.
type Ledger interface {
	Snapshot(ctx context.Context, accountID string) (*Snapshot, error)
	Apply(ctx context.Context, accountID string, m Mutation) (*Snapshot, error)
	Reset(ctx context.Context, accountID string) (*Account, error)
	Trades(ctx context.Context, accountID string, f TradeFilter) ([]TradeRecord, int, error)
	UpdateSettings(ctx context.Context, accountID string, s Settings) (*Account, error)
}

func newAccount(id string, d Defaults, now time.Time) Account {
	return Account{
		ID:            id,
		Cash:          d.InitialValue,
		InitialValue:  d.InitialValue,
		RealizedGains: decimal.Zero,
		Strategy:      d.Strategy,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// next computes the account and position after m. held is the current
// position in m.Holding.Symbol, nil when none. The returned holding has
// Quantity 0 when the position closes. Nothing is modified on error.
func next(acct Account, held *Holding, m Mutation, now time.Time) (Account, *Holding, error) {
	if m.ExpectedVersion != 0 && m.ExpectedVersion != acct.Version {
		return Account{}, nil, apperrors.ErrConcurrencyConflict.WithDetails(
			fmt.Sprintf("expected version %d, found %d", m.ExpectedVersion, acct.Version))
	}

	cash := acct.Cash.Add(m.CashDelta)
	if cash.IsNegative() {
		return Account{}, nil, apperrors.ErrInsufficientFunds.WithDetails(
			fmt.Sprintf("cash %s cannot cover %s", acct.Cash.StringFixed(2), m.CashDelta.Neg().StringFixed(2)))
	}

	var pos *Holding
	if c := m.Holding; c != nil {
		var qty int64
		h := Holding{Symbol: c.Symbol, Name: c.Name, Sector: c.Sector}
		if held != nil {
			h = *held
			qty = held.Quantity
		}
		newQty := qty + c.QuantityDelta
		if newQty < 0 {
			return Account{}, nil, apperrors.ErrInsufficientShares.WithDetails(
				fmt.Sprintf("holding %d %s, cannot remove %d", qty, c.Symbol, -c.QuantityDelta))
		}
		h.Quantity = newQty
		h.AvgCost = c.AvgCost
		if newQty == 0 {
			h.AvgCost = decimal.Zero
		}
		if c.Name != "" {
			h.Name = c.Name
		}
		if c.Sector != "" {
			h.Sector = c.Sector
		}
		if h.Name == "" {
			h.Name = UnknownName
		}
		h.UpdatedAt = now
		pos = &h
	}

	acct.Cash = cash
	acct.RealizedGains = acct.RealizedGains.Add(m.RealizedGainsDelta)
	if m.Strategy != "" {
		acct.Strategy = m.Strategy
	}
	if m.Trade != nil {
		acct.IsInitialized = true
	}
	acct.Version++
	acct.UpdatedAt = now
	return acct, pos, nil
}

// settle fills the generated fields of a trade record.
func settle(t TradeRecord, accountID string, now time.Time) TradeRecord {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}
	if t.Name == "" {
		t.Name = UnknownName
	}
	t.AccountID = accountID
	return t
}

func applySettings(acct Account, s Settings, now time.Time) (Account, error) {
	if s.Cash != nil {
		if s.Cash.IsNegative() {
			return Account{}, apperrors.ErrLedgerViolation.WithDetails("cash cannot be negative")
		}
		acct.Cash = *s.Cash
	}
	if s.InitialValue != nil {
		if !s.InitialValue.IsPositive() {
			return Account{}, apperrors.ErrLedgerViolation.WithDetails("initial value must be positive")
		}
		acct.InitialValue = *s.InitialValue
	}
	acct.Version++
	acct.UpdatedAt = now
	return acct, nil
}
