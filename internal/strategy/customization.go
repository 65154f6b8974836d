package strategy

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/pkg/validation"
)

// Customization holds the per-account, per-strategy overrides consumed by
// the decision engine. Percent fields are whole percents.
type Customization struct {
	ConfidenceLevel   int       `json:"confidence_level" validate:"min=10,max=100"`
	TradeFrequency    Frequency `json:"trade_frequency" validate:"oneof=low medium high"`
	MaxPositionSize   int       `json:"max_position_size" validate:"min=5,max=50"`
	StopLossPercent   int       `json:"stop_loss_percent" validate:"min=5,max=30"`
	TakeProfitPercent int       `json:"take_profit_percent" validate:"min=10,max=100"`
	AutoRebalance     bool      `json:"auto_rebalance"`
	ReinvestDividends bool      `json:"reinvest_dividends"`
}

// DefaultCustomization is used when an account never customized a strategy.
func DefaultCustomization() Customization {
	return Customization{
		ConfidenceLevel:   50,
		TradeFrequency:    FrequencyMedium,
		MaxPositionSize:   15,
		StopLossPercent:   10,
		TakeProfitPercent: 20,
		AutoRebalance:     true,
		ReinvestDividends: true,
	}
}

// DefaultCustomizationFor is the default for one strategy: the position cap
// comes from the definition's max_position, kept within the range a saved
// customization may hold.
func DefaultCustomizationFor(def Definition) Customization {
	c := DefaultCustomization()
	if def.MaxPosition.IsPositive() {
		pct := int(def.MaxPosition.Mul(hundred).Round(0).IntPart())
		c.MaxPositionSize = min(max(pct, minPositionSize), maxPositionSize)
	}
	return c
}

// Bounds of MaxPositionSize, matching its validate tag.
const (
	minPositionSize = 5
	maxPositionSize = 50
)

var hundred = decimal.NewFromInt(100)

// MaxPositionFraction returns MaxPositionSize as a fraction of total value.
func (c Customization) MaxPositionFraction() decimal.Decimal {
	return decimal.NewFromInt(int64(c.MaxPositionSize)).Div(hundred)
}

// StopLossFraction returns StopLossPercent as a fraction.
func (c Customization) StopLossFraction() decimal.Decimal {
	return decimal.NewFromInt(int64(c.StopLossPercent)).Div(hundred)
}

// TakeProfitFraction returns TakeProfitPercent as a fraction.
func (c Customization) TakeProfitFraction() decimal.Decimal {
	return decimal.NewFromInt(int64(c.TakeProfitPercent)).Div(hundred)
}

// Patch is a partial customization update; nil fields keep their value.
type Patch struct {
	ConfidenceLevel   *int       `json:"confidence_level,omitempty" validate:"omitempty,min=10,max=100"`
	TradeFrequency    *Frequency `json:"trade_frequency,omitempty" validate:"omitempty,oneof=low medium high"`
	MaxPositionSize   *int       `json:"max_position_size,omitempty" validate:"omitempty,min=5,max=50"`
	StopLossPercent   *int       `json:"stop_loss_percent,omitempty" validate:"omitempty,min=5,max=30"`
	TakeProfitPercent *int       `json:"take_profit_percent,omitempty" validate:"omitempty,min=10,max=100"`
	AutoRebalance     *bool      `json:"auto_rebalance,omitempty"`
	ReinvestDividends *bool      `json:"reinvest_dividends,omitempty"`
}

// Apply returns c with the non-nil fields of p.
func (p Patch) Apply(c Customization) Customization {
	if p.ConfidenceLevel != nil {
		c.ConfidenceLevel = *p.ConfidenceLevel
	}
	if p.TradeFrequency != nil {
		c.TradeFrequency = *p.TradeFrequency
	}
	if p.MaxPositionSize != nil {
		c.MaxPositionSize = *p.MaxPositionSize
	}
	if p.StopLossPercent != nil {
		c.StopLossPercent = *p.StopLossPercent
	}
	if p.TakeProfitPercent != nil {
		c.TakeProfitPercent = *p.TakeProfitPercent
	}
	if p.AutoRebalance != nil {
		c.AutoRebalance = *p.AutoRebalance
	}
	if p.ReinvestDividends != nil {
		c.ReinvestDividends = *p.ReinvestDividends
	}
	return c
}

// Store persists customizations keyed by (account, strategy). Get reports
// found=false when nothing was saved.
type Store interface {
	Get(ctx context.Context, accountID, strategyID string) (c Customization, found bool, err error)
	Put(ctx context.Context, accountID, strategyID string, c Customization) error
	List(ctx context.Context, accountID string) (map[string]Customization, error)
}

// Customizations merges stored overrides over the defaults and guards
// writes with the catalog and range validation.
type Customizations struct {
	catalog *Catalog
	store   Store
}

func NewCustomizations(catalog *Catalog, store Store) *Customizations {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Customizations{catalog: catalog, store: store}
}

// Get returns the effective customization for the account and strategy.
func (s *Customizations) Get(ctx context.Context, accountID, strategyID string) (Customization, error) {
	def, err := s.catalog.Definition(strategyID)
	if err != nil {
		return Customization{}, err
	}
	c, found, err := s.store.Get(ctx, accountID, strategyID)
	if err != nil {
		return Customization{}, err
	}
	if !found {
		return DefaultCustomizationFor(def), nil
	}
	return c, nil
}

// All returns the effective customization of every catalog strategy.
func (s *Customizations) All(ctx context.Context, accountID string) (map[string]Customization, error) {
	stored, err := s.store.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Customization, len(s.catalog.order))
	for _, id := range s.catalog.order {
		if c, ok := stored[id]; ok {
			out[id] = c
		} else {
			out[id] = DefaultCustomizationFor(*s.catalog.defs[id])
		}
	}
	return out, nil
}

// Save validates the patch, merges it over the current value and stores
// the result.
func (s *Customizations) Save(ctx context.Context, accountID, strategyID string, p Patch) (Customization, error) {
	if err := validation.Struct(&p); err != nil {
		return Customization{}, err
	}
	current, err := s.Get(ctx, accountID, strategyID)
	if err != nil {
		return Customization{}, err
	}
	next := p.Apply(current)
	if err := validation.Struct(&next); err != nil {
		return Customization{}, err
	}
	if err := s.store.Put(ctx, accountID, strategyID, next); err != nil {
		return Customization{}, err
	}
	return next, nil
}

// MemoryStore keeps customizations in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Customization
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Customization)}
}

func (m *MemoryStore) Get(ctx context.Context, accountID, strategyID string) (Customization, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data[accountID][strategyID]
	return c, ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, accountID, strategyID string, c Customization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[accountID] == nil {
		m.data[accountID] = make(map[string]Customization)
	}
	m.data[accountID][strategyID] = c
	return nil
}

func (m *MemoryStore) List(ctx context.Context, accountID string) (map[string]Customization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Customization, len(m.data[accountID]))
	for k, v := range m.data[accountID] {
		out[k] = v
	}
	return out, nil
}
