// Package portfolio serializes decide-then-execute per account and exposes
// the account operations used by the HTTP API, the scheduler and the CLI.
package portfolio

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BytebleCode/Investment-Platform/internal/engine"
	"github.com/BytebleCode/Investment-Platform/internal/executor"
	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/quotes"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
	"github.com/BytebleCode/Investment-Platform/pkg/events"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
	"github.com/BytebleCode/Investment-Platform/pkg/telemetry"
	"github.com/BytebleCode/Investment-Platform/pkg/validation"
)

var (
	minInitialValue = decimal.NewFromInt(1000)
	maxInitialValue = decimal.NewFromInt(100000000)
)

// Deps are the collaborators of a Service. Quotes and Publisher may be nil.
type Deps struct {
	Ledger         ledger.Ledger
	Catalog        *strategy.Catalog
	Customizations *strategy.Customizations
	Engine         *engine.Engine
	Quotes         quotes.Source
	Publisher      events.Publisher
}

// Config holds service level settings.
type Config struct {
	Service string
	TaxRate decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		Service: "portfolio-engine",
		TaxRate: decimal.RequireFromString("0.37"),
	}
}

type Service struct {
	ledger   ledger.Ledger
	catalog  *strategy.Catalog
	customs  *strategy.Customizations
	engine   *engine.Engine
	executor *executor.Executor
	quotes   quotes.Source
	pub      events.Publisher
	cfg      Config
	locks    *keyedMutex
}

func New(deps Deps, cfg Config) *Service {
	if deps.Engine == nil {
		deps.Engine = engine.New(engine.DefaultConfig())
	}
	if deps.Customizations == nil {
		deps.Customizations = strategy.NewCustomizations(deps.Catalog, nil)
	}
	if deps.Quotes == nil {
		deps.Quotes = quotes.NewStatic(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewRecorder(1000)
	}
	return &Service{
		ledger:   deps.Ledger,
		catalog:  deps.Catalog,
		customs:  deps.Customizations,
		engine:   deps.Engine,
		executor: executor.New(deps.Ledger, deps.Catalog),
		quotes:   deps.Quotes,
		pub:      deps.Publisher,
		cfg:      cfg,
		locks:    newKeyedMutex(),
	}
}

func (s *Service) Catalog() *strategy.Catalog {
	return s.catalog
}

// Result is the outcome of one decide-then-execute cycle. Trade is nil for
// a no-op.
type Result struct {
	Trade       *ledger.TradeRecord `json:"trade"`
	Reason      string              `json:"reason"`
	Strategy    string              `json:"strategy"`
	RatioBefore decimal.Decimal     `json:"ratio_before"`
	RatioAfter  decimal.Decimal     `json:"ratio_after"`
}

// DecideAndExecute runs the engine on a locked snapshot and commits its
// proposal, if any. Symbols missing from prices are treated as unpriced.
func (s *Service) DecideAndExecute(ctx context.Context, accountID string, prices map[string]decimal.Decimal) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "portfolio.DecideAndExecute")
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String("account_id", accountID))

	unlock := s.locks.Lock(accountID)
	defer unlock()

	in, err := s.decisionInput(ctx, accountID, prices)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	d := s.engine.Decide(in)
	metrics.RecordDecision(d.Strategy, outcome(d))

	res := &Result{
		Reason:      d.Reason,
		Strategy:    d.Strategy,
		RatioBefore: d.RatioBefore,
		RatioAfter:  d.RatioAfter,
	}
	if d.Proposal == nil {
		log := logger.ForAccount(ctx, accountID)
		log.Debug().Str("strategy", d.Strategy).Str("reason", d.Reason).Msg("no trade")
		return res, nil
	}

	out, err := s.executor.Execute(ctx, accountID, *d.Proposal, executor.Options{
		DecidedAtVersion: d.SnapshotVersion,
		Source:           ledger.SourceAuto,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	s.tradeExecuted(ctx, out, d.Reason)

	res.Trade = &out.Trade
	return res, nil
}

func (s *Service) decisionInput(ctx context.Context, accountID string, prices map[string]decimal.Decimal) (engine.Input, error) {
	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return engine.Input{}, err
	}
	def, err := s.catalog.Definition(snap.Account.Strategy)
	if err != nil {
		return engine.Input{}, err
	}
	cust, err := s.customs.Get(ctx, accountID, def.ID)
	if err != nil {
		return engine.Input{}, err
	}
	return engine.Input{Snapshot: snap, Strategy: def, Customization: cust, Prices: prices}, nil
}

func outcome(d engine.Decision) string {
	if d.Proposal == nil {
		return "noop"
	}
	return string(d.Proposal.Type)
}

// AutoTrade fetches prices for the strategy pool and the held symbols,
// then runs DecideAndExecute. Price I/O happens before the account lock.
func (s *Service) AutoTrade(ctx context.Context, accountID string) (*Result, error) {
	prices, err := s.prices(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.DecideAndExecute(ctx, accountID, prices)
}

// prices quotes every symbol the engine may look at for the account.
func (s *Service) prices(ctx context.Context, accountID string) (map[string]decimal.Decimal, error) {
	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	symbols, err := s.catalog.EligibleSymbols(snap.Account.Strategy)
	if err != nil {
		return nil, err
	}
	for sym := range snap.Holdings {
		symbols = append(symbols, sym)
	}
	return quotes.FetchAll(ctx, s.quotes, symbols)
}

// TradeRequest is a manual trade. A nil Price executes at the current quote.
type TradeRequest struct {
	Type     ledger.TradeType `json:"type" validate:"required,oneof=buy sell"`
	Symbol   string           `json:"symbol" validate:"required,symbol"`
	Quantity int64            `json:"quantity" validate:"gt=0"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

func (s *Service) validateTrade(req TradeRequest) error {
	if err := validation.Struct(&req); err != nil {
		return err
	}
	if _, ok := s.catalog.Stock(req.Symbol); !ok {
		return apperrors.ErrValidation.WithDetails([]string{fmt.Sprintf("symbol: unknown symbol %q", req.Symbol)})
	}
	if req.Price != nil && !req.Price.IsPositive() {
		return apperrors.ErrValidation.WithDetails([]string{"price: must be greater than 0"})
	}
	return nil
}

// ApplyManualTrade validates and executes a user trade. Buys are capped by
// the customization's max position size of the current strategy.
func (s *Service) ApplyManualTrade(ctx context.Context, accountID string, req TradeRequest) (*ledger.TradeRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "portfolio.ApplyManualTrade")
	defer span.End()

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := s.validateTrade(req); err != nil {
		return nil, err
	}

	pre, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(pre.Holdings))
	for sym := range pre.Holdings {
		symbols = append(symbols, sym)
	}
	prices, err := quotes.FetchAll(ctx, s.quotes, symbols)
	if err != nil {
		return nil, err
	}
	price := decimal.Zero
	if req.Price != nil {
		price = *req.Price
	} else {
		price, err = s.quotes.Quote(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
	}
	prices[req.Symbol] = price

	unlock := s.locks.Lock(accountID)
	defer unlock()

	in, err := s.decisionInput(ctx, accountID, prices)
	if err != nil {
		return nil, err
	}
	p := s.engine.NewProposal(req.Type, req.Symbol, req.Quantity, price, "manual trade")
	if req.Type == ledger.Buy {
		total := cashPlusInvested(in.Snapshot, prices)
		p.MaxPositionValue = in.Customization.MaxPositionFraction().Mul(total).Round(2)
	}

	out, err := s.executor.Execute(ctx, accountID, p, executor.Options{
		DecidedAtVersion: in.Snapshot.Account.Version,
		Source:           ledger.SourceManual,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	s.tradeExecuted(ctx, out, p.Reason)
	return &out.Trade, nil
}

// cashPlusInvested values unpriced holdings at their average cost.
func cashPlusInvested(snap *ledger.Snapshot, prices map[string]decimal.Decimal) decimal.Decimal {
	total := snap.Account.Cash
	for _, h := range snap.Holdings {
		price, ok := prices[h.Symbol]
		if !ok {
			price = h.AvgCost
		}
		total = total.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total
}

// ResetAccount restores the initial cash and clears holdings and history.
func (s *Service) ResetAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	acct, err := s.ledger.Reset(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicAccountReset, events.EventTypeAccountReset, accountID, events.AccountResetPayload{
		AccountID:    accountID,
		InitialValue: acct.InitialValue.StringFixed(2),
		Strategy:     acct.Strategy,
		ResetAt:      acct.UpdatedAt,
	})
	log := logger.ForAccount(ctx, accountID)
	log.Info().Msg("account reset")
	return acct, nil
}

func (s *Service) Account(ctx context.Context, accountID string) (*ledger.Account, error) {
	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &snap.Account, nil
}

// Holdings returns the positions sorted by symbol.
func (s *Service) Holdings(ctx context.Context, accountID string) ([]ledger.Holding, error) {
	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return snap.Sorted(), nil
}

// Trades returns one page of history, newest first, and the total count.
func (s *Service) Trades(ctx context.Context, accountID string, f ledger.TradeFilter) ([]ledger.TradeRecord, int, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, apperrors.ErrValidation.WithDetails([]string{fmt.Sprintf("type: must be buy or sell, got %q", f.Type)})
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, 0, apperrors.ErrValidation.WithDetails([]string{"limit and offset must not be negative"})
	}
	return s.ledger.Trades(ctx, accountID, f)
}

// SwitchStrategy changes the active strategy. Holdings are kept; the next
// decision rebalances toward the new target.
func (s *Service) SwitchStrategy(ctx context.Context, accountID, strategyID string) (*ledger.Account, error) {
	if !s.catalog.Has(strategyID) {
		return nil, apperrors.ErrUnknownStrategy.WithDetails(fmt.Sprintf("unknown strategy %q", strategyID))
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	from := snap.Account.Strategy
	if from == strategyID {
		return &snap.Account, nil
	}
	snap, err = s.ledger.Apply(ctx, accountID, ledger.Mutation{
		ExpectedVersion: snap.Account.Version,
		Strategy:        strategyID,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicStrategySwitched, events.EventTypeStrategySwitched, accountID, events.StrategySwitchedPayload{
		AccountID: accountID,
		From:      from,
		To:        strategyID,
	})
	log := logger.ForAccount(ctx, accountID)
	log.Info().Str("from", from).Str("to", strategyID).Msg("strategy switched")
	return &snap.Account, nil
}

// SettingsRequest updates the initial value and/or the cash balance.
type SettingsRequest struct {
	InitialValue *decimal.Decimal `json:"initial_value,omitempty"`
	Cash         *decimal.Decimal `json:"current_cash,omitempty"`
}

func (r SettingsRequest) validate() error {
	var details []string
	if r.InitialValue == nil && r.Cash == nil {
		details = append(details, "at least one of initial_value or current_cash is required")
	}
	if v := r.InitialValue; v != nil && (v.LessThan(minInitialValue) || v.GreaterThan(maxInitialValue)) {
		details = append(details, fmt.Sprintf("initial_value: must be between %s and %s", minInitialValue, maxInitialValue))
	}
	if v := r.Cash; v != nil && v.IsNegative() {
		details = append(details, "current_cash: cash balance cannot be negative")
	}
	if len(details) > 0 {
		return apperrors.ErrValidation.WithDetails(details)
	}
	return nil
}

func (s *Service) UpdateSettings(ctx context.Context, accountID string, req SettingsRequest) (*ledger.Account, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	settings := ledger.Settings{}
	if req.InitialValue != nil {
		v := req.InitialValue.Round(2)
		settings.InitialValue = &v
	}
	if req.Cash != nil {
		v := req.Cash.Round(2)
		settings.Cash = &v
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()
	return s.ledger.UpdateSettings(ctx, accountID, settings)
}

// Strategies returns the catalog in display order.
func (s *Service) Strategies() []strategy.Definition {
	return s.catalog.All()
}

func (s *Service) Customization(ctx context.Context, accountID, strategyID string) (strategy.Customization, error) {
	return s.customs.Get(ctx, accountID, strategyID)
}

func (s *Service) Customizations(ctx context.Context, accountID string) (map[string]strategy.Customization, error) {
	return s.customs.All(ctx, accountID)
}

// SaveCustomization merges p over the current customization. Running
// decisions keep the value they read; the next one sees the new one.
func (s *Service) SaveCustomization(ctx context.Context, accountID, strategyID string, p strategy.Patch) (strategy.Customization, error) {
	c, err := s.customs.Save(ctx, accountID, strategyID, p)
	if err != nil {
		return strategy.Customization{}, err
	}
	s.publish(ctx, events.TopicCustomizationUpdated, events.EventTypeCustomizationUpdated, accountID, events.CustomizationUpdatedPayload{
		AccountID:         accountID,
		Strategy:          strategyID,
		ConfidenceLevel:   c.ConfidenceLevel,
		TradingFrequency:  string(c.TradeFrequency),
		MaxPositionSize:   c.MaxPositionSize,
		StopLossPercent:   c.StopLossPercent,
		TakeProfitPercent: c.TakeProfitPercent,
		AutoRebalance:     c.AutoRebalance,
		ReinvestDividends: c.ReinvestDividends,
	})
	return c, nil
}

// Recommend runs the engine without executing. Nothing is locked or written.
func (s *Service) Recommend(ctx context.Context, accountID string) (*engine.Decision, error) {
	prices, err := s.prices(ctx, accountID)
	if err != nil {
		return nil, err
	}
	in, err := s.decisionInput(ctx, accountID, prices)
	if err != nil {
		return nil, err
	}
	d := s.engine.Decide(in)
	return &d, nil
}
