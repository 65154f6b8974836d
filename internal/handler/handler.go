package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/portfolio"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
	"github.com/BytebleCode/Investment-Platform/pkg/middleware"
	"github.com/BytebleCode/Investment-Platform/pkg/response"
	"github.com/BytebleCode/Investment-Platform/pkg/validation"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	// keeps (page-1)*perPage well inside int range
	maxPage = 1_000_000
)

// Handler handles portfolio HTTP requests
type Handler struct {
	svc *portfolio.Service
}

// NewHandler creates a new portfolio handler
func NewHandler(svc *portfolio.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on router, normally the /api/v1 group.
func (h *Handler) Register(router fiber.Router) {
	router.Get("/strategies", h.ListStrategies)
	router.Get("/universe", h.ListUniverse)

	acct := router.Group("/accounts/:id", middleware.AccountID())
	acct.Get("/", h.GetAccount)
	acct.Get("/holdings", h.GetHoldings)
	acct.Get("/trades", h.ListTrades)
	acct.Post("/trades", h.CreateTrade)
	acct.Post("/auto-trade", h.AutoTrade)
	acct.Post("/reset", h.Reset)
	acct.Get("/summary", h.GetSummary)
	acct.Get("/recommendation", h.GetRecommendation)
	acct.Put("/strategy", h.SwitchStrategy)
	acct.Put("/settings", h.UpdateSettings)
	acct.Get("/customizations", h.ListCustomizations)
	acct.Get("/strategies/:strategy/customization", h.GetCustomization)
	acct.Put("/strategies/:strategy/customization", h.UpdateCustomization)
}

// ListStrategies returns the strategy catalog
// GET /strategies
func (h *Handler) ListStrategies(c *fiber.Ctx) error {
	return response.Success(c, h.svc.Strategies())
}

// ListUniverse returns every tradable symbol
// GET /universe
func (h *Handler) ListUniverse(c *fiber.Ctx) error {
	catalog := h.svc.Catalog()
	stocks := make([]strategy.Stock, 0)
	for _, sym := range catalog.Symbols() {
		s, _ := catalog.Stock(sym)
		stocks = append(stocks, s)
	}
	return response.Success(c, stocks)
}

// GetAccount returns the account state
// GET /accounts/:id
func (h *Handler) GetAccount(c *fiber.Ctx) error {
	acct, err := h.svc.Account(c.UserContext(), middleware.GetAccountID(c))
	if err != nil {
		return err
	}
	return response.Success(c, acct)
}

// GetHoldings returns the open positions
// GET /accounts/:id/holdings
func (h *Handler) GetHoldings(c *fiber.Ctx) error {
	holdings, err := h.svc.Holdings(c.UserContext(), middleware.GetAccountID(c))
	if err != nil {
		return err
	}
	return response.Success(c, holdings)
}

// ListTrades returns the trade history, newest first
// GET /accounts/:id/trades?type=buy&symbol=AAPL&page=1&per_page=20
func (h *Handler) ListTrades(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", defaultPerPage)
	page = min(max(page, 1), maxPage)
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	trades, total, err := h.svc.Trades(c.UserContext(), middleware.GetAccountID(c), ledger.TradeFilter{
		Type:   ledger.TradeType(strings.ToLower(c.Query("type"))),
		Symbol: strings.ToUpper(c.Query("symbol")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		return err
	}
	return response.Paginated(c, trades, page, perPage, int64(total))
}

// CreateTrade executes a manual trade
// POST /accounts/:id/trades
func (h *Handler) CreateTrade(c *fiber.Ctx) error {
	var req portfolio.TradeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.WithDetails("request body is not valid JSON").WithError(err)
	}
	req.Type = ledger.TradeType(strings.ToLower(string(req.Type)))

	trade, err := h.svc.ApplyManualTrade(c.UserContext(), middleware.GetAccountID(c), req)
	if err != nil {
		return err
	}
	return response.Created(c, trade)
}

// AutoTradeRequest optionally supplies the prices to decide on. Without
// prices the configured quote source is used.
type AutoTradeRequest struct {
	Prices map[string]decimal.Decimal `json:"prices"`
}

// AutoTrade runs one decide-then-execute cycle
// POST /accounts/:id/auto-trade
func (h *Handler) AutoTrade(c *fiber.Ctx) error {
	var req AutoTradeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.ErrBadRequest.WithDetails("request body is not valid JSON").WithError(err)
		}
	}

	ctx := c.UserContext()
	accountID := middleware.GetAccountID(c)

	var (
		res *portfolio.Result
		err error
	)
	if len(req.Prices) > 0 {
		prices := make(map[string]decimal.Decimal, len(req.Prices))
		for sym, p := range req.Prices {
			prices[strings.ToUpper(sym)] = p
		}
		res, err = h.svc.DecideAndExecute(ctx, accountID, prices)
	} else {
		res, err = h.svc.AutoTrade(ctx, accountID)
	}
	if err != nil {
		return err
	}
	if res.Trade != nil {
		return response.Created(c, res)
	}
	return response.Success(c, res)
}

// Reset restores the account to its initial cash
// POST /accounts/:id/reset
func (h *Handler) Reset(c *fiber.Ctx) error {
	acct, err := h.svc.ResetAccount(c.UserContext(), middleware.GetAccountID(c))
	if err != nil {
		return err
	}
	return response.Success(c, acct)
}

// GetSummary returns the valued portfolio
// GET /accounts/:id/summary
func (h *Handler) GetSummary(c *fiber.Ctx) error {
	summary, err := h.svc.Summary(c.UserContext(), middleware.GetAccountID(c))
	if err != nil {
		return err
	}
	return response.Success(c, summary)
}

// GetRecommendation previews the next decision without executing it
// GET /accounts/:id/recommendation
func (h *Handler) GetRecommendation(c *fiber.Ctx) error {
	d, err := h.svc.Recommend(c.UserContext(), middleware.GetAccountID(c))
	if err != nil {
		return err
	}
	return response.Success(c, d)
}

type switchStrategyRequest struct {
	Strategy string `json:"strategy" validate:"required"`
}

// SwitchStrategy changes the active strategy
// PUT /accounts/:id/strategy
func (h *Handler) SwitchStrategy(c *fiber.Ctx) error {
	var req switchStrategyRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return err
	}
	acct, err := h.svc.SwitchStrategy(c.UserContext(), middleware.GetAccountID(c), req.Strategy)
	if err != nil {
		return err
	}
	return response.Success(c, acct)
}

// UpdateSettings changes the initial value and/or the cash balance
// PUT /accounts/:id/settings
func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var req portfolio.SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.WithDetails("request body is not valid JSON").WithError(err)
	}
	acct, err := h.svc.UpdateSettings(c.UserContext(), middleware.GetAccountID(c), req)
	if err != nil {
		return err
	}
	return response.Success(c, acct)
}

// ListCustomizations returns the effective customization of every strategy
// GET /accounts/:id/customizations
func (h *Handler) ListCustomizations(c *fiber.Ctx) error {
	all, err := h.svc.Customizations(c.UserContext(), middleware.GetAccountID(c))
	if err != nil {
		return err
	}
	return response.Success(c, all)
}

// GetCustomization returns one strategy's customization
// GET /accounts/:id/strategies/:strategy/customization
func (h *Handler) GetCustomization(c *fiber.Ctx) error {
	cust, err := h.svc.Customization(c.UserContext(), middleware.GetAccountID(c), c.Params("strategy"))
	if err != nil {
		return err
	}
	return response.Success(c, cust)
}

// UpdateCustomization merges the given fields over the current value
// PUT /accounts/:id/strategies/:strategy/customization
func (h *Handler) UpdateCustomization(c *fiber.Ctx) error {
	var patch strategy.Patch
	if err := c.BodyParser(&patch); err != nil {
		return apperrors.ErrBadRequest.WithDetails("request body is not valid JSON").WithError(err)
	}
	cust, err := h.svc.SaveCustomization(c.UserContext(), middleware.GetAccountID(c), c.Params("strategy"), patch)
	if err != nil {
		return err
	}
	return response.Success(c, cust)
}
