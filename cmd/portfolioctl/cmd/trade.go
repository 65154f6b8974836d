package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/output"
	"github.com/BytebleCode/Investment-Platform/internal/engine"
	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/portfolio"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Place manual trades",
	Long:  "Buy or sell whole shares of a universe symbol outside the engine.",
}

var buyCmd = &cobra.Command{
	Use:     "buy SYMBOL QUANTITY",
	Short:   "Buy shares",
	Example: "  portfolioctl trade buy AAPL 10\n  portfolioctl trade buy MSFT 5 --price 310.25",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(ledger.Buy, args)
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell SYMBOL QUANTITY",
	Short: "Sell shares",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(ledger.Sell, args)
	},
}

var autoTradeCmd = &cobra.Command{
	Use:   "auto-trade",
	Short: "Run one decision cycle",
	Long: `Ask the engine for a decision and execute it.

Without --price the server's quote source prices every candidate. With
--price only the given symbols are priced; the others are treated as
unavailable for this cycle.`,
	Example: "  portfolioctl auto-trade\n  portfolioctl auto-trade --price AAPL=182.5 --price MSFT=300",
	RunE:    runAutoTrade,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Preview the next decision",
	Long:  "Show what the engine would do now without executing anything.",
	RunE:  runRecommend,
}

var (
	priceFlag  string
	pricesFlag []string
)

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(buyCmd)
	tradeCmd.AddCommand(sellCmd)
	rootCmd.AddCommand(autoTradeCmd)
	rootCmd.AddCommand(recommendCmd)

	tradeCmd.PersistentFlags().StringVar(&priceFlag, "price", "", "execution price (default: current quote)")
	autoTradeCmd.Flags().StringArrayVar(&pricesFlag, "price", nil, "SYMBOL=PRICE, repeatable")
}

func runTrade(t ledger.TradeType, args []string) error {
	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || qty <= 0 {
		return fmt.Errorf("quantity must be a positive whole number, got %q", args[1])
	}
	price, err := parseAmount("price", priceFlag)
	if err != nil {
		return err
	}

	trade, err := newClient().PlaceTrade(portfolio.TradeRequest{
		Type:     t,
		Symbol:   strings.ToUpper(args[0]),
		Quantity: qty,
		Price:    price,
	})
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(trade)
	}

	output.Success(fmt.Sprintf("%s %d %s @ %s", strings.ToUpper(string(t)), trade.Quantity, trade.Symbol,
		output.FormatAmount(trade.Price, currency())))
	output.Table(tradeHeaders, tradeRows([]ledger.TradeRecord{*trade}))
	return nil
}

func parsePrices(pairs []string) (map[string]decimal.Decimal, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	prices := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		sym, raw, ok := strings.Cut(pair, "=")
		if !ok || sym == "" {
			return nil, fmt.Errorf("--price %q: expected SYMBOL=PRICE", pair)
		}
		p, err := decimal.NewFromString(raw)
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("--price %q: price must be a positive number", pair)
		}
		prices[strings.ToUpper(sym)] = p
	}
	return prices, nil
}

func runAutoTrade(cmd *cobra.Command, args []string) error {
	prices, err := parsePrices(pricesFlag)
	if err != nil {
		return err
	}

	res, err := newClient().AutoTrade(prices)
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(res)
	}

	if res.Trade == nil {
		output.Info(fmt.Sprintf("No trade (%s): %s", res.Strategy, res.Reason))
		output.KeyValue([][]string{{"Investment Ratio", output.Ratio(res.RatioBefore)}})
		return nil
	}

	output.Success(fmt.Sprintf("%s: %s", res.Strategy, res.Reason))
	output.Table(tradeHeaders, tradeRows([]ledger.TradeRecord{*res.Trade}))
	output.KeyValue([][]string{
		{"Ratio Before", output.Ratio(res.RatioBefore)},
		{"Ratio After", output.Ratio(res.RatioAfter)},
	})
	return nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	d, err := newClient().GetRecommendation()
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(d)
	}

	printDecision(d)
	return nil
}

func printDecision(d *engine.Decision) {
	output.Header("Recommendation (" + d.Strategy + ")")
	fmt.Fprintln(output.Out)

	pairs := [][]string{
		{"Reason", d.Reason},
		{"Ratio Now", output.Ratio(d.RatioBefore)},
	}
	if p := d.Proposal; p != nil {
		cur := currency()
		pairs = append(pairs,
			[]string{"Action", output.FormatTradeType(string(p.Type))},
			[]string{"Symbol", p.Symbol},
			[]string{"Quantity", strconv.FormatInt(p.Quantity, 10)},
			[]string{"Price", output.FormatAmount(p.Price, cur)},
			[]string{"Total", output.FormatAmount(p.Total, cur)},
			[]string{"Fees", output.FormatAmount(p.Fees, cur)},
			[]string{"Ratio After", output.Ratio(d.RatioAfter)},
		)
	}
	output.KeyValue(pairs)
}
