package cmd

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/output"
	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/portfolio"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account commands",
	Long:  "Show, reset and configure the simulated account.",
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the account state",
	RunE:  runAccountShow,
}

var accountResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the account",
	Long:  "Delete every holding and trade and restore the cash to the initial value.",
	RunE:  runAccountReset,
}

var accountSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Change the initial value or the cash balance",
	RunE:  runAccountSettings,
}

var holdingsCmd = &cobra.Command{
	Use:   "holdings",
	Short: "List open positions",
	RunE:  runHoldings,
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "View trade history",
	Long:  "List executed trades, newest first.",
	RunE:  runTrades,
}

var (
	resetYesFlag     bool
	initialValueFlag string
	cashFlag         string
	tradeTypeFlag    string
	pageFlag         int
	limitFlag        int
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountResetCmd)
	accountCmd.AddCommand(accountSettingsCmd)
	rootCmd.AddCommand(holdingsCmd)
	rootCmd.AddCommand(tradesCmd)

	accountResetCmd.Flags().BoolVarP(&resetYesFlag, "yes", "y", false, "skip the confirmation")
	accountSettingsCmd.Flags().StringVar(&initialValueFlag, "initial-value", "", "new initial value")
	accountSettingsCmd.Flags().StringVar(&cashFlag, "cash", "", "new cash balance")

	tradesCmd.Flags().StringVarP(&tradeTypeFlag, "type", "t", "", "filter by type: buy, sell")
	tradesCmd.Flags().IntVar(&pageFlag, "page", 1, "page number")
	tradesCmd.Flags().IntVar(&limitFlag, "limit", 20, "items per page")
}

func printAccount(acct *ledger.Account) {
	cur := currency()
	output.KeyValue([][]string{
		{"Account", acct.ID},
		{"Strategy", acct.Strategy},
		{"Cash", output.Money(acct.Cash, cur)},
		{"Initial Value", output.FormatAmount(acct.InitialValue, cur)},
		{"Realized Gains", output.SignedMoney(acct.RealizedGains, cur)},
		{"Version", strconv.FormatInt(acct.Version, 10)},
		{"Updated", acct.UpdatedAt.Format("2006-01-02 15:04:05")},
	})
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	acct, err := newClient().GetAccount()
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(acct)
	}

	output.Header("Account")
	fmt.Fprintln(output.Out)
	printAccount(acct)
	return nil
}

func runAccountReset(cmd *cobra.Command, args []string) error {
	c := newClient()
	if !resetYesFlag {
		fmt.Fprintf(output.Out, "Reset account %s? All holdings and trades are deleted. [y/N] ", c.Account())
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			output.Info("Aborted")
			return nil
		}
	}

	acct, err := c.Reset()
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(acct)
	}

	output.Success("Account reset")
	printAccount(acct)
	return nil
}

func parseAmount(name, v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %q is not a number", name, v)
	}
	return &d, nil
}

func runAccountSettings(cmd *cobra.Command, args []string) error {
	initial, err := parseAmount("initial-value", initialValueFlag)
	if err != nil {
		return err
	}
	cash, err := parseAmount("cash", cashFlag)
	if err != nil {
		return err
	}
	if initial == nil && cash == nil {
		return fmt.Errorf("nothing to change: pass --initial-value and/or --cash")
	}

	acct, err := newClient().UpdateSettings(portfolio.SettingsRequest{InitialValue: initial, Cash: cash})
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(acct)
	}

	output.Success("Settings updated")
	printAccount(acct)
	return nil
}

func runHoldings(cmd *cobra.Command, args []string) error {
	holdings, err := newClient().GetHoldings()
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(holdings)
	}

	output.Header("Holdings")
	fmt.Fprintln(output.Out)

	if len(holdings) == 0 {
		output.Info("No open positions")
		return nil
	}

	cur := currency()
	rows := make([][]string, 0, len(holdings))
	for _, h := range holdings {
		rows = append(rows, []string{
			h.Symbol,
			h.Name,
			h.Sector,
			strconv.FormatInt(h.Quantity, 10),
			output.FormatAmount(h.AvgCost, cur),
			output.FormatAmount(h.CostBasis(), cur),
		})
	}
	output.Table([]string{"Symbol", "Name", "Sector", "Qty", "Avg Cost", "Cost Basis"}, rows)
	return nil
}

func runTrades(cmd *cobra.Command, args []string) error {
	page, err := newClient().GetTrades(tradeTypeFlag, pageFlag, limitFlag)
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(page)
	}

	output.Header("Trades")
	fmt.Fprintln(output.Out)

	if len(page.Items) == 0 {
		output.Info("No trades found")
		return nil
	}

	output.Table(tradeHeaders, tradeRows(page.Items))

	fmt.Fprintln(output.Out)
	output.Info(fmt.Sprintf("Page %d of %d (%d total)",
		page.Pagination.Page, page.Pagination.TotalPages, page.Pagination.Total))
	return nil
}

var tradeHeaders = []string{"Time", "Type", "Symbol", "Qty", "Price", "Total", "Fees", "Gain", "Source"}

func tradeRows(trades []ledger.TradeRecord) [][]string {
	cur := currency()
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		gain := "-"
		if t.Type == ledger.Sell {
			gain = output.SignedMoney(t.RealizedGain, cur)
		}
		rows = append(rows, []string{
			t.Timestamp.Format("2006-01-02 15:04:05"),
			output.FormatTradeType(string(t.Type)),
			t.Symbol,
			strconv.FormatInt(t.Quantity, 10),
			output.FormatAmount(t.Price, cur),
			output.FormatAmount(t.Total, cur),
			output.FormatAmount(t.Fees, cur),
			gain,
			string(t.Source),
		})
	}
	return rows
}
