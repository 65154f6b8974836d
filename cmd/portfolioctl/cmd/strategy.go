package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/output"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Strategy commands",
	Long:  "List strategies, switch the active one and tune its customization.",
}

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the strategy catalog",
	RunE:  runStrategyList,
}

var strategyUseCmd = &cobra.Command{
	Use:   "use STRATEGY",
	Short: "Switch the active strategy",
	Long:  "Switch the active strategy. Holdings are kept; the next cycle rebalances toward the new target.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategyUse,
}

var strategyCustomizeCmd = &cobra.Command{
	Use:   "customize STRATEGY",
	Short: "Show or change a strategy's customization",
	Long: `Show a strategy's customization for the account, or change it when any
flag is given. Unset flags keep their current value.`,
	Example: "  portfolioctl strategy customize growth --max-position 25 --frequency high",
	Args:    cobra.ExactArgs(1),
	RunE:    runStrategyCustomize,
}

var (
	confidenceFlag   int
	frequencyFlag    string
	maxPositionFlag  int
	stopLossFlag     int
	takeProfitFlag   int
	autoRebalanceFlg bool
	reinvestFlag     bool
)

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyListCmd)
	strategyCmd.AddCommand(strategyUseCmd)
	strategyCmd.AddCommand(strategyCustomizeCmd)

	f := strategyCustomizeCmd.Flags()
	f.IntVar(&confidenceFlag, "confidence", 0, "confidence level, 10-100")
	f.StringVar(&frequencyFlag, "frequency", "", "trade frequency: low, medium, high")
	f.IntVar(&maxPositionFlag, "max-position", 0, "max position size, percent of total value (5-50)")
	f.IntVar(&stopLossFlag, "stop-loss", 0, "stop loss percent, 5-30")
	f.IntVar(&takeProfitFlag, "take-profit", 0, "take profit percent, 10-100")
	f.BoolVar(&autoRebalanceFlg, "auto-rebalance", true, "let the scheduler trade this strategy")
	f.BoolVar(&reinvestFlag, "reinvest-dividends", true, "reinvest dividends")
}

func runStrategyList(cmd *cobra.Command, args []string) error {
	defs, err := newClient().ListStrategies()
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(defs)
	}

	output.Header("Strategies")
	fmt.Fprintln(output.Out)

	rows := make([][]string, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, []string{
			d.ID,
			d.Name,
			strconv.Itoa(d.RiskLevel),
			output.Ratio(d.TargetRatio),
			fmt.Sprintf("%ds", d.BaseFrequencySeconds),
			strings.Join(d.Symbols, " "),
		})
	}
	output.Table([]string{"ID", "Name", "Risk", "Target", "Interval", "Symbols"}, rows)
	return nil
}

func runStrategyUse(cmd *cobra.Command, args []string) error {
	acct, err := newClient().SwitchStrategy(strings.ToLower(args[0]))
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(acct)
	}

	output.Success("Active strategy: " + acct.Strategy)
	return nil
}

var customizationFlags = []string{
	"confidence", "frequency", "max-position", "stop-loss",
	"take-profit", "auto-rebalance", "reinvest-dividends",
}

func customizationChanged(cmd *cobra.Command) bool {
	for _, name := range customizationFlags {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// customizationPatch builds a patch from the flags the user set.
func customizationPatch(cmd *cobra.Command) strategy.Patch {
	var p strategy.Patch
	flags := cmd.Flags()
	if flags.Changed("confidence") {
		p.ConfidenceLevel = &confidenceFlag
	}
	if flags.Changed("frequency") {
		f := strategy.Frequency(strings.ToLower(frequencyFlag))
		p.TradeFrequency = &f
	}
	if flags.Changed("max-position") {
		p.MaxPositionSize = &maxPositionFlag
	}
	if flags.Changed("stop-loss") {
		p.StopLossPercent = &stopLossFlag
	}
	if flags.Changed("take-profit") {
		p.TakeProfitPercent = &takeProfitFlag
	}
	if flags.Changed("auto-rebalance") {
		p.AutoRebalance = &autoRebalanceFlg
	}
	if flags.Changed("reinvest-dividends") {
		p.ReinvestDividends = &reinvestFlag
	}
	return p
}

func runStrategyCustomize(cmd *cobra.Command, args []string) error {
	id := strings.ToLower(args[0])
	c := newClient()

	var (
		cust *strategy.Customization
		err  error
	)
	if !customizationChanged(cmd) {
		cust, err = c.GetCustomization(id)
	} else {
		cust, err = c.UpdateCustomization(id, customizationPatch(cmd))
	}
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(cust)
	}

	output.Header("Customization (" + id + ")")
	fmt.Fprintln(output.Out)
	output.KeyValue([][]string{
		{"Confidence", strconv.Itoa(cust.ConfidenceLevel)},
		{"Frequency", string(cust.TradeFrequency)},
		{"Max Position", strconv.Itoa(cust.MaxPositionSize) + "%"},
		{"Stop Loss", strconv.Itoa(cust.StopLossPercent) + "%"},
		{"Take Profit", strconv.Itoa(cust.TakeProfitPercent) + "%"},
		{"Auto Rebalance", strconv.FormatBool(cust.AutoRebalance)},
		{"Reinvest Dividends", strconv.FormatBool(cust.ReinvestDividends)},
	})
	return nil
}
