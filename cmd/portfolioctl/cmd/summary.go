package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/output"
	"github.com/BytebleCode/Investment-Platform/internal/portfolio"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the valued portfolio",
	Long:  "Value the account at current quotes: returns, investment ratio, positions, sectors and estimated tax.",
	RunE:  runSummary,
}

var markdownFlag bool

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().BoolVar(&markdownFlag, "markdown", false, "render as a markdown report")
}

func runSummary(cmd *cobra.Command, args []string) error {
	s, err := newClient().GetSummary()
	if err != nil {
		return explain(err)
	}

	if getFormat() == "json" {
		return output.JSON(s)
	}
	if markdownFlag {
		output.Markdown(summaryMarkdown(s, currency()))
		return nil
	}

	cur := currency()
	output.Header("Portfolio Summary (" + s.AccountID + ")")
	fmt.Fprintln(output.Out)
	output.KeyValue([][]string{
		{"Strategy", s.Strategy},
		{"Total Value", output.Money(s.TotalValue, cur)},
		{"Cash", output.FormatAmount(s.Cash, cur)},
		{"Invested", output.FormatAmount(s.InvestedValue, cur)},
		{"Total Return", output.SignedMoney(s.TotalReturn, cur) + " (" + output.Percent(s.TotalReturnPercent) + ")"},
		{"Unrealized", output.SignedMoney(s.UnrealizedGains, cur)},
		{"Realized", output.SignedMoney(s.RealizedGains, cur)},
		{"Estimated Tax", output.FormatAmount(s.EstimatedTax, cur)},
		{"Investment Ratio", output.Ratio(s.InvestmentRatio) + " / target " + output.Ratio(s.TargetRatio)},
	})

	if len(s.Positions) == 0 {
		fmt.Fprintln(output.Out)
		output.Info("No open positions")
		return nil
	}

	fmt.Fprintln(output.Out)
	output.Table([]string{"Symbol", "Qty", "Price", "Value", "Gain", "Gain %", "Weight"}, positionRows(s, cur, false))
	for _, p := range s.Positions {
		if !p.Priced {
			output.Warning("Some positions have no quote and are valued at cost")
			break
		}
	}
	return nil
}

func positionRows(s *portfolio.Summary, cur string, plain bool) [][]string {
	gain := output.SignedMoney
	if plain {
		gain = output.FormatAmount
	}
	rows := make([][]string, 0, len(s.Positions))
	for _, p := range s.Positions {
		price := output.FormatAmount(p.Price, cur)
		if !p.Priced {
			price += "*"
		}
		rows = append(rows, []string{
			p.Symbol,
			strconv.FormatInt(p.Quantity, 10),
			price,
			output.FormatAmount(p.MarketValue, cur),
			gain(p.UnrealizedGain, cur),
			output.Percent(p.UnrealizedPct),
			output.Percent(p.Weight),
		})
	}
	return rows
}

// summaryMarkdown renders s as a markdown report.
func summaryMarkdown(s *portfolio.Summary, cur string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Portfolio %s\n\n", s.AccountID)
	fmt.Fprintf(&b, "Strategy **%s**, investment ratio **%s** (target %s), as of %s.\n\n",
		s.Strategy, output.Ratio(s.InvestmentRatio), output.Ratio(s.TargetRatio),
		s.Timestamp.Format("2006-01-02 15:04"))

	b.WriteString("## Value\n\n| | |\n|---|---:|\n")
	for _, row := range [][2]string{
		{"Total value", output.FormatAmount(s.TotalValue, cur)},
		{"Cash", output.FormatAmount(s.Cash, cur)},
		{"Invested", output.FormatAmount(s.InvestedValue, cur)},
		{"Total return", output.FormatAmount(s.TotalReturn, cur) + " (" + output.Percent(s.TotalReturnPercent) + ")"},
		{"Unrealized gains", output.FormatAmount(s.UnrealizedGains, cur)},
		{"Realized gains", output.FormatAmount(s.RealizedGains, cur)},
		{"Estimated tax", output.FormatAmount(s.EstimatedTax, cur)},
	} {
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
	}

	if len(s.Positions) > 0 {
		b.WriteString("\n## Positions\n\n| Symbol | Qty | Price | Value | Gain | Gain % | Weight |\n|---|---:|---:|---:|---:|---:|---:|\n")
		for _, r := range positionRows(s, cur, true) {
			fmt.Fprintf(&b, "| %s |\n", strings.Join(r, " | "))
		}
	}

	if len(s.Sectors) > 0 {
		sectors := make([]string, 0, len(s.Sectors))
		for k := range s.Sectors {
			sectors = append(sectors, k)
		}
		sort.Strings(sectors)
		b.WriteString("\n## Sectors\n\n")
		for _, k := range sectors {
			fmt.Fprintf(&b, "- %s: %s\n", k, output.FormatAmount(s.Sectors[k], cur))
		}
	}
	return b.String()
}
