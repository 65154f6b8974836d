package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/output"
	"github.com/BytebleCode/Investment-Platform/internal/engine"
	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/portfolio"
	"github.com/BytebleCode/Investment-Platform/internal/quotes"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
	"github.com/BytebleCode/Investment-Platform/pkg/events"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
)

const simAccount = "simulation"

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an offline simulation",
	Long: `Run the decision engine against simulated daily prices without a server.

Each day every symbol takes one random-walk step under the strategy's
drift and volatility, then the engine runs --cycles decide-then-execute
cycles. The same --seed replays the same market.`,
	Example: "  portfolioctl simulate --strategy growth --days 90 --seed 42",
	RunE:    runSimulate,
}

var (
	simStrategyFlag string
	simDaysFlag     int
	simCyclesFlag   int
	simSeedFlag     int64
	simInitialFlag  string
	simCatalogFlag  string
	simVerboseFlag  bool
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.StringVarP(&simStrategyFlag, "strategy", "s", "balanced", "strategy to run")
	f.IntVarP(&simDaysFlag, "days", "d", 30, "number of simulated days")
	f.IntVar(&simCyclesFlag, "cycles", 1, "decision cycles per day")
	f.Int64Var(&simSeedFlag, "seed", 1, "random seed, 0 seeds from the clock")
	f.StringVar(&simInitialFlag, "initial-value", "100000", "starting cash")
	f.StringVar(&simCatalogFlag, "catalog", "", "strategy catalog YAML (default: built in)")
	f.BoolVar(&simVerboseFlag, "verbose", false, "log engine decisions")
}

type simOptions struct {
	Catalog  *strategy.Catalog
	Strategy string
	Days     int
	Cycles   int
	Seed     int64
	Initial  decimal.Decimal
}

type simDay struct {
	Day        int                  `json:"day"`
	TotalValue decimal.Decimal      `json:"total_value"`
	Ratio      decimal.Decimal      `json:"investment_ratio"`
	Trades     []ledger.TradeRecord `json:"trades"`
}

type simReport struct {
	Days    []simDay           `json:"days"`
	Summary *portfolio.Summary `json:"summary"`
}

// simulate runs the engine day by day against a seeded price walk on an
// in-memory ledger.
func simulate(ctx context.Context, opts simOptions) (*simReport, error) {
	def, err := opts.Catalog.Definition(opts.Strategy)
	if err != nil {
		return nil, err
	}
	if opts.Cycles < 1 {
		opts.Cycles = 1
	}

	profile := quotes.ProfileOf(def)
	sim := quotes.NewSimulator(opts.Catalog, profile, opts.Seed)
	market := quotes.NewStatic(nil)

	svc := portfolio.New(portfolio.Deps{
		Ledger:    ledger.NewMemoryStore(ledger.Defaults{InitialValue: opts.Initial.Round(2), Strategy: def.ID}),
		Catalog:   opts.Catalog,
		Engine:    engine.New(engine.DefaultConfig()),
		Quotes:    market,
		Publisher: events.NewRecorder(100),
	}, portfolio.DefaultConfig())

	report := &simReport{Days: make([]simDay, 0, opts.Days)}
	for day := 1; day <= opts.Days; day++ {
		prices := sim.Advance(profile)
		for sym, p := range prices {
			market.Set(sym, p)
		}

		d := simDay{Day: day, Trades: []ledger.TradeRecord{}}
		for i := 0; i < opts.Cycles; i++ {
			res, err := svc.DecideAndExecute(ctx, simAccount, prices)
			if err != nil {
				return nil, fmt.Errorf("day %d: %w", day, err)
			}
			if res.Trade == nil {
				break
			}
			d.Trades = append(d.Trades, *res.Trade)
		}

		s, err := svc.Summary(ctx, simAccount)
		if err != nil {
			return nil, err
		}
		d.TotalValue = s.TotalValue
		d.Ratio = s.InvestmentRatio
		report.Days = append(report.Days, d)
		report.Summary = s
	}

	if report.Summary == nil {
		s, err := svc.Summary(ctx, simAccount)
		if err != nil {
			return nil, err
		}
		report.Summary = s
	}
	return report, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	level := "error"
	if simVerboseFlag {
		level = "debug"
	}
	logger.Init("portfolioctl", level, true)

	catalog, err := strategy.LoadFile(simCatalogFlag)
	if err != nil {
		return err
	}
	initial, err := decimal.NewFromString(simInitialFlag)
	if err != nil || !initial.IsPositive() {
		return fmt.Errorf("--initial-value must be a positive number, got %q", simInitialFlag)
	}
	if simDaysFlag < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	report, err := simulate(cmd.Context(), simOptions{
		Catalog:  catalog,
		Strategy: simStrategyFlag,
		Days:     simDaysFlag,
		Cycles:   simCyclesFlag,
		Seed:     simSeedFlag,
		Initial:  initial,
	})
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(report)
	}

	cur := currency()
	output.Header(fmt.Sprintf("Simulation: %s, %d days", simStrategyFlag, simDaysFlag))
	fmt.Fprintln(output.Out)

	rows := make([][]string, 0, len(report.Days))
	for _, d := range report.Days {
		activity := "-"
		if len(d.Trades) > 0 {
			activity = ""
			for i, t := range d.Trades {
				if i > 0 {
					activity += ", "
				}
				activity += fmt.Sprintf("%s %d %s", t.Type, t.Quantity, t.Symbol)
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(d.Day),
			output.FormatAmount(d.TotalValue, cur),
			output.Ratio(d.Ratio),
			activity,
		})
	}
	output.Table([]string{"Day", "Total Value", "Ratio", "Trades"}, rows)

	s := report.Summary
	fmt.Fprintln(output.Out)
	output.KeyValue([][]string{
		{"Final Value", output.Money(s.TotalValue, cur)},
		{"Total Return", output.SignedMoney(s.TotalReturn, cur) + " (" + output.Percent(s.TotalReturnPercent) + ")"},
		{"Realized", output.SignedMoney(s.RealizedGains, cur)},
		{"Estimated Tax", output.FormatAmount(s.EstimatedTax, cur)},
		{"Positions", strconv.Itoa(s.NumPositions)},
	})
	return nil
}
