// Package strategy holds the static strategy catalog, the tradable symbol
// universe and per-account customization overrides.
package strategy

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Definition is one catalog entry. Strategies differ only by these
// parameters; the decision engine runs the same algorithm for all of them.
type Definition struct {
	ID                   string          `yaml:"id" json:"id"`
	Name                 string          `yaml:"name" json:"name"`
	Description          string          `yaml:"description" json:"description"`
	RiskLevel            int             `yaml:"risk_level" json:"risk_level"`
	TargetRatio          decimal.Decimal `yaml:"target_ratio" json:"target_ratio"`
	MaxPosition          decimal.Decimal `yaml:"max_position" json:"max_position"`
	Volatility           float64         `yaml:"volatility" json:"volatility"`
	DailyDrift           float64         `yaml:"daily_drift" json:"daily_drift"`
	BaseFrequencySeconds int             `yaml:"base_frequency_seconds" json:"base_frequency_seconds"`
	Color                string          `yaml:"color" json:"color"`
	Symbols              []string        `yaml:"symbols" json:"symbols"`
}

// Stock describes a symbol of the trading universe.
type Stock struct {
	Symbol    string          `yaml:"symbol" json:"symbol"`
	Name      string          `yaml:"name" json:"name"`
	Sector    string          `yaml:"sector" json:"sector"`
	BasePrice decimal.Decimal `yaml:"base_price" json:"base_price"`
	Beta      float64         `yaml:"beta" json:"beta"`
}

type catalogFile struct {
	Strategies []Definition `yaml:"strategies"`
	Universe   []Stock      `yaml:"universe"`
}

// Catalog is the read-only set of strategy definitions and the symbol
// universe. Safe for concurrent use.
type Catalog struct {
	order    []string
	defs     map[string]*Definition
	universe map[string]Stock
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded strategy catalog is invalid: %v", err))
	}
	return c
}

// LoadFile reads a catalog from a YAML file. An empty path returns Default.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{
		defs:     make(map[string]*Definition, len(file.Strategies)),
		universe: make(map[string]Stock, len(file.Universe)),
	}
	for _, s := range file.Universe {
		if s.Symbol == "" {
			return nil, fmt.Errorf("universe entry without symbol")
		}
		if !s.BasePrice.IsPositive() {
			return nil, fmt.Errorf("symbol %s: base price must be positive", s.Symbol)
		}
		c.universe[s.Symbol] = s
	}

	one := decimal.NewFromInt(1)
	for i := range file.Strategies {
		d := file.Strategies[i]
		if d.ID == "" {
			return nil, fmt.Errorf("strategy %d has no id", i)
		}
		if _, dup := c.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate strategy %s", d.ID)
		}
		if !d.TargetRatio.IsPositive() || !d.TargetRatio.LessThan(one) {
			return nil, fmt.Errorf("strategy %s: target ratio must be in (0, 1)", d.ID)
		}
		if !d.MaxPosition.IsPositive() || d.MaxPosition.GreaterThan(one) {
			return nil, fmt.Errorf("strategy %s: max position must be in (0, 1]", d.ID)
		}
		if d.RiskLevel < 1 || d.RiskLevel > 5 {
			return nil, fmt.Errorf("strategy %s: risk level must be 1-5", d.ID)
		}
		if d.BaseFrequencySeconds <= 0 {
			return nil, fmt.Errorf("strategy %s: base frequency must be positive", d.ID)
		}
		if len(d.Symbols) == 0 {
			return nil, fmt.Errorf("strategy %s: empty symbol pool", d.ID)
		}
		for _, sym := range d.Symbols {
			if _, ok := c.universe[sym]; !ok {
				return nil, fmt.Errorf("strategy %s: symbol %s is not in the universe", d.ID, sym)
			}
		}
		c.defs[d.ID] = &d
		c.order = append(c.order, d.ID)
	}
	if len(c.order) == 0 {
		return nil, fmt.Errorf("catalog defines no strategies")
	}

	return c, nil
}

// Definition returns a copy of the strategy definition.
func (c *Catalog) Definition(id string) (Definition, error) {
	d, ok := c.defs[id]
	if !ok {
		return Definition{}, apperrors.ErrUnknownStrategy.WithDetails(fmt.Sprintf("unknown strategy %q", id))
	}
	out := *d
	out.Symbols = append([]string(nil), d.Symbols...)
	return out, nil
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.defs[id]
	return ok
}

func (c *Catalog) TargetRatio(id string) (decimal.Decimal, error) {
	d, ok := c.defs[id]
	if !ok {
		return decimal.Zero, apperrors.ErrUnknownStrategy.WithDetails(fmt.Sprintf("unknown strategy %q", id))
	}
	return d.TargetRatio, nil
}

func (c *Catalog) EligibleSymbols(id string) ([]string, error) {
	d, ok := c.defs[id]
	if !ok {
		return nil, apperrors.ErrUnknownStrategy.WithDetails(fmt.Sprintf("unknown strategy %q", id))
	}
	return append([]string(nil), d.Symbols...), nil
}

// All returns every definition in catalog order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, id := range c.order {
		d, _ := c.Definition(id)
		out = append(out, d)
	}
	return out
}

// IDs returns the strategy ids in catalog order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Stock looks a symbol up in the universe.
func (c *Catalog) Stock(symbol string) (Stock, bool) {
	s, ok := c.universe[symbol]
	return s, ok
}

// Symbols returns the universe symbols in lexical order.
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, len(c.universe))
	for sym := range c.universe {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Frequency scales a strategy's base trade interval.
type Frequency string

const (
	FrequencyLow    Frequency = "low"
	FrequencyMedium Frequency = "medium"
	FrequencyHigh   Frequency = "high"
)

var frequencyMultipliers = map[Frequency]float64{
	FrequencyLow:    2.0,
	FrequencyMedium: 1.0,
	FrequencyHigh:   0.5,
}

func (f Frequency) Valid() bool {
	_, ok := frequencyMultipliers[f]
	return ok
}

// TradeInterval is the auto-trade period for a strategy at the given
// frequency: base seconds x {low 2.0, medium 1.0, high 0.5}.
func (c *Catalog) TradeInterval(id string, f Frequency) (time.Duration, error) {
	d, ok := c.defs[id]
	if !ok {
		return 0, apperrors.ErrUnknownStrategy.WithDetails(fmt.Sprintf("unknown strategy %q", id))
	}
	mult, ok := frequencyMultipliers[f]
	if !ok {
		return 0, apperrors.ErrValidation.WithDetails(fmt.Sprintf("unknown trade frequency %q", f))
	}
	return time.Duration(float64(d.BaseFrequencySeconds) * mult * float64(time.Second)), nil
}
