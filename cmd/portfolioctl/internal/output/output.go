package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Palette, as 256-color codes.
var (
	accent = lipgloss.Color("39")
	green  = lipgloss.Color("42")
	red    = lipgloss.Color("196")
	amber  = lipgloss.Color("214")
	grey   = lipgloss.Color("245")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	gainStyle   = lipgloss.NewStyle().Foreground(green)
	lossStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle   = lipgloss.NewStyle().Foreground(amber)
	mutedStyle  = lipgloss.NewStyle().Foreground(grey)
	moneyStyle  = lipgloss.NewStyle().Bold(true).Foreground(green)
)

// Out is where every helper writes. Tests swap it for a buffer.
var Out io.Writer = os.Stdout

func JSON(v any) error {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders rows under headers with box-drawing borders.
func Table(headers []string, rows [][]string) {
	t := tablewriter.NewWriter(Out)
	t.SetHeader(headers)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("┼")
	t.SetColumnSeparator("│")
	t.SetRowSeparator("─")
	t.AppendBulk(rows)
	t.Render()
}

// KeyValue prints aligned label/value pairs.
func KeyValue(pairs [][]string) {
	width := 0
	for _, kv := range pairs {
		width = max(width, lipgloss.Width(kv[0]))
	}
	label := mutedStyle.Width(width)
	for _, kv := range pairs {
		fmt.Fprintf(Out, "%s  %s\n", label.Render(kv[0]), kv[1])
	}
}

// Markdown renders md for the terminal. Rendering failures fall back to
// the raw text.
func Markdown(md string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Fprintln(Out, md)
		return
	}
	rendered, err := r.Render(md)
	if err != nil {
		fmt.Fprintln(Out, md)
		return
	}
	fmt.Fprint(Out, rendered)
}

func Success(msg string) {
	fmt.Fprintln(Out, gainStyle.Render("✓ ")+msg)
}

func Error(msg string) {
	fmt.Fprintln(os.Stderr, lossStyle.Render("✗ ")+msg)
}

func Warning(msg string) {
	fmt.Fprintln(Out, warnStyle.Render("⚠ ")+msg)
}

func Info(msg string) {
	fmt.Fprintln(Out, mutedStyle.Render(msg))
}

func Header(msg string) {
	fmt.Fprintln(Out, headerStyle.Render(msg))
}

// FormatAmount displays amount in currency using its symbol and minor
// units, e.g. "$1,234.50". Unknown currency codes fall back to
// "CODE 1234.50".
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
	}
	factor := decimal.New(1, int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

func Money(amount decimal.Decimal, currency string) string {
	return moneyStyle.Render(FormatAmount(amount, currency))
}

// SignedMoney colors gains green and losses red.
func SignedMoney(amount decimal.Decimal, currency string) string {
	s := FormatAmount(amount, currency)
	switch amount.Sign() {
	case 1:
		return gainStyle.Render("+" + s)
	case -1:
		return lossStyle.Render(s)
	default:
		return s
	}
}

// Percent formats a percentage value, e.g. 1.4768 -> "1.48%".
func Percent(v decimal.Decimal) string {
	return v.StringFixed(2) + "%"
}

// Ratio formats a 0..1 fraction as a percentage.
func Ratio(v decimal.Decimal) string {
	return Percent(v.Mul(decimal.NewFromInt(100)))
}

func FormatTradeType(t string) string {
	switch t {
	case "buy":
		return gainStyle.Render(t)
	case "sell":
		return warnStyle.Render(t)
	default:
		return t
	}
}
