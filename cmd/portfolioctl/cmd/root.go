package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/client"
	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/output"
)

const configDirName = ".portfolioctl"

var (
	cfgFile     string
	format      string
	accountFlag string

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

var rootCmd = &cobra.Command{
	Use:   "portfolioctl",
	Short: "Portfolio Engine - simulated strategy trading",
	Long: titleStyle.Render(`
╔═══════════════════════════════════════════════════════════╗
║  Portfolio Engine CLI - Strategy Driven Paper Trading     ║
╚═══════════════════════════════════════════════════════════╝
`) + `
Inspect and drive simulated portfolios from your terminal.
Pick a strategy, let the engine rebalance, and track gains and taxes.

Get started:
  portfolioctl account show        Show the account state
  portfolioctl strategy list       List the strategies
  portfolioctl auto-trade          Run one decision cycle
  portfolioctl simulate --days 30  Run an offline simulation
  portfolioctl --help              Show all commands`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		output.Error(err.Error())
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.portfolioctl/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "output format: table, json")
	rootCmd.PersistentFlags().StringVarP(&accountFlag, "account", "a", "", "account id (default from config)")

	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("account", rootCmd.PersistentFlags().Lookup("account"))
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName), nil
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
			os.Exit(1)
		}

		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Set defaults
	viper.SetDefault("api_url", "http://localhost:8080")
	viper.SetDefault("account", "default")
	viper.SetDefault("currency", "USD")
	if term.IsTerminal(int(os.Stdout.Fd())) {
		viper.SetDefault("format", "table")
	} else {
		viper.SetDefault("format", "json")
	}

	viper.SetEnvPrefix("PORTFOLIOCTL")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func getFormat() string {
	if format != "" {
		return format
	}
	return viper.GetString("format")
}

func currency() string {
	return viper.GetString("currency")
}

func newClient() *client.Client {
	return client.New()
}

// explain turns API errors into a one-line message with a hint for the
// codes a user can act on.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "PRICE_UNAVAILABLE":
		return fmt.Errorf("%w\nhint: pass --price to trade without a live quote", err)
	case "CONCURRENCY_CONFLICT":
		return fmt.Errorf("%w\nhint: the account changed while deciding, retry the command", err)
	case "UNKNOWN_STRATEGY":
		return fmt.Errorf("%w\nhint: run 'portfolioctl strategy list'", err)
	}
	return err
}
