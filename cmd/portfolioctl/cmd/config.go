package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/internal/output"
)

type configKey struct {
	name     string
	help     string
	validate func(string) error
}

var configKeys = []configKey{
	{"api_url", "API server URL", validateURL},
	{"account", "account id used by every command", nil},
	{"format", "default output: table or json", oneOf("table", "json")},
	{"currency", "ISO 4217 code used to display amounts", validateCurrency},
}

func lookupKey(name string) (configKey, bool) {
	for _, k := range configKeys {
		if k.name == name {
			return k, true
		}
	}
	return configKey{}, false
}

func keyNames() []string {
	names := make([]string, len(configKeys))
	for i, k := range configKeys {
		names[i] = k.name
	}
	return names
}

func validateURL(v string) error {
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", v)
	}
	return nil
}

func validateCurrency(v string) error {
	if money.GetCurrency(strings.ToUpper(v)) == nil {
		return fmt.Errorf("unknown currency %q", v)
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func configSetHelp() string {
	var b strings.Builder
	b.WriteString("Persist a setting to the config file.\n\nKeys:\n")
	for _, k := range configKeys {
		fmt.Fprintf(&b, "  %-9s %s\n", k.name, k.help)
	}
	return b.String()
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change CLI settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if getFormat() == "json" {
			settings := make(map[string]string, len(configKeys))
			for _, k := range configKeys {
				settings[k.name] = viper.GetString(k.name)
			}
			return output.JSON(settings)
		}

		pairs := make([][]string, len(configKeys))
		for i, k := range configKeys {
			pairs[i] = []string{k.name, viper.GetString(k.name)}
		}
		output.Header("Configuration")
		output.KeyValue(pairs)
		if f := viper.ConfigFileUsed(); f != "" {
			output.Info("loaded from " + f)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set KEY VALUE",
	Short:     "Persist a setting",
	Long:      configSetHelp(),
	Args:      cobra.ExactArgs(2),
	ValidArgs: keyNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		k, ok := lookupKey(key)
		if !ok {
			return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(keyNames(), ", "))
		}
		if k.validate != nil {
			if err := k.validate(value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		if key == "currency" {
			value = strings.ToUpper(value)
		}

		path, err := configFile()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		viper.Set(key, value)
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		output.Success(fmt.Sprintf("%s = %s", key, value))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFile()
		if err != nil {
			return err
		}
		if getFormat() == "json" {
			return output.JSON(map[string]string{"config_file": path})
		}
		fmt.Fprintln(output.Out, path)
		return nil
	},
}

// configFile is the --config flag when given, else the per-user default.
func configFile() (string, error) {
	if f := viper.ConfigFileUsed(); f != "" {
		return f, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
