// File: cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kfallows/citewright/internal/config"
	"github.com/kfallows/citewright/internal/observability"
)

var (
	cfgFile string
)

// rootCmd is the base command when citewright is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "citewright",
	Short: "Citewright captures formatted citations from library search portals.",
	Long: `Citewright drives a headless browser through a proxy login and a
library search, clicks through to the cite/export dialog and captures the
formatted citation it finds there.`,
	// Version is set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Runs before every command: config discovery, then logger setup.
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Fall back to a sane logger so the error itself gets reported.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "citewright"})
			return fmt.Errorf("failed to load config: %w", err)
		}

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting citewright.", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command tree. Called once from main.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed.", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./citewright.yaml, then ~/.citewright/citewright.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newCatalogCmd())
}

// initializeConfig wires defaults, config file discovery and env overrides.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.citewright")
		}
		v.SetConfigName("citewright")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CITEWRIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars carry the day.
	}
	return nil
}

// loadConfig re-unmarshals the viper state after subcommand flag binding so
// flag overrides land with the right precedence.
func loadConfig() (*config.Config, error) {
	return config.NewConfigFromViper(viper.GetViper())
}
