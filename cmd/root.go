// Package cmd implements the storjcloud-client command line interface.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ElektryonUK/storjcloud-client/internal/registry"
	"github.com/ElektryonUK/storjcloud-client/pkg/config"
	"github.com/ElektryonUK/storjcloud-client/pkg/logger"
)

// version is stamped at build time:
// -ldflags "-X github.com/ElektryonUK/storjcloud-client/cmd.version=..."
var version = "dev"

var (
	cfgFile      string
	apiToken     string
	dashboardURL string
	logLevel     string
	logJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "storjcloud-client",
	Short: "Storj Cloud monitoring client",
	Long: `A client for Storj node operators to automatically discover storage
nodes and keep their data synchronized with the Storj Cloud monitoring
dashboard.

Authenticate with an API token from the dashboard to enable automatic
node discovery and continuous monitoring synchronization.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.storjcloud.yaml)")
	rootCmd.PersistentFlags().StringVarP(&apiToken, "token", "t", "", "API token from the Storj Cloud dashboard")
	rootCmd.PersistentFlags().StringVar(&dashboardURL, "url", "https://storj.cloud", "dashboard URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")

	viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("url"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.json", rootCmd.PersistentFlags().Lookup("log-json"))
}

// initConfig locates the config file and enables STORJCLOUD_* environment
// overrides. A missing config file is fine; defaults and flags carry it.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".storjcloud")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STORJCLOUD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig materializes the effective configuration from defaults,
// config file, environment, and flags.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// openLogger builds the process logger from the effective configuration.
// The returned close function flushes the log file, if one is configured.
func openLogger(cfg *config.Config) (*logger.Logger, func() error, error) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return logger.Open(level, cfg.Logging.JSON, cfg.Logging.File)
}

// requireToken rejects commands that cannot work without a dashboard
// credential, pointing the operator at where to create one.
func requireToken(cfg *config.Config) error {
	if cfg.API.Token == "" {
		return fmt.Errorf("API token required; create one at %s/settings/api-tokens", cfg.API.URL)
	}
	return nil
}

// warnIfTokenExpired emits one distinct warning for JWT-shaped tokens
// that are already past their expiry. Opaque tokens stay silent; the
// dashboard is the authority either way.
func warnIfTokenExpired(cfg *config.Config, log *logger.Logger) {
	if registry.TokenExpired(cfg.API.Token, time.Now()) {
		exp, _ := registry.TokenExpiry(cfg.API.Token)
		log.Warn("API token looks expired; the dashboard will likely reject it",
			"expired_at", exp.UTC().Format(time.RFC3339),
		)
	}
}

// newRegistryClient builds the dashboard client from the configuration.
func newRegistryClient(cfg *config.Config, log *logger.Logger) *registry.Client {
	return registry.NewClient(registry.Config{
		Endpoint: cfg.APIEndpoint(),
		Token:    cfg.API.Token,
		Timeout:  cfg.API.Timeout,
	}, log.WithComponent("registry").Logger)
}

// shortID trims node IDs for human-facing output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
