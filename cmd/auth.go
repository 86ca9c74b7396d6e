package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ElektryonUK/storjcloud-client/internal/registry"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Validate the configured API token",
	Long: `Check the API token against the Storj Cloud dashboard and report which
account it belongs to.`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := requireToken(cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exp, ok := registry.TokenExpiry(cfg.API.Token); ok {
		if exp.Before(time.Now()) {
			log.Warn("API token is past its expiry", "expired_at", exp.UTC().Format(time.RFC3339))
		} else {
			fmt.Fprintf(out, "Token expires: %s\n", exp.UTC().Format(time.RFC3339))
		}
	}

	account, err := newRegistryClient(cfg, log).ValidateToken(cmd.Context())
	if err != nil {
		if errors.Is(err, registry.ErrUnauthorized) {
			return fmt.Errorf("the dashboard rejected this token; create a new one at %s/settings/api-tokens", cfg.API.URL)
		}
		return fmt.Errorf("token validation failed: %w", err)
	}

	fmt.Fprintf(out, "Authenticated as %s\n", account.Email)
	if len(account.Permissions) > 0 {
		fmt.Fprintf(out, "Permissions: %s\n", strings.Join(account.Permissions, ", "))
	}
	return nil
}
