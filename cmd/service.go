package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ElektryonUK/storjcloud-client/internal/supervisor"
	"github.com/ElektryonUK/storjcloud-client/pkg/logger"
)

var serviceName string

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the sync daemon as a PM2 service",
	Long: `Install, control, and inspect the sync daemon running under the PM2
process supervisor. PM2 restarts the daemon after crashes and, with
"pm2 startup", after reboots.

Requires PM2: npm install -g pm2`,
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the sync daemon as a supervised service",
	RunE:  runServiceInstall,
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the installed service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSupervisor(cmd, func(sup supervisor.Supervisor) error {
			if err := sup.Start(cmd.Context(), serviceName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service %s started\n", serviceName)
			return nil
		})
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the service without removing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSupervisor(cmd, func(sup supervisor.Supervisor) error {
			if err := sup.Stop(cmd.Context(), serviceName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service %s stopped\n", serviceName)
			return nil
		})
	},
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSupervisor(cmd, func(sup supervisor.Supervisor) error {
			if err := sup.Restart(cmd.Context(), serviceName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service %s restarted\n", serviceName)
			return nil
		})
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the service's current state",
	RunE:  runServiceStatus,
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop the service and remove it from the supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSupervisor(cmd, func(sup supervisor.Supervisor) error {
			if err := sup.Delete(cmd.Context(), serviceName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service %s removed\n", serviceName)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.PersistentFlags().StringVar(&serviceName, "name", "storjcloud-sync", "supervisor-side service name")
	serviceCmd.AddCommand(
		serviceInstallCmd,
		serviceStartCmd,
		serviceStopCmd,
		serviceRestartCmd,
		serviceStatusCmd,
		serviceUninstallCmd,
	)
}

// withSupervisor handles the logger and supervisor plumbing shared by the
// simple lifecycle subcommands.
func withSupervisor(cmd *cobra.Command, fn func(supervisor.Supervisor) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	return fn(newSupervisor(log))
}

func newSupervisor(log *logger.Logger) supervisor.Supervisor {
	return supervisor.NewPM2(log.WithComponent("supervisor").Logger)
}

func runServiceInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// The service runs headless, so the credential has to travel with it.
	if err := requireToken(cfg); err != nil {
		return err
	}
	warnIfTokenExpired(cfg, log)

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	spec := supervisor.ServiceSpec{
		Name:   serviceName,
		Script: executable,
		Args:   "sync",
		Env: map[string]string{
			"STORJCLOUD_API_TOKEN": cfg.API.Token,
			"STORJCLOUD_API_URL":   cfg.API.URL,
		},
	}

	if err := newSupervisor(log).Install(cmd.Context(), spec); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Service %s installed and started\n", serviceName)
	fmt.Fprintln(out, "Enable start on boot with: pm2 startup")
	return nil
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	return withSupervisor(cmd, func(sup supervisor.Supervisor) error {
		status, err := sup.Status(cmd.Context(), serviceName)
		if err != nil {
			if errors.Is(err, supervisor.ErrServiceNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s is not installed\n", serviceName)
				return nil
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Service:  %s\n", status.Name)
		fmt.Fprintf(out, "Status:   %s\n", status.Status)
		fmt.Fprintf(out, "PID:      %d\n", status.PID)
		fmt.Fprintf(out, "Restarts: %d\n", status.Restarts)
		fmt.Fprintf(out, "Memory:   %.1f MB\n", float64(status.MemoryBytes)/(1024*1024))
		fmt.Fprintf(out, "CPU:      %.1f%%\n", status.CPUPercent)
		if status.StartedAt != nil {
			fmt.Fprintf(out, "Started:  %s\n", status.StartedAt.Format(time.RFC3339))
		}
		return nil
	})
}
