package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ElektryonUK/storjcloud-client/internal/nodeapi"
	"github.com/ElektryonUK/storjcloud-client/internal/ops"
	"github.com/ElektryonUK/storjcloud-client/internal/shutdown"
	nodesync "github.com/ElektryonUK/storjcloud-client/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the continuous node synchronization daemon",
	Long: `Run the synchronization daemon. Every cycle the daemon pulls the node
list from the dashboard, probes each node's local status API, and pushes
fresh health and usage data back.

The daemon runs until interrupted. SIGINT or SIGTERM finishes the
in-flight cycle before exiting.`,
	Example: `  storjcloud-client sync
  storjcloud-client sync --interval 10m --batch-size 5
  storjcloud-client sync --status-addr 127.0.0.1:9431`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().DurationP("interval", "i", 5*time.Minute, "pause between sync cycles")
	syncCmd.Flags().Int("batch-size", 10, "nodes refreshed concurrently per batch")
	syncCmd.Flags().Bool("retry-failed", true, "re-attempt failed nodes on the next cycle")
	syncCmd.Flags().String("status-addr", "", "serve /healthz and /status on this address, e.g. 127.0.0.1:9431")

	viper.BindPFlag("sync.interval", syncCmd.Flags().Lookup("interval"))
	viper.BindPFlag("sync.batch_size", syncCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("sync.retry_failed", syncCmd.Flags().Lookup("retry-failed"))
	viper.BindPFlag("sync.status_addr", syncCmd.Flags().Lookup("status-addr"))
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := openLogger(cfg)
	if err != nil {
		return err
	}

	if err := requireToken(cfg); err != nil {
		closeLog()
		return err
	}
	warnIfTokenExpired(cfg, log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client := newRegistryClient(cfg, log)
	prober := nodeapi.NewProber(&nodeapi.ProberConfig{
		Timeout:          cfg.Sync.ProbeTimeout,
		ReuseConnections: true,
	}, log.WithComponent("prober").Logger)
	engine := nodesync.NewEngine(&nodesync.Config{
		Interval:  cfg.Sync.Interval,
		BatchSize: cfg.Sync.BatchSize,
	}, client, prober, log.WithComponent("sync").Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithLogger(log.WithComponent("shutdown").Logger),
	)

	// The log file closes last so the shutdown sequence itself is logged.
	coordinator.Register(shutdown.NewFuncComponent("log-file", func(context.Context) error {
		return closeLog()
	}))

	if cfg.Sync.StatusAddr != "" {
		opsServer := ops.NewServer(cfg.Sync.StatusAddr, version, engine, log.WithComponent("ops").Logger)
		coordinator.Register(opsServer)
		go func() {
			// The status endpoint is auxiliary; losing it does not take
			// the daemon down.
			if err := opsServer.Start(ctx); err != nil {
				log.Error("status endpoint failed", "error", err)
			}
		}()
	}

	engineDone := make(chan struct{})
	engineErr := make(chan error, 1)
	go func() {
		engineErr <- engine.Start(ctx)
		close(engineDone)
	}()
	coordinator.Register(shutdown.NewDaemonComponent("sync-engine", engine.Stop, engineDone))

	signalDone := make(chan struct{})
	go func() {
		coordinator.WaitForSignal()
		close(signalDone)
	}()

	select {
	case err := <-engineErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sync engine exited", "error", err)
		}
	case <-signalDone:
	}

	coordinator.Shutdown()
	coordinator.Wait()

	if coordinator.ExitCode() != 0 {
		return errors.New("shutdown timed out before every component stopped")
	}
	return nil
}
