package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ElektryonUK/storjcloud-client/internal/discovery"
	"github.com/ElektryonUK/storjcloud-client/internal/docker"
	"github.com/ElektryonUK/storjcloud-client/internal/nodeapi"
	"github.com/ElektryonUK/storjcloud-client/pkg/config"
)

var (
	fromDocker bool
	serverHost string
	portList   string
	portRange  string
	autoPorts  bool
	outputJSON bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover storage nodes and register them with the dashboard",
	Long: `Discover storage nodes running on this machine and register them with
the Storj Cloud dashboard.

Nodes are found either by inspecting local Docker containers or by
probing dashboard ports directly. With no source flags, container
discovery runs by default.`,
	Example: `  storjcloud-client discover --from-docker
  storjcloud-client discover --ports 14002,14003
  storjcloud-client discover --port-range 14000-14005 --server 192.168.1.50
  storjcloud-client discover --auto --json`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().BoolVar(&fromDocker, "from-docker", false, "discover nodes from local Docker containers")
	discoverCmd.Flags().String("docker-host", "", "Docker daemon address (default unix:///var/run/docker.sock)")
	discoverCmd.Flags().StringVarP(&serverHost, "server", "s", "", "host to port-scan (default: detected local IP)")
	discoverCmd.Flags().StringVarP(&portList, "ports", "p", "", "comma-separated dashboard ports to scan")
	discoverCmd.Flags().StringVar(&portRange, "port-range", "", "dashboard port range to scan, e.g. 14000-14005")
	discoverCmd.Flags().BoolVar(&autoPorts, "auto", false, "scan the configured common dashboard ports")
	discoverCmd.Flags().Duration("timeout", 0, "probe timeout per port (default 5s)")
	discoverCmd.Flags().BoolVar(&outputJSON, "json", false, "print discovered nodes as JSON")

	viper.BindPFlag("discovery.docker_host", discoverCmd.Flags().Lookup("docker-host"))
	viper.BindPFlag("discovery.timeout", discoverCmd.Flags().Lookup("timeout"))
}

func runDiscover(cmd *cobra.Command, args []string) error {
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
	warnIfTokenExpired(cfg, log)

	ctx := cmd.Context()
	prober := nodeapi.NewProber(&nodeapi.ProberConfig{
		Timeout: cfg.Discovery.Timeout,
	}, log.WithComponent("prober").Logger)

	// Any scan flag selects a port scan. Container discovery runs when
	// asked for explicitly, or by configured default when nothing else
	// was selected.
	wantScan := portList != "" || portRange != "" || autoPorts || serverHost != ""
	wantDocker := fromDocker
	if !cmd.Flags().Changed("from-docker") && !wantScan {
		wantDocker = cfg.Discovery.FromDocker
	}

	var discoverers []discovery.Discoverer

	if wantDocker {
		backend, err := docker.NewClient(cfg.Discovery.DockerHost, log.WithComponent("docker").Logger)
		if err != nil {
			return fmt.Errorf("configure docker client: %w", err)
		}
		defer backend.Close()
		discoverers = append(discoverers,
			discovery.NewContainerDiscoverer(backend, prober, log.WithComponent("discovery").Logger))
	}

	if wantScan {
		host := serverHost
		if host == "" {
			detected, err := localIP()
			if err != nil {
				log.Warn("local IP detection failed, scanning loopback", "error", err)
				detected = "127.0.0.1"
			}
			host = detected
			log.Info("scanning detected local address", "address", host)
		}
		ports, err := scanPorts(cfg)
		if err != nil {
			return err
		}
		discoverers = append(discoverers,
			discovery.NewPortScanDiscoverer(host, ports, prober, log.WithComponent("discovery").Logger))
	}

	records := discovery.NewAggregator(discoverers, log.WithComponent("discovery").Logger).Run(ctx)
	if len(records) == 0 {
		log.Warn("no storage nodes discovered")
		return nil
	}
	log.Info("discovery finished", "nodes", len(records))

	out := cmd.OutOrStdout()
	if outputJSON {
		buf, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("encode records: %w", err)
		}
		fmt.Fprintln(out, string(buf))
	} else {
		for _, rec := range records {
			fmt.Fprintf(out, "Node %s on %s:%d (Status: %s, Used: %.2f GB)\n",
				shortID(rec.NodeID), rec.Address, rec.StatusPort, rec.Health,
				float64(rec.Disk.Used)/1e9)
		}
	}

	registered, err := newRegistryClient(cfg, log).Register(ctx, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Registered %d of %d nodes with the dashboard\n", registered, len(records))
	return nil
}

// scanPorts picks the port set for a scan: an explicit list beats a
// range beats the configured common ports.
func scanPorts(cfg *config.Config) ([]int, error) {
	switch {
	case portList != "":
		return parsePortList(portList)
	case portRange != "":
		return parsePortRange(portRange)
	default:
		return cfg.Discovery.CommonPorts, nil
	}
}

func parsePortList(s string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.Atoi(part)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports in %q", s)
	}
	return ports, nil
}

func parsePortRange(s string) ([]int, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("port range %q must look like 14000-14005", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q", startStr)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q", endStr)
	}
	if start < 1 || end > 65535 || start > end {
		return nil, fmt.Errorf("port range %q is out of order", s)
	}

	ports := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		ports = append(ports, p)
	}
	return ports, nil
}

// localIP finds this machine's outbound interface address. The UDP dial
// never sends a packet; it only asks the kernel which source address it
// would route from.
func localIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
