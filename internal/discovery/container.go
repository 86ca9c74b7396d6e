package discovery

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ElektryonUK/storjcloud-client/internal/docker"
	"github.com/ElektryonUK/storjcloud-client/internal/models"
	"github.com/ElektryonUK/storjcloud-client/internal/nodeapi"
)

const (
	// defaultStatusPort is the storage node dashboard port.
	defaultStatusPort = 14002
	// defaultDataPort is the storage node data-transfer port.
	defaultDataPort = 28967

	// statusPortRangeLow and statusPortRangeHigh bound the range dashboards
	// are conventionally published in.
	statusPortRangeLow  = 14000
	statusPortRangeHigh = 15000

	// consoleAddressEnv and addressEnv are the bind-address variables the
	// node software is configured with.
	consoleAddressEnv = "CONSOLE_ADDRESS"
	addressEnv        = "ADDRESS"
)

// nodeImages is the image allowlist for candidate containers. Tags and
// digests on the image reference are tolerated.
var nodeImages = []string{
	"storjlabs/storagenode",
	"storj/storagenode",
}

// nodeNameSignatures qualify a container by name regardless of image.
var nodeNameSignatures = []string{
	"storj",
	"storagenode",
}

// ContainerDiscoverer finds nodes running in local containers. Published
// ports are assumed reachable on the loopback interface.
type ContainerDiscoverer struct {
	backend docker.Backend
	prober  *nodeapi.Prober
	logger  *slog.Logger
}

// NewContainerDiscoverer creates a ContainerDiscoverer over the given
// runtime backend.
func NewContainerDiscoverer(backend docker.Backend, prober *nodeapi.Prober, logger *slog.Logger) *ContainerDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContainerDiscoverer{
		backend: backend,
		prober:  prober,
		logger:  logger,
	}
}

// Name identifies the mechanism in logs.
func (d *ContainerDiscoverer) Name() string { return "docker" }

// Discover lists running containers, keeps those matching the node
// software signature, and probes each candidate's dashboard. A runtime
// connection failure aborts this discoverer entirely; per-candidate
// failures only skip that candidate.
func (d *ContainerDiscoverer) Discover(ctx context.Context) ([]models.NodeRecord, error) {
	containers, err := d.backend.ListRunning(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []docker.Container
	for _, c := range containers {
		if isNodeCandidate(c) {
			candidates = append(candidates, c)
		}
	}
	d.logger.Info("found candidate containers", "count", len(candidates))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []models.NodeRecord
	)
	for _, c := range candidates {
		wg.Add(1)
		go func(c docker.Container) {
			defer wg.Done()
			rec, ok := d.extract(ctx, c)
			if !ok {
				return
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	return records, nil
}

// extract turns one candidate container into a node record, or reports
// that the candidate should be skipped.
func (d *ContainerDiscoverer) extract(ctx context.Context, c docker.Container) (models.NodeRecord, bool) {
	detail, err := d.backend.Inspect(ctx, c.ID)
	if err != nil {
		d.logger.Warn("inspecting candidate container failed",
			"container", c.Name,
			"error", err,
		)
		return models.NodeRecord{}, false
	}

	statusPort, ok := resolveStatusPort(detail)
	if !ok {
		d.logger.Warn("no dashboard port found for container", "container", detail.Name)
		return models.NodeRecord{}, false
	}

	doc, ok := d.prober.Probe(ctx, "127.0.0.1", statusPort)
	if !ok {
		d.logger.Warn("could not fetch node data",
			"container", detail.Name,
			"port", statusPort,
		)
		return models.NodeRecord{}, false
	}

	rec := doc.Record()
	rec.Name = detail.Name
	rec.Address = "127.0.0.1"
	rec.StatusPort = statusPort
	rec.DataPort = resolveDataPort(detail)
	rec.Origin = models.OriginContainer
	rec.Meta = &models.OriginMetadata{
		ContainerID:   detail.ID,
		ContainerName: detail.Name,
		Image:         detail.Image,
	}
	return rec, true
}

// isNodeCandidate applies the node software signature: a known image OR a
// telling name qualifies; either alone is enough.
func isNodeCandidate(c docker.Container) bool {
	return imageMatches(c.Image) || nameMatches(c.Name)
}

func imageMatches(image string) bool {
	for _, allowed := range nodeImages {
		if image == allowed ||
			strings.HasPrefix(image, allowed+":") ||
			strings.HasPrefix(image, allowed+"@") {
			return true
		}
	}
	return false
}

func nameMatches(name string) bool {
	lower := strings.ToLower(name)
	for _, sig := range nodeNameSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// resolveStatusPort finds the host port the dashboard answers on. In
// order: the published well-known dashboard port, the console bind
// address from the environment, then any published tcp port inside the
// conventional dashboard range (lowest container port wins, so the
// result is stable across runs).
func resolveStatusPort(detail *docker.ContainerDetail) (int, bool) {
	bindings := tcpBindingsByContainerPort(detail.Ports)

	for _, b := range bindings {
		if b.ContainerPort == defaultStatusPort {
			return b.HostPort, true
		}
	}

	if addr, found := detail.EnvValue(consoleAddressEnv); found {
		if port, ok := parsePortSuffix(addr); ok {
			return port, true
		}
	}

	for _, b := range bindings {
		if b.ContainerPort >= statusPortRangeLow && b.ContainerPort <= statusPortRangeHigh {
			return b.HostPort, true
		}
	}

	return 0, false
}

// resolveDataPort finds the data-transfer port: the published well-known
// port, the node address from the environment, then the default.
func resolveDataPort(detail *docker.ContainerDetail) int {
	for _, b := range tcpBindingsByContainerPort(detail.Ports) {
		if b.ContainerPort == defaultDataPort {
			return b.HostPort
		}
	}

	if addr, found := detail.EnvValue(addressEnv); found {
		if port, ok := parsePortSuffix(addr); ok {
			return port
		}
	}

	return defaultDataPort
}

// tcpBindingsByContainerPort filters to tcp bindings in a deterministic
// order, since the runtime reports its port map unordered.
func tcpBindingsByContainerPort(ports []docker.PortBinding) []docker.PortBinding {
	var tcp []docker.PortBinding
	for _, b := range ports {
		if b.Proto == "tcp" {
			tcp = append(tcp, b)
		}
	}
	sort.Slice(tcp, func(i, j int) bool {
		if tcp[i].ContainerPort != tcp[j].ContainerPort {
			return tcp[i].ContainerPort < tcp[j].ContainerPort
		}
		return tcp[i].HostPort < tcp[j].HostPort
	})
	return tcp
}

// parsePortSuffix extracts the port from a bind address like
// "127.0.0.1:14002" or ":14002".
func parsePortSuffix(addr string) (int, bool) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return 0, false
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}
