package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
	"github.com/ElektryonUK/storjcloud-client/internal/nodeapi"
)

// PortScanDiscoverer finds nodes by probing a fixed set of ports on one
// host. A bare scan carries no runtime metadata, so records get a name
// synthesized from the port and the default data-transfer port.
type PortScanDiscoverer struct {
	host   string
	ports  []int
	prober *nodeapi.Prober
	logger *slog.Logger
}

// NewPortScanDiscoverer creates a PortScanDiscoverer for the given host
// and port set.
func NewPortScanDiscoverer(host string, ports []int, prober *nodeapi.Prober, logger *slog.Logger) *PortScanDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortScanDiscoverer{
		host:   host,
		ports:  ports,
		prober: prober,
		logger: logger,
	}
}

// Name identifies the mechanism in logs.
func (d *PortScanDiscoverer) Name() string { return "port_scan" }

// Discover probes every port concurrently. Port lists are small, so the
// fan-out is unbounded. Silent ports are the expected common case and are
// simply excluded.
func (d *PortScanDiscoverer) Discover(ctx context.Context) ([]models.NodeRecord, error) {
	d.logger.Info("scanning for nodes",
		"host", d.host,
		"ports", len(d.ports),
	)

	results := make(chan models.NodeRecord, len(d.ports))

	var wg sync.WaitGroup
	for _, port := range d.ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()

			doc, ok := d.prober.Probe(ctx, d.host, port)
			if !ok {
				return
			}

			rec := doc.Record()
			rec.Name = fmt.Sprintf("Node-%d", port)
			rec.Address = d.host
			rec.StatusPort = port
			rec.DataPort = defaultDataPort
			rec.Origin = models.OriginPortScan
			results <- rec
		}(port)
	}
	wg.Wait()
	close(results)

	records := make([]models.NodeRecord, 0, len(d.ports))
	for rec := range results {
		records = append(records, rec)
	}
	return records, nil
}
