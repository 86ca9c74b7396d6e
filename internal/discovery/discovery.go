// Package discovery finds storage nodes on the local machine, through the
// container runtime and by direct port scanning, and reduces the findings
// to one record per node identity.
package discovery

import (
	"context"
	"log/slog"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
)

// Discoverer is one mechanism for locating storage nodes.
type Discoverer interface {
	// Name identifies the mechanism in logs.
	Name() string
	// Discover returns the nodes this mechanism found. An error means the
	// mechanism itself was unusable, not that no nodes were found.
	Discover(ctx context.Context) ([]models.NodeRecord, error)
}

// Aggregator runs a caller-selected list of discoverers and merges their
// output. Node identity is the self-reported node ID alone; provenance
// never contributes to it.
type Aggregator struct {
	discoverers []Discoverer
	logger      *slog.Logger
}

// NewAggregator creates an Aggregator over the given discoverers. They run
// in the given order, which determines conflict resolution: on duplicate
// node IDs the record seen last wins.
func NewAggregator(discoverers []Discoverer, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		discoverers: discoverers,
		logger:      logger,
	}
}

// Run executes every discoverer and returns the deduplicated node records.
// A failing discoverer is logged and skipped; the others still contribute.
func (a *Aggregator) Run(ctx context.Context) []models.NodeRecord {
	var found []models.NodeRecord

	for _, d := range a.discoverers {
		records, err := d.Discover(ctx)
		if err != nil {
			a.logger.Error("discovery mechanism failed",
				"discoverer", d.Name(),
				"error", err,
			)
			continue
		}
		a.logger.Info("discovery mechanism finished",
			"discoverer", d.Name(),
			"nodes", len(records),
		)
		found = append(found, records...)
	}

	return Dedup(found, a.logger)
}

// Dedup collapses records to one per node ID with last-write-wins
// semantics. Records without a node ID are dropped: they cannot be told
// apart and would collide spuriously.
func Dedup(records []models.NodeRecord, logger *slog.Logger) []models.NodeRecord {
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]int, len(records))
	out := make([]models.NodeRecord, 0, len(records))

	for _, rec := range records {
		if !rec.Usable() {
			logger.Warn("dropping node record without identity",
				"name", rec.Name,
				"origin", rec.Origin,
			)
			continue
		}
		if i, seen := byID[rec.NodeID]; seen {
			out[i] = rec
			continue
		}
		byID[rec.NodeID] = len(out)
		out = append(out, rec)
	}

	return out
}
