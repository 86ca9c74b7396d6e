// Package sync keeps the dashboard in step with the nodes themselves. The
// engine periodically pulls the registered node list, re-probes every
// node's status endpoint in bounded batches, and PATCHes the refreshed
// data back. The dashboard is the system of record; nothing is kept
// locally between cycles.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
	"github.com/ElektryonUK/storjcloud-client/internal/nodeapi"
	"github.com/ElektryonUK/storjcloud-client/internal/registry"
)

// State is the engine's lifecycle state.
type State string

const (
	// StateIdle means the engine has not started.
	StateIdle State = "idle"
	// StateRunning means the cycle loop is active.
	StateRunning State = "running"
	// StateStopping means a stop was requested and the in-flight cycle is
	// finishing.
	StateStopping State = "stopping"
	// StateStopped means the loop has exited. Engines do not restart.
	StateStopped State = "stopped"
)

// ErrNotIdle is returned by Start on an engine that already ran.
var ErrNotIdle = errors.New("sync engine already started")

// Config holds sync engine configuration.
type Config struct {
	// Interval is the pause between cycles.
	Interval time.Duration
	// BatchSize bounds how many nodes refresh concurrently. Batches run
	// strictly one after another, so this is also the peak number of
	// outbound probes in flight.
	BatchSize int
}

// DefaultConfig returns a Config with the daemon's default cadence.
func DefaultConfig() *Config {
	return &Config{
		Interval:  5 * time.Minute,
		BatchSize: 10,
	}
}

// CycleStats describes one completed sync cycle.
type CycleStats struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Nodes      int           `json:"nodes"`
	Synced     int           `json:"synced"`
	Missed     int           `json:"missed"`
	Failed     int           `json:"failed"`
	ListFailed bool          `json:"list_failed,omitempty"`
}

// Stats is a point-in-time snapshot of the engine for the daemon's
// status endpoint.
type Stats struct {
	State     State       `json:"state"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	Cycles    int         `json:"cycles"`
	LastCycle *CycleStats `json:"last_cycle,omitempty"`
}

// Engine runs the recurring synchronization loop. It owns one long-lived
// prober and shares the dashboard client with the rest of the process.
type Engine struct {
	config   *Config
	registry *registry.Client
	prober   *nodeapi.Prober
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	startedAt time.Time
	cycles    int
	lastCycle *CycleStats
	stopChan  chan struct{}
}

// NewEngine creates an Engine in the idle state.
func NewEngine(config *Config, reg *registry.Client, prober *nodeapi.Prober, logger *slog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		config:   config,
		registry: reg,
		prober:   prober,
		logger:   logger,
		state:    StateIdle,
		stopChan: make(chan struct{}),
	}
}

// Start runs the cycle loop until Stop is called or the context ends. The
// first cycle runs immediately; every later one waits out the interval.
// Start blocks for the engine's whole life and returns ErrNotIdle when
// the engine already ran: engines are single-use.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrNotIdle
	}
	e.state = StateRunning
	e.startedAt = time.Now()
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info("sync engine started",
		"interval", e.config.Interval,
		"batch_size", e.config.BatchSize,
	)

	defer e.setState(StateStopped)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		e.runCycle(ctx)

		// Stop requests are honored here, at the cycle boundary, and
		// while sleeping out the interval. A cycle is never cut short.
		select {
		case <-ctx.Done():
			e.setState(StateStopping)
			e.logger.Info("sync engine stopped by context")
			return ctx.Err()
		case <-e.stopChan:
			e.logger.Info("sync engine stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop requests a graceful stop: the in-flight cycle completes, then the
// loop exits. Stop returns immediately and is safe to call more than
// once; calls outside the running state do nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		e.state = StateStopping
		close(e.stopChan)
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns a snapshot of the engine's lifetime counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		State:  e.state,
		Cycles: e.cycles,
	}
	if !e.startedAt.IsZero() {
		started := e.startedAt
		stats.StartedAt = &started
	}
	if e.lastCycle != nil {
		last := *e.lastCycle
		stats.LastCycle = &last
	}
	return stats
}

// runCycle performs one pull-refresh-push pass. Failures stay inside the
// cycle: a bad listing, a silent node, or a rejected update degrades the
// counters, never the loop.
func (e *Engine) runCycle(ctx context.Context) {
	stats := CycleStats{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := e.logger.With("cycle_id", stats.CycleID)

	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		e.recordCycle(stats)
	}()

	refs, err := e.registry.ListNodes(ctx)
	if err != nil {
		stats.ListFailed = true
		log.Error("listing registered nodes failed", "error", err)
		return
	}
	if len(refs) == 0 {
		log.Debug("no registered nodes to sync")
		return
	}

	stats.Nodes = len(refs)
	log.Info("syncing nodes", "count", len(refs))

	for _, batch := range batches(refs, e.config.BatchSize) {
		synced, missed, failed := e.syncBatch(ctx, log, batch)
		stats.Synced += synced
		stats.Missed += missed
		stats.Failed += failed
	}

	log.Info("sync cycle completed",
		"nodes", stats.Nodes,
		"synced", stats.Synced,
		"missed", stats.Missed,
		"failed", stats.Failed,
		"duration", time.Since(stats.StartedAt).Round(time.Millisecond).String(),
	)
}

// syncBatch refreshes every node in the batch concurrently and waits for
// the slowest member. Outcomes are counted, not propagated: one node's
// timeout or rejected update leaves its siblings untouched.
func (e *Engine) syncBatch(ctx context.Context, log *slog.Logger, refs []models.RemoteNodeRef) (synced, missed, failed int) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, ref := range refs {
		wg.Add(1)
		go func(ref models.RemoteNodeRef) {
			defer wg.Done()

			outcome := e.refreshNode(ctx, log, ref)

			mu.Lock()
			switch outcome {
			case outcomeSynced:
				synced++
			case outcomeMissed:
				missed++
			case outcomeFailed:
				failed++
			}
			mu.Unlock()
		}(ref)
	}
	wg.Wait()

	if missed > 0 || failed > 0 {
		log.Warn("batch finished with degraded nodes",
			"nodes", len(refs),
			"synced", synced,
			"missed", missed,
			"failed", failed,
		)
	}
	return synced, missed, failed
}

type nodeOutcome int

const (
	outcomeSynced nodeOutcome = iota
	outcomeMissed
	outcomeFailed
)

// refreshNode re-probes one node and pushes the result to the dashboard.
func (e *Engine) refreshNode(ctx context.Context, log *slog.Logger, ref models.RemoteNodeRef) nodeOutcome {
	doc, ok := e.prober.Probe(ctx, ref.ProbeAddress(), ref.ProbePort())
	if !ok {
		log.Warn("node did not answer status probe",
			"node_id", shortID(ref.NodeID),
			"address", ref.ProbeAddress(),
			"port", ref.ProbePort(),
		)
		return outcomeMissed
	}

	payload := registry.NewUpdatePayload(doc, time.Now())
	if err := e.registry.Update(ctx, ref.RegistryID, payload); err != nil {
		if errors.Is(err, registry.ErrUnauthorized) {
			log.Error("authentication failed - check API token",
				"node_id", shortID(ref.NodeID),
			)
		} else {
			log.Error("updating node failed",
				"node_id", shortID(ref.NodeID),
				"error", err,
			)
		}
		return outcomeFailed
	}

	log.Debug("synced node",
		"node_id", shortID(ref.NodeID),
		"health", payload.Status,
	)
	return outcomeSynced
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) recordCycle(stats CycleStats) {
	e.mu.Lock()
	e.cycles++
	e.lastCycle = &stats
	e.mu.Unlock()
}

// batches splits refs into consecutive slices of at most size elements.
// A size below one degenerates to a single batch.
func batches(refs []models.RemoteNodeRef, size int) [][]models.RemoteNodeRef {
	if len(refs) == 0 {
		return nil
	}
	if size < 1 {
		return [][]models.RemoteNodeRef{refs}
	}

	out := make([][]models.RemoteNodeRef, 0, (len(refs)+size-1)/size)
	for start := 0; start < len(refs); start += size {
		end := start + size
		if end > len(refs) {
			end = len(refs)
		}
		out = append(out, refs[start:end])
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
