package nodeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// statusPath is the storage node status API endpoint.
const statusPath = "/api/sno"

// ProberConfig holds configuration for status probes.
type ProberConfig struct {
	// Timeout bounds each individual probe.
	Timeout time.Duration
	// ReuseConnections keeps one HTTP client alive across probes. Discovery
	// runs with throwaway connections so a one-shot scan leaves nothing
	// open; the sync daemon reuses connections across cycles.
	ReuseConnections bool
}

// DefaultProberConfig returns a ProberConfig with sensible defaults.
func DefaultProberConfig() *ProberConfig {
	return &ProberConfig{
		Timeout:          5 * time.Second,
		ReuseConnections: false,
	}
}

// Prober performs HTTP probes against storage node status endpoints.
type Prober struct {
	config *ProberConfig
	client *http.Client
	logger *slog.Logger
}

// NewProber creates a Prober.
func NewProber(config *ProberConfig, logger *slog.Logger) *Prober {
	if config == nil {
		config = DefaultProberConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Prober{
		config: config,
		logger: logger,
	}
	if config.ReuseConnections {
		p.client = &http.Client{Timeout: config.Timeout}
	}
	return p
}

// Probe fetches and decodes the status document from one node. The second
// return value reports whether a node answered; a refused connection, a
// timeout, a non-200 response, or an undecodable body all mean "no node
// here" and are logged at debug level only.
func (p *Prober) Probe(ctx context.Context, address string, port int) (*StatusDocument, bool) {
	url := fmt.Sprintf("http://%s%s", net.JoinHostPort(address, strconv.Itoa(port)), statusPath)

	reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Debug("building probe request failed", "url", url, "error", err)
		return nil, false
	}

	client := p.client
	if client == nil {
		transport := &http.Transport{DisableKeepAlives: true}
		defer transport.CloseIdleConnections()
		client = &http.Client{Timeout: p.config.Timeout, Transport: transport}
	}

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", url, "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Debug("probe returned unexpected status", "url", url, "status", resp.StatusCode)
		return nil, false
	}

	var doc StatusDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		p.logger.Debug("probe response is not a status document", "url", url, "error", err)
		return nil, false
	}

	return &doc, true
}
