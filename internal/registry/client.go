// Package registry is the client for the Storj Cloud dashboard REST API:
// token validation, node registration, the registered-node listing, and
// the per-node updates pushed by the sync daemon.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
)

// maxErrorBody bounds how much of an error response is kept for logs.
const maxErrorBody = 4096

// Account is the dashboard account a token belongs to.
type Account struct {
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
}

// Config holds dashboard client configuration.
type Config struct {
	// Endpoint is the REST API base, e.g. https://storj.cloud/api/v1.
	Endpoint string
	// Token is the bearer token from the dashboard's API token settings.
	Token string
	// Timeout bounds each individual request.
	Timeout time.Duration
}

// Client talks to the dashboard. One Client owns one HTTP connection
// pool, shared across all of its calls; it is safe for concurrent use.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a dashboard client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ValidateToken checks the API token against the dashboard and returns
// the account it belongs to.
func (c *Client) ValidateToken(ctx context.Context) (*Account, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var account Account
		if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
			return nil, fmt.Errorf("decoding account: %w", err)
		}
		return &account, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, newStatusError(resp)
	}
}

// Register pushes discovered nodes to the dashboard, one POST per record.
// A node the dashboard already knows (409) is refreshed in place with the
// same payload. Outcomes are independent: a failure is logged and counted
// against that record only, never aborting the rest. Register returns the
// number of records the dashboard accepted; the error is non-nil only
// when the context ends before every record was attempted.
func (c *Client) Register(ctx context.Context, records []models.NodeRecord) (int, error) {
	registered := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return registered, err
		}
		if c.registerOne(ctx, rec) {
			registered++
		}
	}
	return registered, nil
}

// ListNodes returns every node registered under this account. The sync
// daemon treats an error as an empty cycle, not a reason to stop.
func (c *Client) ListNodes(ctx context.Context) ([]models.RemoteNodeRef, error) {
	resp, err := c.do(ctx, http.MethodGet, "/storj/nodes", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var listing struct {
			Nodes []models.RemoteNodeRef `json:"nodes"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
			return nil, fmt.Errorf("decoding node listing: %w", err)
		}
		return listing.Nodes, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, newStatusError(resp)
	}
}

// Update PATCHes refreshed status data onto one registered node,
// addressed by its registry-internal ID.
func (c *Client) Update(ctx context.Context, registryID string, payload UpdatePayload) error {
	resp, err := c.do(ctx, http.MethodPatch, "/storj/nodes/"+url.PathEscape(registryID), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return newStatusError(resp)
	}
}

// registerOne attempts one record and reports whether the dashboard
// accepted it.
func (c *Client) registerOne(ctx context.Context, rec models.NodeRecord) bool {
	payload := NewRegisterPayload(rec)

	resp, err := c.do(ctx, http.MethodPost, "/storj/nodes", payload)
	if err != nil {
		c.logger.Error("registering node failed",
			"node_id", shortNodeID(rec.NodeID),
			"error", err,
		)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Info("registered node",
			"node_id", shortNodeID(rec.NodeID),
			"name", payload.Name,
		)
		return true
	case resp.StatusCode == http.StatusConflict:
		c.logger.Info("node already registered, updating",
			"node_id", shortNodeID(rec.NodeID),
		)
		return c.refreshExisting(ctx, rec.NodeID, payload)
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Error("authentication failed - check API token",
			"node_id", shortNodeID(rec.NodeID),
		)
		return false
	default:
		serr := newStatusError(resp)
		c.logger.Error("registering node failed",
			"node_id", shortNodeID(rec.NodeID),
			"status", serr.Code,
			"body", serr.Body,
		)
		return false
	}
}

// refreshExisting PATCHes the registration payload onto the dashboard's
// existing record. The conflict path addresses nodes by node ID; only
// sync updates use registry-internal IDs.
func (c *Client) refreshExisting(ctx context.Context, nodeID string, payload RegisterPayload) bool {
	resp, err := c.do(ctx, http.MethodPatch, "/storj/nodes/"+url.PathEscape(nodeID), payload)
	if err != nil {
		c.logger.Error("updating existing node failed",
			"node_id", shortNodeID(nodeID),
			"error", err,
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		c.logger.Info("updated node", "node_id", shortNodeID(nodeID))
		return true
	}

	serr := newStatusError(resp)
	c.logger.Error("updating existing node failed",
		"node_id", shortNodeID(nodeID),
		"status", serr.Code,
		"body", serr.Body,
	)
	return false
}

// do issues one authenticated request. The caller owns the response body.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	return resp, nil
}

// newStatusError drains enough of the response to make the failure
// diagnosable from logs.
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
	}
}

// shortNodeID trims node IDs for logs, which otherwise drown in 52-char
// identifiers.
func shortNodeID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
