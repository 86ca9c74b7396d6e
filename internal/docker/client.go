package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Client implements Backend against the Docker Engine API.
type Client struct {
	api    *client.Client
	logger *slog.Logger
}

// NewClient connects to the Docker daemon. An empty host keeps whatever
// DOCKER_HOST and the other standard environment variables resolve to.
func NewClient(host string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []client.Opt{client.FromEnv}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	opts = append(opts, client.WithAPIVersionNegotiation())

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}

	return &Client{api: api, logger: logger}, nil
}

// ListRunning returns the currently running containers. A daemon that
// cannot be reached surfaces as ErrRuntimeUnavailable.
func (c *Client) ListRunning(ctx context.Context) ([]Container, error) {
	summaries, err := c.api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	containers := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		containers = append(containers, Container{
			ID:    s.ID,
			Name:  primaryName(s.Names),
			Image: s.Image,
		})
	}
	return containers, nil
}

// Inspect returns the environment and published ports of one container.
func (c *Client) Inspect(ctx context.Context, id string) (*ContainerDetail, error) {
	resp, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", shortID(id), err)
	}

	detail := &ContainerDetail{
		ID:   resp.ID,
		Name: strings.TrimPrefix(resp.Name, "/"),
	}
	if resp.Config != nil {
		detail.Image = resp.Config.Image
		detail.Env = resp.Config.Env
	}
	if resp.NetworkSettings != nil {
		detail.Ports = flattenPorts(resp.NetworkSettings.Ports)
	}
	return detail, nil
}

// Close releases the connection to the daemon.
func (c *Client) Close() error {
	return c.api.Close()
}

// flattenPorts converts the runtime's port map into one binding per
// published host port. Unpublished exposed ports are skipped.
func flattenPorts(ports nat.PortMap) []PortBinding {
	var out []PortBinding
	for port, bindings := range ports {
		for _, b := range bindings {
			hostPort, err := nat.ParsePort(b.HostPort)
			if err != nil || hostPort == 0 {
				continue
			}
			out = append(out, PortBinding{
				ContainerPort: port.Int(),
				Proto:         port.Proto(),
				HostIP:        b.HostIP,
				HostPort:      hostPort,
			})
		}
	}
	return out
}

func primaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
