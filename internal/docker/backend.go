// Package docker provides access to the local container runtime for node
// discovery.
package docker

import "context"

// Container is the listing summary used for candidate filtering.
type Container struct {
	ID    string
	Name  string
	Image string
}

// PortBinding is one published port, flattened from the runtime's
// port-map shape.
type PortBinding struct {
	ContainerPort int
	Proto         string
	HostIP        string
	HostPort      int
}

// ContainerDetail carries the inspected state discovery needs: the
// environment and the published ports.
type ContainerDetail struct {
	ID    string
	Name  string
	Image string
	Env   []string
	Ports []PortBinding
}

// EnvValue returns the value of an environment variable from the
// container's K=V list, with presence reported separately.
func (d *ContainerDetail) EnvValue(key string) (string, bool) {
	prefix := key + "="
	for _, kv := range d.Env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

// Backend is the container runtime capability discovery depends on.
// Implementations must be safe for concurrent use.
type Backend interface {
	// ListRunning returns the currently running containers.
	ListRunning(ctx context.Context) ([]Container, error)
	// Inspect returns the detail for one container.
	Inspect(ctx context.Context, id string) (*ContainerDetail, error)
	// Close releases the underlying runtime connection.
	Close() error
}
