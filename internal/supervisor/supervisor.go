// Package supervisor installs and controls the sync daemon under a local
// process supervisor, so it survives reboots and crashes without a
// hand-rolled init script.
package supervisor

import (
	"context"
	"errors"
	"time"
)

// ErrNotInstalled indicates no supervisor binary is available on this
// machine.
var ErrNotInstalled = errors.New("pm2 is not installed; install it with: npm install -g pm2")

// ErrServiceNotFound indicates the named service is not registered with
// the supervisor.
var ErrServiceNotFound = errors.New("service is not registered")

// ServiceSpec describes a service to run under the supervisor.
type ServiceSpec struct {
	// Name is the supervisor-side service name.
	Name string
	// Script is the absolute path of the executable to run.
	Script string
	// Args is the argument string passed to the script.
	Args string
	// WorkDir is the service working directory; empty means the current
	// directory.
	WorkDir string
	// Env is extra environment for the service process.
	Env map[string]string
	// LogDir is where the supervisor writes the service logs; empty
	// means /var/log.
	LogDir string
	// MaxMemory restarts the service when it grows past this size,
	// e.g. "200M"; empty keeps the default.
	MaxMemory string
}

// ServiceStatus is a point-in-time report for one supervised service.
type ServiceStatus struct {
	Name        string
	PID         int
	Status      string
	StartedAt   *time.Time
	Restarts    int
	MemoryBytes int64
	CPUPercent  float64
}

// Supervisor is the process-supervisor capability the service commands
// depend on. Implementations shell out to a concrete supervisor; tests
// substitute fakes.
type Supervisor interface {
	// Installed reports whether the supervisor binary is usable.
	Installed(ctx context.Context) bool
	// Install registers the service and starts it. An already-installed
	// service with the same name is replaced.
	Install(ctx context.Context, spec ServiceSpec) error
	// Start starts a previously installed service.
	Start(ctx context.Context, name string) error
	// Stop stops the service without removing it.
	Stop(ctx context.Context, name string) error
	// Restart restarts the service.
	Restart(ctx context.Context, name string) error
	// Delete stops the service and removes it from the supervisor.
	Delete(ctx context.Context, name string) error
	// Status reports the service's current state, or ErrServiceNotFound.
	Status(ctx context.Context, name string) (*ServiceStatus, error)
}
