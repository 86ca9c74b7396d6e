// Package shutdown coordinates graceful teardown of the sync daemon's
// long-lived pieces. It waits for SIGINT/SIGTERM, then shuts registered
// components down in reverse registration order, bounded by a timeout so
// a wedged component cannot keep the process alive forever.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds a graceful shutdown before it is forced.
const DefaultTimeout = 30 * time.Second

// Component is one piece of the daemon that needs an orderly stop.
type Component interface {
	// Name identifies the component in logs.
	Name() string
	// Shutdown stops the component, returning once it is down or the
	// context deadline has passed.
	Shutdown(ctx context.Context) error
}

// Coordinator owns the shutdown sequence: it listens for termination
// signals and winds down every registered component.
type Coordinator struct {
	components []Component
	timeout    time.Duration
	logger     *slog.Logger
	mu         sync.Mutex

	// signalCh overrides the OS signal source in tests.
	signalCh chan os.Signal

	shutdownOnce sync.Once
	shutdownDone chan struct{}
	exitCode     int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets how long a graceful shutdown may take before it is
// abandoned.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithSignalChannel injects a signal channel so tests can trigger the
// sequence without raising real signals.
func WithSignalChannel(ch chan os.Signal) Option {
	return func(c *Coordinator) {
		c.signalCh = ch
	}
}

// NewCoordinator creates a Coordinator with no registered components.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
		shutdownDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register adds a component to the shutdown sequence. Components stop in
// reverse registration order, so register dependencies before the things
// that use them.
func (c *Coordinator) Register(component Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, component)
	c.logger.Debug("registered shutdown component", "name", component.Name())
}

// WaitForSignal blocks until SIGINT or SIGTERM arrives, then runs the
// shutdown sequence.
func (c *Coordinator) WaitForSignal() {
	sigCh := c.signalCh
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	sig := <-sigCh
	c.logger.Info("received shutdown signal", "signal", sig)

	c.Shutdown()
}

// Shutdown runs the shutdown sequence once; later calls are no-ops. All
// components are asked to stop concurrently and the sequence ends when
// every one has finished or the timeout expires.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Info("shutting down", "timeout", c.timeout)

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.mu.Lock()
		components := make([]Component, len(c.components))
		copy(components, c.components)
		c.mu.Unlock()

		var wg sync.WaitGroup
		for i := len(components) - 1; i >= 0; i-- {
			component := components[i]
			wg.Add(1)
			go func(comp Component) {
				defer wg.Done()
				if err := comp.Shutdown(ctx); err != nil {
					c.logger.Error("component shutdown failed",
						"name", comp.Name(),
						"error", err,
					)
					return
				}
				c.logger.Debug("component stopped", "name", comp.Name())
			}(component)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			c.logger.Info("shutdown complete")
			c.exitCode = 0
		case <-ctx.Done():
			c.logger.Warn("shutdown timeout exceeded, terminating")
			c.exitCode = 1
		}

		close(c.shutdownDone)
	})
}

// Wait blocks until the shutdown sequence has finished.
func (c *Coordinator) Wait() {
	<-c.shutdownDone
}

// ExitCode reports how shutdown went: 0 when every component stopped in
// time, 1 when the timeout forced termination.
func (c *Coordinator) ExitCode() int {
	return c.exitCode
}
