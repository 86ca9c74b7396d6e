package shutdown

import "context"

// DaemonComponent wraps a long-running loop whose Stop method only
// requests a stop: completion is reported by the done channel closing
// once the loop has actually exited.
type DaemonComponent struct {
	name string
	stop func()
	done <-chan struct{}
}

// NewDaemonComponent creates a shutdown component for a daemon loop.
func NewDaemonComponent(name string, stop func(), done <-chan struct{}) *DaemonComponent {
	return &DaemonComponent{
		name: name,
		stop: stop,
		done: done,
	}
}

// Name returns the component name.
func (c *DaemonComponent) Name() string {
	return c.name
}

// Shutdown requests the stop and waits for the loop to exit or the
// context deadline, whichever comes first.
func (c *DaemonComponent) Shutdown(ctx context.Context) error {
	c.stop()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FuncComponent adapts a bare function into a shutdown component, for
// one-off cleanup like closing a log file.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a function-backed shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{
		name: name,
		fn:   fn,
	}
}

// Name returns the component name.
func (c *FuncComponent) Name() string {
	return c.name
}

// Shutdown calls the wrapped function.
func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}
