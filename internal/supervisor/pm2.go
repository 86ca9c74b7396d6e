package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultLogDir    = "/var/log"
	defaultMaxMemory = "200M"
)

// runFunc executes one supervisor invocation and returns its stdout.
// It exists so tests can run without a pm2 binary.
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

// PM2 drives the pm2 process manager through its CLI. PM2 keeps its own
// state; this type holds nothing but the exec hook and a logger.
type PM2 struct {
	run    runFunc
	logger *slog.Logger
}

// NewPM2 creates a PM2 supervisor.
func NewPM2(logger *slog.Logger) *PM2 {
	if logger == nil {
		logger = slog.Default()
	}
	return &PM2{
		run:    runPM2,
		logger: logger,
	}
}

// runPM2 invokes the real pm2 binary, surfacing stderr in the error.
func runPM2(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pm2", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("pm2 %s: %s: %w", args[0], msg, err)
		}
		return stdout.Bytes(), fmt.Errorf("pm2 %s: %w", args[0], err)
	}
	return stdout.Bytes(), nil
}

// Installed reports whether the pm2 binary answers at all.
func (p *PM2) Installed(ctx context.Context) bool {
	_, err := p.run(ctx, "--version")
	return err == nil
}

// Install writes the ecosystem file for the service, replaces any
// existing service of the same name, starts it, and persists the pm2
// process list so the service comes back after reboot.
func (p *PM2) Install(ctx context.Context, spec ServiceSpec) error {
	if !p.Installed(ctx) {
		return ErrNotInstalled
	}

	if spec.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		spec.WorkDir = wd
	}

	path, err := p.writeEcosystemFile(spec)
	if err != nil {
		return err
	}
	p.logger.Debug("wrote ecosystem file", "path", path)

	// Replace rather than stack: a pre-existing service of this name is
	// stopped and removed first. It usually does not exist.
	if _, err := p.run(ctx, "stop", spec.Name); err != nil {
		p.logger.Debug("no existing service to stop", "name", spec.Name)
	}
	if _, err := p.run(ctx, "delete", spec.Name); err != nil {
		p.logger.Debug("no existing service to delete", "name", spec.Name)
	}

	if _, err := p.run(ctx, "start", path); err != nil {
		return fmt.Errorf("start service %s: %w", spec.Name, err)
	}
	if _, err := p.run(ctx, "save"); err != nil {
		p.logger.Warn("persisting pm2 process list failed", "error", err)
	}

	p.logger.Info("service installed", "name", spec.Name, "ecosystem", path)
	return nil
}

// Start starts an installed service.
func (p *PM2) Start(ctx context.Context, name string) error {
	if _, err := p.run(ctx, "start", name); err != nil {
		return fmt.Errorf("start service %s: %w", name, err)
	}
	return nil
}

// Stop stops the service but keeps it registered.
func (p *PM2) Stop(ctx context.Context, name string) error {
	if _, err := p.run(ctx, "stop", name); err != nil {
		return fmt.Errorf("stop service %s: %w", name, err)
	}
	return nil
}

// Restart restarts the service.
func (p *PM2) Restart(ctx context.Context, name string) error {
	if _, err := p.run(ctx, "restart", name); err != nil {
		return fmt.Errorf("restart service %s: %w", name, err)
	}
	return nil
}

// Delete stops and unregisters the service, then persists the process
// list so it stays gone.
func (p *PM2) Delete(ctx context.Context, name string) error {
	if _, err := p.run(ctx, "stop", name); err != nil {
		p.logger.Debug("service already stopped", "name", name)
	}
	if _, err := p.run(ctx, "delete", name); err != nil {
		return fmt.Errorf("delete service %s: %w", name, err)
	}
	if _, err := p.run(ctx, "save"); err != nil {
		p.logger.Warn("persisting pm2 process list failed", "error", err)
	}
	return nil
}

// Status looks the service up in pm2's process list.
func (p *PM2) Status(ctx context.Context, name string) (*ServiceStatus, error) {
	out, err := p.run(ctx, "jlist")
	if err != nil {
		return nil, fmt.Errorf("query pm2 process list: %w", err)
	}

	var processes []pm2Process
	if err := json.Unmarshal(out, &processes); err != nil {
		return nil, fmt.Errorf("parse pm2 process list: %w", err)
	}

	for _, proc := range processes {
		if proc.Name != name {
			continue
		}
		status := &ServiceStatus{
			Name:        proc.Name,
			PID:         proc.PID,
			Status:      proc.Env.Status,
			Restarts:    proc.Env.Restarts,
			MemoryBytes: proc.Monit.Memory,
			CPUPercent:  proc.Monit.CPU,
		}
		if proc.Env.StartedAtMillis > 0 {
			started := time.UnixMilli(proc.Env.StartedAtMillis)
			status.StartedAt = &started
		}
		return status, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
}

// pm2Process is the slice element of `pm2 jlist` output, reduced to the
// fields the status report uses.
type pm2Process struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
	Env  struct {
		Status          string `json:"status"`
		StartedAtMillis int64  `json:"pm_uptime"`
		Restarts        int    `json:"restart_time"`
	} `json:"pm2_env"`
	Monit struct {
		Memory int64   `json:"memory"`
		CPU    float64 `json:"cpu"`
	} `json:"monit"`
}

// ecosystemApp mirrors pm2's ecosystem file schema.
type ecosystemApp struct {
	Name             string            `json:"name"`
	Script           string            `json:"script"`
	Args             string            `json:"args,omitempty"`
	Cwd              string            `json:"cwd"`
	Env              map[string]string `json:"env,omitempty"`
	ErrorFile        string            `json:"error_file"`
	OutFile          string            `json:"out_file"`
	LogFile          string            `json:"log_file"`
	Time             bool              `json:"time"`
	Autorestart      bool              `json:"autorestart"`
	Watch            bool              `json:"watch"`
	MaxMemoryRestart string            `json:"max_memory_restart"`
	Instances        int               `json:"instances"`
	ExecMode         string            `json:"exec_mode"`
	MinUptime        string            `json:"min_uptime"`
	MaxRestarts      int               `json:"max_restarts"`
}

// writeEcosystemFile renders `<name>.config.js` into the service's
// working directory and returns its path. pm2 evaluates the file as
// JavaScript, so the JSON is wrapped in a module.exports assignment.
func (p *PM2) writeEcosystemFile(spec ServiceSpec) (string, error) {
	logDir := spec.LogDir
	if logDir == "" {
		logDir = defaultLogDir
	}
	maxMemory := spec.MaxMemory
	if maxMemory == "" {
		maxMemory = defaultMaxMemory
	}

	eco := struct {
		Apps []ecosystemApp `json:"apps"`
	}{
		Apps: []ecosystemApp{{
			Name:             spec.Name,
			Script:           spec.Script,
			Args:             spec.Args,
			Cwd:              spec.WorkDir,
			Env:              spec.Env,
			ErrorFile:        filepath.Join(logDir, spec.Name+"-error.log"),
			OutFile:          filepath.Join(logDir, spec.Name+"-out.log"),
			LogFile:          filepath.Join(logDir, spec.Name+".log"),
			Time:             true,
			Autorestart:      true,
			Watch:            false,
			MaxMemoryRestart: maxMemory,
			Instances:        1,
			ExecMode:         "fork",
			MinUptime:        "10s",
			MaxRestarts:      15,
		}},
	}

	buf, err := json.MarshalIndent(eco, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode ecosystem config: %w", err)
	}

	path := filepath.Join(spec.WorkDir, spec.Name+".config.js")
	content := fmt.Sprintf("module.exports = %s;\n", buf)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write ecosystem file: %w", err)
	}
	return path, nil
}
