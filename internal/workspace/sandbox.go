package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/executor"
	"github.com/randalmurphal/orc/internal/task"
)

// ContainerRunner starts and stops sandbox containers. The only
// implementation shipped is DockerRunner; tests substitute a fake.
//
// No container-orchestration SDK appears anywhere in the example corpus
// (see DESIGN.md), so this follows the same pattern internal/git uses for
// git itself: shell out to the `docker` CLI rather than hand-roll a client
// for the Docker Engine API.
type ContainerRunner interface {
	Start(ctx context.Context, spec ContainerSpec) (containerID string, hostPort int, err error)
	Stop(ctx context.Context, containerID string) error
}

// ContainerSpec describes the sandbox container to start for a task.
type ContainerSpec struct {
	TaskID      string
	Image       string
	WorkDir     string // host path bind-mounted into the container
	CPULimit    string
	MemoryLimit string
	PidsLimit   int
	Network     string
	Env         map[string]string
}

// DockerRunner starts sandbox containers via the docker CLI.
type DockerRunner struct {
	binary string
}

// NewDockerRunner constructs a DockerRunner using the "docker" binary on PATH.
func NewDockerRunner() *DockerRunner {
	return &DockerRunner{binary: "docker"}
}

// Start runs `docker run` with a read-only root filesystem, a writable
// /tmp and /workspace/.cache tmpfs overlay, every capability dropped, CPU/
// memory/pids limits, and a publish-to-random-host-port mapping for the
// sandbox's HTTP agent server. It returns the container ID and the
// host-side port AGENT_PORT was published to.
func (r *DockerRunner) Start(ctx context.Context, spec ContainerSpec) (string, int, error) {
	const agentPort = 9001

	args := []string{
		"run", "-d",
		"--name", fmt.Sprintf("orc-sandbox-%s", strings.ToLower(spec.TaskID)),
		"--read-only",
		"--tmpfs", "/tmp:rw,size=256m",
		"--tmpfs", "/workspace/.cache:rw,size=256m",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"-p", fmt.Sprintf("127.0.0.1::%d", agentPort),
		"-v", fmt.Sprintf("%s:/workspace:rw", spec.WorkDir),
	}
	if spec.CPULimit != "" {
		args = append(args, "--cpus", spec.CPULimit)
	}
	if spec.MemoryLimit != "" {
		args = append(args, "--memory", spec.MemoryLimit)
	}
	if spec.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(spec.PidsLimit))
	}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	for k, v := range spec.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, spec.Image)

	out, err := exec.CommandContext(ctx, r.binary, args...).CombinedOutput()
	if err != nil {
		return "", 0, fmt.Errorf("docker run: %w: %s", err, strings.TrimSpace(string(out)))
	}
	containerID := strings.TrimSpace(string(out))

	hostPort, err := r.publishedPort(ctx, containerID, agentPort)
	if err != nil {
		_ = r.Stop(ctx, containerID)
		return "", 0, err
	}

	return containerID, hostPort, nil
}

func (r *DockerRunner) publishedPort(ctx context.Context, containerID string, containerPort int) (int, error) {
	out, err := exec.CommandContext(ctx, r.binary, "port", containerID, strconv.Itoa(containerPort)).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("docker port: %w: %s", err, strings.TrimSpace(string(out)))
	}
	// Output looks like "127.0.0.1:54321".
	line := strings.TrimSpace(strings.Split(string(out), "\n")[0])
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return 0, fmt.Errorf("unexpected docker port output: %q", line)
	}
	port, err := strconv.Atoi(line[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("parse published port %q: %w", line, err)
	}
	return port, nil
}

// Stop stops and removes containerID, ignoring errors from a container
// that is already gone.
func (r *DockerRunner) Stop(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	_ = exec.CommandContext(ctx, r.binary, "stop", "-t", "5", containerID).Run()
	if out, err := exec.CommandContext(ctx, r.binary, "rm", "-f", containerID).CombinedOutput(); err != nil {
		if !strings.Contains(string(out), "No such container") {
			return fmt.Errorf("docker rm %s: %w: %s", containerID, err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// SetupSandbox starts a resource-limited container for t, mounting ws's
// worktree, and waits for its agent HTTP server to report healthy. On
// failure, it applies the configured fallback policy: "strict" returns an
// error (the caller should fail the task); "graceful" returns a Sandbox
// with Fallback set so the caller executes the stage in-process instead.
func (m *Manager) SetupSandbox(ctx context.Context, t *task.Task, ws *Workspace) (*Sandbox, error) {
	if !m.cfg.Sandbox.Enabled {
		return nil, nil
	}
	if ws == nil {
		return nil, fmt.Errorf("workspace: nil workspace")
	}

	if err := m.sandboxSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire sandbox slot: %w", err)
	}

	m.publish(t.ID, events.EventSandboxStartStarted, events.PriorityNormal, events.SandboxEvent{Image: m.cfg.Sandbox.Image})

	spec := ContainerSpec{
		TaskID:      t.ID,
		Image:       m.cfg.Sandbox.Image,
		WorkDir:     ws.Path,
		CPULimit:    m.cfg.Sandbox.CPULimit,
		MemoryLimit: m.cfg.Sandbox.MemoryLimit,
		PidsLimit:   m.cfg.Sandbox.PidsLimit,
		Network:     m.cfg.Sandbox.Network,
		Env: map[string]string{
			"AGENT_PORT": "9001",
		},
	}

	containerID, hostPort, err := m.runner.Start(ctx, spec)
	if err != nil {
		m.sandboxSem.Release(1)
		return m.sandboxFailure(t, containerID, err)
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", hostPort)
	sbExecutor := executor.NewSandboxExecutor(baseURL, nil)

	healthCtx, cancel := context.WithTimeout(ctx, m.healthTimeout())
	defer cancel()
	if !waitHealthy(healthCtx, sbExecutor) {
		_ = m.runner.Stop(ctx, containerID)
		m.sandboxSem.Release(1)
		return m.sandboxFailure(t, containerID, fmt.Errorf("sandbox did not become healthy within %s", m.healthTimeout()))
	}

	sb := &Sandbox{TaskID: t.ID, ContainerID: containerID, BaseURL: baseURL}
	m.trackSandbox(sb)
	m.publish(t.ID, events.EventSandboxStartFinished, events.PriorityNormal, events.SandboxEvent{ContainerID: containerID, Image: m.cfg.Sandbox.Image})
	return sb, nil
}

func (m *Manager) healthTimeout() time.Duration {
	if m.cfg.Sandbox.HealthTimeout > 0 {
		return m.cfg.Sandbox.HealthTimeout
	}
	return 30 * time.Second
}

func (m *Manager) sandboxFailure(t *task.Task, containerID string, cause error) (*Sandbox, error) {
	m.publish(t.ID, events.EventSandboxStartFinished, events.PriorityHigh, events.SandboxEvent{ContainerID: containerID, Image: m.cfg.Sandbox.Image, Error: cause.Error()})

	switch FallbackMode(m.cfg.Sandbox.FallbackMode) {
	case FallbackStrict:
		return nil, fmt.Errorf("sandbox setup failed for %s: %w", t.ID, cause)
	default:
		m.taskLogger(t).Warn("sandbox setup failed, falling back to in-process execution", "error", cause)
		sb := &Sandbox{TaskID: t.ID, Fallback: true}
		m.trackSandbox(sb)
		return sb, nil
	}
}

func waitHealthy(ctx context.Context, sbExecutor *executor.SandboxExecutor) bool {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if sbExecutor.Healthy(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (m *Manager) destroySandbox(sb *Sandbox) error {
	if sb == nil || sb.Fallback || sb.ContainerID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return m.runner.Stop(ctx, sb.ContainerID)
}
