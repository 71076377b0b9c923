package workspace

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/randalmurphal/orc/internal/config"
	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/task"
)

// fakeRunner simulates a docker container by pointing at an httptest server
// that serves /health and /execute, so SetupSandbox's health wait succeeds
// without shelling out to a real container runtime.
type fakeRunner struct {
	server   *httptest.Server
	started  int
	stopped  int
	failNext bool
}

func newFakeRunner(healthy bool) *fakeRunner {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	return &fakeRunner{server: httptest.NewServer(mux)}
}

func (f *fakeRunner) Start(ctx context.Context, spec ContainerSpec) (string, int, error) {
	if f.failNext {
		return "", 0, fmt.Errorf("simulated start failure")
	}
	f.started++
	u := strings.TrimPrefix(f.server.URL, "http://127.0.0.1:")
	port, err := strconv.Atoi(u)
	if err != nil {
		return "", 0, err
	}
	return "fake-container-" + spec.TaskID, port, nil
}

func (f *fakeRunner) Stop(ctx context.Context, containerID string) error {
	f.stopped++
	return nil
}

func newSandboxTestManager(t *testing.T, runner ContainerRunner) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Sandbox.Enabled = true
	cfg.Sandbox.FallbackMode = "graceful"
	pub := events.NewMemoryPublisher()
	t.Cleanup(pub.Close)
	m := New(t.TempDir(), nil, cfg, nil, pub, nil)
	m.runner = runner
	return m
}

func TestSetupSandbox_HealthySucceeds(t *testing.T) {
	runner := newFakeRunner(true)
	defer runner.server.Close()
	m := newSandboxTestManager(t, runner)

	ws := &Workspace{TaskID: "TASK-001", Path: t.TempDir(), Branch: "task/001-x"}
	sb, err := m.SetupSandbox(context.Background(), &task.Task{ID: "TASK-001"}, ws)
	if err != nil {
		t.Fatalf("SetupSandbox() error = %v", err)
	}
	if sb.Fallback {
		t.Error("sandbox should not be in fallback mode when healthy")
	}
	if sb.ContainerID == "" {
		t.Error("expected a container ID")
	}
	if runner.started != 1 {
		t.Errorf("runner.started = %d, want 1", runner.started)
	}
}

func TestSetupSandbox_GracefulFallbackOnUnhealthy(t *testing.T) {
	runner := newFakeRunner(false)
	defer runner.server.Close()
	m := newSandboxTestManager(t, runner)
	m.cfg.Sandbox.HealthTimeout = 1 // effectively instant timeout for the test

	ws := &Workspace{TaskID: "TASK-002", Path: t.TempDir(), Branch: "task/002-x"}
	sb, err := m.SetupSandbox(context.Background(), &task.Task{ID: "TASK-002"}, ws)
	if err != nil {
		t.Fatalf("SetupSandbox() with graceful fallback should not error, got: %v", err)
	}
	if !sb.Fallback {
		t.Error("sandbox should report Fallback = true when health check fails under graceful policy")
	}
	if runner.stopped != 1 {
		t.Errorf("runner.stopped = %d, want 1 (container should be torn down on failed health check)", runner.stopped)
	}
}

func TestSetupSandbox_StrictFailsTask(t *testing.T) {
	runner := newFakeRunner(false)
	defer runner.server.Close()
	m := newSandboxTestManager(t, runner)
	m.cfg.Sandbox.FallbackMode = "strict"
	m.cfg.Sandbox.HealthTimeout = 1

	ws := &Workspace{TaskID: "TASK-003", Path: t.TempDir(), Branch: "task/003-x"}
	_, err := m.SetupSandbox(context.Background(), &task.Task{ID: "TASK-003"}, ws)
	if err == nil {
		t.Fatal("SetupSandbox() under strict fallback should error when unhealthy")
	}
}

func TestSetupSandbox_DisabledReturnsNil(t *testing.T) {
	runner := newFakeRunner(true)
	defer runner.server.Close()
	m := newSandboxTestManager(t, runner)
	m.cfg.Sandbox.Enabled = false

	sb, err := m.SetupSandbox(context.Background(), &task.Task{ID: "TASK-004"}, &Workspace{TaskID: "TASK-004", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("SetupSandbox() error = %v", err)
	}
	if sb != nil {
		t.Errorf("SetupSandbox() with sandboxes disabled should return nil, got %+v", sb)
	}
}

func TestCleanup_DestroysSandbox(t *testing.T) {
	runner := newFakeRunner(true)
	defer runner.server.Close()
	m := newSandboxTestManager(t, runner)

	ws := &Workspace{TaskID: "TASK-005", Path: t.TempDir(), Branch: "task/005-x"}
	tk := &task.Task{ID: "TASK-005"}
	if _, err := m.SetupSandbox(context.Background(), tk, ws); err != nil {
		t.Fatalf("SetupSandbox() error = %v", err)
	}

	if err := m.Cleanup(tk); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if runner.stopped != 1 {
		t.Errorf("runner.stopped = %d, want 1", runner.stopped)
	}
}
