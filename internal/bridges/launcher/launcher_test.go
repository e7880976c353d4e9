package launcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
)

// ─── Mock Dependencies ───

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprint(level, " ", msg, " ", args))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args...) }

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// ─── Helper ───

func shell(name, script string) Spec {
	return Spec{
		Name:            name,
		Binary:          "/bin/sh",
		Args:            []string{"-c", script},
		RestartDelay:    10 * time.Millisecond,
		MaxRestartDelay: 20 * time.Millisecond,
		GracefulTimeout: 200 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("supervision did not end")
	}
}

// ─── Tests ───

func TestSpecDefaults(t *testing.T) {
	p := New(Spec{Name: "hue", Binary: "/usr/bin/hue-bridge"}, nil)

	if p.spec.RestartDelay != DefaultRestartDelay {
		t.Errorf("RestartDelay = %v, want %v", p.spec.RestartDelay, DefaultRestartDelay)
	}
	if p.spec.MaxRestartDelay != DefaultMaxRestartDelay {
		t.Errorf("MaxRestartDelay = %v, want %v", p.spec.MaxRestartDelay, DefaultMaxRestartDelay)
	}
	if p.spec.StableThreshold != DefaultStableThreshold {
		t.Errorf("StableThreshold = %v, want %v", p.spec.StableThreshold, DefaultStableThreshold)
	}
	if p.spec.GracefulTimeout != DefaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", p.spec.GracefulTimeout, DefaultGracefulTimeout)
	}
	if p.Status() != StatusStopped {
		t.Errorf("Status() = %s, want stopped", p.Status())
	}
}

func TestFromConfig(t *testing.T) {
	spec := FromConfig(config.BridgeProcessConfig{
		Name:         "nest",
		Binary:       "/opt/bridges/nest",
		Args:         []string{"--prefix", "graylogic"},
		RestartDelay: 3,
		MaxRestarts:  4,
	})

	if spec.RestartDelay != 3*time.Second {
		t.Errorf("RestartDelay = %v, want 3s", spec.RestartDelay)
	}
	if spec.MaxRestarts != 4 || spec.Name != "nest" || len(spec.Args) != 2 {
		t.Errorf("FromConfig() = %+v", spec)
	}
}

func TestProcess_StartStop(t *testing.T) {
	log := &recordingLogger{}
	p := New(shell("lighting", "echo bridge-ready; exec sleep 30"), log)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Status() != StatusRunning {
		t.Errorf("Status() = %s, want running", p.Status())
	}
	if st := p.Stats(); st.PID == 0 || st.Name != "lighting" {
		t.Errorf("Stats() = %+v, want a PID", st)
	}

	waitFor(t, "captured output", func() bool { return log.contains("bridge-ready") })

	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	p.Stop()
	if p.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %s, want stopped", p.Status())
	}
	if p.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", p.RestartCount())
	}
}

func TestProcess_StopBeforeStart(t *testing.T) {
	p := New(shell("idle", "true"), nil)
	p.Stop()
	if p.Done() != nil {
		t.Error("Done() should be nil before Start")
	}
}

func TestProcess_MissingBinary(t *testing.T) {
	p := New(Spec{Name: "ghost", Binary: "/nonexistent/bridge"}, nil)

	if err := p.Start(context.Background()); err == nil {
		t.Fatal("Start should fail for a missing binary")
	}
	if p.Status() != StatusFailed {
		t.Errorf("Status() = %s, want failed", p.Status())
	}
	if p.LastError() == nil {
		t.Error("LastError() should be set")
	}
}

func TestProcess_RestartLimit(t *testing.T) {
	spec := shell("flaky", "exit 3")
	spec.MaxRestarts = 2
	p := New(spec, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p)

	if got := p.RestartCount(); got != 2 {
		t.Errorf("RestartCount() = %d, want 2", got)
	}
	if p.Status() != StatusFailed {
		t.Errorf("Status() = %s, want failed", p.Status())
	}
	if !errors.Is(p.LastError(), ErrUnexpectedExit) {
		t.Errorf("LastError() = %v, want ErrUnexpectedExit", p.LastError())
	}
}

func TestProcess_StopEscalatesToKill(t *testing.T) {
	spec := shell("stubborn", `trap "" TERM; while :; do sleep 0.05; done`)
	p := New(spec, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after SIGKILL")
	}
	if p.Status() != StatusStopped {
		t.Errorf("Status() = %s, want stopped", p.Status())
	}
}

func TestProcess_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(shell("ctx", "exec sleep 30"), nil)

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitDone(t, p)

	if p.Status() != StatusStopped {
		t.Errorf("Status() = %s, want stopped", p.Status())
	}
}

func TestGroup(t *testing.T) {
	g := NewGroup([]config.BridgeProcessConfig{
		{Name: "lighting", Binary: "/bin/sh", Args: []string{"-c", "exec sleep 30"}},
		{Name: "missing", Binary: "/nonexistent/bridge"},
		{Name: "audio", Binary: "/bin/sh", Args: []string{"-c", "exec sleep 30"}},
	}, nil, nil)

	if g.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", g.Len())
	}

	err := g.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("Start error = %v, want the missing bridge reported", err)
	}

	stats := g.Stats()
	if len(stats) != 3 {
		t.Fatalf("Stats() len = %d, want 3", len(stats))
	}
	if stats[0].Status != StatusRunning || stats[2].Status != StatusRunning {
		t.Errorf("healthy bridges should be running: %+v", stats)
	}
	if stats[1].Status != StatusFailed {
		t.Errorf("missing bridge status = %s, want failed", stats[1].Status)
	}

	g.Stop()
	for _, st := range g.Stats() {
		if st.Status == StatusRunning {
			t.Errorf("%s still running after Stop", st.Name)
		}
	}
}
