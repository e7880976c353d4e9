package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
)

// Status is the lifecycle state of a bridge process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// Default timings applied to zero Spec fields.
const (
	DefaultRestartDelay    = 5 * time.Second
	DefaultMaxRestartDelay = 5 * time.Minute
	DefaultStableThreshold = 2 * time.Minute
	DefaultGracefulTimeout = 10 * time.Second
)

var (
	// ErrAlreadyRunning is returned by Start on a running process.
	ErrAlreadyRunning = errors.New("bridge process already running")

	// ErrUnexpectedExit wraps the exit status of a process that stopped
	// without being asked to.
	ErrUnexpectedExit = errors.New("bridge process exited unexpectedly")
)

// Spec describes one bridge executable.
type Spec struct {
	Name    string
	Binary  string
	Args    []string
	Env     []string // appended to the parent environment
	WorkDir string

	// RestartDelay is the first restart delay. It doubles on each
	// consecutive failure up to MaxRestartDelay and resets once a run
	// lasts StableThreshold.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	StableThreshold time.Duration

	// MaxRestarts of 0 restarts forever.
	MaxRestarts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// FromConfig maps one bridges.processes entry.
func FromConfig(c config.BridgeProcessConfig) Spec {
	return Spec{
		Name:         c.Name,
		Binary:       c.Binary,
		Args:         c.Args,
		Env:          c.Env,
		WorkDir:      c.WorkDir,
		RestartDelay: time.Duration(c.RestartDelay) * time.Second,
		MaxRestarts:  c.MaxRestarts,
	}
}

func (s Spec) withDefaults() Spec {
	if s.RestartDelay <= 0 {
		s.RestartDelay = DefaultRestartDelay
	}
	if s.MaxRestartDelay < s.RestartDelay {
		s.MaxRestartDelay = max(DefaultMaxRestartDelay, s.RestartDelay)
	}
	if s.StableThreshold <= 0 {
		s.StableThreshold = DefaultStableThreshold
	}
	if s.GracefulTimeout <= 0 {
		s.GracefulTimeout = DefaultGracefulTimeout
	}
	return s
}

// Logger is the logging surface the launcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a point-in-time view of one process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Process runs one bridge executable and restarts it when it exits.
type Process struct {
	spec    Spec
	logger  Logger
	metrics *metrics.Recorder

	mu       sync.RWMutex
	cmd      *exec.Cmd
	status   Status
	started  time.Time
	restarts int
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a stopped process.
func New(spec Spec, logger Logger) *Process {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Process{spec: spec.withDefaults(), logger: logger, status: StatusStopped}
}

// SetMetrics sets the recorder used for restart counts.
func (p *Process) SetMetrics(rec *metrics.Recorder) {
	p.metrics = rec
}

// Start launches the executable and supervises it until ctx is cancelled
// or Stop is called. An error means the first launch failed.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.status == StatusRunning || p.status == StatusStarting {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, p.spec.Name)
	}
	p.status = StatusStarting
	p.mu.Unlock()

	exited, err := p.launch()
	if err != nil {
		p.setStatus(StatusFailed, err)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.supervise(ctx, exited, done)
	return nil
}

// Stop terminates the process (SIGTERM to its process group, then SIGKILL
// after GracefulTimeout) and waits for supervision to end.
func (p *Process) Stop() {
	p.mu.RLock()
	cancel, done := p.cancel, p.done
	p.mu.RUnlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when supervision has ended, either after Stop or after
// MaxRestarts was exhausted. It is nil before Start.
func (p *Process) Done() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.done
}

// Status returns the current status.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// RestartCount returns how many times the process was relaunched.
func (p *Process) RestartCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.restarts
}

// LastError returns the reason of the last unexpected exit.
func (p *Process) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Stats returns a snapshot for reporting.
func (p *Process) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Stats{Name: p.spec.Name, Status: p.status, Restarts: p.restarts}
	if p.status == StatusRunning {
		st.Uptime = time.Since(p.started)
		if p.cmd != nil && p.cmd.Process != nil {
			st.PID = p.cmd.Process.Pid
		}
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

// launch starts one run. The returned channel yields the exit status once
// the output streams are drained.
func (p *Process) launch() (<-chan error, error) {
	cmd := exec.Command(p.spec.Binary, p.spec.Args...) //nolint:gosec // binary comes from process config
	// Own process group so shutdown reaches the bridge's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(p.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), p.spec.Env...)
	}
	cmd.Dir = p.spec.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", p.spec.Name, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.status = StatusRunning
	p.started = time.Now()
	p.mu.Unlock()

	p.logger.Info("bridge process started", "name", p.spec.Name, "pid", cmd.Process.Pid)

	var streams sync.WaitGroup
	streams.Add(2)
	go p.capture("stdout", stdout, &streams)
	go p.capture("stderr", stderr, &streams)

	exited := make(chan error, 1)
	go func() {
		// Wait must not run before the pipes are drained.
		streams.Wait()
		exited <- cmd.Wait()
	}()
	return exited, nil
}

func (p *Process) capture(stream string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Info("bridge output", "name", p.spec.Name, "stream", stream, "line", scanner.Text())
	}
}

func (p *Process) supervise(ctx context.Context, exited <-chan error, done chan struct{}) {
	defer close(done)
	delay := p.spec.RestartDelay

	for {
		select {
		case <-ctx.Done():
			p.terminate(exited)
			p.setStatus(StatusStopped, nil)
			p.logger.Info("bridge process stopped", "name", p.spec.Name)
			return

		case err := <-exited:
			p.mu.RLock()
			uptime := time.Since(p.started)
			restarts := p.restarts
			p.mu.RUnlock()

			exitErr := fmt.Errorf("%w: %v", ErrUnexpectedExit, err)
			if err == nil {
				exitErr = fmt.Errorf("%w: status 0", ErrUnexpectedExit)
			}
			p.setStatus(StatusFailed, exitErr)
			p.logger.Warn("bridge process exited", "name", p.spec.Name, "error", err, "uptime", uptime)

			if uptime >= p.spec.StableThreshold {
				delay = p.spec.RestartDelay
			}
			if p.spec.MaxRestarts > 0 && restarts >= p.spec.MaxRestarts {
				p.logger.Error("bridge process restart limit reached", "name", p.spec.Name, "restarts", restarts)
				return
			}

			select {
			case <-ctx.Done():
				p.setStatus(StatusStopped, exitErr)
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, p.spec.MaxRestartDelay)

			p.mu.Lock()
			p.restarts++
			p.mu.Unlock()
			p.metrics.Incr(metrics.BridgeRestart, metrics.Tag("name", p.spec.Name))
			p.logger.Info("restarting bridge process", "name", p.spec.Name, "attempt", restarts+1)

			next, launchErr := p.launch()
			if launchErr != nil {
				p.logger.Error("bridge process restart failed", "name", p.spec.Name, "error", launchErr)
				failed := make(chan error, 1)
				failed <- launchErr
				p.mu.Lock()
				p.started = time.Now()
				p.mu.Unlock()
				next = failed
			}
			exited = next
		}
	}
}

// terminate signals the process group and waits for the run to end.
func (p *Process) terminate(exited <-chan error) {
	p.mu.RLock()
	cmd := p.cmd
	running := p.status == StatusRunning
	p.mu.RUnlock()

	if !running || cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("failed to signal bridge process", "name", p.spec.Name, "error", err)
	}

	select {
	case <-exited:
		return
	case <-time.After(p.spec.GracefulTimeout):
		p.logger.Warn("bridge process ignored SIGTERM, killing", "name", p.spec.Name, "timeout", p.spec.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("failed to kill bridge process", "name", p.spec.Name, "error", err)
	}
	<-exited
}

func (p *Process) setStatus(s Status, err error) {
	p.mu.Lock()
	p.status = s
	if err != nil {
		p.lastErr = err
	}
	p.mu.Unlock()
}
