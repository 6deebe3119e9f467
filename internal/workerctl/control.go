package workerctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"funnel/internal/config"
	"funnel/internal/worker"
)

// ErrNotRunning indicates no worker process holds the instance lock.
var ErrNotRunning = errors.New("worker not running")

// StartState describes the outcome of a start request.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures worker start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures worker stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached worker daemon process and releases the handle.
// The child acquires the instance lock itself; if another worker already
// holds it the child exits quietly.
func Launch(executablePath, configPath string) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfg := strings.TrimSpace(configPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	proc.Stdout = nil
	proc.Stderr = nil
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch worker: %w", err)
	}
	return proc.Process.Release()
}

// Running reports whether a worker currently holds the instance lock, along
// with its PID when the pid file is readable.
func Running(cfg *config.Config) (bool, int, error) {
	lock := flock.New(filepath.Join(cfg.Paths.QueueDir, worker.LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("probe worker lock: %w", err)
	}
	if ok {
		// Nobody held it; let go immediately.
		_ = lock.Unlock()
		return false, 0, nil
	}
	pid, _ := ReadPID(cfg)
	return true, pid, nil
}

// ReadPID reads the worker pid file. Returns 0 when the file is absent or
// unparseable.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(cfg.WorkerPIDPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// EnsureStarted launches the worker unless one is already running.
func EnsureStarted(cfg *config.Config, executablePath, configPath string, waitTimeout time.Duration) (StartResult, error) {
	running, pid, err := Running(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}

	if err := Launch(executablePath, configPath); err != nil {
		return StartResult{}, err
	}
	pid, err = WaitForStart(cfg, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: pid}, nil
}

// WaitForStart polls until a worker holds the instance lock or the timeout
// expires. Returns the worker PID when known.
func WaitForStart(cfg *config.Config, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, pid, err := Running(cfg)
		if err != nil {
			return 0, err
		}
		if running {
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return 0, fmt.Errorf("worker failed to start within %s", timeout)
}

// WaitForStop polls until no worker holds the instance lock or the timeout
// expires.
func WaitForStop(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, _, err := Running(cfg)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("worker still running after %s", timeout)
}

// Stop signals the running worker with SIGTERM and waits for it to drain.
// If it is still alive after gracePeriod it gets SIGKILL. Returns
// ErrNotRunning when no worker holds the lock.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := Running(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("worker is running but its pid is unknown (pid file: %s)", cfg.WorkerPIDPath())
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			// Process already gone; the lock will clear with it.
			return StopResult{PID: pid}, nil
		}
		return StopResult{}, fmt.Errorf("signal worker %d: %w", pid, err)
	}

	if err := WaitForStop(cfg, gracePeriod); err == nil {
		return StopResult{PID: pid}, nil
	}

	if killErr := syscall.Kill(pid, syscall.SIGKILL); killErr != nil && !errors.Is(killErr, syscall.ESRCH) {
		return StopResult{PID: pid}, fmt.Errorf("force-kill worker %d: %w", pid, killErr)
	}
	_ = os.Remove(cfg.WorkerPIDPath())
	return StopResult{PID: pid, ForcedKill: true}, nil
}

// Restart stops the worker if running, then starts a fresh one.
func Restart(cfg *config.Config, executablePath, configPath string, gracePeriod, startTimeout time.Duration) (StartResult, error) {
	if _, err := Stop(cfg, gracePeriod); err != nil && !errors.Is(err, ErrNotRunning) {
		return StartResult{}, err
	}
	return EnsureStarted(cfg, executablePath, configPath, startTimeout)
}
