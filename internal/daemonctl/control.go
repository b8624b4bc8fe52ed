package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"attentionguard/internal/ipc"
)

const pollInterval = 100 * time.Millisecond

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	LogLevel   string
}

// StartResult reports how EnsureStarted reached a running daemon.
type StartResult struct {
	AlreadyRunning bool
	PID            int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for the IPC socket to accept connections.
func WaitForClient(ctx context.Context, socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("daemon did not become reachable: %w", lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// EnsureStarted launches the daemon unless it already answers on socketPath.
func EnsureStarted(ctx context.Context, executablePath string, opts LaunchOptions, timeout time.Duration) (StartResult, error) {
	if pid, err := ProcessInfo(ctx, opts.SocketPath); err == nil {
		return StartResult{AlreadyRunning: true, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(ctx, opts.SocketPath, timeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()
	status, err := client.Status(ctx)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{PID: status.PID}, nil
}

// ProcessInfo returns the pid of the daemon answering on socketPath, or
// ErrDaemonNotRunning.
func ProcessInfo(ctx context.Context, socketPath string) (int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return 0, ErrDaemonNotRunning
		}
		return 0, err
	}
	defer client.Close()
	status, err := client.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.PID, nil
}

// WaitForShutdown waits until nothing answers on socketPath.
func WaitForShutdown(ctx context.Context, socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := ProcessInfo(ctx, socketPath); errors.Is(err, ErrDaemonNotRunning) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not stop within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Stop sends SIGTERM to the daemon and SIGKILL if it is still alive after
// gracePeriod.
func Stop(ctx context.Context, socketPath string, gracePeriod time.Duration) (StopResult, error) {
	pid, err := ProcessInfo(ctx, socketPath)
	if err != nil {
		return StopResult{}, err
	}
	if pid <= 0 || pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal pid %d", pid)
	}
	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if err := WaitForShutdown(ctx, socketPath, gracePeriod); err == nil {
		return result, nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	return result, nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// StopPID terminates a daemon that no longer answers on its socket. It sends
// SIGTERM, waits up to gracePeriod for the process to exit, then SIGKILLs it.
func StopPID(ctx context.Context, pid int, gracePeriod time.Duration) (StopResult, error) {
	if pid <= 0 || pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal pid %d", pid)
	}
	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, ErrDaemonNotRunning
		}
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	deadline := time.Now().Add(gracePeriod)
	for Alive(pid) {
		if time.Now().After(deadline) {
			if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
			}
			result.ForcedKill = true
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return result, nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED)
}
