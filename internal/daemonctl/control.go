// Package daemonctl inspects and stops a running usherd from the CLI side:
// IPC probes with PID-file fallbacks.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"usher/internal/config"
	"usher/internal/ipc"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ReadPID returns the daemon PID recorded in the PID file, zero when the
// file is absent.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %q", cfg.PIDPath())
	}
	return pid, nil
}

// ProcessAlive probes a PID with a null signal.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// ProcessInfo reports whether daemon IPC is reachable and the daemon PID
// when available. When the socket is gone it falls back to the PID file.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		if isDaemonUnavailable(err) {
			pid, pidErr := ReadPID(cfg)
			if pidErr != nil {
				return false, 0, pidErr
			}
			return ProcessAlive(pid), pid, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// Stop asks the daemon to shut down: first over IPC, then SIGTERM against
// the PID file. It returns the PID that was told to stop.
func Stop(cfg *config.Config, gracePeriod time.Duration) (int, error) {
	client, err := ipc.Dial(cfg.SocketPath())
	if err == nil {
		status, statusErr := client.Status()
		pid := 0
		if statusErr == nil {
			pid = status.PID
		}
		_, stopErr := client.Stop()
		_ = client.Close()
		if stopErr == nil {
			if pid > 0 {
				_ = unix.Kill(pid, syscall.SIGTERM)
			}
			waitForExit(pid, gracePeriod)
			return pid, nil
		}
	} else if !isDaemonUnavailable(err) {
		return 0, err
	}

	pid, err := ReadPID(cfg)
	if err != nil {
		return 0, err
	}
	if pid == 0 || !ProcessAlive(pid) {
		return 0, ErrDaemonNotRunning
	}
	if err := unix.Kill(pid, syscall.SIGTERM); err != nil {
		return 0, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	waitForExit(pid, gracePeriod)
	return pid, nil
}

func waitForExit(pid int, gracePeriod time.Duration) {
	if pid <= 0 {
		return
	}
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
