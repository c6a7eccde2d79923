//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttr puts the child in its own process group so the whole build
// tree can be signalled at once.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// signalProcessGroup sends sig to the process group of pid, falling back to
// pid alone when the group cannot be resolved.
func signalProcessGroup(pid int, sig unix.Signal) error {
	pgid, err := unix.Getpgid(pid)
	if err == nil && pgid > 0 {
		return unix.Kill(-pgid, sig)
	}
	return unix.Kill(pid, sig)
}

func signalTerm(pid int) error {
	return signalProcessGroup(pid, unix.SIGTERM)
}

func signalKill(pid int) error {
	return signalProcessGroup(pid, unix.SIGKILL)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

// setupJobObject is a no-op on Unix; process groups are handled by the kernel.
func setupJobObject(*exec.Cmd) error {
	return nil
}

func cleanupJobObject(int) {}
