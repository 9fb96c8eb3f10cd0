//go:build unix

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup makes the child the leader of a new group whose id equals
// its pid, so descendants can be signaled together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals every member of the child's group. The group outlives
// its leader, so this works after the leader has been reaped.
func signalGroup(cmd *exec.Cmd, sig unix.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, sig)
}

func terminateGroup(cmd *exec.Cmd) { signalGroup(cmd, unix.SIGTERM) }

func killGroup(cmd *exec.Cmd) { signalGroup(cmd, unix.SIGKILL) }
