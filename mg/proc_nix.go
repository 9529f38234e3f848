//go:build !windows

package mg

import (
	"os"
	"syscall"
)

var (
	pgSysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
)

// pgKill kills the process group led by p
func pgKill(p *os.Process) {
	if p == nil {
		return
	}
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		p.Kill()
	}
}
