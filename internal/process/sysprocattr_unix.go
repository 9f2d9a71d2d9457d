//go:build unix

package process

import (
	"syscall"
)

// groupSysProcAttr places the child in pgid, or in a new group it leads when
// pgid is zero. Foreground children also claim the terminal behind ctty.
func groupSysProcAttr(pgid int, foreground bool, ctty int) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	if foreground && ctty >= 0 {
		attr.Foreground = true
		attr.Ctty = ctty
	}
	return attr
}
