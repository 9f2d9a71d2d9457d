//go:build unix

package process

import (
	"errors"
	"fmt"
	"syscall"
)

// Signaller delivers a signal to a whole process group.
type Signaller func(pgid int, sig syscall.Signal) error

// SignalGroup sends sig to every member of pgid. A group that no longer
// exists is not an error.
func SignalGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 0 {
		return fmt.Errorf("signal process group %d: invalid group", pgid)
	}
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal process group %d with %s: %w", pgid, sig, err)
	}
	return nil
}

// Terminate asks the group to exit with SIGTERM. A stopped group is also sent
// SIGCONT, since it cannot act on the termination until it runs again.
func Terminate(send Signaller, pgid int, stopped bool) error {
	if send == nil {
		send = SignalGroup
	}
	if err := send(pgid, syscall.SIGTERM); err != nil {
		return err
	}
	if stopped {
		return send(pgid, syscall.SIGCONT)
	}
	return nil
}

// Kill forcibly ends the group with SIGKILL.
func Kill(send Signaller, pgid int) error {
	if send == nil {
		send = SignalGroup
	}
	return send(pgid, syscall.SIGKILL)
}
