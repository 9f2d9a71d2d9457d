//go:build unix

// Package tty owns the interpreter's controlling terminal: its descriptor, the
// interpreter's own line-discipline settings and the foreground process group.
package tty

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNotTerminal is returned by Open when the file is not a terminal.
var ErrNotTerminal = errors.New("not a terminal")

// Manager arbitrates terminal ownership between the interpreter and its jobs.
type Manager struct {
	fd    int
	pgid  int
	shell *term.State

	// Job-control signals are caught, never ignored, so children start with
	// default dispositions.
	sigs chan os.Signal
	done chan struct{}
}

var jobControlSignals = []os.Signal{syscall.SIGTSTP, syscall.SIGTTIN, syscall.SIGTTOU}

// Open takes control of the terminal behind f. The descriptor is duplicated
// and marked close-on-exec so children never inherit it.
func Open(f *os.File) (*Manager, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("duplicate terminal descriptor: %w", err)
	}

	m := &Manager{
		fd:   dup,
		sigs: make(chan os.Signal, 4),
		done: make(chan struct{}),
	}
	signal.Notify(m.sigs, jobControlSignals...)
	go m.swallow()

	sid, err := unix.Getsid(0)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("getsid: %w", err)
	}
	if sid != unix.Getpgrp() {
		if err := unix.Setpgid(0, 0); err != nil && !errors.Is(err, unix.EPERM) {
			m.Close()
			return nil, fmt.Errorf("create interpreter process group: %w", err)
		}
	}
	m.pgid = unix.Getpgrp()

	if err := m.SetForeground(m.pgid); err != nil {
		m.Close()
		return nil, err
	}
	state, err := term.GetState(dup)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("save terminal settings: %w", err)
	}
	m.shell = state
	return m, nil
}

// Detached returns a manager for runs without a controlling terminal. All of
// its operations succeed without effect.
func Detached() *Manager {
	return &Manager{fd: -1, pgid: unix.Getpgrp()}
}

func (m *Manager) swallow() {
	defer close(m.done)
	for range m.sigs {
	}
}

// Fd returns the terminal descriptor, or -1 when detached.
func (m *Manager) Fd() int { return m.fd }

// Group returns the interpreter's own process group.
func (m *Manager) Group() int { return m.pgid }

// ShellMode returns the interpreter's saved terminal settings.
func (m *Manager) ShellMode() *term.State { return m.shell }

// SetForeground makes pgid the terminal's foreground process group. SIGTTOU
// is ignored for the duration of the call since the interpreter may itself be
// in the background when it reclaims the terminal.
func (m *Manager) SetForeground(pgid int) error {
	if m.fd < 0 {
		return nil
	}
	signal.Ignore(syscall.SIGTTOU)
	err := unix.IoctlSetPointerInt(m.fd, unix.TIOCSPGRP, pgid)
	signal.Notify(m.sigs, syscall.SIGTTOU)
	if err != nil {
		return fmt.Errorf("set foreground process group %d: %w", pgid, err)
	}
	return nil
}

// Foreground reports the terminal's current foreground process group.
func (m *Manager) Foreground() (int, error) {
	if m.fd < 0 {
		return m.pgid, nil
	}
	pgid, err := unix.IoctlGetInt(m.fd, unix.TIOCGPGRP)
	if err != nil {
		return 0, fmt.Errorf("get foreground process group: %w", err)
	}
	return pgid, nil
}

// Save captures the terminal's current settings.
func (m *Manager) Save() (*term.State, error) {
	if m.fd < 0 {
		return nil, nil
	}
	state, err := term.GetState(m.fd)
	if err != nil {
		return nil, fmt.Errorf("save terminal settings: %w", err)
	}
	return state, nil
}

// Restore replays previously saved settings. A nil state is a no-op.
func (m *Manager) Restore(state *term.State) error {
	if m.fd < 0 || state == nil {
		return nil
	}
	if err := term.Restore(m.fd, state); err != nil {
		return fmt.Errorf("restore terminal settings: %w", err)
	}
	return nil
}

// Reclaim returns the terminal to the interpreter and restores its settings.
func (m *Manager) Reclaim() error {
	if err := m.SetForeground(m.pgid); err != nil {
		return err
	}
	return m.Restore(m.shell)
}

// Close releases the terminal descriptor.
func (m *Manager) Close() error {
	if m.fd < 0 {
		return nil
	}
	signal.Stop(m.sigs)
	close(m.sigs)
	<-m.done
	err := unix.Close(m.fd)
	m.fd = -1
	if err != nil {
		return fmt.Errorf("close terminal: %w", err)
	}
	return nil
}
