package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrNotFound reports that a command could not be resolved to an executable.
var ErrNotFound = errors.New("command not found")

// Spec describes one child process.
type Spec struct {
	// Path is the resolved executable; see Resolve.
	Path string
	Argv []string
	Dir  string
	Env  []string

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Pgid is the group to join; zero makes the child lead a new group.
	Pgid int
	// Foreground asks the child to take the terminal behind Ctty before exec.
	Foreground bool
	// Ctty is the interpreter's terminal descriptor, or -1 without one.
	Ctty int
}

// Resolve maps a command name onto an executable path.
func Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty command: %w", ErrNotFound)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return path, nil
}

// Start launches the child and returns its pid. The child's handle is
// released immediately; the caller tracks it by pid and the reaper collects
// it.
func Start(spec Spec) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, errors.New("start process: empty argument list")
	}
	path := spec.Path
	if path == "" {
		resolved, err := Resolve(spec.Argv[0])
		if err != nil {
			return 0, err
		}
		path = resolved
	}

	attr := &os.ProcAttr{
		Dir:   spec.Dir,
		Env:   spec.Env,
		Files: []*os.File{stdioOr(spec.Stdin, os.Stdin), stdioOr(spec.Stdout, os.Stdout), stdioOr(spec.Stderr, os.Stderr)},
		Sys:   groupSysProcAttr(spec.Pgid, spec.Foreground, spec.Ctty),
	}

	proc, err := os.StartProcess(path, spec.Argv, attr)
	if err != nil {
		return 0, fmt.Errorf("start %s: %w", spec.Argv[0], err)
	}
	pid := proc.Pid
	if err := proc.Release(); err != nil {
		return pid, fmt.Errorf("release %s: %w", spec.Argv[0], err)
	}
	return pid, nil
}

func stdioOr(f, fallback *os.File) *os.File {
	if f != nil {
		return f
	}
	return fallback
}
