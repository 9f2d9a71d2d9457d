package jobs

import (
	"fmt"
	"syscall"
)

// State is the lifecycle state shared by processes and jobs.
type State int

const (
	Running State = iota
	Stopped
	Finished

	// All matches every state when passed to Report.
	All State = -1
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Finished:
		return "finished"
	case All:
		return "all"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind classifies a single child status change.
type Kind int

const (
	KindExited Kind = iota
	KindSignaled
	KindStopped
	KindContinued
)

func (k Kind) String() string {
	switch k {
	case KindExited:
		return "exited"
	case KindSignaled:
		return "signaled"
	case KindStopped:
		return "stopped"
	case KindContinued:
		return "continued"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is a decoded wait status. Code is meaningful for KindExited and
// Signal for KindSignaled and KindStopped.
type Result struct {
	Kind   Kind
	Code   int
	Signal syscall.Signal
}

// Exited builds the result of a normal exit.
func Exited(code int) Result { return Result{Kind: KindExited, Code: code} }

// Signaled builds the result of a termination by signal.
func Signaled(sig syscall.Signal) Result { return Result{Kind: KindSignaled, Signal: sig} }

// StoppedBy builds the result of a stop by signal.
func StoppedBy(sig syscall.Signal) Result { return Result{Kind: KindStopped, Signal: sig} }

// Continued builds the result of a resume.
func Continued() Result { return Result{Kind: KindContinued} }

// State maps the status change onto the process state it produces.
func (r Result) State() State {
	switch r.Kind {
	case KindStopped:
		return Stopped
	case KindContinued:
		return Running
	default:
		return Finished
	}
}

// ExitCode folds the result into a shell exit code. Terminating and stopping
// signals map to 128+signal.
func (r Result) ExitCode() int {
	switch r.Kind {
	case KindExited:
		return r.Code
	case KindSignaled, KindStopped:
		return 128 + int(r.Signal)
	default:
		return 0
	}
}
