// Package reaper collects child status changes and hands them to the
// interpreter as structured events.
//
// The reaper runs in its own goroutine, woken by SIGCHLD. Every wake-up drains
// all pending changes with a non-blocking wait4 and appends them to a queue.
// The queue has a single consumer, the interpreter's main flow, which applies
// the events to its job table. The reaper never touches the table itself.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/jobsh/internal/jobs"
)

// Event is one status change of one child process.
type Event struct {
	Pid    int
	Result jobs.Result
}

type waitFunc func(pid int, status *unix.WaitStatus, options int, rusage *unix.Rusage) (int, error)

// Reaper turns SIGCHLD deliveries into a queue of events.
type Reaper struct {
	wait waitFunc

	// gate is held while reaping is suspended and while a drain runs.
	gate sync.Mutex

	mu    sync.Mutex
	queue []Event
	err   error

	wake chan struct{}
	sigs chan os.Signal
	stop chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a reaper. Call Start before spawning children.
func New() *Reaper {
	return newWithWait(unix.Wait4)
}

func newWithWait(wait waitFunc) *Reaper {
	return &Reaper{
		wait: wait,
		wake: make(chan struct{}, 1),
		sigs: make(chan os.Signal, 8),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start subscribes to SIGCHLD and launches the reaping goroutine.
func (r *Reaper) Start() {
	r.startOnce.Do(func() {
		signal.Notify(r.sigs, unix.SIGCHLD)
		go r.loop()
	})
}

// Stop unsubscribes from SIGCHLD and waits for the goroutine to exit.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		signal.Stop(r.sigs)
		close(r.stop)
	})
	select {
	case <-r.done:
	default:
		// Never started.
		r.startOnce.Do(func() { close(r.done) })
		<-r.done
	}
}

func (r *Reaper) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case <-r.sigs:
			r.Poll()
		}
	}
}

// Block suspends reaping until Unblock. Children that change state meanwhile
// stay unreaped, which keeps their process group alive.
func (r *Reaper) Block() { r.gate.Lock() }

// Unblock resumes reaping. Notifications that arrived while blocked are
// processed afterwards.
func (r *Reaper) Unblock() { r.gate.Unlock() }

// Poll drains every outstanding status change. It is safe to call from any
// goroutine and never blocks in the kernel.
func (r *Reaper) Poll() {
	r.gate.Lock()
	defer r.gate.Unlock()
	for {
		var status unix.WaitStatus
		pid, err := r.wait(-1, &status, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return
		case err != nil:
			r.fail(fmt.Errorf("wait for children: %w", err))
			return
		case pid <= 0:
			return
		}
		res, ok := Translate(status)
		if !ok {
			continue
		}
		r.push(Event{Pid: pid, Result: res})
	}
}

// Translate decodes a raw wait status.
func Translate(status unix.WaitStatus) (jobs.Result, bool) {
	switch {
	case status.Exited():
		return jobs.Exited(status.ExitStatus()), true
	case status.Signaled():
		return jobs.Signaled(status.Signal()), true
	case status.Stopped():
		return jobs.StoppedBy(status.StopSignal()), true
	case status.Continued():
		return jobs.Continued(), true
	default:
		return jobs.Result{}, false
	}
}

func (r *Reaper) push(ev Event) {
	r.mu.Lock()
	r.queue = append(r.queue, ev)
	r.mu.Unlock()
	r.notify()
}

func (r *Reaper) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Reaper) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Drain returns the queued events in arrival order without blocking.
func (r *Reaper) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.queue
	r.queue = nil
	return events
}

// Err reports a fatal wait failure, if one occurred.
func (r *Reaper) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until at least one event is queued, a fatal error is recorded or
// ctx is done.
func (r *Reaper) Wait(ctx context.Context) ([]Event, error) {
	for {
		if events := r.Drain(); len(events) > 0 {
			return events, nil
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.wake:
		}
	}
}
