// Package jobs holds the interpreter's registry of jobs and their processes.
//
// The table performs no I/O besides writing status lines in Report. It is not
// safe for concurrent use: a single flow of control owns it and applies child
// status changes to it in order.
package jobs

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/term"
)

// Foreground is the slot reserved for the job that currently owns the terminal.
const Foreground = 0

// Process is one operating-system process belonging to a job.
type Process struct {
	Pid   int
	State State
	// Status is the last status change observed for the process; nil until
	// the first one arrives.
	Status *Result
}

// Job is a pipeline or single command submitted as a unit.
type Job struct {
	Pgid    int
	Procs   []*Process
	State   State
	Command string
	Started time.Time
	// Mode holds the terminal settings captured when the job was stopped.
	Mode *term.State
}

// Snapshot is a read-only copy of a job's bookkeeping.
type Snapshot struct {
	ID      int
	Pgid    int
	State   State
	Command string
	Started time.Time
	Mode    *term.State
	Procs   []Process
	// Result is the status of the last pipeline stage once the job finished.
	Result Result
}

// Table is a slot-indexed job registry. Slot 0 is the foreground slot; a nil
// slot is free.
type Table struct {
	slots []*Job
	mode  *term.State
	now   func() time.Time
}

// NewTable constructs an empty table. The provided terminal mode becomes the
// initial saved mode of every new job.
func NewTable(mode *term.State) *Table {
	return &Table{
		slots: make([]*Job, 1),
		mode:  mode,
		now:   time.Now,
	}
}

// Create registers a new job led by the given process group. Foreground jobs
// take slot 0, which the caller must have vacated.
func (t *Table) Create(pgid int, background bool) int {
	if pgid <= 0 {
		panic(fmt.Sprintf("jobs: invalid process group %d", pgid))
	}
	for id, job := range t.slots {
		if job != nil && job.Pgid == pgid && job.State != Finished {
			panic(fmt.Sprintf("jobs: process group %d already tracked by job %d", pgid, id))
		}
	}

	id := Foreground
	if background {
		id = t.Alloc()
	} else if t.slots[Foreground] != nil {
		panic("jobs: foreground slot is occupied")
	}
	t.slots[id] = &Job{
		Pgid:    pgid,
		State:   Running,
		Started: t.now(),
		Mode:    t.mode,
	}
	return id
}

// Alloc returns the first free background slot, growing the table when none is
// available.
func (t *Table) Alloc() int {
	for id := Foreground + 1; id < len(t.slots); id++ {
		if t.slots[id] == nil {
			return id
		}
	}
	t.slots = append(t.slots, nil)
	return len(t.slots) - 1
}

// Attach appends a running process to the job and extends its command text.
// Pipeline stages are joined with " | ".
func (t *Table) Attach(id, pid int, argv []string) {
	job := t.mustJob(id)
	job.Procs = append(job.Procs, &Process{Pid: pid, State: Running})
	if job.Command != "" {
		job.Command += " | "
	}
	job.Command += strings.Join(argv, " ")
}

// Apply records a status change for pid and recomputes the owning job's state.
// It reports the job slot and false when pid is not tracked.
func (t *Table) Apply(pid int, res Result) (int, bool) {
	for id, job := range t.slots {
		if job == nil {
			continue
		}
		for _, proc := range job.Procs {
			if proc.Pid != pid || proc.State == Finished {
				continue
			}
			status := res
			proc.State = res.State()
			proc.Status = &status
			job.recompute()
			return id, true
		}
	}
	return 0, false
}

// recompute derives the aggregate state. A job with both running and stopped
// processes keeps its previous state.
func (j *Job) recompute() {
	var running, stopped int
	for _, proc := range j.Procs {
		switch proc.State {
		case Running:
			running++
		case Stopped:
			stopped++
		}
	}
	switch {
	case running > 0 && stopped == 0:
		j.State = Running
	case stopped > 0 && running == 0:
		j.State = Stopped
	case running == 0 && stopped == 0:
		j.State = Finished
	}
}

// result returns the status of the last pipeline stage.
func (j *Job) result() Result {
	if len(j.Procs) == 0 {
		return Result{}
	}
	last := j.Procs[len(j.Procs)-1]
	if last.Status == nil {
		return Result{}
	}
	return *last.Status
}

// State returns the job's state. A finished job is removed from the table by
// this call and its exit status returned.
func (t *Table) State(id int) (State, Result) {
	job := t.mustJob(id)
	if job.State != Finished {
		return job.State, Result{}
	}
	res := job.result()
	t.remove(id)
	return Finished, res
}

// Report writes one status line per background job matching which (or every
// job for All) and removes the finished ones. It returns snapshots of the
// removed jobs.
func (t *Table) Report(w io.Writer, which State) []Snapshot {
	var reaped []Snapshot
	for id := Foreground + 1; id < len(t.slots); id++ {
		job := t.slots[id]
		if job == nil {
			continue
		}
		if which != All && job.State != which {
			continue
		}
		switch job.State {
		case Running:
			fmt.Fprintf(w, "[%d] running '%s'\n", id, job.Command)
		case Stopped:
			fmt.Fprintf(w, "[%d] suspended '%s'\n", id, job.Command)
		case Finished:
			res := job.result()
			switch res.Kind {
			case KindSignaled:
				fmt.Fprintf(w, "[%d] killed '%s' by signal %d\n", id, job.Command, int(res.Signal))
			default:
				fmt.Fprintf(w, "[%d] exited '%s', status=%d\n", id, job.Command, res.Code)
			}
			reaped = append(reaped, t.snapshot(id))
			t.remove(id)
		}
	}
	return reaped
}

// Default selects the highest-indexed job that has not finished.
func (t *Table) Default() (int, bool) {
	return t.highest(func(job *Job) bool { return job.State != Finished })
}

// DefaultStopped selects the highest-indexed stopped job.
func (t *Table) DefaultStopped() (int, bool) {
	return t.highest(func(job *Job) bool { return job.State == Stopped })
}

func (t *Table) highest(match func(*Job) bool) (int, bool) {
	for id := len(t.slots) - 1; id > Foreground; id-- {
		if job := t.slots[id]; job != nil && match(job) {
			return id, true
		}
	}
	return 0, false
}

// Move relocates a job between slots. The destination must be free.
func (t *Table) Move(from, to int) {
	job := t.mustJob(from)
	if to < 0 || to >= len(t.slots) {
		panic(fmt.Sprintf("jobs: slot %d out of range", to))
	}
	if t.slots[to] != nil {
		panic(fmt.Sprintf("jobs: slot %d is occupied", to))
	}
	t.slots[to] = job
	t.slots[from] = nil
}

// Lookup returns a snapshot of the job in slot id.
func (t *Table) Lookup(id int) (Snapshot, bool) {
	if id < 0 || id >= len(t.slots) || t.slots[id] == nil {
		return Snapshot{}, false
	}
	return t.snapshot(id), true
}

// Command returns the job's command text.
func (t *Table) Command(id int) string { return t.mustJob(id).Command }

// Pgid returns the job's process group.
func (t *Table) Pgid(id int) int { return t.mustJob(id).Pgid }

// Mode returns the terminal settings to replay when the job resumes.
func (t *Table) Mode(id int) *term.State { return t.mustJob(id).Mode }

// SetMode stores the terminal settings to replay when the job resumes in the
// foreground.
func (t *Table) SetMode(id int, mode *term.State) {
	t.mustJob(id).Mode = mode
}

// Live returns the slots of every tracked job in ascending order.
func (t *Table) Live() []int {
	var ids []int
	for id, job := range t.slots {
		if job != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of slots, including free ones.
func (t *Table) Len() int { return len(t.slots) }

func (t *Table) snapshot(id int) Snapshot {
	job := t.slots[id]
	procs := make([]Process, len(job.Procs))
	for i, proc := range job.Procs {
		procs[i] = *proc
	}
	snap := Snapshot{
		ID:      id,
		Pgid:    job.Pgid,
		State:   job.State,
		Command: job.Command,
		Started: job.Started,
		Mode:    job.Mode,
		Procs:   procs,
	}
	if job.State == Finished {
		snap.Result = job.result()
	}
	return snap
}

func (t *Table) remove(id int) {
	if job := t.mustJob(id); job.State != Finished {
		panic(fmt.Sprintf("jobs: removing unfinished job %d", id))
	}
	t.slots[id] = nil
}

func (t *Table) mustJob(id int) *Job {
	if id < 0 || id >= len(t.slots) || t.slots[id] == nil {
		panic(fmt.Sprintf("jobs: no job in slot %d", id))
	}
	return t.slots[id]
}
