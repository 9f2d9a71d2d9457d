// Package process starts interpreter children inside process groups and
// delivers job-control signals to those groups.
//
// Group placement and terminal handoff happen in the child between fork and
// exec, with all signals blocked, so a child never runs user code before it
// is in its group and, for foreground jobs, owns the terminal. Start returns
// only after the exec succeeded or failed.
//
// The package never waits for children. Reaping belongs to the reaper, which
// observes stops and resumes that os.Process.Wait would hide.
package process
