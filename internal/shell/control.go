package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Paintersrp/jobsh/internal/jobs"
	"github.com/Paintersrp/jobsh/internal/process"
)

// killWait bounds the wait for a group after SIGKILL.
const killWait = time.Second

// Resume continues the job in slot id. Unless background is set the job first
// receives the terminal and its saved settings, then moves to the foreground
// slot and is monitored until it stops or finishes again.
func (s *Shell) Resume(ctx context.Context, id int, background bool) (int, error) {
	if err := s.sync(); err != nil {
		return 0, err
	}
	snap, ok := s.table.Lookup(id)
	if !ok || id == jobs.Foreground || snap.State == jobs.Finished {
		return 0, ErrNoJob
	}

	if !background {
		if err := s.term.SetForeground(snap.Pgid); err != nil {
			return 0, err
		}
		if err := s.term.Restore(snap.Mode); err != nil {
			return 0, err
		}
	}
	if err := s.signal(snap.Pgid, syscall.SIGCONT); err != nil {
		return 0, err
	}
	fmt.Fprintf(s.stdout, "continue '%s'\n", snap.Command)
	s.log.WithFields(logrus.Fields{
		"job":        id,
		"pgid":       snap.Pgid,
		"cmd":        snap.Command,
		"background": background,
	}).Info("job resumed")
	if background {
		return 0, nil
	}

	s.table.Move(id, jobs.Foreground)
	for {
		current, _ := s.table.Lookup(jobs.Foreground)
		if current.State != jobs.Stopped {
			break
		}
		if err := s.await(ctx); err != nil {
			s.reclaim()
			return 0, err
		}
	}
	return s.monitor(ctx)
}

// Kill asks the job in slot id to terminate. A stopped job is continued as
// well so it can act on the request.
func (s *Shell) Kill(id int) error {
	if err := s.sync(); err != nil {
		return err
	}
	snap, ok := s.table.Lookup(id)
	if !ok || snap.State == jobs.Finished {
		return ErrNoJob
	}
	s.log.WithFields(logrus.Fields{"job": id, "pgid": snap.Pgid, "cmd": snap.Command}).Info("killing job")
	return process.Terminate(s.signal, snap.Pgid, snap.State == jobs.Stopped)
}

// Watch prints the status of background jobs in state which (jobs.All for
// every job) and forgets the finished ones.
func (s *Shell) Watch(which jobs.State) error {
	return s.report(s.stdout, which)
}

func (s *Shell) report(w io.Writer, which jobs.State) error {
	if err := s.sync(); err != nil {
		return err
	}
	for _, snap := range s.table.Report(w, which) {
		s.finished(snap)
	}
	return nil
}

// Shutdown terminates every live job, escalating to SIGKILL for groups that
// outlive the grace period, and reports how they ended.
func (s *Shell) Shutdown(ctx context.Context) error {
	if err := s.sync(); err != nil {
		return err
	}
	if len(s.table.Live()) == 0 {
		return nil
	}

	for _, snap := range s.liveJobs() {
		if err := process.Terminate(s.signal, snap.Pgid, snap.State == jobs.Stopped); err != nil {
			s.log.WithError(err).WithField("job", snap.ID).Warn("terminate job")
		}
	}

	graceCtx, cancel := context.WithTimeout(ctx, s.grace)
	err := s.awaitAll(graceCtx)
	cancel()
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		for _, snap := range s.liveJobs() {
			s.log.WithFields(logrus.Fields{"job": snap.ID, "pgid": snap.Pgid}).Warn("job ignored SIGTERM, killing")
			if err := process.Kill(s.signal, snap.Pgid); err != nil {
				s.log.WithError(err).WithField("job", snap.ID).Warn("kill job")
			}
		}
		killCtx, cancel := context.WithTimeout(ctx, killWait)
		err = s.awaitAll(killCtx)
		cancel()
	}
	if err != nil {
		s.log.WithError(err).Warn("jobs still alive at exit")
	}

	if snap, ok := s.table.Lookup(jobs.Foreground); ok && snap.State == jobs.Finished {
		_, res := s.table.State(jobs.Foreground)
		snap.Result = res
		s.finished(snap)
	}
	return s.Watch(jobs.Finished)
}

// liveJobs returns snapshots of every job that has not finished.
func (s *Shell) liveJobs() []jobs.Snapshot {
	var live []jobs.Snapshot
	for _, id := range s.table.Live() {
		if snap, ok := s.table.Lookup(id); ok && snap.State != jobs.Finished {
			live = append(live, snap)
		}
	}
	return live
}

func (s *Shell) awaitAll(ctx context.Context) error {
	for {
		if err := s.sync(); err != nil {
			return err
		}
		if len(s.liveJobs()) == 0 {
			return nil
		}
		if err := s.await(ctx); err != nil {
			return err
		}
	}
}
