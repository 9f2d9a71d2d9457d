package shell

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/Paintersrp/jobsh/internal/jobs"
	"github.com/Paintersrp/jobsh/internal/metrics"
	"github.com/Paintersrp/jobsh/internal/parser"
	"github.com/Paintersrp/jobsh/internal/process"
)

// Eval runs one command line and returns its exit status. User mistakes are
// reported on stderr and yield a non-zero status; a returned error means the
// interpreter cannot safely continue, or ErrQuit.
func (s *Shell) Eval(ctx context.Context, line string) (int, error) {
	parsed, err := parser.Parse(line)
	if err != nil {
		return s.userError(err), nil
	}
	if len(parsed.Tokens) == 0 {
		if parsed.Background {
			return s.userError(parser.ErrMalformed), nil
		}
		return 0, nil
	}
	if parsed.IsPipeline() {
		return s.runPipeline(ctx, parsed)
	}
	return s.runJob(ctx, parsed.Tokens, parsed.Background)
}

// stage is one resolved pipeline member.
type stage struct {
	argv  []string
	path  string
	exec  []string
	redir *redirection
}

func (s *Shell) runJob(ctx context.Context, tokens []parser.Token, background bool) (int, error) {
	words, redir, err := extractRedirections(tokens)
	if err != nil {
		return s.userError(err), nil
	}
	defer redir.Close()
	if len(words) == 0 {
		return s.userError(parser.ErrMalformed), nil
	}
	argv := parser.Words(words)

	if !background {
		var out = s.stdout
		if redir.out != nil {
			out = redir.out
		}
		code, err := s.builtin(ctx, argv, out)
		if code >= 0 || err != nil {
			return code, err
		}
	}

	path, err := process.Resolve(argv[0])
	if err != nil {
		return s.commandNotFound(argv[0]), nil
	}

	s.reaper.Block()
	pid, err := process.Start(process.Spec{
		Path:       path,
		Argv:       argv,
		Stdin:      pick(redir.in, s.stdin),
		Stdout:     pick(redir.out, s.stdout),
		Stderr:     s.stderr,
		Foreground: !background,
		Ctty:       s.term.Fd(),
	})
	redir.Close()
	if err != nil {
		s.reaper.Unblock()
		if !background {
			// The child may have taken the terminal before its exec failed.
			s.reclaim()
		}
		if code, ok := s.execFailure(argv[0], err); ok {
			return code, nil
		}
		return 0, err
	}

	id := s.table.Create(pid, background)
	s.table.Attach(id, pid, argv)
	metrics.ProcessSpawned()
	metrics.JobStarted(background)
	s.logStart(id, pid, background)

	if !background {
		if err := s.term.SetForeground(pid); err != nil {
			s.reaper.Unblock()
			return 0, err
		}
	}
	s.reaper.Unblock()

	if background {
		fmt.Fprintf(s.stdout, "[%d] running '%s'\n", id, s.table.Command(id))
		return 0, nil
	}
	return s.monitor(ctx)
}

func (s *Shell) runPipeline(ctx context.Context, line *parser.Line) (int, error) {
	groups, err := line.Stages()
	if err != nil {
		return s.userError(err), nil
	}

	stages := make([]stage, 0, len(groups))
	defer func() {
		for _, st := range stages {
			st.redir.Close()
		}
	}()
	for _, tokens := range groups {
		words, redir, err := extractRedirections(tokens)
		if err != nil {
			return s.userError(err), nil
		}
		st := stage{redir: redir, argv: parser.Words(words)}
		stages = append(stages, st)
		if len(words) == 0 {
			return s.userError(parser.ErrMalformed), nil
		}
		st.path, st.exec, err = s.resolveStage(st.argv)
		if err != nil {
			return s.commandNotFound(st.argv[0]), nil
		}
		stages[len(stages)-1] = st
	}

	s.reaper.Block()
	var (
		pgid  int
		id    int
		input *os.File
	)
	for i, st := range stages {
		var next, output *os.File
		if i < len(stages)-1 {
			r, w, err := os.Pipe()
			if err != nil {
				closeFile(&input)
				s.abortPipeline(pgid)
				s.reaper.Unblock()
				return 0, fmt.Errorf("create pipe: %w", err)
			}
			next, output = r, w
		}

		pid, err := process.Start(process.Spec{
			Path:       st.path,
			Argv:       st.exec,
			Stdin:      pick(st.redir.in, input, s.stdin),
			Stdout:     pick(st.redir.out, output, s.stdout),
			Stderr:     s.stderr,
			Pgid:       pgid,
			Foreground: !line.Background && i == 0,
			Ctty:       s.term.Fd(),
		})
		closeFile(&input)
		closeFile(&output)
		st.redir.Close()
		if err != nil {
			closeFile(&next)
			s.abortPipeline(pgid)
			s.reaper.Unblock()
			switch {
			case line.Background:
			case i == 0:
				s.reclaim()
			default:
				// Reap the killed stages so the foreground slot is free again.
				if _, merr := s.monitor(ctx); merr != nil {
					s.log.WithError(merr).Warn("reap aborted pipeline")
				}
			}
			if code, ok := s.execFailure(st.argv[0], err); ok {
				return code, nil
			}
			return 0, err
		}
		input = next

		if i == 0 {
			pgid = pid
			id = s.table.Create(pgid, line.Background)
		}
		s.table.Attach(id, pid, st.argv)
		metrics.ProcessSpawned()
	}
	metrics.JobStarted(line.Background)
	s.logStart(id, pgid, line.Background)

	if !line.Background {
		if err := s.term.SetForeground(pgid); err != nil {
			s.reaper.Unblock()
			return 0, err
		}
	}
	s.reaper.Unblock()

	if line.Background {
		fmt.Fprintf(s.stdout, "[%d] running '%s'\n", id, s.table.Command(id))
		return 0, nil
	}
	return s.monitor(ctx)
}

// resolveStage maps a pipeline stage onto the executable and argument list to
// start. Builtins run through the interpreter's own binary so they join the
// pipeline's process group like any other stage.
func (s *Shell) resolveStage(argv []string) (string, []string, error) {
	if IsBuiltin(argv[0]) && s.self != "" {
		return s.self, append([]string{s.self, "builtin"}, argv...), nil
	}
	path, err := process.Resolve(argv[0])
	if err != nil {
		return "", nil, err
	}
	return path, argv, nil
}

// abortPipeline kills the partially started group. Its members are reaped and
// reported like any other job.
func (s *Shell) abortPipeline(pgid int) {
	if pgid <= 0 {
		return
	}
	if err := process.Kill(s.signal, pgid); err != nil {
		s.log.WithError(err).WithField("pgid", pgid).Warn("kill partially started pipeline")
	}
}

// monitor waits for the job in the foreground slot to stop or finish, then
// gives the terminal back to the interpreter.
func (s *Shell) monitor(ctx context.Context) (int, error) {
	var (
		snap  jobs.Snapshot
		state jobs.State
		res   jobs.Result
	)
	for {
		snap, _ = s.table.Lookup(jobs.Foreground)
		state, res = s.table.State(jobs.Foreground)
		if state != jobs.Running {
			break
		}
		if err := s.await(ctx); err != nil {
			s.reclaim()
			return 0, err
		}
	}

	code := res.ExitCode()
	if state == jobs.Stopped {
		mode, err := s.term.Save()
		if err != nil {
			s.log.WithError(err).Warn("save stopped job terminal settings")
		} else {
			s.table.SetMode(jobs.Foreground, mode)
		}
		id := s.table.Alloc()
		s.table.Move(jobs.Foreground, id)
		code = stopCode(snap)
		metrics.JobStopped()
		s.log.WithFields(logrus.Fields{
			"job":     id,
			"pgid":    snap.Pgid,
			"cmd":     snap.Command,
			"elapsed": units.HumanDuration(time.Since(snap.Started)),
		}).Info("job stopped")
		fmt.Fprintf(s.stdout, "[%d] suspended '%s'\n", id, snap.Command)
	} else {
		snap.State = jobs.Finished
		snap.Result = res
		s.finished(snap)
	}

	if err := s.term.Reclaim(); err != nil {
		return code, err
	}
	return code, nil
}

// reclaim takes the terminal back after a failed handoff.
func (s *Shell) reclaim() {
	if err := s.term.Reclaim(); err != nil {
		s.log.WithError(err).Warn("reclaim terminal")
	}
}

// stopCode returns 128 plus the signal that stopped the job.
func stopCode(snap jobs.Snapshot) int {
	for _, proc := range snap.Procs {
		if proc.State == jobs.Stopped && proc.Status != nil {
			return proc.Status.ExitCode()
		}
	}
	return 128 + int(syscall.SIGTSTP)
}

func (s *Shell) commandNotFound(name string) int {
	fmt.Fprintf(s.errw, "%s: command not found\n", name)
	return 127
}

// execFailure reports start errors caused by the command itself rather than
// the environment.
func (s *Shell) execFailure(name string, err error) (int, bool) {
	switch {
	case errors.Is(err, process.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return s.commandNotFound(name), true
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.ENOEXEC):
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		fmt.Fprintf(s.errw, "%s: %v\n", name, err)
		return 126, true
	default:
		return 0, false
	}
}

func (s *Shell) logStart(id, pgid int, background bool) {
	s.log.WithFields(logrus.Fields{
		"job":        id,
		"pgid":       pgid,
		"cmd":        s.table.Command(id),
		"background": background,
	}).Debug("job started")
}

// pick returns the first non-nil file.
func pick(files ...*os.File) *os.File {
	for _, f := range files {
		if f != nil {
			return f
		}
	}
	return nil
}
