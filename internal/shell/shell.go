// Package shell is the interpreter proper. It turns command lines into jobs,
// hands the terminal to foreground jobs and reports on background ones.
//
// A Shell is driven by a single goroutine. Child status changes are collected
// by a reaper goroutine and applied to the job table only from that goroutine,
// at the points where the shell waits or reports.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Paintersrp/jobsh/internal/jobs"
	"github.com/Paintersrp/jobsh/internal/logging"
	"github.com/Paintersrp/jobsh/internal/metrics"
	"github.com/Paintersrp/jobsh/internal/parser"
	"github.com/Paintersrp/jobsh/internal/process"
	"github.com/Paintersrp/jobsh/internal/reaper"
	"github.com/Paintersrp/jobsh/internal/tty"
)

// ErrQuit is returned by Eval when the user asked the interpreter to exit.
var ErrQuit = errors.New("quit")

// ErrNoJob reports a job-control request for a slot without a live job.
var ErrNoJob = errors.New("no such job")

// Terminal is the part of the terminal manager the interpreter relies on.
// *tty.Manager implements it.
type Terminal interface {
	Fd() int
	Group() int
	ShellMode() *term.State
	SetForeground(pgid int) error
	Save() (*term.State, error)
	Restore(state *term.State) error
	Reclaim() error
}

// Options configures a Shell. Zero values fall back to a detached terminal,
// the process's standard streams and the default prompt.
type Options struct {
	Terminal Terminal

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	Prompt string
	// Grace bounds how long Shutdown waits after SIGTERM before SIGKILL.
	Grace time.Duration

	Logger *logrus.Entry

	// Self is the interpreter's own executable. Builtins that appear as
	// pipeline stages run as "Self builtin NAME ARGS...".
	Self string

	// Signal delivers group signals; nil means process.SignalGroup.
	Signal process.Signaller
}

// Shell evaluates command lines and owns the job table.
type Shell struct {
	table  *jobs.Table
	reaper *reaper.Reaper
	term   Terminal

	stdin  *os.File
	stdout *os.File
	stderr *os.File
	// errw receives the interpreter's own diagnostics.
	errw io.Writer

	prompt string
	grace  time.Duration
	log    *logrus.Entry
	self   string
	signal process.Signaller
}

const defaultPrompt = "# "

// New constructs a shell and starts its reaper. Close releases it.
func New(opts Options) *Shell {
	s := newShell(opts)
	s.reaper = reaper.New()
	s.reaper.Start()
	return s
}

func newShell(opts Options) *Shell {
	if opts.Terminal == nil {
		opts.Terminal = tty.Detached()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Prompt == "" {
		opts.Prompt = defaultPrompt
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Signal == nil {
		opts.Signal = process.SignalGroup
	}
	return &Shell{
		table:  jobs.NewTable(opts.Terminal.ShellMode()),
		term:   opts.Terminal,
		stdin:  opts.Stdin,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		errw:   opts.Stderr,
		prompt: opts.Prompt,
		grace:  opts.Grace,
		log:    opts.Logger,
		self:   opts.Self,
		signal: opts.Signal,
	}
}

// Close stops the reaper. Jobs still alive are left alone; call Shutdown
// first to end them.
func (s *Shell) Close() {
	if s.reaper != nil {
		s.reaper.Stop()
	}
}

type readResult struct {
	line string
	err  error
}

// Run reads and evaluates lines from in until end of input, quit or ctx is
// cancelled, then shuts down the remaining jobs. Finished background jobs are
// reported after every line.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	// Input is only read on request, so a foreground job never competes with
	// the interpreter for the terminal.
	next := make(chan struct{})
	results := make(chan readResult, 1)
	defer close(next)
	go readLines(bufio.NewReader(in), next, results)

	for {
		fmt.Fprint(s.stdout, s.prompt)
		next <- struct{}{}

		res, err := s.readLine(ctx, interrupts, results)
		if err != nil {
			s.log.WithError(err).Info("interpreter interrupted")
			return s.shutdown(ctx)
		}
		if res.line != "" {
			if _, err := s.Eval(ctx, res.line); err != nil {
				if errors.Is(err, ErrQuit) {
					return s.shutdown(ctx)
				}
				return err
			}
		}
		if err := s.Watch(jobs.Finished); err != nil {
			return err
		}
		if res.err != nil {
			if !errors.Is(res.err, io.EOF) {
				return fmt.Errorf("read command line: %w", res.err)
			}
			fmt.Fprintln(s.stdout)
			return s.shutdown(ctx)
		}
	}
}

func readLines(r *bufio.Reader, next <-chan struct{}, results chan<- readResult) {
	for range next {
		line, err := r.ReadString('\n')
		results <- readResult{line: trimNewline(line), err: err}
		if err != nil {
			return
		}
	}
}

func trimNewline(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
	}
	return line
}

func (s *Shell) readLine(ctx context.Context, interrupts <-chan os.Signal, results <-chan readResult) (readResult, error) {
	for {
		select {
		case <-ctx.Done():
			return readResult{}, ctx.Err()
		case <-interrupts:
			// The terminal discards the partial line; start a fresh prompt.
			fmt.Fprint(s.stdout, "\n"+s.prompt)
		case res := <-results:
			return res, nil
		}
	}
}

// shutdown ends the remaining jobs even when ctx has been cancelled.
func (s *Shell) shutdown(ctx context.Context) error {
	return s.Shutdown(context.WithoutCancel(ctx))
}

// Exec evaluates a single line non-interactively and shuts down whatever it
// left running. It returns the line's exit status.
func (s *Shell) Exec(ctx context.Context, line string) (int, error) {
	code, err := s.Eval(ctx, line)
	if err != nil && !errors.Is(err, ErrQuit) {
		return code, err
	}
	if err := s.Watch(jobs.Finished); err != nil {
		return code, err
	}
	return code, s.shutdown(ctx)
}

// sync applies every queued status change to the table.
func (s *Shell) sync() error {
	if s.reaper == nil {
		return nil
	}
	s.apply(s.reaper.Drain())
	return s.reaper.Err()
}

// await blocks until at least one status change arrives and applies it.
func (s *Shell) await(ctx context.Context) error {
	if s.reaper == nil {
		return ErrNoJob
	}
	events, err := s.reaper.Wait(ctx)
	if err != nil {
		return err
	}
	s.apply(events)
	return nil
}

func (s *Shell) apply(events []reaper.Event) {
	for _, ev := range events {
		id, ok := s.table.Apply(ev.Pid, ev.Result)
		if !ok {
			s.log.WithField("pid", ev.Pid).Debug("status change for untracked process")
			continue
		}
		s.log.WithFields(logrus.Fields{
			"job":    id,
			"pid":    ev.Pid,
			"status": ev.Result.Kind.String(),
		}).Debug("process status changed")
	}
}

// finished records a job that has been reaped from the table.
func (s *Shell) finished(snap jobs.Snapshot) {
	elapsed := time.Since(snap.Started)
	outcome := metrics.OutcomeExited
	if snap.Result.Kind == jobs.KindSignaled {
		outcome = metrics.OutcomeKilled
	}
	metrics.JobFinished(outcome, elapsed)
	s.log.WithFields(logrus.Fields{
		"job":     snap.ID,
		"pgid":    snap.Pgid,
		"cmd":     snap.Command,
		"status":  snap.Result.ExitCode(),
		"elapsed": units.HumanDuration(elapsed),
	}).Info("job finished")
}

func (s *Shell) userError(err error) int {
	s.log.WithError(err).Debug("rejected command line")
	if errors.Is(err, parser.ErrMalformed) {
		err = parser.ErrMalformed
	}
	fmt.Fprintln(s.errw, err)
	return 1
}
