package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Paintersrp/jobsh/internal/jobs"
	"github.com/Paintersrp/jobsh/internal/logging"
)

// notBuiltin is returned by builtin for commands it does not handle.
const notBuiltin = -1

type builtinFunc func(ctx context.Context, s *Shell, args []string, out io.Writer) (int, error)

var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"quit": builtinQuit,
		"exit": builtinQuit,
		"cd":   builtinCd,
		"pwd":  builtinPwd,
		"jobs": builtinJobs,
		"fg":   builtinFg,
		"bg":   builtinBg,
		"kill": builtinKill,
		"help": builtinHelp,
	}
}

// IsBuiltin reports whether name is handled inside the interpreter.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// builtin runs argv if it names a builtin and returns its exit status, or
// notBuiltin.
func (s *Shell) builtin(ctx context.Context, argv []string, out io.Writer) (int, error) {
	fn, ok := builtins[argv[0]]
	if !ok {
		return notBuiltin, nil
	}
	return fn(ctx, s, argv[1:], out)
}

// Builtin runs a builtin outside an interactive session, as done for builtins
// used as pipeline stages. There are no jobs in such a session. It returns
// the exit status, or a negative value when argv does not name a builtin.
func Builtin(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	if len(argv) == 0 || !IsBuiltin(argv[0]) {
		return notBuiltin
	}
	s := &Shell{
		table: jobs.NewTable(nil),
		log:   logging.Discard(),
		errw:  stderr,
	}
	code, err := s.builtin(ctx, argv, stdout)
	if err != nil && !errors.Is(err, ErrQuit) {
		fmt.Fprintf(stderr, "%s: %v\n", argv[0], err)
		return 1
	}
	return code
}

func builtinQuit(_ context.Context, _ *Shell, _ []string, _ io.Writer) (int, error) {
	return 0, ErrQuit
}

func builtinCd(_ context.Context, s *Shell, args []string, _ io.Writer) (int, error) {
	var dir string
	switch len(args) {
	case 0:
		home, err := os.UserHomeDir()
		if err != nil {
			return s.builtinError("cd", err), nil
		}
		dir = home
	case 1:
		dir = args[0]
	default:
		return s.builtinError("cd", errors.New("too many arguments")), nil
	}
	if err := os.Chdir(dir); err != nil {
		return s.builtinError("cd", err), nil
	}
	return 0, nil
}

func builtinPwd(_ context.Context, s *Shell, _ []string, out io.Writer) (int, error) {
	dir, err := os.Getwd()
	if err != nil {
		return s.builtinError("pwd", err), nil
	}
	fmt.Fprintln(out, dir)
	return 0, nil
}

func builtinJobs(_ context.Context, s *Shell, _ []string, out io.Writer) (int, error) {
	if err := s.report(out, jobs.All); err != nil {
		return 1, err
	}
	return 0, nil
}

func builtinFg(ctx context.Context, s *Shell, args []string, _ io.Writer) (int, error) {
	return s.resumeBuiltin(ctx, "fg", args, false)
}

func builtinBg(ctx context.Context, s *Shell, args []string, _ io.Writer) (int, error) {
	return s.resumeBuiltin(ctx, "bg", args, true)
}

func (s *Shell) resumeBuiltin(ctx context.Context, name string, args []string, background bool) (int, error) {
	if err := s.sync(); err != nil {
		return 1, err
	}
	var (
		id int
		ok bool
	)
	switch len(args) {
	case 0:
		if background {
			id, ok = s.table.DefaultStopped()
		} else {
			id, ok = s.table.Default()
		}
	case 1:
		var err error
		if id, err = parseJobID(args[0]); err != nil {
			return s.builtinError(name, err), nil
		}
		ok = true
	default:
		return s.builtinError(name, errors.New("too many arguments")), nil
	}
	if !ok {
		return s.builtinError(name, ErrNoJob), nil
	}

	code, err := s.Resume(ctx, id, background)
	if errors.Is(err, ErrNoJob) {
		return s.builtinError(name, err), nil
	}
	return code, err
}

func builtinKill(_ context.Context, s *Shell, args []string, _ io.Writer) (int, error) {
	if len(args) != 1 {
		return s.builtinError("kill", errors.New("usage: kill %<job>")), nil
	}
	id, err := parseJobID(args[0])
	if err != nil {
		return s.builtinError("kill", err), nil
	}
	if err := s.Kill(id); err != nil {
		if errors.Is(err, ErrNoJob) {
			return s.builtinError("kill", err), nil
		}
		return 1, err
	}
	return 0, nil
}

func builtinHelp(_ context.Context, _ *Shell, _ []string, out io.Writer) (int, error) {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "builtins: %s\n", strings.Join(names, " "))
	return 0, nil
}

// parseJobID accepts "n" and "%n".
func parseJobID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(arg, "%"))
	if err != nil || id <= jobs.Foreground {
		return 0, fmt.Errorf("invalid job %q", arg)
	}
	return id, nil
}

func (s *Shell) builtinError(name string, err error) int {
	fmt.Fprintf(s.errw, "%s: %v\n", name, err)
	return 1
}
