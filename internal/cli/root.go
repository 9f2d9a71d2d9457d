package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/jobsh/internal/config"
	"github.com/Paintersrp/jobsh/internal/logging"
	"github.com/Paintersrp/jobsh/internal/metrics"
	"github.com/Paintersrp/jobsh/internal/shell"
	"github.com/Paintersrp/jobsh/internal/tty"
)

// ExitError carries a command's exit status out of cobra.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

type options struct {
	configPath    string
	prompt        string
	logLevel      string
	logFile       string
	metricsListen string
	command       string
}

func newRootCommand() (*cobra.Command, *options) {
	opts := &options{}

	root := &cobra.Command{
		Use:   "jobsh",
		Short: "Interactive command interpreter with job control",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}

	root.PersistentFlags().
		StringVarP(&opts.configPath, "file", "f", "", "Path to the configuration file (default ~/.jobshrc.yaml)")
	root.Flags().StringVar(&opts.prompt, "prompt", "", "Prompt printed before each command line")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error)")
	root.Flags().StringVar(&opts.logFile, "log-file", "", "File receiving diagnostic logs")
	root.Flags().StringVar(&opts.metricsListen, "metrics-listen", "", "Address serving Prometheus metrics, e.g. 127.0.0.1:9464")
	root.Flags().StringVarP(&opts.command, "command", "c", "", "Run a single command line and exit with its status")

	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd())
	root.AddCommand(newBuiltinCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, opts
}

// Execute runs the CLI entrypoint. SIGINT is left to the interpreter, which
// only uses it to abandon the current input line.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			stop()
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and layers command-line flags on
// top of it.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	path, optional := opts.configPath, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("prompt") {
		cfg.Prompt = opts.prompt
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen = opts.metricsListen
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runShell(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, closer, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	metrics.EmitBuildInfo()
	ctx := cmd.Context()
	if cfg.Metrics.Listen != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go serveMetrics(metricsCtx, cfg.Metrics.Listen, log)
	}

	terminal, err := openTerminal(log)
	if err != nil {
		return err
	}
	defer terminal.Close()

	self, err := os.Executable()
	if err != nil {
		log.WithError(err).Warn("locate interpreter binary; builtins in pipelines are unavailable")
		self = ""
	}

	sh := shell.New(shell.Options{
		Terminal: terminal,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Prompt:   cfg.Prompt,
		Grace:    cfg.Shutdown.Grace.Duration,
		Logger:   log,
		Self:     self,
	})
	defer sh.Close()

	log.WithField("interactive", opts.command == "").Info("interpreter started")
	if opts.command != "" {
		code, err := sh.Exec(ctx, opts.command)
		if err != nil {
			return err
		}
		if code != 0 {
			return &ExitError{Code: code}
		}
		return nil
	}
	return sh.Run(ctx, os.Stdin)
}

// openTerminal takes control of the terminal on stdin. Without one the
// interpreter runs detached and never hands out terminal ownership.
func openTerminal(log *logrus.Entry) (*tty.Manager, error) {
	terminal, err := tty.Open(os.Stdin)
	if errors.Is(err, tty.ErrNotTerminal) {
		log.Debug("standard input is not a terminal, job control is detached")
		return tty.Detached(), nil
	}
	if err != nil {
		return nil, err
	}
	return terminal, nil
}

func serveMetrics(ctx context.Context, addr string, log *logrus.Entry) {
	log.WithField("addr", addr).Info("serving metrics")
	if err := metrics.Serve(ctx, addr); err != nil {
		log.WithError(err).Warn("metrics endpoint stopped")
	}
}

func newBuiltinCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "builtin NAME [ARG...]",
		Short:              "Run an interpreter builtin as a standalone process",
		Hidden:             true,
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := shell.Builtin(cmd.Context(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code < 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: not a builtin\n", args[0])
				code = 127
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeVersion(cmd.OutOrStdout())
		},
	}
}

// Version is set at build time with -ldflags "-X".
var Version = "dev"

func writeVersion(w io.Writer) error {
	_, err := fmt.Fprintf(w, "jobsh %s\n", Version)
	return err
}
