package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/rkill/internal/cliutil"
	"github.com/Paintersrp/rkill/internal/config"
	"github.com/Paintersrp/rkill/internal/logging"
	"github.com/Paintersrp/rkill/internal/metrics"
	"github.com/Paintersrp/rkill/internal/proctree"
	"github.com/Paintersrp/rkill/internal/runtime/docker"
	"github.com/Paintersrp/rkill/internal/runtime/process"
	"github.com/Paintersrp/rkill/internal/tui"
)

const (
	exitRuntime = 1
	exitUsage   = 2
)

// ExitError carries the process exit status for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{Code: exitUsage, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps an error returned by the root command to an exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, proctree.ErrInvalidQuery) {
		return exitUsage
	}
	return exitRuntime
}

// containerSource resolves container references to host pids.
type containerSource interface {
	PIDs(ctx stdcontext.Context, refs ...string) ([]int, error)
	Close() error
}

// context holds state shared by the subcommands of one invocation.
type context struct {
	configPath  string
	verbose     bool
	veryVerbose bool
	logFormat   string
	logFile     string
	metricsFile string
	output      string
	sortBy      string

	settings *config.Settings
	log      *logrus.Logger
	closeLog func() error

	newTable      func(poll time.Duration) proctree.Table
	newContainers func() containerSource
	confirm       func() proctree.Filter
	isTerminal    func() bool
}

type selectors struct {
	pids       []int
	name       string
	pattern    string
	containers []string
}

func (s selectors) query() proctree.Query {
	return proctree.Query{PIDs: s.pids, Name: strings.TrimSpace(s.name), Pattern: s.pattern}
}

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{
		newTable: func(poll time.Duration) proctree.Table {
			return process.New(process.WithPollInterval(poll))
		},
		newContainers: func() containerSource {
			return docker.New()
		},
		confirm: func() proctree.Filter {
			return tui.Filter()
		},
		isTerminal: func() bool {
			return cliutil.IsTerminal(os.Stdin) && cliutil.IsTerminal(os.Stdout)
		},
	}

	var (
		sel         selectors
		yes         bool
		interactive bool
		gracePeriod time.Duration
	)

	root := &cobra.Command{
		Use:   "rkill",
		Short: "Recursively kill matching processes and their children",
		Long: `rkill finds processes by pid, name, pattern or container, adds every
descendant, and stops them newest first: a graceful terminate, then a kill for
whatever is still running. Without -y it only shows what would be stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer ctx.finish(&err)
			if err := validateSelectors(cmd, sel); err != nil {
				return err
			}
			if interactive && !ctx.isTerminal() {
				return usageErrorf("--interactive requires a terminal")
			}
			if err := ctx.setup(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("grace-period") {
				if gracePeriod <= 0 {
					return usageErrorf("--grace-period must be greater than zero")
				}
			} else {
				gracePeriod = ctx.settings.GracePeriod.Duration
			}
			return ctx.runKill(cmd, sel, !yes && !interactive, interactive, gracePeriod)
		},
	}

	flags := root.PersistentFlags()
	flags.IntSliceVarP(&sel.pids, "pid", "P", nil, "Target process id (repeatable)")
	flags.StringVarP(&sel.name, "name", "n", "", "Target process name")
	flags.StringVarP(&sel.pattern, "pattern", "p", "", "Target process name pattern (case-insensitive regular expression)")
	flags.StringSliceVarP(&sel.containers, "container", "c", nil, "Target the init process of a Docker container (repeatable)")
	flags.StringVarP(&ctx.output, "output", "o", "", "Report format: table, tree or json")
	flags.StringVar(&ctx.sortBy, "sort", "", "Sort the report by "+strings.Join(cliutil.SortKeys, ", "))
	flags.StringVar(&ctx.configPath, "config", "", "Path to a settings file (default $"+config.EnvConfig+")")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Log progress")
	flags.BoolVarP(&ctx.veryVerbose, "very-verbose", "V", false, "Log debug details")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&ctx.logFile, "log-file", "", "Also write logs to this file")
	flags.StringVar(&ctx.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")

	root.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the kill (default is a dry run)")
	root.Flags().BoolVarP(&interactive, "interactive", "i", false, "Review targets on an interactive screen before killing")
	root.Flags().DurationVar(&gracePeriod, "grace-period", 0, "How long to wait for each process to exit after each signal")

	root.AddCommand(newPsCmd(ctx, &sel))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ExitError{Code: exitUsage, Err: err}
	})
	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rkill: %v\n", err)
	}
	stop()
	os.Exit(ExitCode(err))
}

func validateSelectors(cmd *cobra.Command, sel selectors) error {
	flags := cmd.Flags()
	if flags.Changed("name") && strings.TrimSpace(sel.name) == "" {
		return usageErrorf("--name must not be blank")
	}
	if flags.Changed("pattern") && strings.TrimSpace(sel.pattern) == "" {
		return usageErrorf("--pattern must not be blank")
	}
	for _, ref := range sel.containers {
		if strings.TrimSpace(ref) == "" {
			return usageErrorf("--container must not be blank")
		}
	}
	if err := sel.query().Validate(); err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	if sel.query().Empty() && len(sel.containers) == 0 {
		return usageErrorf("no target given: use --pid, --name, --pattern or --container")
	}
	return nil
}

// setup loads settings, applies flag overrides and builds the logger.
func (c *context) setup(cmd *cobra.Command) error {
	settings, path, err := config.Resolve(c.configPath)
	if err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	if c.output != "" {
		settings.Output = strings.ToLower(strings.TrimSpace(c.output))
	}
	if err := cliutil.ValidateFormat(settings.Output); err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	if err := cliutil.ValidateSortKey(c.sortBy); err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	if c.logFormat != "" {
		settings.Log.Format = c.logFormat
	}
	if c.logFile != "" {
		settings.Log.File = c.logFile
	}
	if c.metricsFile != "" {
		settings.Metrics.Textfile = c.metricsFile
	}

	log, closeLog, err := logging.New(logging.Options{
		Level:  logging.LevelFor(c.verbose, c.veryVerbose, settings.Log.Level),
		Format: settings.Log.Format,
		File:   settings.Log.File,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	c.settings = settings
	c.log = log
	c.closeLog = closeLog

	if path != "" {
		log.WithField("path", path).Debug("loaded settings")
	}
	return nil
}

// finish flushes metrics and releases the log file, joining any failure into
// *errp. It runs whether or not the command succeeded.
func (c *context) finish(errp *error) {
	var errs []error
	if c.settings != nil && c.settings.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(c.settings.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}
	if c.closeLog != nil {
		if err := c.closeLog(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		c.closeLog = nil
	}
	if len(errs) > 0 {
		*errp = errors.Join(append([]error{*errp}, errs...)...)
	}
}

func (c *context) table() proctree.Table {
	return c.newTable(c.settings.PollInterval.Duration)
}

func (c *context) renderer(out io.Writer) *cliutil.Renderer {
	return &cliutil.Renderer{
		Format: c.settings.Output,
		SortBy: c.sortBy,
		Width:  cliutil.TerminalWidth(out),
	}
}

// seeds resolves every selector into snapshots of the live processes.
func (c *context) seeds(ctx stdcontext.Context, table proctree.Table, sel selectors) ([]proctree.Record, error) {
	q := sel.query()
	if len(sel.containers) > 0 {
		source := c.newContainers()
		defer source.Close()
		pids, err := source.PIDs(ctx, sel.containers...)
		if err != nil {
			return nil, err
		}
		c.log.WithFields(logrus.Fields{"containers": sel.containers, "pids": pids}).Debug("resolved containers")
		q.PIDs = append(append([]int(nil), q.PIDs...), pids...)
	}

	seeds, err := proctree.Find(ctx, table, q)
	if err != nil {
		return nil, err
	}
	c.log.WithField("seeds", len(seeds)).Debug("found initial targets")
	return seeds, nil
}

func (c *context) runKill(cmd *cobra.Command, sel selectors, dry, interactive bool, grace time.Duration) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	out := cmd.OutOrStdout()
	notes := out
	if c.settings.Output == cliutil.FormatJSON {
		notes = cmd.ErrOrStderr()
	}

	inv := cliutil.Invocation{Query: sel.query(), Containers: sel.containers, Dry: dry}
	fmt.Fprintln(notes, cliutil.Header(inv))

	table := c.table()
	seeds, err := c.seeds(ctx, table, sel)
	if err != nil {
		return err
	}

	opts := []proctree.Option{
		proctree.WithGracePeriod(grace),
		proctree.WithLogger(c.log),
		proctree.WithProtected(c.settings.Protect...),
	}
	if interactive {
		opts = append(opts, proctree.WithFilter(c.confirm()))
	}
	res, err := proctree.NewReaper(table, opts...).Reap(ctx, seeds, dry)
	if err != nil {
		if errors.Is(err, tui.ErrAborted) {
			fmt.Fprintln(notes, "rkill: aborted, no process was touched")
		}
		return err
	}

	if len(res.Targets) > 0 {
		r := c.renderer(out)
		if r.Format != cliutil.FormatJSON {
			fmt.Fprintln(out)
		}
		if dry {
			if err := r.Render(out, cliutil.SectionTargets, res.Targets); err != nil {
				return err
			}
		} else {
			if err := r.Render(out, cliutil.SectionStopped, res.Victims); err != nil {
				return err
			}
			if len(res.Survivors) > 0 {
				if r.Format != cliutil.FormatJSON {
					fmt.Fprintln(out)
				}
				if err := r.Render(out, cliutil.SectionSurvivors, res.Survivors); err != nil {
					return err
				}
			}
		}
		fmt.Fprintln(notes)
	}
	fmt.Fprintln(notes, cliutil.Footer(inv, res))

	if len(res.Survivors) > 0 {
		return &ExitError{
			Code: exitRuntime,
			Err:  fmt.Errorf("%d of %d processes could not be stopped", len(res.Survivors), len(res.Targets)),
		}
	}
	return nil
}
