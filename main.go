package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/danielsiegl/dumpfilter/internal/config"
	"github.com/danielsiegl/dumpfilter/internal/filters"
	"github.com/danielsiegl/dumpfilter/internal/hash"
	"github.com/danielsiegl/dumpfilter/internal/logging"
	"github.com/danielsiegl/dumpfilter/internal/progress"
	"github.com/danielsiegl/dumpfilter/internal/timing"
	"github.com/danielsiegl/dumpfilter/internal/version"
)

// Exit codes
const (
	exitUsage  = 1 // bad arguments or configuration
	exitInput  = 2 // input or timings db cannot be opened
	exitStream = 3 // failure while streaming
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

const examples = `  dumpfilter dump.sql > filtered.sql
  dumpfilter --except audit_log,sessions dump.sql > filtered.sql
  dumpfilter -e audit_log -e sessions --progress dump.sql > filtered.sql
  dumpfilter --except-file skip.txt dump.sql > filtered.sql
  dumpfilter --log --format csv dump.sql 2> timings.csv > /dev/null
  dumpfilter --log --timings-db timings.db dump.sql > /dev/null
  dumpfilter --config dumpfilter.yaml --log-dir ./logs dump.sql > filtered.sql`

// flagValues are the raw command line values; config.Config is built from
// them on top of the config file.
type flagValues struct {
	configPath string
	except     []string
	exceptFile string
	log        bool
	format     timing.Format
	progress   bool
	timingsDB  string
	logDir     string
}

// normalizeFlagName maps the historical aliases onto --except.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "ignore", "exclude":
		name = "except"
	}
	return pflag.NormalizedName(name)
}

func newRootCmd() *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "dumpfilter [flags] <file>",
		Short: "Stream a mysqldump file, dropping INSERTs of selected tables",
		Long: `dumpfilter streams a mysqldump file to stdout in a single pass.

INSERT INTO lines of excluded tables are dropped; every other line, including
the CREATE TABLE statements of excluded tables, is written unchanged. With
--log the time spent in each table's CREATE TABLE and INSERT INTO section is
reported on stderr.`,
		Example:       examples,
		Args:          cobra.ExactArgs(1),
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), fv, args[0])
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}

			logger, cleanup := logging.Setup(cfg.LogDir, cmd.ErrOrStderr())
			defer cleanup()
			slog.SetDefault(logger)
			logger.Info("dumpfilter started", "args", os.Args, "version", version.Version)

			return runFilter(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("dumpfilter version {{.Version}}\nGit commit: %s\nGit branch: %s\nBuild time: %s\n",
		version.GitCommit, version.GitBranch, version.BuildTime))

	flags := cmd.Flags()
	flags.SetNormalizeFunc(normalizeFlagName)
	flags.StringVar(&fv.configPath, "config", "", "YAML file with default settings")
	flags.StringArrayVarP(&fv.except, "except", "e", nil, "Exclude INSERT statements of `TABLE` (repeatable, comma-separated; aliases --ignore, --exclude)")
	flags.StringVar(&fv.exceptFile, "except-file", "", "File listing tables to exclude, one per line")
	flags.BoolVar(&fv.log, "log", false, "Log time spent on each CREATE TABLE and INSERT INTO statement to stderr")
	flags.Var(&fv.format, "format", "Format of the log output (default or csv)")
	flags.BoolVar(&fv.progress, "progress", false, "Show a progress bar on stderr")
	flags.StringVar(&fv.timingsDB, "timings-db", "", "Also store timings in this SQLite database")
	flags.StringVar(&fv.logDir, "log-dir", "", `Write the JSON run log to this directory ("stderr" for stderr)`)
	return cmd
}

// resolveConfig loads the config file and applies the flags set on the
// command line over it. Exclusion lists from both are merged.
func resolveConfig(flags *pflag.FlagSet, fv flagValues, input string) (*config.Config, error) {
	cfg, err := config.Load(fv.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Input = input
	cfg.Except = append(cfg.Except, fv.except...)

	if flags.Changed("except-file") {
		cfg.ExceptFile = fv.exceptFile
	}
	if flags.Changed("log") {
		cfg.Log = fv.log
	}
	if flags.Changed("format") {
		cfg.Format = fv.format.String()
	}
	if flags.Changed("progress") {
		cfg.Progress = fv.progress
	}
	if flags.Changed("timings-db") {
		cfg.TimingsDB = fv.timingsDB
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = fv.logDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runFilter performs one pass over cfg.Input.
func runFilter(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	values, err := cfg.ExceptValues()
	if err != nil {
		slog.Error("failed to read exclusions", "error", err)
		return &exitError{code: exitUsage, err: err}
	}
	exclude := filters.NewExclusionSet(values...)

	f, err := os.Open(cfg.Input)
	if err != nil {
		slog.Error("failed to open dump", "file", cfg.Input, "error", err)
		return &exitError{code: exitInput, err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		slog.Error("failed to stat dump", "file", cfg.Input, "error", err)
		return &exitError{code: exitInput, err: err}
	}

	var sinks timing.Multi
	if cfg.Log {
		sinks = append(sinks, timing.NewWriter(stderr, cfg.TimingFormat()))
	}
	if cfg.TimingsDB != "" {
		store, err := timing.OpenStore(ctx, cfg.TimingsDB)
		if err != nil {
			slog.Error("failed to open timings db", "path", cfg.TimingsDB, "error", err)
			return &exitError{code: exitInput, err: err}
		}
		defer store.Close()
		slog.Info("recording timings", "path", cfg.TimingsDB, "run_id", store.RunID())
		sinks = append(sinks, store)
	}

	opts := filters.Options{Exclude: exclude}
	if len(sinks) > 0 {
		opts.Sink = sinks
	}

	slog.Info("starting filter",
		"file", cfg.Input,
		"size", humanize.IBytes(uint64(info.Size())),
		"excluded", strings.Join(exclude.Names(), ","),
		"log", cfg.Log,
		"format", cfg.Format)

	var bar *progress.Bar
	if cfg.Progress && isTerminal(stderr) {
		bar = progress.New(stderr, info.Size())
		bar.Start(0)
		defer bar.Finish()
		restore := routeLogThrough(bar)
		defer restore()
		opts.Observer = bar
	}

	out := hash.NewDigestWriter(stdout)
	startTime := time.Now()
	stats, err := filters.Stream(ctx, f, out, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		slog.Error("filter failed", "error", err, "lines", stats.LinesRead,
			"duration", logging.FormatDuration(time.Since(startTime)))
		return &exitError{code: exitStream, err: err}
	}

	slog.Info("filter completed",
		"lines", stats.LinesRead,
		"dropped", stats.LinesDropped,
		"observations", stats.Observations,
		"bytes_in", humanize.IBytes(uint64(stats.BytesRead)),
		"bytes_out", humanize.IBytes(uint64(out.Count())),
		"output_digest", out.String(),
		"duration", logging.FormatDuration(time.Since(startTime)))
	return nil
}

// routeLogThrough writes run-log records inside bar.Suspend until restore
// is called, so records sharing stderr with the bar never split a bar line.
func routeLogThrough(bar *progress.Bar) (restore func()) {
	prev := slog.Default()
	slog.SetDefault(slog.New(logging.WithSuspend(prev.Handler(), bar.Suspend)))
	return func() { slog.SetDefault(prev) }
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	if args == nil {
		// cobra reads os.Args when given nil
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprintf(stderr, "Use --help for more information\n")
	return exitUsage
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
