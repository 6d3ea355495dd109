package desglosecli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/phillip-england/desglose/internal/breakdown"
	"github.com/phillip-england/desglose/internal/cache"
	"github.com/phillip-england/desglose/internal/envutil"
	"github.com/phillip-england/desglose/internal/job"
	"github.com/phillip-england/desglose/internal/ledger"
	"github.com/phillip-england/desglose/internal/report"
	"github.com/phillip-england/desglose/internal/security"
	"github.com/phillip-england/desglose/internal/sheet"
	"github.com/phillip-england/desglose/internal/webapp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrUsage = errors.New("usage")

func Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: desglose split <file> [-o out.xlsx] [--policy policy.yaml] [--xz] [--db path]")
	fmt.Fprintln(w, "       desglose batch <files...> --out-dir dir [--jobs n] [--policy policy.yaml] [--db path]")
	fmt.Fprintln(w, "       desglose runs [--limit n] [--db path]")
	fmt.Fprintln(w, "       desglose setup [--access-password <password>] [--env-file .env] [--force]")
	fmt.Fprintln(w, "       desglose serve")
}

type app struct {
	out     io.Writer
	verbose bool
	logger  *zap.Logger
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	a := &app{out: out, logger: zap.NewNop()}
	root := a.rootCmd()
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	_ = a.logger.Sync()
	return err
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError("%s", usage)
		}
		return nil
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "desglose",
		Short:         "Break attendance sheets down into one row per activity",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if a.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageError("desglose <split|batch|runs|setup|serve> [...]")
			}
			return usageError("unknown command %q", args[0])
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%v", err)
	})
	root.AddCommand(a.splitCmd(), a.batchCmd(), a.runsCmd(), a.setupCmd(), a.serveCmd())
	return root
}

func (a *app) splitCmd() *cobra.Command {
	var output, policyPath, dbPath string
	var compress bool
	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Process one attendance sheet and write the report workbook",
		Args:  exactArgs(1, "desglose split <file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			runner, closeLedger, err := a.newRunner(cmd.Context(), policyPath, dbPath)
			if err != nil {
				return err
			}
			defer closeLedger()

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}
			out, err := runner.Run(cmd.Context(), filepath.Base(input), data)
			if err != nil {
				return err
			}

			if output == "" {
				output = filepath.Join(filepath.Dir(input), report.FileName)
			}
			written, err := writeReport(output, out.Report, compress)
			if err != nil {
				return err
			}
			a.printSummary(written, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "report path (default: "+report.FileName+" next to the input)")
	cmd.Flags().StringVar(&policyPath, "policy", "", "YAML policy file")
	cmd.Flags().StringVar(&dbPath, "db", "", "record the run in this ledger database")
	cmd.Flags().BoolVar(&compress, "xz", false, "write the report xz-compressed")
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var outDir, policyPath, dbPath string
	var jobs int
	var compress bool
	cmd := &cobra.Command{
		Use:   "batch <files...>",
		Short: "Process several attendance sheets concurrently",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageError("desglose batch <files...> --out-dir dir")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outDir) == "" {
				return usageError("--out-dir is required")
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			runner, closeLedger, err := a.newRunner(cmd.Context(), policyPath, dbPath)
			if err != nil {
				return err
			}
			defer closeLedger()

			inputs := make([]job.Input, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				inputs = append(inputs, job.Input{Filename: filepath.Base(path), Data: data})
			}

			failed := 0
			for _, item := range runner.RunAll(cmd.Context(), inputs, jobs) {
				if item.Err != nil {
					failed++
					fmt.Fprintf(a.out, "%s: %v\n", item.Input.Filename, item.Err)
					continue
				}
				target := filepath.Join(outDir, reportName(item.Input.Filename))
				written, err := writeReport(target, item.Output.Report, compress)
				if err != nil {
					return err
				}
				a.printSummary(written, item.Output)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(inputs))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for the report workbooks")
	cmd.Flags().IntVar(&jobs, "jobs", 4, "files processed at once")
	cmd.Flags().StringVar(&policyPath, "policy", "", "YAML policy file")
	cmd.Flags().StringVar(&dbPath, "db", "", "record runs in this ledger database")
	cmd.Flags().BoolVar(&compress, "xz", false, "write reports xz-compressed")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var dbPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  exactArgs(0, "desglose runs [--limit n]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ledger.Open(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tFILE\tROWS\tMEALS CLEARED\tEXCESS")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
					run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04"), run.Filename,
					run.Stats.EmittedRows, run.Stats.MealsCleared, run.ExcessCount)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", envutil.String("DESGLOSE_DB_PATH", "data/desglose.db"), "ledger database")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func (a *app) setupCmd() *cobra.Command {
	var accessPassword, envPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env file for the web server",
		Args:  exactArgs(0, "desglose setup [--access-password <password>]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			csrfKey, err := security.NewSecret(32)
			if err != nil {
				return err
			}
			values := map[string]string{
				"DESGLOSE_ADDR":          ":8080",
				"DESGLOSE_DB_PATH":       "data/desglose.db",
				"DESGLOSE_CSRF_KEY":      csrfKey,
				"DESGLOSE_CACHE_ENTRIES": "32",
				"DESGLOSE_MAX_UPLOAD_MB": "20",
			}
			if accessPassword != "" {
				hash, err := security.HashAccessKey(accessPassword)
				if err != nil {
					return fmt.Errorf("invalid access password: %w", err)
				}
				values["DESGLOSE_ACCESS_HASH"] = hash
			}
			if err := envutil.WriteDotEnv(envPath, values, force); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", envPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&accessPassword, "access-password", "", "shared password for the web app (min 12 chars)")
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "path to .env file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing env file")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload web app",
		Args:  exactArgs(0, "desglose serve"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := envutil.LoadDotEnv(envPath); err != nil {
				return err
			}
			err := webapp.Run(cmd.Context(), webapp.DefaultConfigFromEnv(), a.logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "path to .env file")
	return cmd
}

// newRunner builds a runner for one CLI invocation. The ledger is only
// opened when dbPath is set.
func (a *app) newRunner(ctx context.Context, policyPath, dbPath string) (*job.Runner, func(), error) {
	policy, err := breakdown.LoadPolicy(policyPath)
	if err != nil {
		return nil, nil, err
	}
	runner := &job.Runner{
		Policy: policy,
		Cache:  cache.New[*job.Output](16),
		Logger: a.logger,
	}
	if dbPath == "" {
		return runner, func() {}, nil
	}
	store, err := ledger.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}
	runner.Ledger = store
	return runner, func() { _ = store.Close() }, nil
}

func (a *app) printSummary(path string, out *job.Output) {
	stats := out.Result.Stats
	fmt.Fprintf(a.out, "%s: %d rows from %d records, %d meals cleared -> %s\n",
		out.Filename, stats.EmittedRows, stats.SourceRows, stats.MealsCleared, path)
	if out.RunID != "" {
		fmt.Fprintf(a.out, "  run %s\n", out.RunID)
	}
	for _, e := range out.Result.Excess {
		fmt.Fprintf(a.out, "  exceso: %s %s %s %.2f h\n", e.Worker, e.Date, e.Shift, e.Hours)
	}
}

func writeReport(path string, data []byte, compress bool) (string, error) {
	if compress {
		packed, err := sheet.Compress(data)
		if err != nil {
			return "", err
		}
		data = packed
		if !strings.HasSuffix(path, ".xz") {
			path += ".xz"
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func reportName(input string) string {
	base := strings.TrimSuffix(input, ".xz")
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_desglose.xlsx"
}
