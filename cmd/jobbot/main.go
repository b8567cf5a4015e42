package main

// Command-line entry point:
//   go run ./cmd/jobbot run --boards linkedin --max-applications 3 --dry-run

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"jobbot/internal/bootstrap"
	"jobbot/internal/orchestrator"
	"jobbot/internal/postings"
	"jobbot/internal/shared/config"
	"jobbot/internal/shared/telemetry"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	defaultExportPath = "job_applications_export.csv"
	reportWindow      = 24 * time.Hour
)

const usage = `usage: jobbot <command> [flags]

commands:
  search    [--boards linkedin,indeed]
  apply     [--dry-run] [--max-applications N]
  run       [--boards ...] [--max-applications N] [--dry-run]
  stats
  report    [--hours N]
  validate
  export    [--output path|s3://bucket/key]   (default s3://$S3_BUCKET/... when S3_BUCKET is set)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	boards    string
	dryRun    bool
	max       int
	output    string
	outputSet bool
	hours     int
	command   string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	if len(args) == 0 {
		return options{}, errors.New("missing command")
	}
	opts := options{command: args[0]}
	fs := flag.NewFlagSet(opts.command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	switch opts.command {
	case "search":
		fs.StringVar(&opts.boards, "boards", "", "comma-separated boards to search")
	case "apply":
		fs.BoolVar(&opts.dryRun, "dry-run", false, "report what would be submitted without submitting")
		fs.IntVar(&opts.max, "max-applications", 0, "cap on submissions this run")
	case "run":
		fs.StringVar(&opts.boards, "boards", "", "comma-separated boards to process")
		fs.BoolVar(&opts.dryRun, "dry-run", false, "report what would be submitted without submitting")
		fs.IntVar(&opts.max, "max-applications", 0, "cap on submissions this run")
	case "export":
		fs.StringVar(&opts.output, "output", defaultExportPath, "local path or s3://bucket/key (.csv or .xlsx)")
	case "report":
		fs.IntVar(&opts.hours, "hours", int(reportWindow/time.Hour), "window in hours")
	case "stats", "validate":
	default:
		return options{}, fmt.Errorf("unknown command %q", opts.command)
	}
	if err := fs.Parse(args[1:]); err != nil {
		return options{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "output" {
			opts.outputSet = true
		}
	})
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.max < 0 {
		return options{}, errors.New("--max-applications must not be negative")
	}
	if opts.command == "report" && opts.hours < 1 {
		return options{}, errors.New("--hours must be at least 1")
	}
	return opts, nil
}

func parseBoards(raw string) ([]postings.Board, error) {
	var out []postings.Board
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		b, ok := postings.ParseBoard(name)
		if !ok {
			return nil, fmt.Errorf("unknown board %q", name)
		}
		out = append(out, b)
	}
	return out, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "jobbot: %v\n", err)
		}
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	selected, err := parseBoards(opts.boards)
	if err != nil {
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		var cerr *config.ConfigurationError
		if errors.As(err, &cerr) {
			fmt.Fprintln(stderr, "configuration is invalid:")
			for _, p := range cerr.Problems {
				fmt.Fprintf(stderr, "  - %s\n", p)
			}
		} else {
			fmt.Fprintf(stderr, "jobbot: %v\n", err)
		}
		return exitUsage
	}
	if opts.command == "validate" {
		fmt.Fprintln(stdout, "configuration is valid")
		return exitOK
	}

	logs, err := telemetry.TeeToFile(cfg.Storage.LogFilePath)
	if err != nil {
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitFailure
	}
	defer logs.Close()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("jobbot.bootstrap_failed", map[string]any{"error": err})
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitFailure
	}
	defer app.Close()

	cycle := orchestrator.CycleOptions{Boards: selected, MaxApplications: opts.max, DryRun: opts.dryRun}
	switch opts.command {
	case "search":
		return finishCycle(app.Orchestrator.Search(ctx, cycle))(stdout, stderr)
	case "apply":
		return finishCycle(app.Orchestrator.ApplyPending(ctx, cycle))(stdout, stderr)
	case "run":
		return finishCycle(app.Orchestrator.RunCycle(ctx, cycle))(stdout, stderr)
	case "stats":
		items, err := app.Repo.Load(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "jobbot: %v\n", err)
			return exitFailure
		}
		return printJSON(stdout, stderr, postings.Stats(items, time.Now()))
	case "report":
		since := time.Now().Add(-time.Duration(opts.hours) * time.Hour)
		results, err := app.Repo.Applications(ctx, since)
		if err != nil {
			fmt.Fprintf(stderr, "jobbot: %v\n", err)
			return exitFailure
		}
		return printJSON(stdout, stderr, postings.Report(results))
	case "export":
		output := opts.output
		if !opts.outputSet && cfg.S3Bucket != "" {
			output = "s3://" + cfg.S3Bucket + "/" + defaultExportPath
		}
		return export(ctx, app, output, stdout, stderr)
	}
	return exitUsage
}

// finishCycle prints the report and maps it to an exit code.
func finishCycle(report orchestrator.CycleReport, err error) func(stdout, stderr io.Writer) int {
	return func(stdout, stderr io.Writer) int {
		code := printJSON(stdout, stderr, report)
		if err != nil {
			fmt.Fprintf(stderr, "jobbot: %v\n", err)
			return exitFailure
		}
		if report.Degraded() {
			fmt.Fprintln(stderr, "jobbot: boards failed and nothing was applied")
			return exitFailure
		}
		return code
	}
}

func export(ctx context.Context, app *bootstrap.App, output string, stdout, stderr io.Writer) int {
	dest, err := postings.ParseDestination(output)
	if err != nil {
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitUsage
	}
	up, err := app.ExportStore(ctx, dest)
	if err != nil {
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitFailure
	}
	summary, err := postings.Export(ctx, app.Repo, dest, up)
	switch {
	case errors.Is(err, postings.ErrNothingToExport):
		fmt.Fprintln(stdout, "no postings to export")
		return exitOK
	case errors.Is(err, postings.ErrUnsupportedFormat):
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitUsage
	case err != nil:
		telemetry.Error("export.failed", map[string]any{"destination": dest.String(), "error": err})
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "exported %d postings to %s\n", summary.Postings, summary.Destination)
	return exitOK
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "jobbot: %v\n", err)
		return exitFailure
	}
	return exitOK
}
