package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/onuralpArsln/AINewspaper/internal/cli"
	"github.com/onuralpArsln/AINewspaper/internal/config"
	"github.com/onuralpArsln/AINewspaper/internal/db"
	"github.com/onuralpArsln/AINewspaper/internal/grouping"
	"github.com/onuralpArsln/AINewspaper/internal/logging"
	"github.com/onuralpArsln/AINewspaper/internal/observability"
	"github.com/onuralpArsln/AINewspaper/internal/textsim"
)

// groupFlags holds the per-run overrides of the group command. Only flags
// the caller actually set replace configured values.
type groupFlags struct {
	envLoader    *cli.EnvLoader
	timeout      time.Duration
	format       string
	verbose      bool
	dryRun       bool
	threshold    float64
	days         int
	maxTimeDiff  int
	minGroupSize int
	titleWeight  float64
	workers      int
	set          map[string]bool
}

func parseGroupFlags(args []string) (groupFlags, error) {
	fs := flag.NewFlagSet("group", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaults := grouping.DefaultParams()
	opts := groupFlags{set: make(map[string]bool)}
	opts.envLoader = cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Command timeout")
	fs.StringVar(&opts.format, "format", outputFormatTable, "Output format: table or json")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log at debug level")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Compute groups without writing assignments")
	fs.Float64Var(&opts.threshold, "threshold", defaults.SimilarityThreshold, "Similarity threshold in [0,1]")
	fs.IntVar(&opts.days, "days", defaults.LookbackDays, "Lookback window in days")
	fs.IntVar(&opts.maxTimeDiff, "max-time-diff", defaults.MaxTimeDiffDays, "Maximum publish time difference in days")
	fs.IntVar(&opts.minGroupSize, "min-group-size", defaults.MinGroupSize, "Minimum members for a group")
	fs.Float64Var(&opts.titleWeight, "title-weight", defaults.Weights.Title, "Title weight; the body weight is 1 minus this")
	fs.IntVar(&opts.workers, "workers", defaults.Workers, "Scoring workers (0 = number of CPUs)")

	if err := fs.Parse(args); err != nil {
		return groupFlags{}, err
	}
	if fs.NArg() != 0 {
		return groupFlags{}, fmt.Errorf("group does not accept positional arguments")
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

// apply overlays the explicitly set flags onto params.
func (o groupFlags) apply(params grouping.Params) grouping.Params {
	if o.set["threshold"] {
		params.SimilarityThreshold = o.threshold
	}
	if o.set["days"] {
		params.LookbackDays = o.days
	}
	if o.set["max-time-diff"] {
		params.MaxTimeDiffDays = o.maxTimeDiff
	}
	if o.set["min-group-size"] {
		params.MinGroupSize = o.minGroupSize
	}
	if o.set["title-weight"] {
		params.Weights = textsim.Weights{Title: o.titleWeight, Body: 1 - o.titleWeight}
	}
	if o.set["workers"] {
		params.Workers = o.workers
	}
	params.DryRun = o.dryRun
	return params
}

func runGroup(args []string) int {
	opts, err := parseGroupFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	outputFormat, err := parseOutputFormat(opts.format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	loadEnv(opts.envLoader)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 2
	}

	level := cfg.LogLevel
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.Environment, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	params := opts.apply(cfg.GroupingParams())
	if err := params.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid parameters: %v\n", err)
		return 2
	}

	tokenizerOpts, err := cfg.TokenizerOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load stop words: %v\n", err)
		return 2
	}
	tokenizer, err := textsim.NewTokenizer(tokenizerOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid tokenizer settings: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	shutdownTracing := observability.InitTracing(ctx, logger, observability.TracingConfig{
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Environment,
	})
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("group command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	engine := grouping.NewEngine(db.NewGroupingStore(pool), tokenizer, logger)
	report, err := engine.Run(ctx, params)
	if err != nil {
		code := exitCodeFor(err)
		if code == 3 {
			fmt.Fprintln(os.Stderr, "Another grouping run is in progress")
		} else {
			fmt.Fprintf(os.Stderr, "Grouping failed: %v\n", err)
		}
		return code
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeReportTable(os.Stdout, report); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func writeReportTable(out io.Writer, report grouping.Report) error {
	summary := [][]string{
		{"run_id", report.RunID.String()},
		{"dry_run", strconv.FormatBool(report.DryRun)},
		{"duration_ms", strconv.FormatInt(report.DurationMS, 10)},
		{"articles_evaluated", strconv.Itoa(report.ArticlesEvaluated)},
		{"pairs_scored", strconv.Itoa(report.PairsScored)},
		{"edges_accepted", strconv.Itoa(report.EdgesAccepted)},
		{"groups_created", strconv.Itoa(report.GroupsCreated)},
		{"groups_extended", strconv.Itoa(report.GroupsExtended)},
		{"articles_grouped", strconv.Itoa(report.ArticlesGrouped)},
		{"clusters_demoted", strconv.Itoa(report.ClustersDemoted)},
		{"anchor_conflicts", strconv.Itoa(report.AnchorConflicts)},
		{"duplicates_skipped", strconv.Itoa(report.DuplicatesSkipped)},
	}
	if err := writeTableTo(out, []string{"metric", "value"}, summary); err != nil {
		return err
	}
	if len(report.Changes) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(report.Changes))
	for _, change := range report.Changes {
		action := "extended"
		if change.Created {
			action = "created"
		}
		rows = append(rows, []string{
			strconv.FormatInt(change.GroupID, 10),
			action,
			strconv.Itoa(len(change.ArticleIDs)),
			strconv.Itoa(change.MemberCount),
		})
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}
	return writeTableTo(out, []string{"group_id", "action", "new_members", "member_count"}, rows)
}
