package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/onuralpArsln/AINewspaper/internal/cli"
	"github.com/onuralpArsln/AINewspaper/internal/db"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	top := fs.Int("top", 10, "Number of sources to list")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status does not accept positional arguments")
		return 2
	}
	if *top <= 0 {
		fmt.Fprintln(os.Stderr, "--top must be > 0")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	status, err := pool.QueryGroupingStatus(ctx, *top)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query grouping status: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(status); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeStatusTables(status); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func writeStatusTables(status *db.GroupingStatus) error {
	if status == nil {
		return fmt.Errorf("grouping status is nil")
	}

	totals := [][]string{
		{"total_articles", strconv.FormatInt(status.TotalArticles, 10)},
		{"grouped_articles", strconv.FormatInt(status.GroupedArticles, 10)},
		{"ungrouped_articles", strconv.FormatInt(status.UngroupedArticles, 10)},
		{"undated_articles", strconv.FormatInt(status.UndatedArticles, 10)},
		{"groups", strconv.FormatInt(status.Groups, 10)},
		{"largest_group_size", strconv.FormatInt(status.LargestGroupSize, 10)},
	}
	if run := status.LastRun; run != nil {
		totals = append(totals,
			[]string{"last_run", run.RunUUID},
			[]string{"last_run_status", run.Status},
			[]string{"last_run_finished_at", formatUTCTimestamp(run.FinishedAt)},
			[]string{"last_run_groups_created", strconv.Itoa(run.GroupsCreated)},
			[]string{"last_run_groups_extended", strconv.Itoa(run.GroupsExtended)},
		)
	}
	if err := writeTable([]string{"metric", "value"}, totals); err != nil {
		return err
	}

	fmt.Println()
	rows := make([][]string, 0, len(status.TopSources))
	for _, source := range status.TopSources {
		rows = append(rows, []string{
			truncateForTable(source.SourceName, 40),
			strconv.FormatInt(source.Articles, 10),
			strconv.FormatInt(source.Grouped, 10),
		})
	}
	return writeTable([]string{"source", "articles", "grouped"}, rows)
}
