package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/onuralpArsln/AINewspaper/internal/cli"
	"github.com/onuralpArsln/AINewspaper/internal/grouping"
)

func runReset(args []string) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	yes := fs.Bool("yes", false, "Confirm clearing every group assignment")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "reset does not accept positional arguments")
		return 2
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "reset clears every event group assignment; re-run with --yes to proceed")
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

	result, err := pool.ResetGroups(ctx)
	if err != nil {
		if errors.Is(err, grouping.ErrRunInProgress) {
			fmt.Fprintln(os.Stderr, "A grouping run is in progress; try again later")
			return 3
		}
		fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Printf("reset articles_cleared=%d groups_zeroed=%d\n", result.ArticlesCleared, result.GroupsZeroed)
	return 0
}
