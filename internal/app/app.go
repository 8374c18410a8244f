package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "group", "run":
		return runGroup(args[1:])
	case "status":
		return runStatus(args[1:])
	case "groups":
		return runGroups(args[1:])
	case "group-detail":
		return runGroupDetail(args[1:])
	case "search":
		return runSearch(args[1:])
	case "score":
		return runScore(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "reset":
		return runReset(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "grouper CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  grouper <command> [flags] [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  group          Group recent articles into events (alias: run)")
	fmt.Fprintln(os.Stderr, "  status         Show article and group totals")
	fmt.Fprintln(os.Stderr, "  groups         List the largest event groups")
	fmt.Fprintln(os.Stderr, "  group-detail   Show every member of one group")
	fmt.Fprintln(os.Stderr, "  search         Find groups whose members mention a term")
	fmt.Fprintln(os.Stderr, "  score          Explain the similarity of two articles")
	fmt.Fprintln(os.Stderr, "  runs           List recent grouping runs")
	fmt.Fprintln(os.Stderr, "  reset          Clear every group assignment (requires --yes)")
	fmt.Fprintln(os.Stderr, "  health         Verify database connectivity")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags go before positional arguments.")
	fmt.Fprintln(os.Stderr, "Use \"grouper <command> -h\" for command-specific flags.")
}
