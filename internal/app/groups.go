package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onuralpArsln/AINewspaper/internal/cli"
	"github.com/onuralpArsln/AINewspaper/internal/db"
)

func runGroups(args []string) int {
	fs := flag.NewFlagSet("groups", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 10, "Maximum groups to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "groups does not accept positional arguments")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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

	groups, err := pool.ListGroups(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list groups: %v\n", err)
		return 1
	}
	return renderGroupSummaries(groups, outputFormat)
}

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 20, "Maximum groups to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	term := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if term == "" {
		fmt.Fprintln(os.Stderr, "Usage: grouper search [--limit N] [--format table|json] <term>")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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

	groups, err := pool.SearchGroups(ctx, term, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to search groups: %v\n", err)
		return 1
	}
	return renderGroupSummaries(groups, outputFormat)
}

func renderGroupSummaries(groups []db.GroupSummary, outputFormat string) int {
	if outputFormat == outputFormatJSON {
		if err := printJSON(groups); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(groups))
	for _, group := range groups {
		rows = append(rows, []string{
			strconv.FormatInt(group.GroupID, 10),
			strconv.FormatInt(group.MemberCount, 10),
			strconv.FormatInt(group.SourceCount, 10),
			formatUTCTimestamp(group.NewestMember),
			truncateForTable(strings.Join(group.SampleTitles, " | "), 100),
		})
	}
	if err := writeTable([]string{"group_id", "members", "sources", "newest_member", "sample_titles"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runGroupDetail(args []string) int {
	fs := flag.NewFlagSet("group-detail", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: grouper group-detail [--format table|json] <group_id>")
		return 2
	}
	groupID, err := parsePositiveID(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid group id: %v\n", err)
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

	detail, err := pool.GetGroupDetail(ctx, groupID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "Group not found: %d\n", groupID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load group detail: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(detail); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeGroupDetailTable(detail); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func writeGroupDetailTable(detail *db.GroupDetail) error {
	if detail == nil {
		return fmt.Errorf("group detail is nil")
	}

	fmt.Println("group")
	groupRows := [][]string{
		{"group_id", strconv.FormatInt(detail.GroupID, 10)},
		{"members", strconv.Itoa(len(detail.Members))},
		{"created_at", formatUTCTimestampPtr(detail.CreatedAt)},
		{"created_run", detail.CreatedRunUUID},
	}
	if err := writeTable([]string{"field", "value"}, groupRows); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("articles")
	articleRows := make([][]string, 0, len(detail.Members))
	for _, member := range detail.Members {
		link := ""
		if member.Link != nil {
			link = *member.Link
		}
		articleRows = append(articleRows, []string{
			strconv.FormatInt(member.ArticleID, 10),
			truncateForTable(member.Title, 80),
			member.SourceName,
			formatUTCTimestampPtr(member.PublishedAt),
			link,
		})
	}
	return writeTable([]string{"article_id", "title", "source", "published_at", "link"}, articleRows)
}
