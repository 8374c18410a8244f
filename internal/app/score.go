package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/onuralpArsln/AINewspaper/internal/cli"
	"github.com/onuralpArsln/AINewspaper/internal/config"
	"github.com/onuralpArsln/AINewspaper/internal/db"
	"github.com/onuralpArsln/AINewspaper/internal/grouping"
	"github.com/onuralpArsln/AINewspaper/internal/textsim"
)

type scoreResult struct {
	LeftID     int64             `json:"left_id"`
	RightID    int64             `json:"right_id"`
	Breakdown  textsim.Breakdown `json:"breakdown"`
	Weights    textsim.Weights   `json:"weights"`
	Threshold  float64           `json:"threshold"`
	AboveLimit bool              `json:"above_threshold"`
	Eligible   bool              `json:"eligible"`
	Reason     string            `json:"ineligible_reason,omitempty"`
}

func runScore(args []string) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
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
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: grouper score [--format table|json] <article_id> <article_id>")
		return 2
	}
	leftID, err := parsePositiveID(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid article id: %v\n", err)
		return 2
	}
	rightID, err := parsePositiveID(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid article id: %v\n", err)
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, cfg, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	left, err := pool.GetArticle(ctx, leftID)
	if err != nil {
		return reportArticleLoadError(leftID, err)
	}
	right, err := pool.GetArticle(ctx, rightID)
	if err != nil {
		return reportArticleLoadError(rightID, err)
	}

	result, err := scoreArticles(cfg, left, right)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to score articles: %v\n", err)
		return 2
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeScoreTable(os.Stdout, result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func reportArticleLoadError(id int64, err error) int {
	if errors.Is(err, db.ErrNoRows) {
		fmt.Fprintf(os.Stderr, "Article not found: %d\n", id)
		return 1
	}
	fmt.Fprintf(os.Stderr, "Failed to load article %d: %v\n", id, err)
	return 1
}

// scoreArticles runs the engine's scoring and eligibility rules on one pair
// using the configured tokenizer and weights.
func scoreArticles(cfg *config.Config, left, right grouping.Article) (scoreResult, error) {
	params := cfg.GroupingParams()
	opts, err := cfg.TokenizerOptions()
	if err != nil {
		return scoreResult{}, err
	}
	tokenizer, err := textsim.NewTokenizer(opts)
	if err != nil {
		return scoreResult{}, err
	}
	scorer, err := textsim.NewScorer(tokenizer, params.Weights)
	if err != nil {
		return scoreResult{}, err
	}

	breakdown := scorer.Compare(
		scorer.Profile(textsim.Document{Title: left.Title, Body: left.Body}),
		scorer.Profile(textsim.Document{Title: right.Title, Body: right.Body}),
	)
	reason := grouping.ExplainEligibility(left, right, params.MaxTimeDiff())
	return scoreResult{
		LeftID:     left.ID,
		RightID:    right.ID,
		Breakdown:  breakdown,
		Weights:    scorer.Weights(),
		Threshold:  params.SimilarityThreshold,
		AboveLimit: breakdown.Combined >= params.SimilarityThreshold,
		Eligible:   reason == "",
		Reason:     reason,
	}, nil
}

func writeScoreTable(out io.Writer, result scoreResult) error {
	reason := result.Reason
	if reason == "" {
		reason = "-"
	}
	rows := [][]string{
		{"left_id", strconv.FormatInt(result.LeftID, 10)},
		{"right_id", strconv.FormatInt(result.RightID, 10)},
		{"title_jaccard", strconv.FormatFloat(result.Breakdown.TitleJaccard, 'f', 4, 64)},
		{"body_cosine", strconv.FormatFloat(result.Breakdown.BodyCosine, 'f', 4, 64)},
		{"combined", strconv.FormatFloat(result.Breakdown.Combined, 'f', 4, 64)},
		{"title_weight", strconv.FormatFloat(result.Weights.Title, 'f', 2, 64)},
		{"body_weight", strconv.FormatFloat(result.Weights.Body, 'f', 2, 64)},
		{"threshold", strconv.FormatFloat(result.Threshold, 'f', 4, 64)},
		{"above_threshold", strconv.FormatBool(result.AboveLimit)},
		{"eligible", strconv.FormatBool(result.Eligible)},
		{"ineligible_reason", reason},
	}
	return writeTableTo(out, []string{"field", "value"}, rows)
}
