package grouping

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/onuralpArsln/AINewspaper/internal/textsim"
)

const (
	DefaultSimilarityThreshold = 0.3
	DefaultLookbackDays        = 7
	DefaultMaxTimeDiffDays     = 2
	DefaultMinGroupSize        = 2
	DefaultPairWarnLevel       = 2_000_000
)

// Article is one row of the working set.
type Article struct {
	ID           int64
	Title        string
	Body         string
	SourceName   string
	ContentHash  string
	PublishedAt  *time.Time
	CreatedAt    time.Time
	EventGroupID *int64
}

func (a Article) Grouped() bool {
	return a.EventGroupID != nil && *a.EventGroupID > 0
}

// Params are the per-run knobs. Zero values are not defaults; start from
// DefaultParams.
type Params struct {
	SimilarityThreshold float64         `json:"similarity_threshold"`
	LookbackDays        int             `json:"lookback_days"`
	MaxTimeDiffDays     int             `json:"max_time_diff_days"`
	MinGroupSize        int             `json:"min_group_size"`
	Weights             textsim.Weights `json:"weights"`
	// Workers bounds concurrent pair scoring. 0 means one per CPU.
	Workers       int  `json:"workers"`
	PairWarnLevel int  `json:"pair_warn_level"`
	DryRun        bool `json:"dry_run"`
}

func DefaultParams() Params {
	return Params{
		SimilarityThreshold: DefaultSimilarityThreshold,
		LookbackDays:        DefaultLookbackDays,
		MaxTimeDiffDays:     DefaultMaxTimeDiffDays,
		MinGroupSize:        DefaultMinGroupSize,
		Weights:             textsim.DefaultWeights(),
		PairWarnLevel:       DefaultPairWarnLevel,
	}
}

// Validate reports the first out-of-range parameter wrapped in
// ErrInvalidConfig.
func (p Params) Validate() error {
	if math.IsNaN(p.SimilarityThreshold) || p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be within [0,1], got %v", ErrInvalidConfig, p.SimilarityThreshold)
	}
	if p.LookbackDays < 1 {
		return fmt.Errorf("%w: lookback days must be >= 1, got %d", ErrInvalidConfig, p.LookbackDays)
	}
	if p.MaxTimeDiffDays < 0 {
		return fmt.Errorf("%w: max time diff days must be >= 0, got %d", ErrInvalidConfig, p.MaxTimeDiffDays)
	}
	if p.MinGroupSize < 2 {
		return fmt.Errorf("%w: min group size must be >= 2, got %d", ErrInvalidConfig, p.MinGroupSize)
	}
	if err := p.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, p.Workers)
	}
	if p.PairWarnLevel < 0 {
		return fmt.Errorf("%w: pair warn level must be >= 0, got %d", ErrInvalidConfig, p.PairWarnLevel)
	}
	return nil
}

func (p Params) MaxTimeDiff() time.Duration {
	return time.Duration(p.MaxTimeDiffDays) * 24 * time.Hour
}

// GroupChange describes one group touched by a run. GroupID is zero for
// groups a dry run would have created.
type GroupChange struct {
	GroupID     int64   `json:"group_id"`
	Created     bool    `json:"created"`
	ArticleIDs  []int64 `json:"article_ids"`
	MemberCount int     `json:"member_count"`
}

// Report summarizes one engine run.
type Report struct {
	RunID             uuid.UUID     `json:"run_id"`
	DryRun            bool          `json:"dry_run"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Duration          time.Duration `json:"-"`
	DurationMS        int64         `json:"duration_ms"`
	GroupsCreated     int           `json:"groups_created"`
	GroupsExtended    int           `json:"groups_extended"`
	ArticlesGrouped   int           `json:"articles_grouped"`
	ArticlesEvaluated int           `json:"articles_evaluated"`
	PairsScored       int           `json:"pairs_scored"`
	AnchorsLoaded     int           `json:"anchors_loaded"`
	EdgesAccepted     int           `json:"edges_accepted"`
	ClustersDemoted   int           `json:"clusters_demoted"`
	AnchorConflicts   int           `json:"anchor_conflicts"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	Changes           []GroupChange `json:"changes"`
}
