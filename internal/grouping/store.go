package grouping

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusDryRun    = "dry_run"
)

// Store opens run-scoped transactions over the article store.
type Store interface {
	// BeginRun starts the run transaction. Implementations return
	// ErrRunInProgress when another run already holds the grouping lock.
	BeginRun(ctx context.Context) (RunTx, error)
	// RecordFailedRun writes a ledger row outside of any run transaction.
	RecordFailedRun(ctx context.Context, run RunRecord) error
}

// RunTx is everything one run reads and writes. Nothing is visible to other
// readers until Commit.
type RunTx interface {
	// LoadWorkingSet returns articles created at or after since, ordered by id.
	LoadWorkingSet(ctx context.Context, since time.Time) ([]Article, error)
	// GroupSizes returns the persisted member count of each group id.
	GroupSizes(ctx context.Context, groupIDs []int64) (map[int64]int, error)
	NextGroupID(ctx context.Context) (int64, error)
	// AssignGroup sets event_group_id on articles that are still ungrouped and
	// returns how many rows changed.
	AssignGroup(ctx context.Context, groupID int64, articleIDs []int64) (int64, error)
	SaveGroup(ctx context.Context, group GroupRecord) error
	RecordRun(ctx context.Context, run RunRecord) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GroupRecord is the lightweight event group row.
type GroupRecord struct {
	GroupID     int64
	MemberCount int
	Created     bool
	RunID       uuid.UUID
	At          time.Time
}

// RunRecord is one grouping_runs ledger row.
type RunRecord struct {
	RunID        uuid.UUID
	Status       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Params       Params
	Report       Report
	ErrorMessage string
}
