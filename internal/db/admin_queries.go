package db

import (
	"context"
	"fmt"

	"github.com/onuralpArsln/AINewspaper/internal/grouping"
)

// ResetResult reports what an administrative reset cleared.
type ResetResult struct {
	ArticlesCleared int64 `json:"articles_cleared"`
	GroupsZeroed    int64 `json:"groups_zeroed"`
}

// ResetGroups clears every event_group_id. It takes the grouping lock so it
// cannot interleave with a run. The id sequence is left alone, so ids minted
// afterwards never repeat an old one.
func (p *Pool) ResetGroups(ctx context.Context) (ResetResult, error) {
	if p == nil || p.gdb == nil {
		return ResetResult{}, fmt.Errorf("database pool is not initialized")
	}

	tx := p.gdb.WithContext(ctx).Begin()
	if tx.Error != nil {
		return ResetResult{}, fmt.Errorf("begin reset tx: %w", tx.Error)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback().Error
		}
	}()

	locked, err := tryGroupingLock(tx)
	if err != nil {
		return ResetResult{}, err
	}
	if !locked {
		return ResetResult{}, grouping.ErrRunInProgress
	}

	var result ResetResult
	res := tx.Exec("UPDATE articles SET event_group_id = NULL WHERE event_group_id IS NOT NULL")
	if res.Error != nil {
		return ResetResult{}, fmt.Errorf("clear article groups: %w", res.Error)
	}
	result.ArticlesCleared = res.RowsAffected

	res = tx.Exec("UPDATE event_groups SET member_count = 0, updated_at = now() WHERE member_count <> 0")
	if res.Error != nil {
		return ResetResult{}, fmt.Errorf("zero group member counts: %w", res.Error)
	}
	result.GroupsZeroed = res.RowsAffected

	if err := tx.Commit().Error; err != nil {
		return ResetResult{}, fmt.Errorf("commit reset tx: %w", err)
	}
	committed = true
	return result, nil
}
