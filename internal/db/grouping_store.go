package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onuralpArsln/AINewspaper/internal/grouping"
)

// groupingLockKey is the transaction-scoped advisory lock held by a run.
const groupingLockKey int64 = 0x6576656e7467

// GroupingStore implements grouping.Store on Postgres.
type GroupingStore struct {
	pool *Pool
}

func NewGroupingStore(pool *Pool) *GroupingStore {
	return &GroupingStore{pool: pool}
}

var _ grouping.Store = (*GroupingStore)(nil)

func (s *GroupingStore) BeginRun(ctx context.Context) (grouping.RunTx, error) {
	if s == nil || s.pool == nil || s.pool.gdb == nil {
		return nil, fmt.Errorf("grouping store is not initialized")
	}

	tx := s.pool.gdb.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin grouping tx: %w", tx.Error)
	}

	locked, err := tryGroupingLock(tx)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if !locked {
		_ = tx.Rollback().Error
		return nil, grouping.ErrRunInProgress
	}
	return &groupingRunTx{tx: tx}, nil
}

func (s *GroupingStore) RecordFailedRun(ctx context.Context, run grouping.RunRecord) error {
	if s == nil || s.pool == nil || s.pool.gdb == nil {
		return fmt.Errorf("grouping store is not initialized")
	}
	row, err := newGroupingRunRow(run)
	if err != nil {
		return err
	}
	if err := s.pool.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert failed grouping run: %w", err)
	}
	return nil
}

func tryGroupingLock(tx *gorm.DB) (bool, error) {
	var locked bool
	if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", groupingLockKey).Row().Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire grouping lock: %w", err)
	}
	return locked, nil
}

type groupingRunTx struct {
	tx *gorm.DB
}

type workingSetRow struct {
	ID           int64
	Title        string
	Description  string
	Summary      string
	Content      string
	SourceName   string
	ContentHash  sql.NullString
	PublishedAt  sql.NullTime
	CreatedAt    time.Time
	EventGroupID sql.NullInt64
}

func (t *groupingRunTx) LoadWorkingSet(ctx context.Context, since time.Time) ([]grouping.Article, error) {
	const q = `
SELECT
	a.id,
	COALESCE(a.title, ''),
	COALESCE(a.description, ''),
	COALESCE(a.summary, ''),
	COALESCE(a.content, ''),
	COALESCE(a.source_name, ''),
	a.content_hash,
	a.published_at,
	a.created_at,
	a.event_group_id
FROM articles a
WHERE a.created_at >= ?
ORDER BY a.id ASC
`

	rows, err := t.tx.WithContext(ctx).Raw(q, since.UTC()).Rows()
	if err != nil {
		return nil, fmt.Errorf("query working set: %w", err)
	}
	defer rows.Close()

	articles := make([]grouping.Article, 0, 256)
	for rows.Next() {
		var row workingSetRow
		if err := rows.Scan(
			&row.ID,
			&row.Title,
			&row.Description,
			&row.Summary,
			&row.Content,
			&row.SourceName,
			&row.ContentHash,
			&row.PublishedAt,
			&row.CreatedAt,
			&row.EventGroupID,
		); err != nil {
			return nil, fmt.Errorf("scan working set row: %w", err)
		}
		articles = append(articles, row.toArticle())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate working set rows: %w", err)
	}
	return articles, nil
}

func (r workingSetRow) toArticle() grouping.Article {
	article := grouping.Article{
		ID:         r.ID,
		Title:      r.Title,
		Body:       composeBody(r.Description, r.Summary, r.Content),
		SourceName: r.SourceName,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.ContentHash.Valid {
		article.ContentHash = r.ContentHash.String
	}
	if r.PublishedAt.Valid {
		ts := r.PublishedAt.Time.UTC()
		article.PublishedAt = &ts
	}
	if r.EventGroupID.Valid {
		gid := r.EventGroupID.Int64
		article.EventGroupID = &gid
	}
	return article
}

// composeBody joins the text fields feeds fill in, skipping blanks and a
// field that repeats the one before it.
func composeBody(fields ...string) string {
	parts := make([]string, 0, len(fields))
	previous := ""
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" || trimmed == previous {
			continue
		}
		parts = append(parts, trimmed)
		previous = trimmed
	}
	return strings.Join(parts, "\n\n")
}

func (t *groupingRunTx) GroupSizes(ctx context.Context, groupIDs []int64) (map[int64]int, error) {
	sizes := make(map[int64]int, len(groupIDs))
	if len(groupIDs) == 0 {
		return sizes, nil
	}

	var counts []struct {
		EventGroupID int64
		Members      int
	}
	err := t.tx.WithContext(ctx).
		Model(&Article{}).
		Select("event_group_id, COUNT(*) AS members").
		Where("event_group_id IN ?", groupIDs).
		Group("event_group_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count group members: %w", err)
	}
	for _, c := range counts {
		sizes[c.EventGroupID] = c.Members
	}
	return sizes, nil
}

func (t *groupingRunTx) NextGroupID(ctx context.Context) (int64, error) {
	var id int64
	if err := t.tx.WithContext(ctx).Raw("SELECT nextval('event_group_id_seq')").Row().Scan(&id); err != nil {
		return 0, fmt.Errorf("next group id: %w", err)
	}
	return id, nil
}

func (t *groupingRunTx) AssignGroup(ctx context.Context, groupID int64, articleIDs []int64) (int64, error) {
	if len(articleIDs) == 0 {
		return 0, nil
	}
	res := t.tx.WithContext(ctx).
		Model(&Article{}).
		Where("id IN ? AND event_group_id IS NULL", articleIDs).
		Update("event_group_id", groupID)
	if res.Error != nil {
		return 0, fmt.Errorf("assign group %d: %w", groupID, res.Error)
	}
	return res.RowsAffected, nil
}

// SaveGroup upserts the group row. member_count is recounted from articles
// so it stays right even if the caller's count is stale.
func (t *groupingRunTx) SaveGroup(ctx context.Context, group grouping.GroupRecord) error {
	var members int64
	if err := t.tx.WithContext(ctx).Model(&Article{}).Where("event_group_id = ?", group.GroupID).Count(&members).Error; err != nil {
		return fmt.Errorf("count members of group %d: %w", group.GroupID, err)
	}

	runUUID := group.RunID.String()
	row := EventGroup{
		GroupID:        group.GroupID,
		MemberCount:    int(members),
		CreatedRunUUID: runUUID,
		LastRunUUID:    runUUID,
		CreatedAt:      group.At,
		UpdatedAt:      group.At,
	}
	err := t.tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"member_count":  row.MemberCount,
			"last_run_uuid": runUUID,
			"updated_at":    group.At,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert group %d: %w", group.GroupID, err)
	}
	return nil
}

func (t *groupingRunTx) RecordRun(ctx context.Context, run grouping.RunRecord) error {
	row, err := newGroupingRunRow(run)
	if err != nil {
		return err
	}
	if err := t.tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert grouping run: %w", err)
	}
	return nil
}

func (t *groupingRunTx) Commit(ctx context.Context) error {
	return t.tx.WithContext(ctx).Commit().Error
}

func (t *groupingRunTx) Rollback(ctx context.Context) error {
	return t.tx.WithContext(ctx).Rollback().Error
}

func newGroupingRunRow(run grouping.RunRecord) (GroupingRun, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return GroupingRun{}, fmt.Errorf("encode run params: %w", err)
	}
	report, err := json.Marshal(run.Report)
	if err != nil {
		return GroupingRun{}, fmt.Errorf("encode run report: %w", err)
	}

	row := GroupingRun{
		RunUUID:           run.RunID.String(),
		Status:            run.Status,
		StartedAt:         run.StartedAt.UTC(),
		FinishedAt:        run.FinishedAt.UTC(),
		GroupsCreated:     run.Report.GroupsCreated,
		GroupsExtended:    run.Report.GroupsExtended,
		ArticlesGrouped:   run.Report.ArticlesGrouped,
		ArticlesEvaluated: run.Report.ArticlesEvaluated,
		PairsScored:       int64(run.Report.PairsScored),
		DurationMS:        run.Report.DurationMS,
		Params:            datatypes.JSON(params),
		Report:            datatypes.JSON(report),
	}
	if msg := strings.TrimSpace(run.ErrorMessage); msg != "" {
		row.ErrorMessage = &msg
	}
	return row, nil
}
