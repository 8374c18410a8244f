package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/onuralpArsln/AINewspaper/internal/grouping"
)

// SourceCount is one row of the top-sources breakdown.
type SourceCount struct {
	SourceName string `json:"source_name"`
	Articles   int64  `json:"articles"`
	Grouped    int64  `json:"grouped"`
}

// LastRun summarizes the newest ledger row.
type LastRun struct {
	RunUUID        string    `json:"run_uuid"`
	Status         string    `json:"status"`
	FinishedAt     time.Time `json:"finished_at"`
	GroupsCreated  int       `json:"groups_created"`
	GroupsExtended int       `json:"groups_extended"`
}

// GroupingStatus is the read model returned by the status command.
type GroupingStatus struct {
	TotalArticles     int64         `json:"total_articles"`
	GroupedArticles   int64         `json:"grouped_articles"`
	UngroupedArticles int64         `json:"ungrouped_articles"`
	UndatedArticles   int64         `json:"undated_articles"`
	Groups            int64         `json:"groups"`
	LargestGroupSize  int64         `json:"largest_group_size"`
	TopSources        []SourceCount `json:"top_sources"`
	LastRun           *LastRun      `json:"last_run,omitempty"`
}

// QueryGroupingStatus returns article and group totals plus the busiest
// sources.
func (p *Pool) QueryGroupingStatus(ctx context.Context, topSources int) (*GroupingStatus, error) {
	if topSources <= 0 {
		topSources = 10
	}

	status := &GroupingStatus{TopSources: make([]SourceCount, 0, topSources)}

	const totalsQuery = `
SELECT
	COUNT(*)::BIGINT,
	COUNT(*) FILTER (WHERE a.event_group_id IS NOT NULL)::BIGINT,
	COUNT(*) FILTER (WHERE a.event_group_id IS NULL)::BIGINT,
	COUNT(*) FILTER (WHERE a.published_at IS NULL)::BIGINT,
	COUNT(DISTINCT a.event_group_id)::BIGINT
FROM articles a
`
	if err := p.QueryRow(ctx, totalsQuery).Scan(
		&status.TotalArticles,
		&status.GroupedArticles,
		&status.UngroupedArticles,
		&status.UndatedArticles,
		&status.Groups,
	); err != nil {
		return nil, fmt.Errorf("query grouping totals: %w", err)
	}

	const largestQuery = `
SELECT COALESCE(MAX(c.members), 0)::BIGINT
FROM (
	SELECT COUNT(*) AS members
	FROM articles a
	WHERE a.event_group_id IS NOT NULL
	GROUP BY a.event_group_id
) c
`
	if err := p.QueryRow(ctx, largestQuery).Scan(&status.LargestGroupSize); err != nil {
		return nil, fmt.Errorf("query largest group: %w", err)
	}

	const sourcesQuery = `
SELECT
	COALESCE(NULLIF(TRIM(a.source_name), ''), '(unknown)') AS source_name,
	COUNT(*)::BIGINT AS articles,
	COUNT(*) FILTER (WHERE a.event_group_id IS NOT NULL)::BIGINT AS grouped
FROM articles a
GROUP BY 1
ORDER BY articles DESC, source_name ASC
LIMIT $1
`
	rows, err := p.Query(ctx, sourcesQuery, topSources)
	if err != nil {
		return nil, fmt.Errorf("query top sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row SourceCount
		if err := rows.Scan(&row.SourceName, &row.Articles, &row.Grouped); err != nil {
			return nil, fmt.Errorf("scan top source row: %w", err)
		}
		status.TopSources = append(status.TopSources, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top source rows: %w", err)
	}

	const lastRunQuery = `
SELECT r.run_uuid::text, r.status, r.finished_at, r.groups_created, r.groups_extended
FROM grouping_runs r
ORDER BY r.started_at DESC, r.run_id DESC
LIMIT 1
`
	var last LastRun
	err = p.QueryRow(ctx, lastRunQuery).Scan(&last.RunUUID, &last.Status, &last.FinishedAt, &last.GroupsCreated, &last.GroupsExtended)
	switch {
	case err == nil:
		status.LastRun = &last
	case IsNoRows(err):
	default:
		return nil, fmt.Errorf("query last grouping run: %w", err)
	}

	return status, nil
}

// GroupSummary is one row of the group listing.
type GroupSummary struct {
	GroupID      int64     `json:"group_id"`
	MemberCount  int64     `json:"member_count"`
	SourceCount  int64     `json:"source_count"`
	NewestMember time.Time `json:"newest_member"`
	SampleTitles []string  `json:"sample_titles"`
}

// ListGroups returns the largest groups first, newest activity breaking ties,
// with up to three member titles each.
func (p *Pool) ListGroups(ctx context.Context, limit int) ([]GroupSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	const q = `
WITH ranked AS (
	SELECT
		a.event_group_id,
		COUNT(*)::BIGINT AS members,
		COUNT(DISTINCT a.source_name)::BIGINT AS sources,
		MAX(a.created_at) AS newest
	FROM articles a
	WHERE a.event_group_id IS NOT NULL
	GROUP BY a.event_group_id
	ORDER BY members DESC, newest DESC, a.event_group_id ASC
	LIMIT $1
)
SELECT
	r.event_group_id,
	r.members,
	r.sources,
	r.newest,
	(
		SELECT COALESCE(json_agg(s.title), '[]'::json)::text
		FROM (
			SELECT a.title
			FROM articles a
			WHERE a.event_group_id = r.event_group_id
			ORDER BY a.created_at DESC, a.id DESC
			LIMIT 3
		) s
	) AS sample_titles
FROM ranked r
ORDER BY r.members DESC, r.newest DESC, r.event_group_id ASC
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()
	return scanGroupSummaries(rows)
}

// SearchGroups returns groups with at least one member whose title or text
// contains term, case-insensitively.
func (p *Pool) SearchGroups(ctx context.Context, term string, limit int) ([]GroupSummary, error) {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return nil, fmt.Errorf("search term is required")
	}
	if limit <= 0 {
		limit = 20
	}

	const q = `
WITH matched AS (
	SELECT DISTINCT a.event_group_id
	FROM articles a
	WHERE a.event_group_id IS NOT NULL
		AND (
			a.title ILIKE $1 ESCAPE '\'
			OR a.description ILIKE $1 ESCAPE '\'
			OR a.summary ILIKE $1 ESCAPE '\'
			OR a.content ILIKE $1 ESCAPE '\'
		)
),
ranked AS (
	SELECT
		a.event_group_id,
		COUNT(*)::BIGINT AS members,
		COUNT(DISTINCT a.source_name)::BIGINT AS sources,
		MAX(a.created_at) AS newest
	FROM articles a
	JOIN matched m ON m.event_group_id = a.event_group_id
	GROUP BY a.event_group_id
	ORDER BY members DESC, newest DESC, a.event_group_id ASC
	LIMIT $2
)
SELECT
	r.event_group_id,
	r.members,
	r.sources,
	r.newest,
	(
		SELECT COALESCE(json_agg(s.title), '[]'::json)::text
		FROM (
			SELECT a.title
			FROM articles a
			WHERE a.event_group_id = r.event_group_id
				AND (a.title ILIKE $1 ESCAPE '\' OR a.description ILIKE $1 ESCAPE '\' OR a.summary ILIKE $1 ESCAPE '\' OR a.content ILIKE $1 ESCAPE '\')
			ORDER BY a.created_at DESC, a.id DESC
			LIMIT 3
		) s
	) AS sample_titles
FROM ranked r
ORDER BY r.members DESC, r.newest DESC, r.event_group_id ASC
`
	rows, err := p.Query(ctx, q, likePattern(trimmed), limit)
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	defer rows.Close()
	return scanGroupSummaries(rows)
}

func scanGroupSummaries(rows *Rows) ([]GroupSummary, error) {
	groups := make([]GroupSummary, 0, 16)
	for rows.Next() {
		var (
			row        GroupSummary
			titlesJSON string
		)
		if err := rows.Scan(&row.GroupID, &row.MemberCount, &row.SourceCount, &row.NewestMember, &titlesJSON); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if err := json.Unmarshal([]byte(titlesJSON), &row.SampleTitles); err != nil {
			return nil, fmt.Errorf("decode sample titles for group %d: %w", row.GroupID, err)
		}
		groups = append(groups, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}

// likePattern escapes LIKE metacharacters and wraps term for a substring
// match.
func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}

// GroupMember is one article of a group.
type GroupMember struct {
	ArticleID   int64      `json:"article_id"`
	Title       string     `json:"title"`
	SourceName  string     `json:"source_name"`
	Link        *string    `json:"link,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GroupDetail is the read model returned by the group-detail command.
type GroupDetail struct {
	GroupID        int64         `json:"group_id"`
	CreatedAt      *time.Time    `json:"created_at,omitempty"`
	CreatedRunUUID string        `json:"created_run_uuid,omitempty"`
	Members        []GroupMember `json:"members"`
}

// GetGroupDetail returns a group's members newest first. It returns ErrNoRows
// when the id was never minted.
func (p *Pool) GetGroupDetail(ctx context.Context, groupID int64) (*GroupDetail, error) {
	detail := &GroupDetail{GroupID: groupID, Members: make([]GroupMember, 0, 8)}

	const groupQuery = `
SELECT g.created_at, g.created_run_uuid::text
FROM event_groups g
WHERE g.group_id = $1
`
	var (
		createdAt time.Time
		runUUID   string
	)
	err := p.QueryRow(ctx, groupQuery, groupID).Scan(&createdAt, &runUUID)
	switch {
	case err == nil:
		detail.CreatedAt = &createdAt
		detail.CreatedRunUUID = runUUID
	case IsNoRows(err):
	default:
		return nil, fmt.Errorf("query group %d: %w", groupID, err)
	}

	const membersQuery = `
SELECT a.id, a.title, a.source_name, a.link, a.published_at, a.created_at
FROM articles a
WHERE a.event_group_id = $1
ORDER BY a.created_at DESC, a.id DESC
`
	rows, err := p.Query(ctx, membersQuery, groupID)
	if err != nil {
		return nil, fmt.Errorf("query members of group %d: %w", groupID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			member    GroupMember
			link      sql.NullString
			published sql.NullTime
		)
		if err := rows.Scan(&member.ArticleID, &member.Title, &member.SourceName, &link, &published, &member.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		if link.Valid && strings.TrimSpace(link.String) != "" {
			member.Link = &link.String
		}
		if published.Valid {
			ts := published.Time
			member.PublishedAt = &ts
		}
		detail.Members = append(detail.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members: %w", err)
	}

	if detail.CreatedAt == nil && len(detail.Members) == 0 {
		return nil, ErrNoRows
	}
	return detail, nil
}

// RunSummary is one ledger row.
type RunSummary struct {
	RunUUID         string    `json:"run_uuid"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	DurationMS      int64     `json:"duration_ms"`
	GroupsCreated   int       `json:"groups_created"`
	GroupsExtended  int       `json:"groups_extended"`
	ArticlesGrouped int       `json:"articles_grouped"`
	PairsScored     int64     `json:"pairs_scored"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

func (p *Pool) ListGroupingRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT
	r.run_uuid::text,
	r.status,
	r.started_at,
	r.duration_ms,
	r.groups_created,
	r.groups_extended,
	r.articles_grouped,
	r.pairs_scored,
	COALESCE(r.error_message, '')
FROM grouping_runs r
ORDER BY r.started_at DESC, r.run_id DESC
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query grouping runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0, limit)
	for rows.Next() {
		var row RunSummary
		if err := rows.Scan(
			&row.RunUUID,
			&row.Status,
			&row.StartedAt,
			&row.DurationMS,
			&row.GroupsCreated,
			&row.GroupsExtended,
			&row.ArticlesGrouped,
			&row.PairsScored,
			&row.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan grouping run: %w", err)
		}
		runs = append(runs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grouping runs: %w", err)
	}
	return runs, nil
}

// LastGroupID reports the newest id minted from event_group_id_seq, or 0
// when no group has been created yet. It fails when the sequence is missing.
func (p *Pool) LastGroupID(ctx context.Context) (int64, error) {
	const q = `SELECT CASE WHEN is_called THEN last_value ELSE 0 END FROM event_group_id_seq`

	var id int64
	if err := p.QueryRow(ctx, q).Scan(&id); err != nil {
		return 0, fmt.Errorf("read event group id sequence: %w", err)
	}
	return id, nil
}

// GetArticle loads one article in working-set form.
func (p *Pool) GetArticle(ctx context.Context, articleID int64) (grouping.Article, error) {
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
WHERE a.id = $1
`
	var row workingSetRow
	if err := p.QueryRow(ctx, q, articleID).Scan(
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
		if IsNoRows(err) {
			return grouping.Article{}, ErrNoRows
		}
		return grouping.Article{}, fmt.Errorf("query article %d: %w", articleID, err)
	}
	return row.toArticle(), nil
}
