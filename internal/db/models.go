package db

import (
	"time"

	"gorm.io/datatypes"
)

// Article maps articles. Feeds own every column except event_group_id,
// which only the grouper writes.
type Article struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Title        string     `gorm:"column:title;type:text;not null;default:''"`
	Description  string     `gorm:"column:description;type:text;not null;default:''"`
	Summary      string     `gorm:"column:summary;type:text;not null;default:''"`
	Content      string     `gorm:"column:content;type:text;not null;default:''"`
	Link         *string    `gorm:"column:link;type:text"`
	SourceName   string     `gorm:"column:source_name;type:text;not null;default:''"`
	PublishedAt  *time.Time `gorm:"column:published_at;type:timestamptz"`
	ContentHash  *string    `gorm:"column:content_hash;type:text"`
	EventGroupID *int64     `gorm:"column:event_group_id;type:bigint"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "articles" }

// EventGroup maps event_groups. A row exists for every group id ever minted;
// reset zeroes member_count but keeps the row.
type EventGroup struct {
	GroupID        int64     `gorm:"column:group_id;primaryKey;autoIncrement:false"`
	MemberCount    int       `gorm:"column:member_count;type:integer;not null;default:0"`
	CreatedRunUUID string    `gorm:"column:created_run_uuid;type:uuid;not null"`
	LastRunUUID    string    `gorm:"column:last_run_uuid;type:uuid;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (EventGroup) TableName() string { return "event_groups" }

// GroupingRun maps grouping_runs, the run ledger.
type GroupingRun struct {
	RunID             int64          `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID           string         `gorm:"column:run_uuid;type:uuid;not null;unique"`
	Status            string         `gorm:"column:status;type:text;not null"`
	StartedAt         time.Time      `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt        time.Time      `gorm:"column:finished_at;type:timestamptz;not null"`
	GroupsCreated     int            `gorm:"column:groups_created;type:integer;not null;default:0"`
	GroupsExtended    int            `gorm:"column:groups_extended;type:integer;not null;default:0"`
	ArticlesGrouped   int            `gorm:"column:articles_grouped;type:integer;not null;default:0"`
	ArticlesEvaluated int            `gorm:"column:articles_evaluated;type:integer;not null;default:0"`
	PairsScored       int64          `gorm:"column:pairs_scored;type:bigint;not null;default:0"`
	DurationMS        int64          `gorm:"column:duration_ms;type:bigint;not null;default:0"`
	Params            datatypes.JSON `gorm:"column:params;type:jsonb;not null"`
	Report            datatypes.JSON `gorm:"column:report;type:jsonb"`
	ErrorMessage      *string        `gorm:"column:error_message;type:text"`
}

func (GroupingRun) TableName() string { return "grouping_runs" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&EventGroup{},
		&GroupingRun{},
	}
}
