package db

import (
	"encoding/json"
	"time"
)

// Keyword source values.
const (
	KeywordSourceManual     = "manual"
	KeywordSourceDiscovered = "discovered"
)

// Keyword relevance tiers.
const (
	RelevanceLow    = "low"
	RelevanceMedium = "medium"
	RelevanceHigh   = "high"
)

// Sync log status values.
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Site maps seo.sites. A nil schedule field means the corresponding
// cycle is never due.
type Site struct {
	SiteID            int64     `gorm:"column:site_id;primaryKey;autoIncrement"`
	SiteUUID          string    `gorm:"column:site_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Slug              string    `gorm:"column:slug;type:text;not null;unique"`
	Name              string    `gorm:"column:name;type:text;not null"`
	PropertyURL       string    `gorm:"column:property_url;type:text;not null"`
	Enabled           bool      `gorm:"column:enabled;type:boolean;not null;default:true"`
	ImportWeekday     *int16    `gorm:"column:import_weekday;type:smallint"`
	ImportSlot        *string   `gorm:"column:import_slot;type:text"`
	ReportWeekday     *int16    `gorm:"column:report_weekday;type:smallint"`
	ReportWeekOfMonth *int16    `gorm:"column:report_week_of_month;type:smallint"`
	ReportSlot        *string   `gorm:"column:report_slot;type:text"`
	CreatedAt         time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Site) TableName() string { return "seo.sites" }

// Keyword maps seo.keywords. SiteID is nil for globally tracked keywords.
type Keyword struct {
	KeywordID        int64      `gorm:"column:keyword_id;primaryKey;autoIncrement"`
	KeywordUUID      string     `gorm:"column:keyword_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SiteID           *int64     `gorm:"column:site_id;type:bigint"`
	Text             string     `gorm:"column:text;type:text;not null"`
	NormalizedText   string     `gorm:"column:normalized_text;type:text;not null"`
	TargetURL        *string    `gorm:"column:target_url;type:text"`
	Active           bool       `gorm:"column:active;type:boolean;not null;default:true"`
	Source           string     `gorm:"column:source;type:text;not null;default:manual"`
	Relevance        string     `gorm:"column:relevance;type:text;not null;default:medium"`
	RelevanceScore   int16      `gorm:"column:relevance_score;type:smallint;not null;default:3"`
	LastSyncedAt     *time.Time `gorm:"column:last_synced_at;type:timestamptz"`
	LastSeenGoogleAt *time.Time `gorm:"column:last_seen_google_at;type:timestamptz"`
	LastSeenBingAt   *time.Time `gorm:"column:last_seen_bing_at;type:timestamptz"`
	DeactivatedAt    *time.Time `gorm:"column:deactivated_at;type:timestamptz"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Keyword) TableName() string { return "seo.keywords" }

// Position maps seo.positions. (keyword_id, day, source) is the natural key.
type Position struct {
	PositionID  int64     `gorm:"column:position_id;primaryKey;autoIncrement"`
	KeywordID   int64     `gorm:"column:keyword_id;type:bigint;not null;uniqueIndex:ux_positions_natural_key,priority:1"`
	Day         time.Time `gorm:"column:day;type:date;not null;uniqueIndex:ux_positions_natural_key,priority:2"`
	Source      string    `gorm:"column:source;type:text;not null;uniqueIndex:ux_positions_natural_key,priority:3"`
	Position    float64   `gorm:"column:position;type:double precision;not null"`
	Clicks      int64     `gorm:"column:clicks;type:bigint;not null;default:0"`
	Impressions int64     `gorm:"column:impressions;type:bigint;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Position) TableName() string { return "seo.positions" }

// DailyTotal maps seo.daily_totals. These are real site-wide figures,
// not a sum of per-keyword rows, which providers anonymize.
type DailyTotal struct {
	DailyTotalID int64     `gorm:"column:daily_total_id;primaryKey;autoIncrement"`
	SiteID       *int64    `gorm:"column:site_id;type:bigint"`
	Day          time.Time `gorm:"column:day;type:date;not null"`
	Source       string    `gorm:"column:source;type:text;not null"`
	Clicks       int64     `gorm:"column:clicks;type:bigint;not null;default:0"`
	Impressions  int64     `gorm:"column:impressions;type:bigint;not null;default:0"`
	Position     float64   `gorm:"column:position;type:double precision;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (DailyTotal) TableName() string { return "seo.daily_totals" }

// SyncLog maps seo.sync_logs. Rows are append-only: only finished_at,
// duration, status, detail, and error_message are set after creation.
type SyncLog struct {
	SyncLogID    int64           `gorm:"column:sync_log_id;primaryKey;autoIncrement"`
	SyncLogUUID  string          `gorm:"column:sync_log_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Command      string          `gorm:"column:command;type:text;not null"`
	SiteID       *int64          `gorm:"column:site_id;type:bigint"`
	StartedAt    time.Time       `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt   *time.Time      `gorm:"column:finished_at;type:timestamptz"`
	DurationMS   *int64          `gorm:"column:duration_ms;type:bigint"`
	Status       string          `gorm:"column:status;type:text;not null;default:running"`
	Detail       json.RawMessage `gorm:"column:detail;type:jsonb"`
	ErrorMessage *string         `gorm:"column:error_message;type:text"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (SyncLog) TableName() string { return "seo.sync_logs" }

func autoMigrateModels() []any {
	return []any{
		&Site{},
		&Keyword{},
		&Position{},
		&DailyTotal{},
		&SyncLog{},
	}
}
