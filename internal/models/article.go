package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SourceType identifies where an article was ingested from. The set is
// closed: every branch that dispatches on it must handle both values and
// reject anything else.
type SourceType string

const (
	// SourceOfficial marks articles pulled from the WeChat official-account feed.
	SourceOfficial SourceType = "official"
	// SourceCrawled marks articles collected by the website crawler.
	SourceCrawled SourceType = "crawled"
)

func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceOfficial, SourceCrawled:
		return SourceType(s), nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

// TargetPlatform identifies a downstream publish target. Closed set, same
// rule as SourceType.
type TargetPlatform string

const (
	PlatformWeChat  TargetPlatform = "wechat"
	PlatformWebsite TargetPlatform = "website"
)

func ParseTargetPlatform(s string) (TargetPlatform, error) {
	switch TargetPlatform(s) {
	case PlatformWeChat, PlatformWebsite:
		return TargetPlatform(s), nil
	default:
		return "", fmt.Errorf("unknown target platform %q", s)
	}
}

// ProcessStatus is the lifecycle state of a normalized article and of the
// source row it was derived from.
type ProcessStatus int

const (
	StatusNew ProcessStatus = 0
	// 1..3 are intermediate states owned by downstream enrichment; this
	// core never sets them but must pass them through untouched.
	StatusDiscarded ProcessStatus = 4
)

// PublishStatus tracks whether a publish record was confirmed downstream.
type PublishStatus int

const (
	PublishPending   PublishStatus = 0
	PublishPublished PublishStatus = 1
)

// SourceArticle is one raw crawled document, keyed by a stable source key.
// Rows are immutable once ProcessStatus leaves StatusNew except for the
// discard propagation path.
type SourceArticle struct {
	SID           uint           `gorm:"primaryKey;column:sid" json:"sid"`
	SourceKey     string         `gorm:"uniqueIndex;not null;size:255" json:"source_key"`
	SourceURL     string         `gorm:"size:1024" json:"source_url"`
	RawHTML       string         `gorm:"type:text" json:"raw_html"`
	ProcessStatus ProcessStatus  `gorm:"default:0;index" json:"process_status"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (SourceArticle) TableName() string { return "source_articles" }

// NormalizedArticle is the canonical, editable form of an ingested document.
// SID is a weak back-reference to the source row: relation only, resolved by
// explicit lookup, never loaded as an owning object.
type NormalizedArticle struct {
	NID           uint           `gorm:"primaryKey;column:nid" json:"nid"`
	SourceType    SourceType     `gorm:"size:50;not null;index" json:"source_type"`
	Title         string         `gorm:"not null;size:500" json:"title"`
	Content       string         `gorm:"type:text" json:"content"`
	SourceURL     string         `gorm:"size:1024" json:"source_url"`
	CoverURL      string         `gorm:"size:1024" json:"cover_url"`
	ProcessStatus ProcessStatus  `gorm:"default:0;index" json:"process_status"`
	SID           *uint          `gorm:"column:sid;index" json:"sid"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (NormalizedArticle) TableName() string { return "normalized_articles" }

// PublishArticle is one publish target instance: at most one row per
// (nid, target_platform), enforced by lookup-then-write in the dispatcher.
// Rows are never deleted, only updated in place.
type PublishArticle struct {
	PID               uint           `gorm:"primaryKey;column:pid" json:"pid"`
	NID               uint           `gorm:"column:nid;not null;index:idx_publish_target" json:"nid"`
	Title             string         `gorm:"not null;size:500" json:"title"`
	ContentHTML       string         `gorm:"type:text" json:"content_html"`
	CoverURL          string         `gorm:"size:1024" json:"cover_url"`
	SourceURL         string         `gorm:"size:1024" json:"source_url"`
	TargetPlatform    TargetPlatform `gorm:"size:50;not null;index:idx_publish_target" json:"target_platform"`
	PublishStatus     PublishStatus  `gorm:"default:0" json:"publish_status"`
	PlatformArticleID string         `gorm:"size:255" json:"platform_article_id"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PublishArticle) TableName() string { return "publish_articles" }
