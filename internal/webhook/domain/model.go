package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicDiscountsCreate       = "discounts/create"
	TopicDiscountsUpdate       = "discounts/update"
	TopicDiscountsDelete       = "discounts/delete"
	TopicProductsUpdate        = "products/update"
	TopicProductsDelete        = "products/delete"
	TopicCollectionsUpdate     = "collections/update"
	TopicCollectionsDelete     = "collections/delete"
	TopicAppSubscriptionUpdate = "app_subscriptions/update"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrMissingSecret    = errors.New("webhook_secret_not_configured")
	ErrInvalidShop      = errors.New("invalid_shop")
	ErrInvalidEventID   = errors.New("invalid_event_id")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrUnsupportedTopic = errors.New("unsupported_topic")
)

// Envelope is one change notification, received over HTTP or from the queue.
type Envelope struct {
	EventID     string          `json:"event_id"`
	Topic       string          `json:"topic"`
	Shop        string          `json:"shop"`
	TriggeredAt time.Time       `json:"triggered_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Event is the dedupe record of a received notification.
type Event struct {
	ID          int64          `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Shop        string         `json:"shop" gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_event,priority:1"`
	EventID     string         `json:"event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_event,priority:2"`
	Topic       string         `json:"topic" gorm:"type:varchar(64);not null"`
	Payload     datatypes.JSON `json:"payload"`
	TriggeredAt time.Time      `json:"triggered_at" gorm:"not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at"`
	Outcome     string         `json:"outcome" gorm:"type:varchar(32)"`
	Error       *string        `json:"error,omitempty" gorm:"type:text"`
}

func (Event) TableName() string { return "webhook_events" }

// SyncMark stamps the newest notification applied to a discount. Deleted
// marks are tombstones.
type SyncMark struct {
	Shop        string    `json:"shop" gorm:"primaryKey;type:varchar(255)"`
	DiscountID  string    `json:"discount_id" gorm:"primaryKey;type:varchar(255)"`
	LastEventAt time.Time `json:"last_event_at" gorm:"not null"`
	Deleted     bool      `json:"deleted" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

func (SyncMark) TableName() string { return "discount_sync_marks" }

func Models() []any {
	return []any{&Event{}, &SyncMark{}}
}

const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

type Result struct {
	Outcome string `json:"outcome"`
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	FinishEvent(ctx context.Context, db *gorm.DB, id int64, outcome string, errMsg *string, at time.Time) error
	FindMark(ctx context.Context, db *gorm.DB, shop, discountID string) (*SyncMark, error)
	UpsertMark(ctx context.Context, db *gorm.DB, mark *SyncMark) error
	DeleteEvent(ctx context.Context, db *gorm.DB, id int64) error
}
