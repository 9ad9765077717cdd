package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/promosync/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertEvent reports false when the event was already recorded.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FinishEvent(ctx context.Context, db *gorm.DB, id int64, outcome string, errMsg *string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?, outcome = ?, error = ?
		 WHERE id = ?`,
		at,
		outcome,
		errMsg,
		id,
	).Error
}

func (r *repo) FindMark(ctx context.Context, db *gorm.DB, shop, discountID string) (*domain.SyncMark, error) {
	var mark domain.SyncMark
	err := db.WithContext(ctx).Where("shop = ? AND discount_id = ?", shop, discountID).Take(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mark, nil
}

func (r *repo) UpsertMark(ctx context.Context, db *gorm.DB, mark *domain.SyncMark) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop"}, {Name: "discount_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_event_at", "deleted", "updated_at"}),
	}).Create(mark).Error
}

// DeleteEvent drops a dedupe record so a redelivery is processed again.
func (r *repo) DeleteEvent(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Event{}).Error
}
