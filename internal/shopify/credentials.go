package shopify

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// CredentialSource yields the offline access token for a shop.
type CredentialSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// ShopSession is written by the app install flow.
type ShopSession struct {
	Shop        string    `gorm:"primaryKey;type:varchar(255)"`
	AccessToken string    `gorm:"type:text;not null"`
	Scope       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ShopSession) TableName() string { return "shop_sessions" }

type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) AccessToken(ctx context.Context, shop string) (string, error) {
	var session ShopSession
	err := s.db.WithContext(ctx).Where("shop = ?", shop).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrMissingCredentials
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(session.AccessToken) == "" {
		return "", ErrMissingCredentials
	}
	return session.AccessToken, nil
}

// StaticCredentials serves fixed tokens keyed by shop.
type StaticCredentials map[string]string

func (s StaticCredentials) AccessToken(_ context.Context, shop string) (string, error) {
	token, ok := s[shop]
	if !ok || token == "" {
		return "", ErrMissingCredentials
	}
	return token, nil
}
