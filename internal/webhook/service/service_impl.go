package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/config"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/gid"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	tierdomain "github.com/smallbiznis/promosync/internal/tier/domain"
	"github.com/smallbiznis/promosync/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Cfg       config.Config
	Repo      domain.Repository
	Discounts discountdomain.Service
	Tiers     tierdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

// Service turns change notifications into pipeline calls. Every event is
// recorded once per shop; discount events are applied only when newer than
// the discount's sync mark.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	secret    []byte
	repo      domain.Repository
	discounts discountdomain.Service
	tiers     tierdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("webhook.service"),
		clock:     p.Clock,
		genID:     p.GenID,
		secret:    []byte(strings.TrimSpace(p.Cfg.Shopify.WebhookSecret)),
		repo:      p.Repo,
		discounts: p.Discounts,
		tiers:     p.Tiers,
		metrics:   p.Metrics,
	}
}

// Verify checks the base64 HMAC-SHA256 signature of the raw body.
func (s *Service) Verify(payload []byte, signature string) error {
	if len(s.secret) == 0 {
		return domain.ErrMissingSecret
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) == 0 {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (s *Service) Ingest(ctx context.Context, env domain.Envelope) (domain.Result, error) {
	env.Shop = strings.ToLower(strings.TrimSpace(env.Shop))
	env.Topic = strings.ToLower(strings.Trim(strings.TrimSpace(env.Topic), "/"))
	env.EventID = strings.TrimSpace(env.EventID)
	if env.Shop == "" {
		return domain.Result{}, domain.ErrInvalidShop
	}
	if env.EventID == "" {
		return domain.Result{}, domain.ErrInvalidEventID
	}
	if !supported(env.Topic) {
		return domain.Result{}, domain.ErrUnsupportedTopic
	}
	if len(env.Payload) == 0 || !json.Valid(env.Payload) {
		return domain.Result{}, domain.ErrInvalidPayload
	}

	now := s.clock.Now()
	if env.TriggeredAt.IsZero() {
		env.TriggeredAt = now
	}

	event := &domain.Event{
		ID:          s.genID.Generate().Int64(),
		Shop:        env.Shop,
		EventID:     env.EventID,
		Topic:       env.Topic,
		Payload:     datatypes.JSON(env.Payload),
		TriggeredAt: env.TriggeredAt,
		ReceivedAt:  now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, event)
	if err != nil {
		return domain.Result{}, fmt.Errorf("record webhook event: %w", err)
	}
	if !inserted {
		s.log.Debug("duplicate webhook event", zap.String("shop", env.Shop), zap.String("event_id", env.EventID))
		s.metrics.RecordWebhookEvent(ctx, env.Topic, domain.OutcomeDuplicate)
		return domain.Result{Outcome: domain.OutcomeDuplicate}, nil
	}

	outcome, err := s.dispatch(ctx, env)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, env.Topic, domain.OutcomeFailed)
		s.log.Error("webhook processing failed",
			zap.String("shop", env.Shop),
			zap.String("topic", env.Topic),
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
		// drop the dedupe record so the platform's redelivery is applied
		if delErr := s.repo.DeleteEvent(context.WithoutCancel(ctx), s.db, event.ID); delErr != nil {
			s.log.Warn("failed to release webhook event", zap.Int64("id", event.ID), zap.Error(delErr))
		}
		return domain.Result{Outcome: domain.OutcomeFailed}, err
	}

	if err := s.repo.FinishEvent(ctx, s.db, event.ID, outcome, nil, s.clock.Now()); err != nil {
		s.log.Warn("failed to finish webhook event", zap.Int64("id", event.ID), zap.Error(err))
	}
	s.metrics.RecordWebhookEvent(ctx, env.Topic, outcome)
	s.log.Info("webhook applied",
		zap.String("shop", env.Shop),
		zap.String("topic", env.Topic),
		zap.String("event_id", env.EventID),
		zap.String("outcome", outcome),
	)
	return domain.Result{Outcome: outcome}, nil
}

func supported(topic string) bool {
	switch topic {
	case domain.TopicDiscountsCreate, domain.TopicDiscountsUpdate, domain.TopicDiscountsDelete,
		domain.TopicProductsUpdate, domain.TopicProductsDelete,
		domain.TopicCollectionsUpdate, domain.TopicCollectionsDelete,
		domain.TopicAppSubscriptionUpdate:
		return true
	}
	return false
}

func (s *Service) dispatch(ctx context.Context, env domain.Envelope) (string, error) {
	if env.Topic == domain.TopicAppSubscriptionUpdate {
		return s.applySubscription(ctx, env)
	}

	p, err := decodeResource(env.Payload)
	if err != nil {
		return "", err
	}
	switch env.Topic {
	case domain.TopicDiscountsCreate, domain.TopicDiscountsUpdate:
		return s.applyDiscount(ctx, env, p, false)
	case domain.TopicDiscountsDelete:
		return s.applyDiscount(ctx, env, p, true)
	// Deletes take the same path: the forced refresh drops the stale targets.
	case domain.TopicProductsUpdate, domain.TopicProductsDelete:
		id := p.globalID(gid.TypeProduct)
		if id == "" {
			return "", domain.ErrInvalidPayload
		}
		if _, err := s.discounts.ReprocessProduct(ctx, env.Shop, id); err != nil {
			return "", err
		}
		return domain.OutcomeApplied, nil
	case domain.TopicCollectionsUpdate, domain.TopicCollectionsDelete:
		id := p.globalID(gid.TypeCollection)
		if id == "" {
			return "", domain.ErrInvalidPayload
		}
		if _, err := s.discounts.ReprocessCollection(ctx, env.Shop, id); err != nil {
			return "", err
		}
		return domain.OutcomeApplied, nil
	}
	return "", domain.ErrUnsupportedTopic
}

// applyDiscount syncs or removes one discount unless a newer event was
// already applied to it. Deletes leave a tombstone mark.
func (s *Service) applyDiscount(ctx context.Context, env domain.Envelope, p resourcePayload, deleted bool) (string, error) {
	id := strings.TrimSpace(p.AdminGraphQLAPIID)
	if id == "" {
		return "", domain.ErrInvalidPayload
	}

	at := env.TriggeredAt
	mark, err := s.repo.FindMark(ctx, s.db, env.Shop, id)
	if err != nil {
		return "", err
	}
	if mark != nil && !at.After(mark.LastEventAt) {
		s.log.Info("stale discount event ignored",
			zap.String("shop", env.Shop),
			zap.String("discount_id", id),
			zap.Time("event_at", at),
			zap.Time("mark_at", mark.LastEventAt),
			zap.Bool("tombstone", mark.Deleted),
		)
		return domain.OutcomeStale, nil
	}

	if deleted {
		if _, err := s.discounts.Remove(ctx, env.Shop, id); err != nil {
			return "", err
		}
	} else {
		if _, err := s.discounts.SyncOne(ctx, env.Shop, id, discountdomain.Routine); err != nil {
			return "", err
		}
	}

	err = s.repo.UpsertMark(ctx, s.db, &domain.SyncMark{
		Shop:        env.Shop,
		DiscountID:  id,
		LastEventAt: at,
		Deleted:     deleted,
		UpdatedAt:   s.clock.Now(),
	})
	if err != nil {
		return "", err
	}
	return domain.OutcomeApplied, nil
}

// applySubscription records a plan change and re-evaluates every discount of
// the shop against the new plan.
func (s *Service) applySubscription(ctx context.Context, env domain.Envelope) (string, error) {
	var p subscriptionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return "", domain.ErrInvalidPayload
	}
	tier, ok := tierForSubscription(p.AppSubscription.Name, p.AppSubscription.Status)
	if !ok {
		s.log.Info("subscription update ignored",
			zap.String("shop", env.Shop),
			zap.String("plan", p.AppSubscription.Name),
			zap.String("status", p.AppSubscription.Status),
		)
		return domain.OutcomeIgnored, nil
	}

	changed, err := s.tiers.SetTier(ctx, env.Shop, tier)
	if err != nil {
		return "", err
	}
	if !changed {
		return domain.OutcomeApplied, nil
	}

	res, err := s.discounts.ReprocessAll(ctx, env.Shop, discountdomain.Routine)
	if errors.Is(err, discountdomain.ErrReprocessRunning) {
		s.log.Warn("reprocess already running after tier change", zap.String("shop", env.Shop), zap.String("tier", string(tier)))
		return domain.OutcomeApplied, nil
	}
	if err != nil {
		return "", err
	}
	s.log.Info("tier change reprocessed",
		zap.String("shop", env.Shop),
		zap.String("tier", string(tier)),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)
	return domain.OutcomeApplied, nil
}

// ParseTriggeredAt reads the X-Shopify-Triggered-At header value.
func ParseTriggeredAt(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
