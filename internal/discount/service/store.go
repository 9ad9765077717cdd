package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/gid"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/promosync/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const storeAttempts = 3

// Store persists a discount and its junction rows as one unit.
type Store struct {
	db      *gorm.DB
	repo    domain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.SyncMetrics
}

func NewStore(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger, m *metrics.SyncMetrics) *Store {
	return &Store{
		db:      db,
		repo:    repo,
		genID:   genID,
		clock:   clk,
		log:     log.Named("discount.store"),
		metrics: m,
	}
}

// Save upserts the discount row and fully replaces its junction sets.
func (s *Store) Save(ctx context.Context, shop string, d *domain.RemoteDiscount, targets *domain.Targets) (bool, error) {
	if strings.TrimSpace(shop) == "" {
		return false, domain.NewOpError("store", domain.KindInvalidInput, domain.ErrInvalidShop)
	}
	if d == nil || strings.TrimSpace(d.ID) == "" {
		return false, domain.NewOpError("store", domain.KindInvalidInput, domain.ErrInvalidID)
	}

	now := s.clock.Now()
	row, err := discountRow(shop, d, now)
	if err != nil {
		return false, s.fail(shop, d.ID, err)
	}
	junctions := s.junctions(shop, d, targets, now)

	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.UpsertDiscount(ctx, tx, row); err != nil {
				return err
			}
			return s.repo.ReplaceJunctions(ctx, tx, shop, d.ID, junctions)
		})
		if err == nil || attempt >= storeAttempts || !pkgdb.IsRetryableErr(err) {
			break
		}
		s.log.Debug("retrying discount store", zap.String("discount_id", d.ID), zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		return false, s.fail(shop, d.ID, err)
	}
	return true, nil
}

func (s *Store) fail(shop, id string, err error) error {
	s.metrics.IncStoreFailure()
	s.log.Error("failed to store discount",
		zap.String("shop", shop),
		zap.String("discount_id", id),
		zap.Error(err),
	)
	return domain.NewOpError("store", domain.KindStorage, err)
}

func discountRow(shop string, d *domain.RemoteDiscount, now time.Time) (*domain.Discount, error) {
	payload, err := json.Marshal(payloadOf(d))
	if err != nil {
		return nil, err
	}
	row := &domain.Discount{
		Shop:                     shop,
		ID:                       d.ID,
		NumericID:                gid.NumericSuffix(d.ID),
		Title:                    d.Title,
		Status:                   strings.ToUpper(d.Status),
		Kind:                     d.Kind(),
		Class:                    d.Class,
		Method:                   d.Method,
		StartsAt:                 d.StartsAt,
		EndsAt:                   d.EndsAt,
		AppliesOnOneTimePurchase: d.AppliesOnOneTimePurchase,
		AppliesOnSubscription:    d.AppliesOnSubscription,
		TargetType:               d.Scope.TargetType(),
		HasMinimumRequirement:    d.HasMinimumRequirement,
		AllCustomers:             d.AllCustomers,
		Summary:                  d.Summary,
		Payload:                  datatypes.JSON(payload),
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if !d.UpdatedAt.IsZero() {
		at := d.UpdatedAt
		row.UpstreamUpdatedAt = &at
	}
	row.ValueType, row.Percentage, row.AmountMinor, row.Currency = valueColumns(d.Value)
	return row, nil
}

func valueColumns(v domain.Value) (*domain.ValueType, *float64, *int64, *string) {
	switch value := v.(type) {
	case domain.Percentage:
		vt := domain.ValueTypePercentage
		rate := value.Rate
		return &vt, &rate, nil, nil
	case domain.FixedAmount:
		vt := domain.ValueTypeFixedAmount
		amount := value.AmountMinor
		currency := value.Currency
		return &vt, nil, &amount, &currency
	}
	return nil, nil, nil, nil
}

// valueFromColumns is the inverse of valueColumns.
func valueFromColumns(vt *domain.ValueType, percentage *float64, amount *int64, currency *string) domain.Value {
	if vt == nil {
		return nil
	}
	switch *vt {
	case domain.ValueTypePercentage:
		if percentage != nil {
			return domain.Percentage{Rate: *percentage}
		}
	case domain.ValueTypeFixedAmount:
		if amount != nil {
			fixed := domain.FixedAmount{AmountMinor: *amount}
			if currency != nil {
				fixed.Currency = *currency
			}
			return fixed
		}
	}
	return nil
}

func (s *Store) junctions(shop string, d *domain.RemoteDiscount, targets *domain.Targets, now time.Time) domain.Junctions {
	var j domain.Junctions

	seen := make(map[string]struct{})
	for _, entry := range d.Scope {
		var kind domain.ScopeKind
		var ids []string
		switch e := entry.(type) {
		case domain.Products:
			kind, ids = domain.ScopeProducts, e.IDs
		case domain.Variants:
			kind, ids = domain.ScopeVariants, e.IDs
		case domain.Collections:
			kind, ids = domain.ScopeCollections, e.IDs
		default:
			continue
		}
		for _, id := range ids {
			key := string(kind) + "|" + id
			if _, dup := seen[key]; dup || id == "" {
				continue
			}
			seen[key] = struct{}{}
			j.Targets = append(j.Targets, domain.DiscountTarget{
				ID:         s.genID.Generate().Int64(),
				Shop:       shop,
				DiscountID: d.ID,
				TargetKind: kind,
				TargetID:   id,
				CreatedAt:  now,
			})
		}
	}

	for _, productID := range targets.Products() {
		j.Products = append(j.Products, domain.DiscountProduct{
			ID:            s.genID.Generate().Int64(),
			Shop:          shop,
			DiscountID:    d.ID,
			ProductID:     productID,
			VariantScoped: targets.VariantScoped(productID),
			CreatedAt:     now,
		})
	}
	for _, variantID := range targets.Variants() {
		j.Variants = append(j.Variants, domain.DiscountVariant{
			ID:         s.genID.Generate().Int64(),
			Shop:       shop,
			DiscountID: d.ID,
			VariantID:  variantID,
			CreatedAt:  now,
		})
	}

	codes := make(map[string]struct{})
	for _, code := range d.Codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		codes[code] = struct{}{}
	}
	sortedCodes := make([]string, 0, len(codes))
	for code := range codes {
		sortedCodes = append(sortedCodes, code)
	}
	sort.Strings(sortedCodes)
	for _, code := range sortedCodes {
		j.Codes = append(j.Codes, domain.DiscountCode{
			ID:         s.genID.Generate().Int64(),
			Shop:       shop,
			DiscountID: d.ID,
			Code:       code,
			CreatedAt:  now,
		})
	}
	return j
}

type scopePayload struct {
	Kind domain.ScopeKind `json:"kind"`
	IDs  []string         `json:"ids,omitempty"`
}

type valuePayload struct {
	Type        domain.ValueType `json:"type"`
	Percentage  *float64         `json:"percentage,omitempty"`
	AmountMinor *int64           `json:"amount_minor,omitempty"`
	Currency    *string          `json:"currency,omitempty"`
}

type discountPayload struct {
	ID                       string         `json:"id"`
	Title                    string         `json:"title"`
	Status                   string         `json:"status"`
	Class                    domain.Class   `json:"class"`
	Method                   domain.Method  `json:"method"`
	Value                    *valuePayload  `json:"value,omitempty"`
	Scope                    []scopePayload `json:"scope"`
	AppliesOnOneTimePurchase bool           `json:"applies_on_one_time_purchase"`
	AppliesOnSubscription    bool           `json:"applies_on_subscription"`
	HasMinimumRequirement    bool           `json:"has_minimum_requirement"`
	AllCustomers             bool           `json:"all_customers"`
	Codes                    []string       `json:"codes,omitempty"`
}

// payloadOf is the upstream snapshot kept with the stored row for audits.
func payloadOf(d *domain.RemoteDiscount) discountPayload {
	p := discountPayload{
		ID:                       d.ID,
		Title:                    d.Title,
		Status:                   d.Status,
		Class:                    d.Class,
		Method:                   d.Method,
		Scope:                    []scopePayload{},
		AppliesOnOneTimePurchase: d.AppliesOnOneTimePurchase,
		AppliesOnSubscription:    d.AppliesOnSubscription,
		HasMinimumRequirement:    d.HasMinimumRequirement,
		AllCustomers:             d.AllCustomers,
		Codes:                    d.Codes,
	}
	if vt, percentage, amount, currency := valueColumns(d.Value); vt != nil {
		p.Value = &valuePayload{Type: *vt, Percentage: percentage, AmountMinor: amount, Currency: currency}
	}
	for _, entry := range d.Scope {
		switch e := entry.(type) {
		case domain.AllItems:
			p.Scope = append(p.Scope, scopePayload{Kind: domain.ScopeAll})
		case domain.Products:
			p.Scope = append(p.Scope, scopePayload{Kind: domain.ScopeProducts, IDs: e.IDs})
		case domain.Variants:
			p.Scope = append(p.Scope, scopePayload{Kind: domain.ScopeVariants, IDs: e.IDs})
		case domain.Collections:
			p.Scope = append(p.Scope, scopePayload{Kind: domain.ScopeCollections, IDs: e.IDs})
		}
	}
	return p
}
