package domain

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Discount is the synced upstream record.
type Discount struct {
	Shop                     string         `json:"shop" gorm:"primaryKey;type:varchar(255)"`
	ID                       string         `json:"id" gorm:"primaryKey;type:varchar(255)"`
	NumericID                string         `json:"numeric_id" gorm:"type:varchar(32);not null"`
	Title                    string         `json:"title" gorm:"type:text;not null"`
	Status                   string         `json:"status" gorm:"type:varchar(32);not null"`
	Kind                     Kind           `json:"kind" gorm:"type:varchar(16);not null"`
	Class                    Class          `json:"class" gorm:"type:varchar(16);not null"`
	Method                   Method         `json:"method" gorm:"type:varchar(16);not null"`
	StartsAt                 time.Time      `json:"starts_at" gorm:"not null"`
	EndsAt                   *time.Time     `json:"ends_at,omitempty" gorm:"index"`
	ValueType                *ValueType     `json:"value_type,omitempty" gorm:"type:varchar(16)"`
	Percentage               *float64       `json:"percentage,omitempty"`
	AmountMinor              *int64         `json:"amount_minor,omitempty"`
	Currency                 *string        `json:"currency,omitempty" gorm:"type:varchar(3)"`
	AppliesOnOneTimePurchase bool           `json:"applies_on_one_time_purchase" gorm:"not null"`
	AppliesOnSubscription    bool           `json:"applies_on_subscription" gorm:"not null"`
	TargetType               TargetType     `json:"target_type" gorm:"type:varchar(16);not null"`
	HasMinimumRequirement    bool           `json:"has_minimum_requirement" gorm:"not null"`
	AllCustomers             bool           `json:"all_customers" gorm:"not null"`
	Summary                  string         `json:"summary" gorm:"type:text"`
	Payload                  datatypes.JSON `json:"-"`
	UpstreamUpdatedAt        *time.Time     `json:"upstream_updated_at,omitempty"`
	CreatedAt                time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt                time.Time      `json:"updated_at" gorm:"not null"`
}

func (Discount) TableName() string { return "discounts" }

// LiveDiscount is the storefront-facing classified projection of a Discount.
type LiveDiscount struct {
	Shop             string           `json:"shop" gorm:"primaryKey;type:varchar(255)"`
	ID               string           `json:"id" gorm:"primaryKey;type:varchar(255)"`
	Title            string           `json:"title" gorm:"type:text;not null"`
	Status           LiveStatus       `json:"status" gorm:"type:varchar(24);not null;index"`
	ExclusionReason  *ExclusionReason `json:"exclusion_reason,omitempty" gorm:"type:varchar(32)"`
	ExclusionDetails *string          `json:"exclusion_details,omitempty" gorm:"type:text"`
	Kind             Kind             `json:"kind" gorm:"type:varchar(16);not null"`
	ValueType        *ValueType       `json:"value_type,omitempty" gorm:"type:varchar(16)"`
	Percentage       *float64         `json:"percentage,omitempty"`
	AmountMinor      *int64           `json:"amount_minor,omitempty"`
	Currency         *string          `json:"currency,omitempty" gorm:"type:varchar(3)"`
	StartsAt         time.Time        `json:"starts_at" gorm:"not null"`
	EndsAt           *time.Time       `json:"ends_at,omitempty" gorm:"index"`
	Summary          string           `json:"summary" gorm:"type:text"`
	CreatedAt        time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time        `json:"updated_at" gorm:"not null"`
}

func (LiveDiscount) TableName() string { return "live_discounts" }

// Validate checks that an exclusion reason is present exactly for excluded statuses.
func (l *LiveDiscount) Validate() error {
	if !l.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, l.Status)
	}
	if l.Status.Excluded() != (l.ExclusionReason != nil) {
		return fmt.Errorf("%w: status %s reason %v", ErrExclusionMismatch, l.Status, l.ExclusionReason)
	}
	return nil
}

type DiscountTarget struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Shop       string    `json:"shop" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_targets,priority:1"`
	DiscountID string    `json:"discount_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_targets,priority:2"`
	TargetKind ScopeKind `json:"target_kind" gorm:"type:varchar(16);not null;uniqueIndex:ux_discount_targets,priority:3"`
	TargetID   string    `json:"target_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_targets,priority:4;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null"`
}

func (DiscountTarget) TableName() string { return "discount_targets" }

// DiscountProduct links a discount to a resolved product. VariantScoped marks
// products reached only through variant targets.
type DiscountProduct struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Shop          string    `json:"shop" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_products,priority:1"`
	DiscountID    string    `json:"discount_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_products,priority:2"`
	ProductID     string    `json:"product_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_products,priority:3;index"`
	VariantScoped bool      `json:"variant_scoped" gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
}

func (DiscountProduct) TableName() string { return "discount_products" }

type DiscountVariant struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Shop       string    `json:"shop" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_variants,priority:1"`
	DiscountID string    `json:"discount_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_variants,priority:2"`
	VariantID  string    `json:"variant_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_variants,priority:3"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null"`
}

func (DiscountVariant) TableName() string { return "discount_variants" }

type DiscountCode struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Shop       string    `json:"shop" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_codes,priority:1"`
	DiscountID string    `json:"discount_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_codes,priority:2"`
	Code       string    `json:"code" gorm:"type:varchar(255);not null;uniqueIndex:ux_discount_codes,priority:3"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null"`
}

func (DiscountCode) TableName() string { return "discount_codes" }

// Models lists every table owned by this package, in creation order.
func Models() []any {
	return []any{
		&Discount{},
		&LiveDiscount{},
		&DiscountTarget{},
		&DiscountProduct{},
		&DiscountVariant{},
		&DiscountCode{},
	}
}
