package domain

import (
	"strings"
	"time"

	"github.com/smallbiznis/promosync/internal/gid"
)

// Class is the upstream discount class.
type Class string

const (
	ClassProduct  Class = "PRODUCT"
	ClassOrder    Class = "ORDER"
	ClassShipping Class = "SHIPPING"
	ClassUnknown  Class = "UNKNOWN"
)

// Method is the discount mechanism.
type Method string

const (
	MethodBasic        Method = "BASIC"
	MethodBuyXGetY     Method = "BXGY"
	MethodFreeShipping Method = "FREE_SHIPPING"
	MethodApp          Method = "APP"
)

// Kind distinguishes automatic discounts from code (coupon) discounts.
type Kind string

const (
	KindAutomatic Kind = "automatic"
	KindCode      Kind = "code"
)

const (
	UpstreamStatusActive    = "ACTIVE"
	UpstreamStatusExpired   = "EXPIRED"
	UpstreamStatusScheduled = "SCHEDULED"
)

// RemoteDiscount is the normalized upstream discount the pipeline works on.
// It is produced by the Shopify gateway or synthesized from stored rows.
type RemoteDiscount struct {
	ID                       string
	Title                    string
	Status                   string
	Summary                  string
	Class                    Class
	Method                   Method
	StartsAt                 time.Time
	EndsAt                   *time.Time
	Value                    Value
	Scope                    Scope
	AppliesOnOneTimePurchase bool
	AppliesOnSubscription    bool
	HasMinimumRequirement    bool
	AllCustomers             bool
	Codes                    []string
	UpdatedAt                time.Time
}

func (d *RemoteDiscount) Kind() Kind {
	if gid.IsCodeDiscount(d.ID) {
		return KindCode
	}
	return KindAutomatic
}

func (d *RemoteDiscount) IsExpired(now time.Time) bool {
	if strings.EqualFold(d.Status, UpstreamStatusExpired) {
		return true
	}
	return d.EndsAt != nil && d.EndsAt.Before(now)
}

func (d *RemoteDiscount) IsActive() bool {
	return strings.EqualFold(d.Status, UpstreamStatusActive)
}
