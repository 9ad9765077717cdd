package domain

type LiveStatus string

const (
	StatusLive            LiveStatus = "LIVE"
	StatusHidden          LiveStatus = "HIDDEN"
	StatusScheduled       LiveStatus = "SCHEDULED"
	StatusNotSupported    LiveStatus = "NOT_SUPPORTED"
	StatusUpgradeRequired LiveStatus = "UPGRADE_REQUIRED"
)

// Excluded reports whether the status requires an exclusion reason.
func (s LiveStatus) Excluded() bool {
	return s == StatusNotSupported || s == StatusUpgradeRequired
}

// Toggleable reports whether the status is one an operator may switch between.
func (s LiveStatus) Toggleable() bool {
	return s == StatusLive || s == StatusHidden || s == StatusScheduled
}

func (s LiveStatus) Valid() bool {
	switch s {
	case StatusLive, StatusHidden, StatusScheduled, StatusNotSupported, StatusUpgradeRequired:
		return true
	}
	return false
}

type ExclusionReason string

const (
	ReasonNotProductDiscount ExclusionReason = "not_product_discount"
	ReasonBuyXGetY           ExclusionReason = "bxgy"
	ReasonCustomerSegment    ExclusionReason = "customer_segment"
	ReasonMinimumRequirement ExclusionReason = "minimum_requirement"
	ReasonSubscriptionTier   ExclusionReason = "subscription_tier"
	ReasonVariantTier        ExclusionReason = "variant_tier"
	ReasonFixedAmountTier    ExclusionReason = "fixed_amount_tier"
	ReasonTierCheckFailed    ExclusionReason = "tier_check_failed"
)

var reasonDetails = map[ExclusionReason]string{
	ReasonNotProductDiscount: "Only product discounts can be shown on the storefront.",
	ReasonBuyXGetY:           "Buy X get Y discounts are not supported.",
	ReasonCustomerSegment:    "Discounts limited to customer segments are not supported.",
	ReasonMinimumRequirement: "Discounts with a minimum purchase requirement are not supported.",
	ReasonSubscriptionTier:   "Subscription discounts require the Advanced plan.",
	ReasonVariantTier:        "Variant-level discounts require the Advanced plan.",
	ReasonFixedAmountTier:    "Fixed amount discounts require the Basic plan or higher.",
	ReasonTierCheckFailed:    "Plan eligibility could not be verified.",
}

func (r ExclusionReason) Details() string {
	return reasonDetails[r]
}

// Mode is the classification policy a classifier is constructed with.
type Mode struct {
	name             string
	preserveExisting bool
}

var (
	// Routine keeps an existing LIVE, HIDDEN or SCHEDULED status and starts new rows HIDDEN.
	Routine = Mode{name: "routine", preserveExisting: true}
	// ForceRecompute always applies the computed status, subject to the live quota.
	ForceRecompute = Mode{name: "force_recompute"}
)

// PreservesExisting reports the policy. The zero Mode behaves as Routine.
func (m Mode) PreservesExisting() bool { return m.preserveExisting || m.name == "" }

func (m Mode) String() string {
	if m.name == "" {
		return Routine.name
	}
	return m.name
}

func ParseMode(raw string) (Mode, bool) {
	switch raw {
	case "", Routine.name:
		return Routine, true
	case ForceRecompute.name, "force":
		return ForceRecompute, true
	}
	return Mode{}, false
}
